package engine

import (
	"regexp"
	"strings"
)

// Marker is the status emoji prefixed to a task name in the task manager.
type Marker string

const (
	MarkerScheduled Marker = "📅"
	MarkerProblem   Marker = "⚠️"
	MarkerPastDue   Marker = "❌"
)

// The warning sign is matched with or without its emoji variation selector.
var markerPattern = regexp.MustCompile(`^(?:📅|⚠\x{FE0F}?|❌)(?:\s+(?:📅|⚠\x{FE0F}?|❌))*\s*`)

// StripMarkers removes any leading run of status markers.
func StripMarkers(name string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(name, ""))
}

// ApplyMarker replaces existing markers on name with m.
func ApplyMarker(name string, m Marker) string {
	return string(m) + " " + StripMarkers(name)
}

// DetectMarker returns the most significant marker present at the start of name.
func DetectMarker(name string) (Marker, bool) {
	found := markerPattern.FindString(name)
	if found == "" {
		return "", false
	}
	switch {
	case strings.Contains(found, string(MarkerScheduled)):
		return MarkerScheduled, true
	case strings.Contains(found, "⚠"):
		return MarkerProblem, true
	case strings.Contains(found, string(MarkerPastDue)):
		return MarkerPastDue, true
	}
	return "", false
}
