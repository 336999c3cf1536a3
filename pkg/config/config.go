package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/model"
)

const (
	xdgAppName = "taskslot"
	configFile = "config.yaml"
	dbFile     = "taskslot.db"
)

// ErrMissingCredentials is returned by Validate when the Tududi URL or API key is unset.
var ErrMissingCredentials = errors.New("tududi credentials not configured")

type TududiConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Window is the schedulable hour range of one weekday, [Start, End).
type Window struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Start   int  `yaml:"start" mapstructure:"start"`
	End     int  `yaml:"end" mapstructure:"end"`
}

type Windows struct {
	Monday    Window `yaml:"monday" mapstructure:"monday"`
	Tuesday   Window `yaml:"tuesday" mapstructure:"tuesday"`
	Wednesday Window `yaml:"wednesday" mapstructure:"wednesday"`
	Thursday  Window `yaml:"thursday" mapstructure:"thursday"`
	Friday    Window `yaml:"friday" mapstructure:"friday"`
	Saturday  Window `yaml:"saturday" mapstructure:"saturday"`
	Sunday    Window `yaml:"sunday" mapstructure:"sunday"`
}

type HourRange struct {
	Start int `yaml:"start" mapstructure:"start"`
	End   int `yaml:"end" mapstructure:"end"`
}

type PriorityMinutes struct {
	High   int `yaml:"high" mapstructure:"high"`
	Medium int `yaml:"medium" mapstructure:"medium"`
	Low    int `yaml:"low" mapstructure:"low"`
}

type DurationMatrix struct {
	Focus PriorityMinutes `yaml:"focus" mapstructure:"focus"`
	Noise PriorityMinutes `yaml:"noise" mapstructure:"noise"`
}

type BreakRules struct {
	ShortDuration    int `yaml:"short_duration" mapstructure:"short_duration"`
	LongDuration     int `yaml:"long_duration" mapstructure:"long_duration"`
	ThresholdMinutes int `yaml:"threshold_minutes" mapstructure:"threshold_minutes"`
}

type Weights struct {
	Priority float64 `yaml:"priority" mapstructure:"priority"`
	Type     float64 `yaml:"type" mapstructure:"type"`
	Project  float64 `yaml:"project" mapstructure:"project"`
	Urgency  float64 `yaml:"urgency" mapstructure:"urgency"`
	Energy   float64 `yaml:"energy" mapstructure:"energy"`
}

type Config struct {
	Timezone               string `yaml:"timezone" mapstructure:"timezone"`
	SyncIntervalMinutes    int    `yaml:"sync_interval_minutes" mapstructure:"sync_interval_minutes"`
	RescheduleTimeoutHours int    `yaml:"reschedule_timeout_hours" mapstructure:"reschedule_timeout_hours"`
	HorizonDays            int    `yaml:"horizon_days" mapstructure:"horizon_days"`
	MinSlotMinutes         int    `yaml:"min_slot_minutes" mapstructure:"min_slot_minutes"`
	LeaseTimeoutMinutes    int    `yaml:"lease_timeout_minutes" mapstructure:"lease_timeout_minutes"`

	// DefaultCalendar is a calendar name, resolved against the calendar list
	// when no default mapping is stored.
	DefaultCalendar string `yaml:"default_calendar" mapstructure:"default_calendar"`
	Database        string `yaml:"database" mapstructure:"database"`
	Listen          string `yaml:"listen" mapstructure:"listen"`

	Tududi TududiConfig `yaml:"tududi" mapstructure:"tududi"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`

	SchedulingWindows Windows        `yaml:"scheduling_windows" mapstructure:"scheduling_windows"`
	PeakHours         HourRange      `yaml:"peak_hours" mapstructure:"peak_hours"`
	DurationMatrix    DurationMatrix `yaml:"duration_matrix" mapstructure:"duration_matrix"`
	BreakRules        BreakRules     `yaml:"break_rules" mapstructure:"break_rules"`
	Weights           Weights        `yaml:"weights" mapstructure:"weights"`

	// ProjectImportance scores projects for ranking; unlisted projects score 2.
	ProjectImportance map[string]float64 `yaml:"project_importance" mapstructure:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	workday := Window{Enabled: true, Start: 9, End: 18}
	weekend := Window{Enabled: false, Start: 9, End: 18}
	return &Config{
		Timezone:               "UTC",
		SyncIntervalMinutes:    15,
		RescheduleTimeoutHours: 12,
		HorizonDays:            7,
		MinSlotMinutes:         30,
		LeaseTimeoutMinutes:    10,
		Database:               defaultDatabasePath(),
		Listen:                 "127.0.0.1:8080",
		Log:                    LogConfig{Level: "info"},
		SchedulingWindows: Windows{
			Monday: workday, Tuesday: workday, Wednesday: workday, Thursday: workday, Friday: workday,
			Saturday: weekend, Sunday: weekend,
		},
		PeakHours: HourRange{Start: 9, End: 12},
		DurationMatrix: DurationMatrix{
			Focus: PriorityMinutes{High: 120, Medium: 60, Low: 30},
			Noise: PriorityMinutes{High: 45, Medium: 30, Low: 15},
		},
		BreakRules:        BreakRules{ShortDuration: 15, LongDuration: 30, ThresholdMinutes: 60},
		Weights:           Weights{Priority: 0.35, Type: 0.20, Project: 0.20, Urgency: 0.15, Energy: 0.10},
		ProjectImportance: map[string]float64{},
	}
}

// Normalize fills zero values left by partial config files with defaults.
func (c *Config) Normalize() {
	d := Default()
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.SyncIntervalMinutes <= 0 {
		c.SyncIntervalMinutes = d.SyncIntervalMinutes
	}
	if c.RescheduleTimeoutHours <= 0 {
		c.RescheduleTimeoutHours = d.RescheduleTimeoutHours
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.MinSlotMinutes <= 0 {
		c.MinSlotMinutes = d.MinSlotMinutes
	}
	if c.LeaseTimeoutMinutes <= 0 {
		c.LeaseTimeoutMinutes = d.LeaseTimeoutMinutes
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.PeakHours == (HourRange{}) {
		c.PeakHours = d.PeakHours
	}
	if c.BreakRules == (BreakRules{}) {
		c.BreakRules = d.BreakRules
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	if c.DurationMatrix == (DurationMatrix{}) {
		c.DurationMatrix = d.DurationMatrix
	}
	if c.ProjectImportance == nil {
		c.ProjectImportance = map[string]float64{}
	}
}

// Validate checks the configuration before a cycle mutates anything.
func (c *Config) Validate() error {
	if c.Tududi.URL == "" || c.Tududi.APIKey == "" {
		return ErrMissingCredentials
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	for day, w := range c.SchedulingWindows.byWeekday() {
		if !w.Enabled {
			continue
		}
		if w.Start < 0 || w.Start > 23 || w.End < 1 || w.End > 24 || w.Start >= w.End {
			return fmt.Errorf("invalid scheduling window for %s: %d-%d", time.Weekday(day), w.Start, w.End)
		}
	}
	if c.PeakHours.Start < 0 || c.PeakHours.End > 24 || c.PeakHours.Start >= c.PeakHours.End {
		return fmt.Errorf("invalid peak hours: %d-%d", c.PeakHours.Start, c.PeakHours.End)
	}
	w := c.Weights
	if w.Priority < 0 || w.Type < 0 || w.Project < 0 || w.Urgency < 0 || w.Energy < 0 {
		return errors.New("weights must be non-negative")
	}
	for _, m := range []PriorityMinutes{c.DurationMatrix.Focus, c.DurationMatrix.Noise} {
		if m.High <= 0 || m.Medium <= 0 || m.Low <= 0 {
			return errors.New("duration matrix entries must be positive")
		}
	}
	if c.BreakRules.ShortDuration < 0 || c.BreakRules.LongDuration < 0 {
		return errors.New("break durations must be non-negative")
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (w Windows) byWeekday() [7]Window {
	return [7]Window{w.Sunday, w.Monday, w.Tuesday, w.Wednesday, w.Thursday, w.Friday, w.Saturday}
}

func (c *Config) WeeklyWindows() engine.WeeklyWindows {
	var out engine.WeeklyWindows
	for i, w := range c.SchedulingWindows.byWeekday() {
		out[i] = engine.DayWindow{Enabled: w.Enabled, StartHour: w.Start, EndHour: w.End}
	}
	return out
}

func (c *Config) EngineWeights() engine.Weights {
	return engine.Weights{
		Priority: c.Weights.Priority,
		Type:     c.Weights.Type,
		Project:  c.Weights.Project,
		Urgency:  c.Weights.Urgency,
		Energy:   c.Weights.Energy,
	}
}

func (c *Config) EngineBreakRules() engine.BreakRules {
	return engine.BreakRules{
		ShortMinutes:     c.BreakRules.ShortDuration,
		LongMinutes:      c.BreakRules.LongDuration,
		ThresholdMinutes: c.BreakRules.ThresholdMinutes,
	}
}

func (c *Config) EnginePeakHours() engine.PeakHours {
	return engine.PeakHours{Start: c.PeakHours.Start, End: c.PeakHours.End}
}

func (c *Config) EngineDurationMatrix() engine.DurationMatrix {
	table := func(m PriorityMinutes) map[model.Priority]int {
		return map[model.Priority]int{
			model.PriorityHigh:   m.High,
			model.PriorityMedium: m.Medium,
			model.PriorityLow:    m.Low,
		}
	}
	return engine.DurationMatrix{Focus: table(c.DurationMatrix.Focus), Noise: table(c.DurationMatrix.Noise)}
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

func (c *Config) RescheduleTimeout() time.Duration {
	return time.Duration(c.RescheduleTimeoutHours) * time.Hour
}

func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutMinutes) * time.Minute
}

func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// GetXdgHome returns ~/.config/taskslot.
func GetXdgHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// GetConfigPath returns the default config file location.
func GetConfigPath() (string, error) {
	dir, err := GetXdgHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

func defaultDatabasePath() string {
	dir, err := GetXdgHome()
	if err != nil {
		return dbFile
	}
	return filepath.Join(dir, dbFile)
}
