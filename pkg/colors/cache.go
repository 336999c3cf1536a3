// Package colors hands out Google Calendar event colours per project.
package colors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/clock"
	"github.com/harrisonrobin/taskslot/pkg/logging"
)

// CacheFile is the cache's file name, kept next to the database.
const CacheFile = "project_colors.json"

// Google event colour ids run 1..11. Gray (8) marks break events.
const (
	firstColor    = 1
	lastColor     = 11
	reservedColor = 8
)

type ProjectState struct {
	ColorID  string    `json:"color_id"`
	LastUsed time.Time `json:"last_used"`
}

// ColorCache assigns each project a stable colour, recycling the least
// recently used project's colour once the palette is exhausted.
type ColorCache struct {
	mu       sync.Mutex
	path     string
	clock    clock.Clock
	log      *zap.Logger
	projects map[string]*ProjectState
	dirty    bool
}

// NewColorCache loads the cache at path. A missing file starts empty.
func NewColorCache(path string, c clock.Clock, log *zap.Logger) (*ColorCache, error) {
	if c == nil {
		c = clock.System{}
	}
	cache := &ColorCache{
		path:     path,
		clock:    c,
		log:      logging.OrNop(log),
		projects: make(map[string]*ProjectState),
	}
	if err := cache.load(); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c *ColorCache) load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read color cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.projects); err != nil {
		return fmt.Errorf("decode color cache %s: %w", c.path, err)
	}
	for p, s := range c.projects {
		if s == nil || s.ColorID == reservedID() {
			delete(c.projects, p)
		}
	}
	return nil
}

// Save writes the cache if anything changed since the last save.
func (c *ColorCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	data, err := json.MarshalIndent(c.projects, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create color cache directory: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write color cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace color cache: %w", err)
	}
	c.dirty = false
	return nil
}

// ColorID returns the colour for project. An empty project gets "", which
// leaves the event on the calendar's default colour.
func (c *ColorCache) ColorID(project string) string {
	if project == "" {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if state, ok := c.projects[project]; ok {
		state.LastUsed = now
		c.dirty = true
		return state.ColorID
	}
	return c.assignColor(project, now)
}

func (c *ColorCache) assignColor(project string, now time.Time) string {
	used := make(map[string]bool, len(c.projects))
	for _, s := range c.projects {
		used[s.ColorID] = true
	}
	for i := firstColor; i <= lastColor; i++ {
		if i == reservedColor {
			continue
		}
		id := strconv.Itoa(i)
		if !used[id] {
			c.projects[project] = &ProjectState{ColorID: id, LastUsed: now}
			c.dirty = true
			return id
		}
	}

	var oldest string
	for p, s := range c.projects {
		if oldest == "" || s.LastUsed.Before(c.projects[oldest].LastUsed) ||
			(s.LastUsed.Equal(c.projects[oldest].LastUsed) && p < oldest) {
			oldest = p
		}
	}
	recycled := c.projects[oldest].ColorID
	delete(c.projects, oldest)
	c.log.Debug("recycled project color",
		zap.String("from_project", oldest), zap.String("to_project", project), zap.String("color_id", recycled))

	c.projects[project] = &ProjectState{ColorID: recycled, LastUsed: now}
	c.dirty = true
	return recycled
}

func reservedID() string {
	return strconv.Itoa(reservedColor)
}
