// Package app wires configuration, storage and the external clients into a
// ready-to-run orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/clock"
	"github.com/harrisonrobin/taskslot/pkg/colors"
	"github.com/harrisonrobin/taskslot/pkg/config"
	"github.com/harrisonrobin/taskslot/pkg/google"
	"github.com/harrisonrobin/taskslot/pkg/lease"
	"github.com/harrisonrobin/taskslot/pkg/ledger"
	"github.com/harrisonrobin/taskslot/pkg/logging"
	"github.com/harrisonrobin/taskslot/pkg/reconcile"
	"github.com/harrisonrobin/taskslot/pkg/tududi"
)

// App holds the long-lived collaborators. Calendar, Colors and Orchestrator
// are nil until Connect succeeds.
type App struct {
	ConfigPath string
	Config     *config.Config
	Log        *zap.Logger
	Clock      clock.Clock
	Store      *ledger.Store
	Lease      *lease.Manager
	Tasks      *tududi.Client

	Calendar     *google.CalendarClient
	Colors       *colors.ColorCache
	Orchestrator *reconcile.Orchestrator
}

// Open loads the config at configPath (the default location when empty),
// builds the logger and opens the ledger. It makes no network calls.
func Open(configPath string) (*App, error) {
	if configPath == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("could not find path to configuration file: %w", err)
		}
		configPath = p
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	if err != nil {
		return nil, err
	}

	clk := clock.System{}
	store, err := ledger.Open(cfg.Database, clk, log)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	loc := cfg.Location()
	a := &App{
		ConfigPath: configPath,
		Config:     cfg,
		Log:        log,
		Clock:      clk,
		Store:      store,
		Lease:      lease.NewManager(store, clk, cfg.LeaseTimeout(), log),
		Tasks: tududi.NewClient(cfg.Tududi.URL, cfg.Tududi.APIKey,
			tududi.WithLocation(loc),
			tududi.WithLogger(log.Named("tududi"))),
	}
	log.Debug("app opened",
		zap.String("config", configPath),
		zap.String("database", cfg.Database),
		zap.String("timezone", loc.String()))
	return a, nil
}

// Connect creates the Google Calendar client and the orchestrator. With
// interactive false a missing OAuth token fails instead of opening a browser.
func (a *App) Connect(ctx context.Context, interactive bool) error {
	if a.Orchestrator != nil {
		return nil
	}
	cal, err := google.NewClient(ctx, interactive, a.Log.Named("google"))
	if err != nil {
		return err
	}

	cachePath := filepath.Join(filepath.Dir(a.Config.Database), colors.CacheFile)
	cc, err := colors.NewColorCache(cachePath, a.Clock, a.Log.Named("colors"))
	if err != nil {
		return err
	}

	a.Calendar = cal
	a.Colors = cc
	a.Orchestrator = reconcile.New(reconcile.Deps{
		Tasks:    a.Tasks,
		Calendar: cal,
		Ledger:   a.Store,
		Lease:    a.Lease,
		Colors:   cc,
	}, a.Config,
		reconcile.WithClock(a.Clock),
		reconcile.WithLogger(a.Log.Named("reconcile")),
		reconcile.WithFallbackCalendar(a.fallbackCalendar(ctx, cal)),
	)
	return nil
}

// fallbackCalendar resolves the configured default calendar name. Lookup
// failures fall back to the primary calendar.
func (a *App) fallbackCalendar(ctx context.Context, cal *google.CalendarClient) string {
	name := a.Config.DefaultCalendar
	if name == "" {
		return reconcile.FallbackCalendarID
	}
	id, err := cal.ResolveCalendarID(ctx, name)
	if err != nil {
		a.Log.Warn("default calendar not resolved, using primary",
			zap.String("calendar", name), zap.Error(err))
		return reconcile.FallbackCalendarID
	}
	return id
}

// Close releases the ledger and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	// Sync on stderr returns EINVAL on some platforms.
	_ = a.Log.Sync()
	return errors.Join(errs...)
}
