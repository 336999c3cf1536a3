// Package server exposes health, manual trigger and dashboard endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/clock"
	"github.com/harrisonrobin/taskslot/pkg/lease"
	"github.com/harrisonrobin/taskslot/pkg/ledger"
	"github.com/harrisonrobin/taskslot/pkg/logging"
	"github.com/harrisonrobin/taskslot/pkg/reconcile"
)

type Dashboard interface {
	Stats(ctx context.Context, dayStart, dayEnd time.Time) (ledger.Stats, error)
	Upcoming(ctx context.Context, now time.Time, limit int) ([]ledger.Record, error)
	RecentActivity(ctx context.Context, limit int) ([]ledger.Record, error)
}

type LeaseStatus interface {
	Status(ctx context.Context) (lease.State, error)
}

// Trigger is satisfied by *trigger.Scheduler.
type Trigger interface {
	RunNow(ctx context.Context) reconcile.Result
	LastRun() (reconcile.Result, bool)
	NextRun() time.Time
}

type Deps struct {
	Dashboard Dashboard
	Lease     LeaseStatus
	Trigger   Trigger
	Location  *time.Location
	TimeZone  string
	Clock     clock.Clock
	Log       *zap.Logger
}

// Server is the HTTP status server.
type Server struct {
	Deps
	router *gin.Engine
}

// NewServer creates the router and registers all routes.
func NewServer(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	deps.Log = logging.OrNop(deps.Log)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Log))

	s := &Server{Deps: deps, router: router}

	router.GET("/health", s.handleHealth)
	router.POST("/sync/trigger", s.handleTrigger)

	dash := router.Group("/dashboard")
	{
		dash.GET("/stats", s.handleStats)
		dash.GET("/scheduled", s.handleScheduled)
		dash.GET("/activity", s.handleActivity)
		dash.GET("/schedule.ics", s.handleScheduleICS)
	}
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
