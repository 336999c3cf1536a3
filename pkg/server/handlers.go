package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/ics"
)

func (s *Server) handleHealth(c *gin.Context) {
	st, err := s.Lease.Status(c.Request.Context())
	if err != nil {
		s.Log.Error("lease status failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	body := gin.H{
		"status": "ok",
		"sync": gin.H{
			"in_progress":       st.InProgress,
			"started_at":        timeOrNil(st.StartedAt),
			"last_completed_at": timeOrNil(st.LastCompletedAt),
		},
		"last_run": nil,
		"next_run": nil,
	}
	if s.Trigger != nil {
		if last, ok := s.Trigger.LastRun(); ok {
			body["last_run"] = last
		}
		body["next_run"] = timeOrNil(s.Trigger.NextRun())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleTrigger(c *gin.Context) {
	if s.Trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync trigger not configured"})
		return
	}
	res := s.Trigger.RunNow(c.Request.Context())
	if res.Contended {
		c.JSON(http.StatusConflict, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleStats(c *gin.Context) {
	now := s.Clock.Now().In(s.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.Location)
	st, err := s.Dashboard.Stats(c.Request.Context(), dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleScheduled(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	recs, err := s.Dashboard.Upcoming(c.Request.Context(), s.Clock.Now(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": recs, "count": len(recs)})
}

func (s *Server) handleActivity(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	recs, err := s.Dashboard.RecentActivity(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": recs, "count": len(recs)})
}

func (s *Server) handleScheduleICS(c *gin.Context) {
	now := s.Clock.Now()
	recs, err := s.Dashboard.Upcoming(c.Request.Context(), now, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(ics.ExportRecords(recs, s.TimeZone, now)))
}

// queryLimit parses ?limit=. Zero means the store's default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
