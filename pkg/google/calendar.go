package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/logging"
	"github.com/harrisonrobin/taskslot/pkg/model"
	"github.com/harrisonrobin/taskslot/pkg/retry"
)

// CalendarClient is a Google Calendar API client.
type CalendarClient struct {
	srv    *calendar.Service
	policy retry.Policy
	log    *zap.Logger
}

// NewCalendarClient wraps an authenticated Calendar service.
func NewCalendarClient(srv *calendar.Service, policy retry.Policy, log *zap.Logger) *CalendarClient {
	policy.Retryable = isRetryable
	return &CalendarClient{srv: srv, policy: policy, log: logging.OrNop(log)}
}

func isRetryable(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return retry.IsRetryableStatus(gErr.Code)
	}
	return retry.IsTransport(err)
}

func hasStatus(err error, codes ...int) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}
	for _, c := range codes {
		if gErr.Code == c {
			return true
		}
	}
	return false
}

// Busy returns the raw busy periods of the given calendars in [from, to).
// Calendars the API reports errors for are logged and skipped.
func (c *CalendarClient) Busy(ctx context.Context, calendarIDs []string, from, to time.Time) ([]engine.BusyPeriod, error) {
	if len(calendarIDs) == 0 {
		return nil, nil
	}
	req := &calendar.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
	}
	for _, id := range calendarIDs {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: id})
	}

	var resp *calendar.FreeBusyResponse
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.srv.Freebusy.Query(req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	var busy []engine.BusyPeriod
	for _, id := range calendarIDs {
		cal, ok := resp.Calendars[id]
		if !ok {
			continue
		}
		for _, e := range cal.Errors {
			c.log.Warn("freebusy error for calendar", zap.String("calendar_id", id), zap.String("reason", e.Reason))
		}
		for _, p := range cal.Busy {
			start, err := time.Parse(time.RFC3339, p.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, p.End)
			if err != nil {
				continue
			}
			busy = append(busy, engine.BusyPeriod{Start: start, End: end})
		}
	}
	return busy, nil
}

// CreateEvent inserts spec and returns the event id. When spec carries an id
// that already exists, the existing event is overwritten with spec and
// confirmed, so a retried cycle moves it to the newly planned slot instead
// of creating a duplicate.
func (c *CalendarClient) CreateEvent(ctx context.Context, calendarID string, spec model.EventSpec) (string, error) {
	event := toCalendarEvent(spec)

	var created *calendar.Event
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = c.srv.Events.Insert(calendarID, event).Context(ctx).Do()
		return err
	})
	if err == nil {
		return created.Id, nil
	}
	if spec.ID == "" || !hasStatus(err, http.StatusConflict) {
		return "", fmt.Errorf("insert event: %w", err)
	}

	existing, err := c.getEvent(ctx, calendarID, spec.ID)
	if err != nil {
		return "", fmt.Errorf("fetch existing event %s: %w", spec.ID, err)
	}

	event.Status = "confirmed"
	var updated *calendar.Event
	err = c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = c.srv.Events.Update(calendarID, spec.ID, event).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("update existing event %s: %w", spec.ID, err)
	}
	c.log.Info("reused existing event",
		zap.String("calendar_id", calendarID),
		zap.String("event_id", updated.Id),
		zap.String("previous_status", existing.Status))
	return updated.Id, nil
}

func (c *CalendarClient) getEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error) {
	var ev *calendar.Event
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		ev, err = c.srv.Events.Get(calendarID, eventID).Context(ctx).Do()
		return err
	})
	return ev, err
}

// DeleteEvent deletes an event. Events that are already gone count as deleted.
func (c *CalendarClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if eventID == "" {
		return nil
	}
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		return c.srv.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil && !hasStatus(err, http.StatusNotFound, http.StatusGone) {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}
