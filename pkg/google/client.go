package google

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskslot/pkg/auth"
	"github.com/harrisonrobin/taskslot/pkg/retry"
)

// Calendar is an entry of the user's calendar list.
type Calendar struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	Primary    bool   `json:"primary"`
	AccessRole string `json:"access_role"`
}

// NewClient creates a Google Calendar client from the stored OAuth token.
// With interactive false a missing token fails with auth.ErrNoToken instead
// of starting the browser flow.
func NewClient(ctx context.Context, interactive bool, log *zap.Logger) (*CalendarClient, error) {
	srv, err := auth.GetCalendarService(ctx, interactive, log)
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(srv, retry.Default, log), nil
}

// ListCalendars returns every calendar on the user's calendar list.
func (c *CalendarClient) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var out []Calendar
	call := c.srv.CalendarList.List()
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		out = out[:0]
		return call.Pages(ctx, func(page *calendar.CalendarList) error {
			for _, item := range page.Items {
				out = append(out, Calendar{
					ID:         item.Id,
					Summary:    item.Summary,
					Primary:    item.Primary,
					AccessRole: item.AccessRole,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	return out, nil
}

// ResolveCalendarID finds a calendar id by its display name.
func (c *CalendarClient) ResolveCalendarID(ctx context.Context, name string) (string, error) {
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return "", err
	}
	for _, item := range calendars {
		if item.Summary == name || item.ID == name {
			return item.ID, nil
		}
	}
	return "", fmt.Errorf("calendar '%s' not found", name)
}
