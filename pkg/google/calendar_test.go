package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/model"
	"github.com/harrisonrobin/taskslot/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *CalendarClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewCalendarClient(svc, retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 2}, nil)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func TestEventIDs(t *testing.T) {
	assert.Equal(t, "ctsab90", TaskEventID("AB-xyz9", 0))
	assert.Equal(t, "ctbab92", BreakEventID("AB-xyz9", 2))
	assert.Equal(t, "cts10", TaskEventID("", 1), "short ids are padded")
	assert.Equal(t, "cts00", TaskEventID("wxyz", 0), "letters past v are dropped")
	assert.Equal(t, "cts0123456789abcdefghijklmnopqrstuv0", TaskEventID("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ", 0))
}

func TestToCalendarEvent(t *testing.T) {
	start := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	ev := toCalendarEvent(model.EventSpec{
		ID:          "ctsa10",
		Summary:     "📅 Write report",
		Start:       start,
		End:         start.Add(time.Hour),
		TimeZone:    "Europe/Berlin",
		ColorID:     "3",
		SourceTitle: "taskslot",
		SourceURL:   "https://tududi.example.com/task/a1",
		TaskUID:     "a1",
	})
	assert.Equal(t, "ctsa10", ev.Id)
	assert.Equal(t, "2024-03-12T09:00:00Z", ev.Start.DateTime)
	assert.Equal(t, "Europe/Berlin", ev.End.TimeZone)
	assert.Empty(t, ev.Transparency)
	require.NotNil(t, ev.Source)
	assert.Equal(t, "https://tududi.example.com/task/a1", ev.Source.Url)
	assert.Equal(t, "a1", ev.ExtendedProperties.Private[taskUIDProperty])

	brk := toCalendarEvent(model.EventSpec{Summary: "Break", Start: start, End: start, Transparent: true})
	assert.Equal(t, "transparent", brk.Transparency)
	assert.Nil(t, brk.Source)
	assert.Nil(t, brk.ExtendedProperties)
}

func TestBusy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/freeBusy"), r.URL.Path)
		var req calendar.FreeBusyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Items, 2)
		io.WriteString(w, `{"calendars": {
			"primary": {"busy": [{"start": "2024-03-12T09:00:00Z", "end": "2024-03-12T10:00:00Z"}]},
			"team": {"errors": [{"domain": "global", "reason": "notFound"}], "busy": []}
		}}`)
	})

	from := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	busy, err := c.Busy(context.Background(), []string{"primary", "team"}, from, from.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []engine.BusyPeriod{{
		Start: time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC),
	}}, busy)
}

func TestBusyNoCalendars(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	busy, err := c.Busy(context.Background(), nil, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, busy)
}

func TestCreateEvent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		var ev calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "ctsa10", ev.Id)
		json.NewEncoder(w).Encode(&ev)
	})
	id, err := c.CreateEvent(context.Background(), "primary", model.EventSpec{ID: "ctsa10", Summary: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ctsa10", id)
}

func TestCreateEventDuplicateMovesExisting(t *testing.T) {
	newStart := time.Date(2024, 1, 1, 11, 30, 0, 0, time.UTC)
	var updated atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			writeError(w, http.StatusConflict, "The requested identifier already exists.")
		case http.MethodGet:
			assert.True(t, strings.HasSuffix(r.URL.Path, "/events/ctsa10"), r.URL.Path)
			io.WriteString(w, `{"id": "ctsa10", "status": "confirmed",
				"start": {"dateTime": "2024-01-01T09:00:00Z"}, "end": {"dateTime": "2024-01-01T11:00:00Z"}}`)
		case http.MethodPut:
			updated.Store(true)
			assert.True(t, strings.HasSuffix(r.URL.Path, "/events/ctsa10"), r.URL.Path)
			var ev calendar.Event
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
			require.NotNil(t, ev.Start)
			start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
			require.NoError(t, err)
			assert.True(t, start.Equal(newStart), "start %s", ev.Start.DateTime)
			assert.Equal(t, "confirmed", ev.Status)
			json.NewEncoder(w).Encode(&ev)
		default:
			t.Errorf("unexpected %s", r.Method)
		}
	})
	id, err := c.CreateEvent(context.Background(), "primary", model.EventSpec{
		ID:    "ctsa10",
		Start: newStart,
		End:   newStart.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "ctsa10", id)
	assert.True(t, updated.Load(), "existing event must be overwritten with the new slot")
}

func TestCreateEventRestoresCancelled(t *testing.T) {
	var updated atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			writeError(w, http.StatusConflict, "duplicate")
		case http.MethodGet:
			io.WriteString(w, `{"id": "ctsa10", "status": "cancelled"}`)
		case http.MethodPut:
			updated.Store(true)
			var ev calendar.Event
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
			assert.Equal(t, "confirmed", ev.Status)
			json.NewEncoder(w).Encode(&ev)
		}
	})
	id, err := c.CreateEvent(context.Background(), "primary", model.EventSpec{ID: "ctsa10"})
	require.NoError(t, err)
	assert.Equal(t, "ctsa10", id)
	assert.True(t, updated.Load())
}

func TestCreateEventRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeError(w, http.StatusServiceUnavailable, "backend")
			return
		}
		io.WriteString(w, `{"id": "generated"}`)
	})
	id, err := c.CreateEvent(context.Background(), "primary", model.EventSpec{})
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateEventForbidden(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusForbidden, "insufficient permissions")
	})
	_, err := c.CreateEvent(context.Background(), "primary", model.EventSpec{ID: "ctsa10"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteEventIgnoresMissing(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			writeError(w, code, "gone")
		})
		assert.NoError(t, c.DeleteEvent(context.Background(), "primary", "ctsa10"))
	}
}

func TestDeleteEventFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusForbidden, "nope")
	})
	assert.Error(t, c.DeleteEvent(context.Background(), "primary", "ctsa10"))
	assert.NoError(t, c.DeleteEvent(context.Background(), "primary", ""))
}

func TestResolveCalendarID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/calendarList"), r.URL.Path)
		io.WriteString(w, `{"items": [
			{"id": "me@example.com", "summary": "Me", "primary": true, "accessRole": "owner"},
			{"id": "work123@group.calendar.google.com", "summary": "Work", "accessRole": "writer"}
		]}`)
	})

	id, err := c.ResolveCalendarID(context.Background(), "Work")
	require.NoError(t, err)
	assert.Equal(t, "work123@group.calendar.google.com", id)

	_, err = c.ResolveCalendarID(context.Background(), "Holidays")
	assert.ErrorContains(t, err, "not found")

	cals, err := c.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 2)
	assert.True(t, cals[0].Primary)
	assert.Equal(t, "writer", cals[1].AccessRole)
}
