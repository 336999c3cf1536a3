package tududi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskslot/pkg/model"
	"github.com/harrisonrobin/taskslot/pkg/retry"
)

var fastRetry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, Factor: 2}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRetryPolicy(fastRetry)}, opts...)
	return NewClient(srv.URL+"/api/", "secret", opts...)
}

func TestListTasksWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		io.WriteString(w, `{"tasks": [
			{"uid": "a1", "name": "Write report", "priority": 2, "status": 0, "due_date": "2024-03-12",
			 "tags": [{"name": "type:focus"}], "project": {"uid": "p1", "name": "Work"}},
			{"uid": "b2", "name": "Email", "priority": "low", "status": "in_progress", "Tags": [{"name": "type:noise"}]}
		]}`)
	})

	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	a := tasks[0]
	assert.Equal(t, "a1", a.UID)
	assert.Equal(t, model.PriorityHigh, a.Priority)
	assert.Equal(t, model.StatusNotStarted, a.Status)
	require.NotNil(t, a.DueDate)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), *a.DueDate)
	assert.Equal(t, "p1", a.ProjectUID())
	assert.Equal(t, []model.Tag{{Name: "type:focus"}}, a.Tags)

	b := tasks[1]
	assert.Equal(t, model.PriorityLow, b.Priority)
	assert.Equal(t, model.StatusInProgress, b.Status)
	assert.Nil(t, b.DueDate)
	assert.Equal(t, []model.Tag{{Name: "type:noise"}}, b.Tags)
	assert.Nil(t, b.Project)
}

func TestListTasksBareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"uid": "a1", "name": "x", "priority": 9, "status": 42, "due_date": "2024-03-12T15:00:00Z"}]`)
	})
	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.PriorityMedium, tasks[0].Priority, "unknown numeric priority")
	assert.Equal(t, model.StatusNotStarted, tasks[0].Status, "unknown numeric status")
	assert.Equal(t, time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC), tasks[0].DueDate.UTC())
}

func TestListTasksKeepsTaskWithBadDueDate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"uid": "bad", "status": 2, "due_date": "next tuesday"}, {"uid": "ok"}]`)
	})
	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "bad", tasks[0].UID)
	assert.Nil(t, tasks[0].DueDate)
	assert.Equal(t, model.StatusDone, tasks[0].Status, "still visible to completion handling")
	assert.False(t, tasks[0].Eligible())
	assert.Equal(t, "ok", tasks[1].UID)
}

func TestDueDateUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"uid": "a1", "due_date": "2024-03-12"}]`)
	}, WithLocation(loc))
	tasks, err := c.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, loc), *tasks[0].DueDate)
}

func TestUpdateTask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/task/a1", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"name": "📅 Write report"}, body)
		io.WriteString(w, `{"uid": "a1", "name": "📅 Write report", "status": 1}`)
	})

	name := "📅 Write report"
	task, err := c.UpdateTask(context.Background(), "a1", model.TaskUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, task.Name)
	assert.Equal(t, model.StatusInProgress, task.Status)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"uid": "a1", "name": "x"}`)
	})
	task, err := c.GetTask(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", task.UID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})
	_, err := c.ListTasks(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "task not found", http.StatusNotFound)
	})
	_, err := c.GetTask(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "task not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestListProjects(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects", r.URL.Path)
		io.WriteString(w, `[{"uid": "p1", "name": "Work"}]`)
	})
	projects, err := c.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Project{{UID: "p1", Name: "Work"}}, projects)
}

func TestTaskURL(t *testing.T) {
	assert.Equal(t, "https://tududi.example.com/task/a1", NewClient("https://tududi.example.com/api", "k").TaskURL("a1"))
	assert.Equal(t, "https://tududi.example.com/task/a1", NewClient("https://tududi.example.com/api/", "k").TaskURL("a1"))
	assert.Equal(t, "https://tududi.example.com/task/a1", NewClient("https://tududi.example.com", "k").TaskURL("a1"))
}
