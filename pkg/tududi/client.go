// Package tududi is a REST client for the Tududi task manager.
package tududi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/logging"
	"github.com/harrisonrobin/taskslot/pkg/model"
	"github.com/harrisonrobin/taskslot/pkg/retry"
)

// APIError is a non-success HTTP response from Tududi.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tududi API error: %s - %s", e.Status, strings.TrimSpace(e.Body))
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	policy  retry.Policy
	loc     *time.Location
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLocation sets the zone date-only due dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.loc = loc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  retry.Default,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.policy.Retryable = isRetryable
	c.log = logging.OrNop(c.log)
	return c
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retry.IsRetryableStatus(apiErr.StatusCode)
	}
	return retry.IsTransport(err)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempt := 0
	return c.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("tududi request failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.log.Debug("tududi request rejected",
				zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			return &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(text)}
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode tududi response: %w", err)
		}
		return nil
	})
}

// ListTasks returns every task visible to the API key.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var env tasksEnvelope
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &env); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make([]model.Task, 0, len(env.Tasks))
	for _, raw := range env.Tasks {
		tasks = append(tasks, raw.toModel(c.loc, c.log))
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, uid string) (model.Task, error) {
	var raw apiTask
	if err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(uid), nil, &raw); err != nil {
		return model.Task{}, fmt.Errorf("get task %s: %w", uid, err)
	}
	return raw.toModel(c.loc, c.log), nil
}

// UpdateTask applies a partial update and returns the task as stored.
func (c *Client) UpdateTask(ctx context.Context, uid string, upd model.TaskUpdate) (model.Task, error) {
	var raw apiTask
	if err := c.do(ctx, http.MethodPatch, "/task/"+url.PathEscape(uid), upd, &raw); err != nil {
		return model.Task{}, fmt.Errorf("update task %s: %w", uid, err)
	}
	return raw.toModel(c.loc, c.log), nil
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &projects); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// TaskURL links to the task in the Tududi web UI.
func (c *Client) TaskURL(uid string) string {
	return strings.TrimSuffix(c.baseURL, "/api") + "/task/" + url.PathEscape(uid)
}
