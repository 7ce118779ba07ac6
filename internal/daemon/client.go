// Package daemon is the HTTP client for a running taskd daemon. It
// implements the task backend contract over the wire protocol and owns the
// cached connection-health state.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/protocol"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

// DefaultTimeout bounds every daemon request. Fallback policy lives in the
// access layer; a hung daemon must not hang the caller.
const DefaultTimeout = 5 * time.Second

// TransportError marks a network or protocol failure talking to the
// daemon. The access layer falls back to the vault when it sees one.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("daemon %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a daemon error envelope surfaced as a typed failure.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon error %s: %s", e.Code, e.Message)
}

// Config holds daemon client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to one configured daemon. The health cache is scoped to the
// client instance: updated only by successful probes, never cleared, so
// front ends can always show the last known daemon state.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	lastHealth *protocol.Health
	lastCheck  time.Time
}

// New creates a daemon client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("daemon"),
	}
}

// TestConnection probes the daemon's health endpoint. On success the
// parsed health document is cached and true is returned. Any failure is
// swallowed into false: the probe is a liveness signal, and the previous
// cached health is deliberately left in place.
func (c *Client) TestConnection(ctx context.Context) bool {
	health, err := c.fetchHealth(ctx)
	if err != nil {
		c.logger.Debug("health probe failed", zap.Error(err))
		return false
	}
	c.mu.Lock()
	c.lastHealth = health
	c.lastCheck = time.Now()
	c.mu.Unlock()
	return true
}

// LastHealth returns the most recent successful health document and when
// it was obtained. ok is false when no probe has ever succeeded.
func (c *Client) LastHealth() (health *protocol.Health, checkedAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHealth, c.lastCheck, c.lastHealth != nil
}

func (c *Client) fetchHealth(ctx context.Context) (*protocol.Health, error) {
	u := c.baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Op: "GET", URL: u, Err: err}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "GET", URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "GET", URL: u, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	var health protocol.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, &TransportError{Op: "GET", URL: u, Err: fmt.Errorf("decode health payload: %w", err)}
	}
	return &health, nil
}

// List returns every task the daemon knows about.
func (c *Client) List(ctx context.Context) ([]*task.Task, error) {
	return c.listTasks(ctx, "/api/v1/tasks")
}

// ListStatus returns the tasks in one status.
func (c *Client) ListStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	return c.listTasks(ctx, "/api/v1/tasks?status="+url.QueryEscape(string(status)))
}

func (c *Client) listTasks(ctx context.Context, path string) ([]*task.Task, error) {
	var payloads []*protocol.TaskPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}
	tasks := make([]*task.Task, 0, len(payloads))
	for _, p := range payloads {
		tasks = append(tasks, p.ToTask())
	}
	return tasks, nil
}

// Get returns one task, or task.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*task.Task, error) {
	var payload protocol.TaskPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	return payload.ToTask(), nil
}

// Create asks the daemon to create a task; the daemon assigns the id.
func (c *Client) Create(ctx context.Context, draft *task.Task) (*task.Task, error) {
	var payload protocol.TaskPayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", protocol.FromTask(draft), &payload); err != nil {
		return nil, err
	}
	return payload.ToTask(), nil
}

// UpdateStatus relocates a task to a new status.
func (c *Client) UpdateStatus(ctx context.Context, id string, status task.Status) (*task.Task, error) {
	var payload protocol.TaskPayload
	body := protocol.StatusChange{Status: string(status)}
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(id)+"/status", body, &payload); err != nil {
		return nil, err
	}
	return payload.ToTask(), nil
}

// UpdateFields applies a partial update.
func (c *Client) UpdateFields(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	var payload protocol.TaskPayload
	if err := c.do(ctx, http.MethodPatch, "/api/v1/tasks/"+url.PathEscape(id), protocol.FromPatch(patch), &payload); err != nil {
		return nil, err
	}
	return payload.ToTask(), nil
}

// Delete removes a task permanently.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// do issues one request and decodes the envelope. Transport failures come
// back as *TransportError; error envelopes as *APIError, with the
// not_found code mapped onto task.ErrNotFound so callers can errors.Is it.
// No retries happen here.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u := c.baseURL + path

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &TransportError{Op: method, URL: u, Err: fmt.Errorf("decode envelope: %w", err)}
	}

	if !env.OK {
		if env.Error == nil {
			return &TransportError{Op: method, URL: u, Err: fmt.Errorf("error envelope without error body")}
		}
		if env.Error.Code == protocol.CodeNotFound {
			return fmt.Errorf("%w: %s", task.ErrNotFound, env.Error.Message)
		}
		return &APIError{Code: env.Error.Code, Message: env.Error.Message}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &TransportError{Op: method, URL: u, Err: fmt.Errorf("decode data payload: %w", err)}
		}
	}
	return nil
}
