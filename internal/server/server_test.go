package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/daemon"
	"github.com/fyrsmithlabs/taskd/internal/dates"
	"github.com/fyrsmithlabs/taskd/internal/protocol"
	"github.com/fyrsmithlabs/taskd/internal/task"
	"github.com/fyrsmithlabs/taskd/internal/vault"
)

func newTestServer(t *testing.T) (*httptest.Server, *vault.Backend) {
	t.Helper()
	vb, err := vault.New(vault.Config{Root: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { vb.Close() })

	s, err := New(vb, zap.NewNop(), Config{Version: "test"})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, vb
}

func decodeEnvelope(t *testing.T, resp *http.Response) protocol.Envelope {
	t.Helper()
	defer resp.Body.Close()
	var env protocol.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

// The daemon client against the real server exercises both ends of the
// wire protocol.
func TestClientServerRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	c := daemon.New(daemon.Config{BaseURL: ts.URL}, nil)
	ctx := context.Background()

	created, err := c.Create(ctx, &task.Task{
		Title:  "Plan sprint",
		Status: task.StatusNext,
		Due:    "tomorrow", // the server normalizes due text
		Tags:   []string{"work"},
	})
	require.NoError(t, err)
	assert.Len(t, created.ID, task.IDLength)
	assert.Equal(t, dates.FormatISO(dates.Midnight(time.Now()).AddDate(0, 0, 1)), created.Due)

	next, err := c.ListStatus(ctx, task.StatusNext)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "Plan sprint", next[0].Title)

	done, err := c.UpdateStatus(ctx, created.ID, task.StatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, done.Completed)

	title := "Plan next sprint"
	patched, err := c.UpdateFields(ctx, created.ID, task.Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, patched.Title)

	require.NoError(t, c.Delete(ctx, created.ID))
	_, err = c.Get(ctx, created.ID)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestCreate_RejectsInvalidDue(t *testing.T) {
	ts, _ := newTestServer(t)
	c := daemon.New(daemon.Config{BaseURL: ts.URL}, nil)

	_, err := c.Create(context.Background(), &task.Task{
		Title:  "Bad due",
		Status: task.StatusInbox,
		Due:    "whenever",
	})
	var apiErr *daemon.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, protocol.CodeInvalidDate, apiErr.Code)
	assert.Contains(t, apiErr.Message, "whenever")
}

func TestGet_NotFoundEnvelope(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/tasks/ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.False(t, env.OK)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeNotFound, env.Error.Code)
}

func TestStatusChange_RejectsUnknownStatus(t *testing.T) {
	ts, _ := newTestServer(t)
	c := daemon.New(daemon.Config{BaseURL: ts.URL}, nil)
	ctx := context.Background()

	created, err := c.Create(ctx, &task.Task{Title: "x", Status: task.StatusInbox})
	require.NoError(t, err)

	resp, err := http.Post(
		ts.URL+"/api/v1/tasks/"+created.ID+"/status",
		"application/json",
		strings.NewReader(`{"status":"snoozed"}`),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeInvalidRequest, env.Error.Code)
}

func TestList_FilterValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/tasks?status=bogus")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	c := daemon.New(daemon.Config{BaseURL: ts.URL}, nil)
	ctx := context.Background()

	_, err := c.Create(ctx, &task.Task{Title: "a", Status: task.StatusInbox})
	require.NoError(t, err)
	_, err = c.Create(ctx, &task.Task{Title: "b", Status: task.StatusNext})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health protocol.Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.NotEmpty(t, health.Uptime)
	assert.Equal(t, 2, health.Cache.TaskCount)
	assert.WithinDuration(t, time.Now(), health.Cache.LastRefresh, time.Minute)

	// And the client's probe caches it.
	require.True(t, c.TestConnection(ctx))
	cached, _, ok := c.LastHealth()
	require.True(t, ok)
	assert.Equal(t, 2, cached.Cache.TaskCount)
}

func TestDerivedFlagsOnWire(t *testing.T) {
	ts, _ := newTestServer(t)
	c := daemon.New(daemon.Config{BaseURL: ts.URL}, nil)
	ctx := context.Background()

	created, err := c.Create(ctx, &task.Task{Title: "old", Status: task.StatusNext, Due: "2020-01-01"})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/v1/tasks/" + created.ID)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	require.True(t, env.OK)

	var p protocol.TaskPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.IsOverdue)
	assert.False(t, p.IsDueToday)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	// Generate a little traffic first.
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "taskd_http_requests_total")
}
