package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/daemon"
	"github.com/fyrsmithlabs/taskd/internal/dates"
	"github.com/fyrsmithlabs/taskd/internal/task"
	"github.com/fyrsmithlabs/taskd/internal/vault"
)

// stubBackend lets tests script each backend operation.
type stubBackend struct {
	list         func(ctx context.Context) ([]*task.Task, error)
	listStatus   func(ctx context.Context, s task.Status) ([]*task.Task, error)
	get          func(ctx context.Context, id string) (*task.Task, error)
	create       func(ctx context.Context, d *task.Task) (*task.Task, error)
	updateStatus func(ctx context.Context, id string, s task.Status) (*task.Task, error)
	updateFields func(ctx context.Context, id string, p task.Patch) (*task.Task, error)
	del          func(ctx context.Context, id string) error
}

func (s *stubBackend) List(ctx context.Context) ([]*task.Task, error) { return s.list(ctx) }
func (s *stubBackend) ListStatus(ctx context.Context, st task.Status) ([]*task.Task, error) {
	return s.listStatus(ctx, st)
}
func (s *stubBackend) Get(ctx context.Context, id string) (*task.Task, error) { return s.get(ctx, id) }
func (s *stubBackend) Create(ctx context.Context, d *task.Task) (*task.Task, error) {
	return s.create(ctx, d)
}
func (s *stubBackend) UpdateStatus(ctx context.Context, id string, st task.Status) (*task.Task, error) {
	return s.updateStatus(ctx, id, st)
}
func (s *stubBackend) UpdateFields(ctx context.Context, id string, p task.Patch) (*task.Task, error) {
	return s.updateFields(ctx, id, p)
}
func (s *stubBackend) Delete(ctx context.Context, id string) error { return s.del(ctx, id) }

// unreachableBackend fails every call with a transport error, simulating a
// daemon that is down.
type unreachableBackend struct{}

func transportDown() error {
	return &daemon.TransportError{Op: "GET", URL: "http://localhost:7432", Err: errors.New("connection refused")}
}

func (unreachableBackend) List(context.Context) ([]*task.Task, error) { return nil, transportDown() }
func (unreachableBackend) ListStatus(context.Context, task.Status) ([]*task.Task, error) {
	return nil, transportDown()
}
func (unreachableBackend) Get(context.Context, string) (*task.Task, error) {
	return nil, transportDown()
}
func (unreachableBackend) Create(context.Context, *task.Task) (*task.Task, error) {
	return nil, transportDown()
}
func (unreachableBackend) UpdateStatus(context.Context, string, task.Status) (*task.Task, error) {
	return nil, transportDown()
}
func (unreachableBackend) UpdateFields(context.Context, string, task.Patch) (*task.Task, error) {
	return nil, transportDown()
}
func (unreachableBackend) Delete(context.Context, string) error { return transportDown() }

func newVaultBackend(t *testing.T) *vault.Backend {
	t.Helper()
	b, err := vault.New(vault.Config{Root: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func fileOnly(t *testing.T) *Layer {
	return New(newVaultBackend(t), nil, Config{}, zap.NewNop())
}

func TestCreate_AppliesDefaultStatus(t *testing.T) {
	l := fileOnly(t)

	created, err := l.Create(context.Background(), CreateRequest{Title: "Sort mail"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusInbox, created.Status)

	l2 := New(newVaultBackend(t), nil, Config{DefaultStatus: task.StatusNext}, zap.NewNop())
	created, err = l2.Create(context.Background(), CreateRequest{Title: "Sort mail"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusNext, created.Status)
}

func TestCreate_ResolvesDueText(t *testing.T) {
	l := fileOnly(t)

	created, err := l.Create(context.Background(), CreateRequest{Title: "Pay rent", DueText: "tomorrow"})
	require.NoError(t, err)

	want := dates.FormatISO(dates.Midnight(time.Now()).AddDate(0, 0, 1))
	assert.Equal(t, want, created.Due)
}

func TestCreate_InvalidDueFailsWholeCreation(t *testing.T) {
	l := fileOnly(t)

	_, err := l.Create(context.Background(), CreateRequest{Title: "Pay rent", DueText: "whenever-ish"})
	require.ErrorIs(t, err, dates.ErrInvalidDate)

	// Nothing was stored.
	all, err := l.List(context.Background(), FilterAll)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_FallsBackWhenDaemonUnreachable(t *testing.T) {
	vb := newVaultBackend(t)
	var notified []string
	l := New(vb, unreachableBackend{}, Config{}, zap.NewNop(),
		WithFallbackNotifier(func(op string, cause error) { notified = append(notified, op) }))

	created, err := l.Create(context.Background(), CreateRequest{Title: "Local write"})
	require.NoError(t, err)
	assert.Equal(t, []string{"create"}, notified)

	// The task landed in file storage and is retrievable through a
	// file-backed listing.
	got, err := vb.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Local write", got.Title)
}

func TestDaemonAnswersAreAuthoritative(t *testing.T) {
	// An error envelope (not a transport failure) must not fall back.
	apiErr := &daemon.APIError{Code: "invalid_request", Message: "title is required"}
	vaultCalled := false
	vb := &stubBackend{create: func(ctx context.Context, d *task.Task) (*task.Task, error) {
		vaultCalled = true
		return d, nil
	}}
	db := &stubBackend{create: func(ctx context.Context, d *task.Task) (*task.Task, error) {
		return nil, apiErr
	}}
	l := New(vb, db, Config{}, zap.NewNop())

	_, err := l.Create(context.Background(), CreateRequest{Title: "x"})
	var got *daemon.APIError
	require.ErrorAs(t, err, &got)
	assert.False(t, vaultCalled)
}

func TestDaemonPreferredUsesDaemonFirst(t *testing.T) {
	daemonTask := &task.Task{ID: "D2MN", Title: "from daemon", Status: task.StatusNext}
	db := &stubBackend{get: func(ctx context.Context, id string) (*task.Task, error) {
		return daemonTask, nil
	}}
	vb := &stubBackend{get: func(ctx context.Context, id string) (*task.Task, error) {
		t.Fatal("vault must not be consulted when the daemon answers")
		return nil, nil
	}}
	l := New(vb, db, Config{}, zap.NewNop())

	got, err := l.Get(context.Background(), "D2MN")
	require.NoError(t, err)
	assert.Equal(t, "from daemon", got.Title)
}

func TestComplete_StampsAndLeavesActiveListings(t *testing.T) {
	l := fileOnly(t)
	ctx := context.Background()

	created, err := l.Create(ctx, CreateRequest{Title: "Finish report", Status: task.StatusNext})
	require.NoError(t, err)

	done, err := l.Complete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, done.Status)
	require.NotNil(t, done.Completed)
	assert.False(t, done.Completed.IsZero())

	next, err := l.List(ctx, FilterNext)
	require.NoError(t, err)
	assert.Empty(t, next)

	// Completing again is not an error and refreshes the stamp.
	again, err := l.Complete(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, again.Completed)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	l := fileOnly(t)

	_, err := l.UpdateStatus(context.Background(), "ZZZZ", task.StatusNext)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestListTodayAndOverdue(t *testing.T) {
	l := fileOnly(t)
	ctx := context.Background()

	_, err := l.Create(ctx, CreateRequest{Title: "due today", DueText: "today"})
	require.NoError(t, err)
	_, err = l.Create(ctx, CreateRequest{Title: "overdue", DueText: "2020-01-01"})
	require.NoError(t, err)
	_, err = l.Create(ctx, CreateRequest{Title: "future", DueText: "in 3 days"})
	require.NoError(t, err)
	doneDraft, err := l.Create(ctx, CreateRequest{Title: "overdue but done", DueText: "2020-01-02"})
	require.NoError(t, err)
	_, err = l.Complete(ctx, doneDraft.ID)
	require.NoError(t, err)

	today, err := l.List(ctx, FilterToday)
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, "due today", today[0].Title)

	overdue, err := l.List(ctx, FilterOverdue)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "overdue", overdue[0].Title)
}

func TestList_UnknownFilter(t *testing.T) {
	l := fileOnly(t)

	_, err := l.List(context.Background(), Filter("bogus"))
	assert.ErrorIs(t, err, ErrUnknownFilter)
}

func TestResolve(t *testing.T) {
	l := fileOnly(t)
	ctx := context.Background()

	groceries, err := l.Create(ctx, CreateRequest{Title: "Buy groceries"})
	require.NoError(t, err)
	dentist, err := l.Create(ctx, CreateRequest{Title: "Book dentist appointment"})
	require.NoError(t, err)

	// Exact id, case-insensitive.
	got, err := l.Resolve(ctx, groceries.ID)
	require.NoError(t, err)
	assert.Equal(t, groceries.ID, got.ID)

	// Id suffix.
	got, err = l.Resolve(ctx, dentist.ID[2:])
	require.NoError(t, err)
	assert.Equal(t, dentist.ID, got.ID)

	// Title substring, case-insensitive.
	got, err = l.Resolve(ctx, "DENTIST")
	require.NoError(t, err)
	assert.Equal(t, dentist.ID, got.ID)

	_, err = l.Resolve(ctx, "no such thing")
	assert.ErrorIs(t, err, task.ErrNotFound)

	_, err = l.Resolve(ctx, "  ")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestUpdateFields_NormalizesDueText(t *testing.T) {
	l := fileOnly(t)
	ctx := context.Background()

	created, err := l.Create(ctx, CreateRequest{Title: "Renew passport"})
	require.NoError(t, err)

	due := "tomorrow"
	updated, err := l.UpdateFields(ctx, created.ID, task.Patch{Due: &due})
	require.NoError(t, err)
	want := dates.FormatISO(dates.Midnight(time.Now()).AddDate(0, 0, 1))
	assert.Equal(t, want, updated.Due)

	bad := "garbage date"
	_, err = l.UpdateFields(ctx, created.ID, task.Patch{Due: &bad})
	assert.ErrorIs(t, err, dates.ErrInvalidDate)
}

// Blocked-by and blocks links stay caller-managed: updating one side does
// not touch the other. This pins the asymmetric behavior on purpose.
func TestBlockedByLinksAreNotAutoMaintained(t *testing.T) {
	l := fileOnly(t)
	ctx := context.Background()

	a, err := l.Create(ctx, CreateRequest{Title: "upstream"})
	require.NoError(t, err)
	b, err := l.Create(ctx, CreateRequest{Title: "downstream"})
	require.NoError(t, err)

	_, err = l.UpdateFields(ctx, b.ID, task.Patch{BlockedBy: []string{a.ID}})
	require.NoError(t, err)

	gotA, err := l.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, gotA.Blocks, "the reverse link is the caller's job")
}

func TestHealth_FileOnlyIsFalse(t *testing.T) {
	l := fileOnly(t)
	assert.False(t, l.Health(context.Background()))
}
