// Package access is the task access and synchronization layer: the single
// CRUD/lifecycle API every front end consumes. It selects between the
// daemon client and the vault per call, owns the fail-open fallback
// protocol, and resolves free-text due dates before anything is stored.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/daemon"
	"github.com/fyrsmithlabs/taskd/internal/dates"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

// Filter names the list views front ends can request.
type Filter string

const (
	FilterInbox   Filter = "inbox"
	FilterNext    Filter = "next"
	FilterWaiting Filter = "waiting"
	FilterSomeday Filter = "someday"
	FilterToday   Filter = "today"
	FilterOverdue Filter = "overdue"
	FilterAll     Filter = "all"
)

// ErrUnknownFilter is returned for a filter List does not recognize.
var ErrUnknownFilter = errors.New("unknown filter")

// Notifier is called after a daemon operation fell back to the vault, so
// front ends can tell the user the write happened locally.
type Notifier func(op string, cause error)

// Config holds access layer settings.
type Config struct {
	// DefaultStatus is applied to created tasks with no explicit status.
	DefaultStatus task.Status
}

// Layer routes task operations to the daemon when one is configured and
// reachable, else to the vault. Availability wins over consistency: a
// single failed daemon call falls back to the vault for that call, and the
// two views may transiently diverge until the daemon reconciles.
type Layer struct {
	vault  task.Backend
	daemon task.Backend // nil in file-only mode
	cfg    Config
	logger *zap.Logger
	notify Notifier
}

// Option configures optional layer behavior.
type Option func(*Layer)

// WithFallbackNotifier registers a callback fired on every daemon-to-vault
// fallback.
func WithFallbackNotifier(n Notifier) Option {
	return func(l *Layer) { l.notify = n }
}

// New creates the access layer. Pass a nil daemonBackend for file-only
// mode; the daemon is then never invoked.
func New(vaultBackend, daemonBackend task.Backend, cfg Config, logger *zap.Logger, opts ...Option) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = task.StatusInbox
	}
	l := &Layer{
		vault:  vaultBackend,
		daemon: daemonBackend,
		cfg:    cfg,
		logger: logger.Named("access"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// run executes op against the daemon first when one is configured, falling
// back to the vault on transport failure only. Error envelopes from the
// daemon (validation failures, not-found) are authoritative answers and do
// not trigger a fallback.
func run[T any](l *Layer, op string, fn func(b task.Backend) (T, error)) (T, error) {
	if l.daemon != nil {
		v, err := fn(l.daemon)
		var terr *daemon.TransportError
		if err == nil || !errors.As(err, &terr) {
			return v, err
		}
		l.logger.Warn("daemon unreachable, falling back to vault",
			zap.String("op", op),
			zap.Error(err))
		if l.notify != nil {
			l.notify(op, err)
		}
	}
	return fn(l.vault)
}

// CreateRequest carries the caller-supplied fields for a new task.
type CreateRequest struct {
	Title        string
	Status       task.Status // empty applies the configured default
	DueText      string      // free text, resolved through the date engine
	Project      string
	AssignedTo   string
	WaitingOn    string
	Tags         []string
	TimeEstimate string
	Content      string
}

// Create assigns timestamps and the default status, resolves the due text,
// and persists the task. An unparseable due date fails the whole creation:
// a task is never stored with garbage in its due field.
func (l *Layer) Create(ctx context.Context, req CreateRequest) (*task.Task, error) {
	status := req.Status
	if status == "" {
		status = l.cfg.DefaultStatus
	}

	draft := &task.Task{
		Title:        strings.TrimSpace(req.Title),
		Status:       status,
		Project:      req.Project,
		AssignedTo:   req.AssignedTo,
		WaitingOn:    req.WaitingOn,
		Tags:         req.Tags,
		TimeEstimate: req.TimeEstimate,
		Content:      req.Content,
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if req.DueText != "" {
		due, err := dates.Parse(req.DueText)
		if err != nil {
			return nil, err
		}
		draft.Due = dates.FormatISO(due)
	}

	return run(l, "create", func(b task.Backend) (*task.Task, error) {
		return b.Create(ctx, draft)
	})
}

// Get returns one task by exact id.
func (l *Layer) Get(ctx context.Context, id string) (*task.Task, error) {
	return run(l, "get", func(b task.Backend) (*task.Task, error) {
		return b.Get(ctx, id)
	})
}

// List returns the tasks matching the filter. The today and overdue views
// are recomputed from the due field on every call; they exclude completed
// tasks.
func (l *Layer) List(ctx context.Context, filter Filter) ([]*task.Task, error) {
	switch filter {
	case FilterInbox, FilterNext, FilterWaiting, FilterSomeday:
		return run(l, "list", func(b task.Backend) ([]*task.Task, error) {
			return b.ListStatus(ctx, task.Status(filter))
		})
	case FilterAll:
		return run(l, "list", func(b task.Backend) ([]*task.Task, error) {
			return b.List(ctx)
		})
	case FilterToday, FilterOverdue:
		all, err := run(l, "list", func(b task.Backend) ([]*task.Task, error) {
			return b.List(ctx)
		})
		if err != nil {
			return nil, err
		}
		return l.filterByDue(all, filter), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, filter)
	}
}

func (l *Layer) filterByDue(all []*task.Task, filter Filter) []*task.Task {
	var out []*task.Task
	for _, t := range all {
		if t.Status == task.StatusCompleted || t.Due == "" {
			continue
		}
		due, err := dates.Parse(t.Due)
		if err != nil {
			l.logger.Warn("stored task has unparseable due date",
				zap.String("id", t.ID),
				zap.String("due", t.Due))
			continue
		}
		switch filter {
		case FilterToday:
			if dates.IsDueToday(due) {
				out = append(out, t)
			}
		case FilterOverdue:
			if dates.IsOverdue(due) {
				out = append(out, t)
			}
		}
	}
	return out
}

// UpdateFields applies a partial update to one task.
func (l *Layer) UpdateFields(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	if patch.Due != nil && *patch.Due != "" {
		due, err := dates.Parse(*patch.Due)
		if err != nil {
			return nil, err
		}
		iso := dates.FormatISO(due)
		patch.Due = &iso
	}
	return run(l, "update", func(b task.Backend) (*task.Task, error) {
		return b.UpdateFields(ctx, id, patch)
	})
}

// UpdateStatus is the generic status transition. The transition graph is
// unrestricted: any status may move to any other.
func (l *Layer) UpdateStatus(ctx context.Context, id string, status task.Status) (*task.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", task.ErrInvalidStatus, status)
	}
	return run(l, "status", func(b task.Backend) (*task.Task, error) {
		return b.UpdateStatus(ctx, id, status)
	})
}

// Delete removes a task permanently.
func (l *Layer) Delete(ctx context.Context, id string) error {
	_, err := run(l, "delete", func(b task.Backend) (struct{}, error) {
		return struct{}{}, b.Delete(ctx, id)
	})
	return err
}

// Named transitions over UpdateStatus, matching the common lifecycle
// paths. Complete is idempotent: completing a completed task re-stamps the
// completion time and causes no error.

// Start moves a task into the next list.
func (l *Layer) Start(ctx context.Context, id string) (*task.Task, error) {
	return l.UpdateStatus(ctx, id, task.StatusNext)
}

// Activate moves a parked task back into the next list.
func (l *Layer) Activate(ctx context.Context, id string) (*task.Task, error) {
	return l.UpdateStatus(ctx, id, task.StatusNext)
}

// MoveToWaiting parks a task until someone else acts.
func (l *Layer) MoveToWaiting(ctx context.Context, id string) (*task.Task, error) {
	return l.UpdateStatus(ctx, id, task.StatusWaiting)
}

// Defer shelves a task to someday.
func (l *Layer) Defer(ctx context.Context, id string) (*task.Task, error) {
	return l.UpdateStatus(ctx, id, task.StatusSomeday)
}

// Schedule marks a task as scheduled.
func (l *Layer) Schedule(ctx context.Context, id string) (*task.Task, error) {
	return l.UpdateStatus(ctx, id, task.StatusScheduled)
}

// Complete finishes a task and stamps its completion time.
func (l *Layer) Complete(ctx context.Context, id string) (*task.Task, error) {
	return l.UpdateStatus(ctx, id, task.StatusCompleted)
}

// Resolve finds a task from loose CLI input: exact id match first, then id
// suffix, then case-insensitive title substring. First match in source
// order wins; there is no ranking.
func (l *Layer) Resolve(ctx context.Context, query string) (*task.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, task.ErrNotFound
	}

	all, err := l.List(ctx, FilterAll)
	if err != nil {
		return nil, err
	}

	upper := strings.ToUpper(query)
	for _, t := range all {
		if t.ID == upper {
			return t, nil
		}
	}
	for _, t := range all {
		if strings.HasSuffix(t.ID, upper) {
			return t, nil
		}
	}
	lower := strings.ToLower(query)
	for _, t := range all {
		if strings.Contains(strings.ToLower(t.Title), lower) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: no task matches %q", task.ErrNotFound, query)
}

// Health reports daemon reachability for front ends. In file-only mode it
// returns false immediately.
func (l *Layer) Health(ctx context.Context) bool {
	type prober interface {
		TestConnection(ctx context.Context) bool
	}
	if p, ok := l.daemon.(prober); ok {
		return p.TestConnection(ctx)
	}
	return false
}
