// Package vault implements task storage as markdown files under
// status-named folders. It is the fallback backend when the daemon is
// unreachable and the only backend in file-only mode.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/frontmatter"
	"github.com/fyrsmithlabs/taskd/internal/logging"
	"github.com/fyrsmithlabs/taskd/internal/task"
)

// maxIDAttempts bounds the collision retry loop in Create.
const maxIDAttempts = 10

// Config holds vault backend settings.
type Config struct {
	// Root is the vault directory containing the status folders.
	Root string

	// SkipCorrupt makes listings warn and skip unreadable task files
	// instead of failing. Corruption is surfaced by default.
	SkipCorrupt bool
}

// Backend stores one task per markdown file at <root>/<StatusFolder>/<id>.md.
//
// An id->path index avoids a full tree walk on every Get. The index is
// invalidated by an fsnotify watcher so edits made by other processes
// (editor plugins, manual file moves) are picked up on the next read.
type Backend struct {
	root        string
	skipCorrupt bool
	logger      *zap.Logger

	newID func() string
	now   func() time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu    sync.Mutex
	index map[string]string
	dirty bool
}

// New creates the status folders if needed and starts the change watcher.
// Callers must Close the backend to release the watcher.
func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	if cfg.Root == "" {
		return nil, errors.New("vault root is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, s := range task.Statuses {
		dir := filepath.Join(cfg.Root, s.Folder())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create status folder %s: %w", dir, err)
		}
	}

	b := &Backend{
		root:        cfg.Root,
		skipCorrupt: cfg.SkipCorrupt,
		logger:      logger.Named("vault"),
		newID:       task.NewID,
		now:         time.Now,
		done:        make(chan struct{}),
		dirty:       true,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create vault watcher: %w", err)
	}
	for _, s := range task.Statuses {
		if err := watcher.Add(filepath.Join(cfg.Root, s.Folder())); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch status folder %s: %w", s.Folder(), err)
		}
	}
	b.watcher = watcher
	go b.watch()

	return b, nil
}

// Close stops the change watcher.
func (b *Backend) Close() error {
	close(b.done)
	return b.watcher.Close()
}

// watch marks the index dirty on any change in a status folder.
func (b *Backend) watch() {
	for {
		select {
		case <-b.done:
			return
		case _, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.mu.Lock()
			b.dirty = true
			b.mu.Unlock()
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("vault watcher error", zap.Error(err))
		}
	}
}

// List returns every task in the vault, ordered by status then id.
func (b *Backend) List(ctx context.Context) ([]*task.Task, error) {
	var all []*task.Task
	for _, s := range task.Statuses {
		tasks, err := b.ListStatus(ctx, s)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
	}
	return all, nil
}

// ListStatus returns the tasks in one status folder.
func (b *Backend) ListStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", task.ErrInvalidStatus, status)
	}
	dir := filepath.Join(b.root, status.Folder())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read status folder %s: %w", dir, err)
	}

	var tasks []*task.Task
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		t, err := b.readTask(filepath.Join(dir, e.Name()))
		if err != nil {
			if b.skipCorrupt {
				fields := append(logging.ContextFields(ctx),
					zap.String("path", filepath.Join(dir, e.Name())),
					zap.Error(err))
				b.logger.Warn("skipping corrupt task file", fields...)
				continue
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// Get returns the task with the given id, or task.ErrNotFound.
func (b *Backend) Get(ctx context.Context, id string) (*task.Task, error) {
	path, err := b.pathFor(id)
	if err != nil {
		return nil, err
	}
	t, err := b.readTask(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// The index was stale; rescan once before giving up.
			b.invalidate()
			if path, err = b.pathFor(id); err != nil {
				return nil, err
			}
			return b.readTask(path)
		}
		return nil, err
	}
	return t, nil
}

// Create persists the draft under a freshly assigned id. An O_EXCL open
// guarantees an existing file is never overwritten; on collision a new id
// is drawn, up to maxIDAttempts before failing with task.ErrIDExhausted.
func (b *Backend) Create(ctx context.Context, draft *task.Task) (*task.Task, error) {
	t := draft.Clone()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	now := b.now()
	if t.Created.IsZero() {
		t.Created = now
	}
	t.Updated = now
	if t.Status == task.StatusCompleted && t.Completed == nil {
		t.Completed = &now
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		if t.ID == "" {
			t.ID = b.newID()
		}
		t.Path = b.taskPath(t.Status, t.ID)
		err := b.writeExclusive(t)
		if err == nil {
			b.indexPut(t.ID, t.Path)
			return t, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("write task file %s: %w", t.Path, err)
		}
		t.ID = "" // collision, draw again
	}
	return nil, task.ErrIDExhausted
}

// UpdateStatus relocates the task file to the new status folder. The new
// file is written before the old one is removed: a failure in between
// leaves a transient duplicate rather than a lost task.
func (b *Backend) UpdateStatus(ctx context.Context, id string, status task.Status) (*task.Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", task.ErrInvalidStatus, status)
	}
	t, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	oldPath := t.Path
	now := b.now()
	t.Status = status
	t.Updated = now
	if status == task.StatusCompleted {
		t.Completed = &now
	} else {
		t.Completed = nil
	}
	t.Path = b.taskPath(status, t.ID)

	if err := b.write(t); err != nil {
		return nil, err
	}
	if t.Path != oldPath {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove old task file %s: %w", oldPath, err)
		}
	}
	b.indexPut(t.ID, t.Path)
	return t, nil
}

// UpdateFields applies a partial update in place.
func (b *Backend) UpdateFields(ctx context.Context, id string, patch task.Patch) (*task.Task, error) {
	t, err := b.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(t)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Updated = b.now()
	if err := b.write(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the task file permanently.
func (b *Backend) Delete(ctx context.Context, id string) error {
	path, err := b.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return task.ErrNotFound
		}
		return fmt.Errorf("remove task file %s: %w", path, err)
	}
	b.indexDelete(id)
	return nil
}

func (b *Backend) taskPath(status task.Status, id string) string {
	return filepath.Join(b.root, status.Folder(), id+".md")
}

func (b *Backend) readTask(path string) (*task.Task, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return frontmatter.Decode(raw, path)
}

func (b *Backend) write(t *task.Task) error {
	raw, err := frontmatter.Encode(t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.Path, raw, 0o644); err != nil {
		return fmt.Errorf("write task file %s: %w", t.Path, err)
	}
	return nil
}

func (b *Backend) writeExclusive(t *task.Task) error {
	raw, err := frontmatter.Encode(t)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(t.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// pathFor resolves an id through the index, rescanning when dirty.
func (b *Backend) pathFor(id string) (string, error) {
	b.mu.Lock()
	if b.dirty || b.index == nil {
		index, err := b.scan()
		if err != nil {
			b.mu.Unlock()
			return "", err
		}
		b.index = index
		b.dirty = false
	}
	path, ok := b.index[id]
	b.mu.Unlock()
	if !ok {
		return "", task.ErrNotFound
	}
	return path, nil
}

// scan walks the status folders and rebuilds the id->path index.
// Corrupt files are tolerated here; reads of those files fail later
// with a ParseError.
func (b *Backend) scan() (map[string]string, error) {
	index := make(map[string]string)
	for _, s := range task.Statuses {
		dir := filepath.Join(b.root, s.Folder())
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("scan status folder %s: %w", dir, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".md") {
				continue
			}
			id := strings.TrimSuffix(name, ".md")
			index[id] = filepath.Join(dir, name)
		}
	}
	return index, nil
}

func (b *Backend) invalidate() {
	b.mu.Lock()
	b.dirty = true
	b.mu.Unlock()
}

func (b *Backend) indexPut(id, path string) {
	b.mu.Lock()
	if b.index != nil {
		b.index[id] = path
	}
	b.mu.Unlock()
}

func (b *Backend) indexDelete(id string) {
	b.mu.Lock()
	delete(b.index, id)
	b.mu.Unlock()
}
