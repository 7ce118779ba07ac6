// Package task defines the task model shared by every backend and front end.
package task

import (
	"fmt"
	"strings"
	"time"
)

// Status is the task's primary lifecycle dimension. It determines the
// folder a task file lives in.
type Status string

const (
	StatusInbox     Status = "inbox"
	StatusNext      Status = "next"
	StatusWaiting   Status = "waiting"
	StatusScheduled Status = "scheduled"
	StatusSomeday   Status = "someday"
	StatusCompleted Status = "completed"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusInbox,
	StatusNext,
	StatusWaiting,
	StatusScheduled,
	StatusSomeday,
	StatusCompleted,
}

// statusFolders maps each status to its vault folder name.
var statusFolders = map[Status]string{
	StatusInbox:     "Inbox",
	StatusNext:      "Next",
	StatusWaiting:   "Waiting",
	StatusScheduled: "Scheduled",
	StatusSomeday:   "Someday",
	StatusCompleted: "Completed",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusFolders[s]
	return ok
}

// Folder returns the vault folder name for the status.
func (s Status) Folder() string {
	return statusFolders[s]
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Task is a single tracked work item. The frontmatter codec persists every
// yaml-tagged field; Content is the markdown body and Path is derived from
// status + id.
//
// BlockedBy and Blocks are caller-maintained: this layer does not keep the
// two sides in sync and performs no cycle detection.
type Task struct {
	ID           string     `yaml:"id"`
	Title        string     `yaml:"title"`
	Status       Status     `yaml:"status"`
	Due          string     `yaml:"due,omitempty"` // ISO date (YYYY-MM-DD)
	Project      string     `yaml:"project,omitempty"`
	AssignedTo   string     `yaml:"assigned_to,omitempty"`
	WaitingOn    string     `yaml:"waiting_on,omitempty"`
	BlockedBy    []string   `yaml:"blocked_by,omitempty"`
	Blocks       []string   `yaml:"blocks,omitempty"`
	Tags         []string   `yaml:"tags,omitempty"`
	TimeEstimate string     `yaml:"time_estimate,omitempty"`
	Created      time.Time  `yaml:"created"`
	Updated      time.Time  `yaml:"updated"`
	Completed    *time.Time `yaml:"completed,omitempty"`

	// Extra preserves frontmatter keys this version does not understand,
	// so a round trip through the codec never discards them.
	Extra map[string]any `yaml:",inline"`

	Content string `yaml:"-"`
	Path    string `yaml:"-"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	c.Blocks = append([]string(nil), t.Blocks...)
	c.Tags = append([]string(nil), t.Tags...)
	if t.Completed != nil {
		done := *t.Completed
		c.Completed = &done
	}
	if t.Extra != nil {
		c.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Validate checks the fields every stored task must carry.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrTitleRequired
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	return nil
}

// Patch is a partial update. Nil fields are left untouched; slice fields
// replace the stored value wholesale when non-nil.
type Patch struct {
	Title        *string
	Due          *string
	Project      *string
	AssignedTo   *string
	WaitingOn    *string
	BlockedBy    []string
	Blocks       []string
	Tags         []string
	TimeEstimate *string
	Content      *string
}

// Apply copies the set fields of the patch onto t.
func (p Patch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Due != nil {
		t.Due = *p.Due
	}
	if p.Project != nil {
		t.Project = *p.Project
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	if p.WaitingOn != nil {
		t.WaitingOn = *p.WaitingOn
	}
	if p.BlockedBy != nil {
		t.BlockedBy = append([]string(nil), p.BlockedBy...)
	}
	if p.Blocks != nil {
		t.Blocks = append([]string(nil), p.Blocks...)
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), p.Tags...)
	}
	if p.TimeEstimate != nil {
		t.TimeEstimate = *p.TimeEstimate
	}
	if p.Content != nil {
		t.Content = *p.Content
	}
}
