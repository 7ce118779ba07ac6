// Package protocol defines the daemon wire format: response envelopes,
// snake_case task payloads, and the health document. Both the HTTP client
// and the server speak this package, so the two ends cannot drift.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/task"
)

// Machine-readable error codes carried in error envelopes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidDate    = "invalid_date"
	CodeNotFound       = "not_found"
	CodeIDExhausted    = "id_exhausted"
	CodeParseError     = "parse_error"
	CodeInternal       = "internal"
)

// Envelope is the shape of every daemon response: {ok:true, data} on
// success, {ok:false, error:{code,message}} on failure.
type Envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody carries a machine-readable code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health is the payload of GET /health. Unlike task operations it is not
// enveloped; the document is the liveness signal itself.
type Health struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Cache   HealthCache `json:"cache"`
}

// HealthCache describes the daemon's task cache.
type HealthCache struct {
	TaskCount   int       `json:"task_count"`
	LastRefresh time.Time `json:"last_refresh"`
}

// TaskPayload is the wire form of a task. Keys are snake_case and include
// the derived is_overdue / is_due_today flags the daemon computes for its
// clients; those flags are never stored.
type TaskPayload struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Due          string     `json:"due,omitempty"`
	Project      string     `json:"project,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	WaitingOn    string     `json:"waiting_on,omitempty"`
	BlockedBy    []string   `json:"blocked_by,omitempty"`
	Blocks       []string   `json:"blocks,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	TimeEstimate string     `json:"time_estimate,omitempty"`
	Created      time.Time  `json:"created"`
	Updated      time.Time  `json:"updated"`
	Completed    *time.Time `json:"completed,omitempty"`
	Content      string     `json:"content,omitempty"`
	Path         string     `json:"path,omitempty"`
	IsOverdue    bool       `json:"is_overdue"`
	IsDueToday   bool       `json:"is_due_today"`
}

// FromTask converts the in-process task record to its wire form. The
// derived flags are left for the server to fill in.
func FromTask(t *task.Task) *TaskPayload {
	return &TaskPayload{
		ID:           t.ID,
		Title:        t.Title,
		Status:       string(t.Status),
		Due:          t.Due,
		Project:      t.Project,
		AssignedTo:   t.AssignedTo,
		WaitingOn:    t.WaitingOn,
		BlockedBy:    t.BlockedBy,
		Blocks:       t.Blocks,
		Tags:         t.Tags,
		TimeEstimate: t.TimeEstimate,
		Created:      t.Created,
		Updated:      t.Updated,
		Completed:    t.Completed,
		Content:      t.Content,
		Path:         t.Path,
	}
}

// ToTask converts a wire payload back to the in-process record. The
// derived flags are dropped; they are recomputed locally when needed.
func (p *TaskPayload) ToTask() *task.Task {
	return &task.Task{
		ID:           p.ID,
		Title:        p.Title,
		Status:       task.Status(p.Status),
		Due:          p.Due,
		Project:      p.Project,
		AssignedTo:   p.AssignedTo,
		WaitingOn:    p.WaitingOn,
		BlockedBy:    p.BlockedBy,
		Blocks:       p.Blocks,
		Tags:         p.Tags,
		TimeEstimate: p.TimeEstimate,
		Created:      p.Created,
		Updated:      p.Updated,
		Completed:    p.Completed,
		Content:      p.Content,
		Path:         p.Path,
	}
}

// StatusChange is the body of POST /api/v1/tasks/{id}/status.
type StatusChange struct {
	Status string `json:"status"`
}

// Patch is the body of PATCH /api/v1/tasks/{id}. Absent keys leave the
// stored value untouched, so every field is a pointer or a nil-able slice.
type Patch struct {
	Title        *string  `json:"title,omitempty"`
	Due          *string  `json:"due,omitempty"`
	Project      *string  `json:"project,omitempty"`
	AssignedTo   *string  `json:"assigned_to,omitempty"`
	WaitingOn    *string  `json:"waiting_on,omitempty"`
	BlockedBy    []string `json:"blocked_by,omitempty"`
	Blocks       []string `json:"blocks,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	TimeEstimate *string  `json:"time_estimate,omitempty"`
	Content      *string  `json:"content,omitempty"`
}

// FromPatch converts the in-process partial update to its wire form.
func FromPatch(p task.Patch) *Patch {
	return &Patch{
		Title:        p.Title,
		Due:          p.Due,
		Project:      p.Project,
		AssignedTo:   p.AssignedTo,
		WaitingOn:    p.WaitingOn,
		BlockedBy:    p.BlockedBy,
		Blocks:       p.Blocks,
		Tags:         p.Tags,
		TimeEstimate: p.TimeEstimate,
		Content:      p.Content,
	}
}

// ToPatch converts a wire patch back to the in-process form.
func (p *Patch) ToPatch() task.Patch {
	return task.Patch{
		Title:        p.Title,
		Due:          p.Due,
		Project:      p.Project,
		AssignedTo:   p.AssignedTo,
		WaitingOn:    p.WaitingOn,
		BlockedBy:    p.BlockedBy,
		Blocks:       p.Blocks,
		Tags:         p.Tags,
		TimeEstimate: p.TimeEstimate,
		Content:      p.Content,
	}
}
