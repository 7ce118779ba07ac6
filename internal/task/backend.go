package task

import "context"

// Backend is the storage contract both the daemon client and the vault
// implement. The access layer selects one per call based on mode and
// reachability.
//
// Create assigns the id: the vault draws from NewID with collision retry,
// the daemon lets the server assign. Status changes go through
// UpdateStatus so a move stays a single relocate, never delete+create.
type Backend interface {
	// List returns every task in the vault regardless of status.
	List(ctx context.Context) ([]*Task, error)

	// ListStatus returns the tasks in one status folder.
	ListStatus(ctx context.Context, status Status) ([]*Task, error)

	// Get returns the task with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Task, error)

	// Create persists a new task from the draft and returns it with id
	// and path populated.
	Create(ctx context.Context, draft *Task) (*Task, error)

	// UpdateStatus relocates the task to the new status folder and
	// returns the updated task.
	UpdateStatus(ctx context.Context, id string, status Status) (*Task, error)

	// UpdateFields applies a partial update and returns the result.
	UpdateFields(ctx context.Context, id string, patch Patch) (*Task, error)

	// Delete removes the task permanently, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
}
