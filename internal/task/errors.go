package task

import "errors"

// Errors shared across backends and the access layer. Backends convert raw
// file and transport failures into these before they reach callers.
var (
	ErrNotFound      = errors.New("task not found")
	ErrIDExhausted   = errors.New("id generation retries exhausted")
	ErrTitleRequired = errors.New("title is required")
	ErrInvalidStatus = errors.New("invalid status")
)
