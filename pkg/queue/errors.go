package queue

import "errors"

var (
	// ErrValidation classifies input/config/payload validation failures.
	ErrValidation = errors.New("queue validation error")
	// ErrNotFound classifies missing logical resources (for example missing lease).
	ErrNotFound = errors.New("queue not found")
	// ErrPaused classifies operations rejected because a queue is paused.
	ErrPaused = errors.New("queue paused")
	// ErrClosed classifies operations on an already closed backend.
	ErrClosed = errors.New("queue closed")
)
