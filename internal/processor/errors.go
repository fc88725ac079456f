package processor

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when the run was cancelled. Results completed
// before cancellation have been flushed.
var ErrInterrupted = errors.New("run interrupted")

// PersistenceError means a flush failed. The run halts and the store keeps
// its previously flushed state.
type PersistenceError struct {
	Message string
	Cause   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// SourceError means the item source could not be enumerated.
type SourceError struct {
	Message string
	Cause   error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}
