package results

import (
	"errors"
	"fmt"
)

// ErrCorrupt means a store exists but its content cannot be trusted.
var ErrCorrupt = errors.New("result store is corrupt")

// StoreError wraps a store failure with the operation and location.
type StoreError struct {
	Op    string
	Path  string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("result store %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
