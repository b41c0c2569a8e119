package database

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted is returned when a connection could not be acquired
	// before the caller's deadline; callers should back off and retry.
	ErrPoolExhausted = errors.New("database: connection pool exhausted")

	// ErrStoreClosed is returned by any operation attempted after Close.
	ErrStoreClosed = errors.New("database: store is closed")
)

// PersistenceError wraps a failed storage operation after its transaction has
// been rolled back. Callers must not assume any partial writes succeeded.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err with the failing operation name.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsNotFound reports whether err represents a missing-row condition from
// either backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrNotFound is the backend-neutral missing-row sentinel.
var ErrNotFound = errors.New("database: record not found")
