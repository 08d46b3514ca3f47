package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, per the taxonomy in spec.md §7. Callers should compare
// against these with errors.Is rather than matching on message text.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateID        = errors.New("duplicate id")
	ErrDanglingEndpoint   = errors.New("dangling endpoint")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrInvalidQuery       = errors.New("invalid query")
)

// OpError wraps a sentinel error with the operation that produced it,
// mirroring the teacher's StoreError (errors.go) wrapping idiom.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("memengine: %v", e.Err)
	}
	return fmt.Sprintf("memengine: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool { return errors.Is(e.Err, target) }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
