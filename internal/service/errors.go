package service

import (
	"errors"
	"fmt"
)

// ErrCollectInProgress is returned when the product is already being
// collected by another caller.
var ErrCollectInProgress = errors.New("collection already running for this product")

// NotFoundError is returned by registry operations that reference an entity
// which does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// StorageError wraps a failed commit. The unit of work it belongs to was
// rolled back as a whole.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError reports a malformed request argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
