package types

import (
	"errors"
	"fmt"
)

// InvalidRequestError indicates a client error (missing or malformed
// slot/session id). No side effects were attempted.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// NewInvalidRequest creates an InvalidRequestError
func NewInvalidRequest(format string, args ...interface{}) error {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

// SnapshotNotFoundError indicates a restore was requested for a session
// with no snapshot in the lineage
type SnapshotNotFoundError struct {
	Name string
}

func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("snapshot %q not found", e.Name)
}

// StorageOperationError indicates a storage backend primitive failed.
// It carries the offending operation and the underlying message so the
// failure can be diagnosed without re-running.
type StorageOperationError struct {
	Op      string // the backend operation, e.g. "clone"
	Command string // the command that failed, if one was run
	Err     error
}

func (e *StorageOperationError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("storage operation %s failed: %s: %v", e.Op, e.Command, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
}

func (e *StorageOperationError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageOperationError
func NewStorageError(op, command string, err error) error {
	return &StorageOperationError{Op: op, Command: command, Err: err}
}

// ProcessControlError indicates stopping or starting the VM process
// bound to a slot failed
type ProcessControlError struct {
	Action string // "start" or "stop"
	Slot   string
	Err    error
}

func (e *ProcessControlError) Error() string {
	return fmt.Sprintf("failed to %s slot %s: %v", e.Action, e.Slot, e.Err)
}

func (e *ProcessControlError) Unwrap() error {
	return e.Err
}

// IsInvalidRequest reports whether err is an InvalidRequestError
func IsInvalidRequest(err error) bool {
	var target *InvalidRequestError
	return errors.As(err, &target)
}

// IsSnapshotNotFound reports whether err is a SnapshotNotFoundError
func IsSnapshotNotFound(err error) bool {
	var target *SnapshotNotFoundError
	return errors.As(err, &target)
}

// IsStorageError reports whether err is a StorageOperationError
func IsStorageError(err error) bool {
	var target *StorageOperationError
	return errors.As(err, &target)
}

// IsProcessError reports whether err is a ProcessControlError
func IsProcessError(err error) bool {
	var target *ProcessControlError
	return errors.As(err, &target)
}
