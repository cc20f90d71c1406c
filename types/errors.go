package types

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrIllegalState is returned when the active resource manager cannot lock resources.
	ErrIllegalState = errors.New("external locking is not supported by the current resource manager")
	// ErrPermissionDenied is returned when the operator lacks the permission for an operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrKeyMismatch is returned when the key does not authorize the transition.
	ErrKeyMismatch = errors.New("key does not match the current reservation or lock")
)

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v was not found", e.Name)
}

func IsNotFoundError(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// SaveError reports a state change that was applied in memory but could not be persisted.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("state changed but could not be saved: %v", e.Err)
}

func IsSaveError(err error) bool {
	_, ok := errors.Cause(err).(*SaveError)
	return ok
}
