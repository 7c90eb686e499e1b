package backend

import "fmt"

// UnsupportedBackendError indicates the selected backend has no working
// implementation. Raised before any process is launched.
type UnsupportedBackendError struct {
	Name string
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("backend %q is not implemented", e.Name)
}

// ConflictingFlagError indicates a user-supplied backend argument collides
// with a flag the adapter derives itself. Overrides of derived flags are
// rejected rather than silently overwritten.
type ConflictingFlagError struct {
	Key string
}

func (e *ConflictingFlagError) Error() string {
	return fmt.Sprintf("backend argument %q conflicts with an auto-derived flag", e.Key)
}
