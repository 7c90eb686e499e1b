package registry

import "fmt"

// DuplicateProcessError indicates the same process identity was registered
// twice. This is an invariant violation in the caller, not a runtime fault.
type DuplicateProcessError struct {
	Name string
}

func (e *DuplicateProcessError) Error() string {
	return fmt.Sprintf("process %q is already registered", e.Name)
}

// LaunchError indicates the cluster launch primitive could not spawn a
// process. The process never reaches Launched; the job must tear down.
type LaunchError struct {
	Name string
	Node string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s on %s: %v", e.Name, e.Node, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// UnknownProcessError indicates an operation referenced a process name that
// was never registered.
type UnknownProcessError struct {
	Name string
}

func (e *UnknownProcessError) Error() string {
	return fmt.Sprintf("unknown process %q", e.Name)
}
