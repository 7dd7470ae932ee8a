package commandmanager

import "fmt"

// InvocationError indicates the command could not be started at all: the
// binary is missing, exec was denied, or the remote session failed.
type InvocationError struct {
	Command string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("could not run %s: %v", e.Command, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
