package packagemanager

import "fmt"

// ToolFailure indicates the package tool ran and exited non-zero. Stderr is
// kept exactly as the tool wrote it.
type ToolFailure struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ToolFailure) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("exit status %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// ParseError indicates the status document was not JSON or did not have a
// deployments[0].packages list of strings.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected status output: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("unexpected status output: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
