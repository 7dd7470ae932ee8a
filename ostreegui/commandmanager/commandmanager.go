package commandmanager

import (
	"context"
	"time"
)

// CommandConfig describes a single command invocation.
type CommandConfig struct {
	Command string
	Args    []string

	// Escalate runs the command through the privilege-escalation helper
	// (pkexec locally, sudo -S over SSH).
	Escalate bool
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// Succeeded reports whether the command exited with status zero.
func (r CommandResult) Succeeded() bool {
	return r.ExitCode == 0
}

// Credentials holds what is needed to reach and escalate on a target host.
type Credentials struct {
	User          string
	Password      string
	KeyPassphrase string
	SudoPassword  string
}

// CommandManager provides methods to execute commands, both locally and remotely.
//
// A command that starts and exits non-zero is not an error: its status is
// carried in CommandResult.ExitCode. The returned error is reserved for
// commands that could not be run at all.
type CommandManager interface {
	// RunLocal executes a command on the local system.
	RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error)

	// RunRemote executes a command on a remote system via SSH.
	RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error)

	// Run picks local or remote execution based on the target hostname.
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)
}
