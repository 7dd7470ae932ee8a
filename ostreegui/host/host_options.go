package host

import (
	cm "github.com/steelcutops/ostreegui/ostreegui/commandmanager"
)

type HostOption func(*Host)

// WithUser returns a HostOption that sets the SSH user for a Host.
func WithUser(user string) HostOption {
	return func(host *Host) {
		host.User = user
	}
}

// WithPassword returns a HostOption that sets the SSH password for a Host.
func WithPassword(password string) HostOption {
	return func(host *Host) {
		host.Password = password
	}
}

// WithKeyPassphrase returns a HostOption that sets the key passphrase for a Host.
func WithKeyPassphrase(keyPassphrase string) HostOption {
	return func(host *Host) {
		host.KeyPassphrase = keyPassphrase
	}
}

// WithSudoPassword returns a HostOption that sets the sudo password for a Host.
func WithSudoPassword(password string) HostOption {
	return func(host *Host) {
		host.SudoPassword = password
	}
}

func WithSSHClient(client cm.SSHDialer) HostOption {
	return func(host *Host) {
		host.SSHClient = client
	}
}

// WithBinary overrides the rpm-ostree executable.
func WithBinary(binary string) HostOption {
	return func(host *Host) {
		host.Binary = binary
	}
}

// WithEscalationHelper sets the program that runs privileged commands
// locally, such as pkexec or sudo.
func WithEscalationHelper(helper string) HostOption {
	return func(host *Host) {
		host.EscalationHelper = helper
	}
}

// WithCommandManager replaces the default UnixCommandManager.
func WithCommandManager(manager cm.CommandManager) HostOption {
	return func(host *Host) {
		host.CommandManager = manager
	}
}
