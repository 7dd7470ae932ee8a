package host

import (
	cm "github.com/steelcutops/ostreegui/ostreegui/commandmanager"
	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
)

// Host is an ostree-booted system reachable through a CommandManager.
type Host struct {
	Hostname string
	cm.Credentials
	SSHClient cm.SSHDialer

	// Binary and EscalationHelper configure the rpm-ostree invocation.
	Binary           string
	EscalationHelper string

	CommandManager cm.CommandManager
	PackageManager pm.PackageManager
}

// IsLocal reports whether commands run on this machine rather than over SSH.
func (h *Host) IsLocal() bool {
	return h.Hostname == "" || h.Hostname == "localhost" || h.Hostname == "127.0.0.1"
}

func (h *Host) String() string {
	if h.User != "" && !h.IsLocal() {
		return h.User + "@" + h.Hostname
	}
	return h.Hostname
}
