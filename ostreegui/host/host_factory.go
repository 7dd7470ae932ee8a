package host

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	cm "github.com/steelcutops/ostreegui/ostreegui/commandmanager"
	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
)

const ostreeBootedMarker = "/run/ostree-booted"

// ErrNotOstreeHost is returned when the target was not booted from an ostree
// deployment, so rpm-ostree cannot manage it.
var ErrNotOstreeHost = errors.New("not an ostree-booted system")

// NewHost connects the CommandManager and PackageManager for hostname and
// checks that the target is ostree-booted.
func NewHost(ctx context.Context, hostname string, options ...HostOption) (*Host, error) {
	h := &Host{Hostname: hostname}

	for _, option := range options {
		option(h)
	}

	if h.CommandManager == nil {
		h.CommandManager = &cm.UnixCommandManager{
			Hostname:         hostname,
			SSHClient:        h.SSHClient,
			Credentials:      h.Credentials,
			EscalationHelper: h.EscalationHelper,
		}
	}

	if err := checkOstree(ctx, h); err != nil {
		return nil, err
	}

	h.PackageManager = &pm.RpmOstreeManager{CommandManager: h.CommandManager, Binary: h.Binary}
	log.WithField("host", h.String()).Debug("Host ready")
	return h, nil
}

func checkOstree(ctx context.Context, h *Host) error {
	result, err := h.CommandManager.Run(ctx, cm.CommandConfig{
		Command: "test",
		Args:    []string{"-e", ostreeBootedMarker},
	})
	if err != nil {
		return fmt.Errorf("check %s: %w", h.Hostname, err)
	}
	if !result.Succeeded() {
		return fmt.Errorf("%s: %w (%s is missing)", h, ErrNotOstreeHost, ostreeBootedMarker)
	}
	return nil
}
