package packagemanager

import (
	"context"
	"encoding/json"
	"slices"

	log "github.com/sirupsen/logrus"

	cm "github.com/steelcutops/ostreegui/ostreegui/commandmanager"
)

const DefaultBinary = "rpm-ostree"

// RpmOstreeManager drives rpm-ostree through a CommandManager.
type RpmOstreeManager struct {
	CommandManager cm.CommandManager

	// Binary defaults to DefaultBinary.
	Binary string
}

func (rpm *RpmOstreeManager) binary() string {
	if rpm.Binary == "" {
		return DefaultBinary
	}
	return rpm.Binary
}

type statusDocument struct {
	Deployments []statusDeployment `json:"deployments"`
}

type statusDeployment struct {
	ID        string    `json:"id"`
	OSName    string    `json:"osname"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum"`
	Origin    string    `json:"origin"`
	Booted    bool      `json:"booted"`
	Staged    bool      `json:"staged"`
	Pinned    bool      `json:"pinned"`
	Timestamp int64     `json:"timestamp"`
	Packages  *[]string `json:"packages"`
}

// Status runs "status --json" and returns the first deployment, which is the
// pending one when an update is staged and the booted one otherwise.
func (rpm *RpmOstreeManager) Status(ctx context.Context) (Deployment, error) {
	output, err := rpm.CommandManager.Run(ctx, cm.CommandConfig{
		Command: rpm.binary(),
		Args:    []string{"status", "--json"},
	})
	if err != nil {
		return Deployment{}, err
	}
	if output.ExitCode != 0 {
		return Deployment{}, &ToolFailure{Command: output.Command, ExitCode: output.ExitCode, Stderr: output.STDERR}
	}

	return ParseStatus([]byte(output.STDOUT))
}

// ParseStatus extracts deployments[0] from an rpm-ostree status document.
func ParseStatus(data []byte) (Deployment, error) {
	var doc statusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Deployment{}, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if len(doc.Deployments) == 0 {
		return Deployment{}, &ParseError{Reason: "no deployments"}
	}

	d := doc.Deployments[0]
	if d.Packages == nil {
		return Deployment{}, &ParseError{Reason: "deployment has no packages list"}
	}

	return Deployment{
		ID:        d.ID,
		OSName:    d.OSName,
		Version:   d.Version,
		Checksum:  d.Checksum,
		Origin:    d.Origin,
		Booted:    d.Booted,
		Staged:    d.Staged,
		Pinned:    d.Pinned,
		Timestamp: d.Timestamp,
		Packages:  slices.Clone(*d.Packages),
	}, nil
}

func (rpm *RpmOstreeManager) Install(ctx context.Context, pkg string) (OperationResult, error) {
	return rpm.mutate(ctx, cm.CommandConfig{
		Command: rpm.binary(),
		Args:    []string{"install", pkg},
	})
}

// Uninstall removes the given packages in one transaction. Names are sorted
// so the same selection always yields the same command line. An empty
// selection does nothing.
func (rpm *RpmOstreeManager) Uninstall(ctx context.Context, pkgs []string) (OperationResult, error) {
	if len(pkgs) == 0 {
		return OperationResult{}, nil
	}

	names := slices.Clone(pkgs)
	slices.Sort(names)
	names = slices.Compact(names)

	return rpm.mutate(ctx, cm.CommandConfig{
		Command: rpm.binary(),
		Args:    append([]string{"uninstall"}, names...),
	})
}

func (rpm *RpmOstreeManager) Upgrade(ctx context.Context) (OperationResult, error) {
	return rpm.mutate(ctx, cm.CommandConfig{
		Command: rpm.binary(),
		Args:    []string{"upgrade"},
	})
}

// ApplyLive applies the pending deployment to the running system. It needs
// root, so the command goes through the escalation helper.
func (rpm *RpmOstreeManager) ApplyLive(ctx context.Context) (OperationResult, error) {
	return rpm.mutate(ctx, cm.CommandConfig{
		Command:  rpm.binary(),
		Args:     []string{"ex", "apply-live"},
		Escalate: true,
	})
}

func (rpm *RpmOstreeManager) mutate(ctx context.Context, config cm.CommandConfig) (OperationResult, error) {
	output, err := rpm.CommandManager.Run(ctx, config)
	if err != nil {
		return OperationResult{}, err
	}

	if output.ExitCode != 0 {
		log.WithFields(log.Fields{
			"command":  output.Command,
			"exitCode": output.ExitCode,
		}).Warn("Package tool exited non-zero")
	}

	return OperationResult{ExitCode: output.ExitCode, Stderr: output.STDERR}, nil
}
