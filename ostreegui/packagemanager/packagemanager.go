package packagemanager

import (
	"context"
	"slices"
)

// PackageManager is implemented by image-based package tools that layer
// packages on top of a deployment.
type PackageManager interface {
	Status(ctx context.Context) (Deployment, error)
	Install(ctx context.Context, pkg string) (OperationResult, error)
	Uninstall(ctx context.Context, pkgs []string) (OperationResult, error)
	Upgrade(ctx context.Context) (OperationResult, error)
	ApplyLive(ctx context.Context) (OperationResult, error)
}

// Deployment is one OS image state as reported by the package tool. It is a
// snapshot: a refresh replaces it, nothing mutates it.
type Deployment struct {
	ID        string
	OSName    string
	Version   string
	Checksum  string
	Origin    string
	Booted    bool
	Staged    bool
	Pinned    bool
	Timestamp int64

	// Packages are the layered package names in the order the tool reported them.
	Packages []string
}

// SortedPackages returns a sorted copy of the package names.
func (d Deployment) SortedPackages() []string {
	pkgs := slices.Clone(d.Packages)
	slices.Sort(pkgs)
	return pkgs
}

// OperationResult is the outcome of a mutating command.
type OperationResult struct {
	ExitCode int
	Stderr   string
}

// OK reports whether the command exited with status zero.
func (r OperationResult) OK() bool {
	return r.ExitCode == 0
}

// Err returns a *ToolFailure for a non-zero exit and nil otherwise.
func (r OperationResult) Err() error {
	if r.OK() {
		return nil
	}
	return &ToolFailure{ExitCode: r.ExitCode, Stderr: r.Stderr}
}
