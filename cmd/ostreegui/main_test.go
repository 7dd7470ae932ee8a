package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelcutops/ostreegui/ostreegui/bridge"
	"github.com/steelcutops/ostreegui/ostreegui/config"
	"github.com/steelcutops/ostreegui/ostreegui/host"
	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
)

type stubTool struct {
	deployment pm.Deployment
	result     pm.OperationResult
	calls      []string
}

func (s *stubTool) Status(ctx context.Context) (pm.Deployment, error) {
	s.calls = append(s.calls, "status")
	return s.deployment, nil
}

func (s *stubTool) Install(ctx context.Context, pkg string) (pm.OperationResult, error) {
	s.calls = append(s.calls, "install "+pkg)
	return s.result, nil
}

func (s *stubTool) Uninstall(ctx context.Context, pkgs []string) (pm.OperationResult, error) {
	s.calls = append(s.calls, "uninstall")
	return s.result, nil
}

func (s *stubTool) Upgrade(ctx context.Context) (pm.OperationResult, error) {
	s.calls = append(s.calls, "upgrade")
	return s.result, nil
}

func (s *stubTool) ApplyLive(ctx context.Context) (pm.OperationResult, error) {
	s.calls = append(s.calls, "apply-live")
	return s.result, nil
}

func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, ".local", "state"))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "ostreegui v"+version+"\n", out.String())
}

func TestArgumentValidation(t *testing.T) {
	for _, args := range [][]string{
		{"install"},
		{"install", "a", "b"},
		{"uninstall"},
		{"search"},
		{"status", "extra"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		assert.Error(t, cmd.Execute(), args)
	}
}

func TestDriveStatusPrintsSortedPackages(t *testing.T) {
	tool := &stubTool{deployment: pm.Deployment{OSName: "fedora", Version: "40.20240612.0", Packages: []string{"vim", "htop"}}}
	var out, errOut bytes.Buffer

	err := drive(context.Background(), tool, nil, newConsoleSurface(&out, &errOut), func(b *bridge.Bridge) { b.Refresh() })
	require.NoError(t, err)

	assert.Equal(t, "Deployment: fedora 40.20240612.0\nLayered packages:\nhtop\nvim\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestDriveFailureReportsStderr(t *testing.T) {
	tool := &stubTool{
		deployment: pm.Deployment{Packages: []string{"htop"}},
		result:     pm.OperationResult{ExitCode: 1, Stderr: "conflict"},
	}
	var out, errOut bytes.Buffer

	err := drive(context.Background(), tool, nil, newConsoleSurface(&out, &errOut), func(b *bridge.Bridge) { b.Install("vim") })
	assert.ErrorIs(t, err, errFailed)
	assert.Equal(t, "conflict\n", errOut.String())
	assert.Equal(t, []string{"install vim", "status"}, tool.calls)
	assert.Contains(t, out.String(), "htop")
}

func TestSearchCommand(t *testing.T) {
	isolate(t)
	index := filepath.Join(t.TempDir(), "packages.txt")
	require.NoError(t, os.WriteFile(index, []byte("foobar\nbarfoo\nbaz\n"), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"search", "foo", "--index", index})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "foobar\nbarfoo\n", out.String())
}

func TestHostsCommand(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "hosts.ini")
	require.NoError(t, os.WriteFile(path, []byte(`[workstations]
desk   = desk.lan
laptop = 192.168.1.20

[lab]
kiosk = kiosk.lab.example.com:2222
`), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"hosts", "--inventory", path})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "lab:\n  kiosk  kiosk.lab.example.com:2222\n"+
		"workstations:\n  desk    desk.lan\n  laptop  192.168.1.20\n", out.String())
}

func TestHostsCommandWithoutInventory(t *testing.T) {
	isolate(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"hosts"})

	assert.ErrorContains(t, cmd.Execute(), "no inventory configured")
}

func TestBuildHostOptions(t *testing.T) {
	cfg := &config.Config{
		Tool:   config.ToolConfig{Binary: "/usr/bin/rpm-ostree", EscalationHelper: "sudo"},
		Target: config.TargetConfig{Host: "desk.lan", User: "core"},
	}

	h := &host.Host{}
	for _, opt := range buildHostOptions(cfg, "pw", "", "sudo-pw") {
		opt(h)
	}

	assert.Equal(t, "/usr/bin/rpm-ostree", h.Binary)
	assert.Equal(t, "sudo", h.EscalationHelper)
	assert.Equal(t, "core", h.User)
	assert.Equal(t, "pw", h.Password)
	assert.Empty(t, h.KeyPassphrase)
	assert.Equal(t, "sudo-pw", h.SudoPassword)
	assert.NotNil(t, h.SSHClient)
}
