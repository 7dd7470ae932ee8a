package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cm "github.com/steelcutops/ostreegui/ostreegui/commandmanager"
	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
	"github.com/steelcutops/ostreegui/ostreegui/search"
)

type fakeTool struct {
	mu    sync.Mutex
	calls []string

	deployment pm.Deployment
	statusErr  error
	result     pm.OperationResult
	err        error

	// block, when set, holds Install until it is closed.
	block chan struct{}

	// ctxErrs records ctx.Err() as each call returns.
	ctxErrs []error
}

func (f *fakeTool) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTool) recordCtx(ctx context.Context) {
	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.mu.Unlock()
}

func (f *fakeTool) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTool) Status(ctx context.Context) (pm.Deployment, error) {
	f.record("status")
	f.recordCtx(ctx)
	return f.deployment, f.statusErr
}

func (f *fakeTool) Install(ctx context.Context, pkg string) (pm.OperationResult, error) {
	f.record("install " + pkg)
	if f.block != nil {
		<-f.block
	}
	f.recordCtx(ctx)
	return f.result, f.err
}

func (f *fakeTool) Uninstall(ctx context.Context, pkgs []string) (pm.OperationResult, error) {
	f.record("uninstall " + strings.Join(pkgs, " "))
	return f.result, f.err
}

func (f *fakeTool) Upgrade(ctx context.Context) (pm.OperationResult, error) {
	f.record("upgrade")
	return f.result, f.err
}

func (f *fakeTool) ApplyLive(ctx context.Context) (pm.OperationResult, error) {
	f.record("apply-live")
	return f.result, f.err
}

type recordingSurface struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSurface) add(event string) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSurface) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *recordingSurface) PublishPackages(d pm.Deployment) {
	s.add("packages " + strings.Join(d.Packages, ","))
}

func (s *recordingSurface) PublishError(text string) {
	s.add("error " + text)
}

func (s *recordingSurface) PublishBusy(busy bool) {
	s.add(fmt.Sprintf("busy %t", busy))
}

func (s *recordingSurface) PublishSearch(query string, results []string) {
	s.add("search " + query + ": " + strings.Join(results, ","))
}

func newBridge(tool *fakeTool, index *search.Index) (*Bridge, *recordingSurface) {
	surface := &recordingSurface{}
	return New(context.Background(), tool, index, surface, WithHost("localhost")), surface
}

func TestRefreshPublishesPackages(t *testing.T) {
	tool := &fakeTool{deployment: pm.Deployment{Packages: []string{"b", "a"}}}
	b, surface := newBridge(tool, nil)

	b.Refresh()
	b.Wait()

	assert.Equal(t, []string{"status"}, tool.Calls())
	assert.Equal(t, []string{"busy true", "packages b,a", "busy false"}, surface.Events())
}

func TestFailedActionShowsStderrThenRefreshes(t *testing.T) {
	tool := &fakeTool{
		deployment: pm.Deployment{Packages: []string{"htop"}},
		result:     pm.OperationResult{ExitCode: 1, Stderr: "conflict"},
	}
	b, surface := newBridge(tool, nil)

	b.Install("vim")
	b.Wait()

	assert.Equal(t, []string{"install vim", "status"}, tool.Calls())
	assert.Equal(t, []string{"busy true", "error conflict", "packages htop", "busy false"}, surface.Events())
}

func TestInvocationErrorIsShownAndRefreshStillRuns(t *testing.T) {
	invocationErr := &cm.InvocationError{Command: "rpm-ostree", Err: fmt.Errorf("executable file not found in $PATH")}
	tool := &fakeTool{
		deployment: pm.Deployment{Packages: []string{"htop"}},
		err:        invocationErr,
	}
	b, surface := newBridge(tool, nil)

	b.Upgrade()
	b.Wait()

	assert.Equal(t, []string{"upgrade", "status"}, tool.Calls())
	assert.Equal(t, []string{
		"busy true",
		"error " + invocationErr.Error(),
		"packages htop",
		"busy false",
	}, surface.Events())
}

func TestSuccessfulActionRefreshes(t *testing.T) {
	tool := &fakeTool{deployment: pm.Deployment{Packages: []string{"htop", "tmux"}}}
	b, surface := newBridge(tool, nil)

	b.ApplyLive()
	b.Wait()

	assert.Equal(t, []string{"apply-live", "status"}, tool.Calls())
	assert.Equal(t, []string{"busy true", "packages htop,tmux", "busy false"}, surface.Events())
}

func TestEmptyUninstallDispatchesNothing(t *testing.T) {
	tool := &fakeTool{}
	b, surface := newBridge(tool, nil)

	assert.False(t, b.Uninstall(nil))
	assert.False(t, b.Uninstall([]string{}))
	b.Wait()

	assert.Empty(t, tool.Calls())
	assert.Empty(t, surface.Events())
}

func TestUninstallCopiesSelection(t *testing.T) {
	tool := &fakeTool{block: make(chan struct{})}
	b, _ := newBridge(tool, nil)

	// hold the gate so the uninstall cannot run before the selection changes
	b.Install("x")
	selection := []string{"b", "a"}
	require.True(t, b.Uninstall(selection))
	selection[0] = "changed"
	close(tool.block)
	b.Wait()

	assert.Equal(t, []string{"install x", "status", "uninstall b a", "status"}, tool.Calls())
}

func TestParseErrorKeepsStaleList(t *testing.T) {
	tool := &fakeTool{statusErr: &pm.ParseError{Reason: "no deployments"}}
	b, surface := newBridge(tool, nil)

	b.Refresh()
	b.Wait()

	events := surface.Events()
	assert.Equal(t, []string{"busy true", "error unexpected status output: no deployments", "busy false"}, events)
	for _, e := range events {
		assert.False(t, strings.HasPrefix(e, "packages"))
	}
}

func TestActionsDoNotOverlap(t *testing.T) {
	tool := &fakeTool{
		deployment: pm.Deployment{Packages: []string{"htop"}},
		block:      make(chan struct{}),
	}
	b, surface := newBridge(tool, nil)

	b.Install("vim")
	b.Upgrade()

	require.Eventually(t, func() bool {
		return len(tool.Calls()) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"install vim"}, tool.Calls())
	assert.Equal(t, []string{"busy true"}, surface.Events())

	close(tool.block)
	b.Wait()

	assert.Equal(t, []string{"install vim", "status", "upgrade", "status"}, tool.Calls())
	assert.Equal(t, []string{
		"busy true", "packages htop", "busy false",
		"busy true", "packages htop", "busy false",
	}, surface.Events())
}

func TestSearch(t *testing.T) {
	tool := &fakeTool{}
	b, surface := newBridge(tool, search.NewIndex([]string{"foobar", "barfoo", "baz"}))

	b.Search("foo")
	b.Wait()

	assert.Empty(t, tool.Calls())
	assert.Equal(t, []string{"search foo: foobar,barfoo"}, surface.Events())
}

func TestSearchWithoutIndex(t *testing.T) {
	b, surface := newBridge(&fakeTool{}, nil)

	b.Search("foo")
	b.Wait()

	assert.Equal(t, []string{"search foo: "}, surface.Events())
}

func TestFailureText(t *testing.T) {
	assert.Equal(t, "error: Packages not found: nope\n",
		FailureText(fmt.Errorf("install: %w", &pm.ToolFailure{ExitCode: 1, Stderr: "error: Packages not found: nope\n"})))
	assert.Equal(t, "boom", FailureText(fmt.Errorf("boom")))
}

func TestCancelDuringActionLetsItFinish(t *testing.T) {
	tool := &fakeTool{
		deployment: pm.Deployment{Packages: []string{"htop", "vim"}},
		block:      make(chan struct{}),
	}
	surface := &recordingSurface{}
	ctx, cancel := context.WithCancel(context.Background())
	b := New(ctx, tool, nil, surface)

	b.Install("vim")
	b.Upgrade()
	require.Eventually(t, func() bool {
		return len(tool.Calls()) == 1
	}, time.Second, 5*time.Millisecond)

	// quitting while the install runs
	cancel()
	close(tool.block)
	b.Wait()

	// the running install and its refresh complete; the queued upgrade never starts
	assert.Equal(t, []string{"install vim", "status"}, tool.Calls())
	assert.Equal(t, []error{nil, nil}, tool.ctxErrs)
	assert.Equal(t, []string{"busy true", "packages htop,vim", "busy false"}, surface.Events())
}

func TestFailureTextWithoutStderr(t *testing.T) {
	failure := &pm.ToolFailure{Command: "rpm-ostree upgrade", ExitCode: -1}
	assert.Equal(t, failure.Error(), FailureText(failure))
	assert.NotEmpty(t, FailureText(failure))
}
