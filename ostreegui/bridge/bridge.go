// Package bridge connects user actions to the package tool and publishes the
// results to a render surface.
//
// Every action runs on its own goroutine while holding the gate, and every
// mutating action is followed by a refresh of the package list, whether it
// succeeded or not.
package bridge

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/steelcutops/ostreegui/ostreegui/gate"
	pm "github.com/steelcutops/ostreegui/ostreegui/packagemanager"
	"github.com/steelcutops/ostreegui/ostreegui/search"
)

// Surface receives published state. Methods are called from worker
// goroutines, so implementations must hand the values off to whatever owns
// the display instead of drawing directly.
type Surface interface {
	PublishPackages(d pm.Deployment)
	PublishError(text string)
	PublishBusy(busy bool)
	PublishSearch(query string, results []string)
}

type Bridge struct {
	ctx     context.Context
	tool    pm.PackageManager
	index   *search.Index
	gate    *gate.Gate
	surface Surface
	host    string

	wg sync.WaitGroup
}

type Option func(*Bridge)

// WithHost names the target in log entries.
func WithHost(host string) Option {
	return func(b *Bridge) {
		b.host = host
	}
}

// New returns a bridge that runs tool commands under ctx. index may be nil,
// in which case every search comes back empty.
func New(ctx context.Context, tool pm.PackageManager, index *search.Index, surface Surface, opts ...Option) *Bridge {
	b := &Bridge{
		ctx:     ctx,
		tool:    tool,
		index:   index,
		surface: surface,
	}
	b.gate = gate.New(surface.PublishBusy)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Refresh reloads the package list.
func (b *Bridge) Refresh() {
	b.dispatch("refresh", nil)
}

// Install layers name onto the deployment.
func (b *Bridge) Install(name string) {
	b.dispatch("install", func(ctx context.Context) (pm.OperationResult, error) {
		return b.tool.Install(ctx, name)
	})
}

// Uninstall removes the selected packages. An empty selection dispatches
// nothing and returns false.
func (b *Bridge) Uninstall(names []string) bool {
	if len(names) == 0 {
		log.Debug("Uninstall with an empty selection ignored")
		return false
	}
	names = slices.Clone(names)
	b.dispatch("uninstall", func(ctx context.Context) (pm.OperationResult, error) {
		return b.tool.Uninstall(ctx, names)
	})
	return true
}

func (b *Bridge) Upgrade() {
	b.dispatch("upgrade", func(ctx context.Context) (pm.OperationResult, error) {
		return b.tool.Upgrade(ctx)
	})
}

func (b *Bridge) ApplyLive() {
	b.dispatch("apply-live", func(ctx context.Context) (pm.OperationResult, error) {
		return b.tool.ApplyLive(ctx)
	})
}

// Search queries the local index. It never touches the package tool, so it
// does not wait for the gate.
func (b *Bridge) Search(query string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		results := b.index.Search(query)
		b.logger("search").WithFields(log.Fields{"query": query, "results": len(results)}).Debug("Search finished")
		b.surface.PublishSearch(query, results)
	}()
}

// Wait blocks until every dispatched action has finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// dispatch takes a place at the gate on the caller's goroutine, so actions
// run in the order they were requested, then does the work on a new one.
func (b *Bridge) dispatch(action string, mutate func(ctx context.Context) (pm.OperationResult, error)) {
	ticket := b.gate.Reserve()
	entry := b.logger(action)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.gate.RunReserved(b.ctx, ticket, func(ctx context.Context) error {
			// b.ctx only bounds the wait for the gate. A started transaction
			// and its refresh run to completion; Wait drains them.
			ctx = context.WithoutCancel(ctx)
			if mutate != nil {
				b.mutate(ctx, entry, mutate)
			}
			b.refresh(ctx, entry)
			return nil
		})
		if err != nil {
			entry.WithError(err).Warn("Action abandoned before it started")
		}
	}()
}

func (b *Bridge) mutate(ctx context.Context, entry *log.Entry, op func(ctx context.Context) (pm.OperationResult, error)) {
	entry.Info("Running")
	res, err := op(ctx)
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		entry.WithError(err).Error("Action failed")
		b.surface.PublishError(FailureText(err))
		return
	}
	entry.Info("Action succeeded")
}

func (b *Bridge) refresh(ctx context.Context, entry *log.Entry) {
	d, err := b.tool.Status(ctx)
	if err != nil {
		entry.WithError(err).Error("Refresh failed; keeping the previous package list")
		b.surface.PublishError(FailureText(err))
		return
	}
	entry.WithField("packages", len(d.Packages)).Debug("Refreshed")
	b.surface.PublishPackages(d)
}

func (b *Bridge) logger(action string) *log.Entry {
	fields := log.Fields{"op": uuid.NewString(), "action": action}
	if b.host != "" {
		fields["host"] = b.host
	}
	return log.WithFields(fields)
}

// FailureText is what the user is shown for err: the tool's stderr exactly
// as written when the tool ran and failed, the error message otherwise or
// when the tool wrote nothing.
func FailureText(err error) string {
	var failure *pm.ToolFailure
	if errors.As(err, &failure) && failure.Stderr != "" {
		return failure.Stderr
	}
	return err.Error()
}
