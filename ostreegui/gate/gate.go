// Package gate serializes operations against the package tool.
//
// rpm-ostree does not support concurrent transactions on one system, so every
// action that touches it, together with the refresh that follows, runs while
// holding the gate. Waiters are served strictly in the order they took their
// place in line.
package gate

import (
	"context"
	"sync"
)

// BusyFunc is told when the gate becomes busy and when it becomes idle again.
type BusyFunc func(busy bool)

// Gate is a FIFO mutual-exclusion lock with a busy indicator.
type Gate struct {
	mu   sync.Mutex
	tail chan struct{}
	busy BusyFunc
}

// New returns an idle gate. busy may be nil.
func New(busy BusyFunc) *Gate {
	tail := make(chan struct{})
	close(tail)
	return &Gate{tail: tail, busy: busy}
}

// Ticket is a place in line. It must be passed to RunReserved exactly once.
type Ticket struct {
	prev <-chan struct{}
	done chan struct{}
}

// Reserve takes the next place in line without blocking. Call it on the
// goroutine that receives the user's request so that operations run in the
// order they were requested, then hand the ticket to a worker.
func (g *Gate) Reserve() *Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := &Ticket{prev: g.tail, done: make(chan struct{})}
	g.tail = t.done
	return t
}

// RunReserved waits for every earlier ticket to finish, then runs op with the
// busy indicator raised. If ctx ends while waiting, op is skipped and the
// ticket is released once its predecessors finish, so later tickets are not
// stranded.
func (g *Gate) RunReserved(ctx context.Context, t *Ticket, op func(ctx context.Context) error) error {
	select {
	case <-t.prev:
	case <-ctx.Done():
	}
	// both may be ready at once; cancellation wins so nothing new starts
	// after shutdown began
	if err := ctx.Err(); err != nil {
		go func() {
			<-t.prev
			close(t.done)
		}()
		return err
	}
	defer close(t.done)

	g.setBusy(true)
	defer g.setBusy(false)

	return op(ctx)
}

// Run reserves a ticket and runs op on the calling goroutine.
func (g *Gate) Run(ctx context.Context, op func(ctx context.Context) error) error {
	return g.RunReserved(ctx, g.Reserve(), op)
}

// Exclusive runs op under the gate and returns its value.
func Exclusive[T any](ctx context.Context, g *Gate, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Run(ctx, func(ctx context.Context) error {
		var err error
		out, err = op(ctx)
		return err
	})
	return out, err
}

func (g *Gate) setBusy(busy bool) {
	if g.busy != nil {
		g.busy(busy)
	}
}
