package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExclusiveReturnsValue(t *testing.T) {
	g := New(nil)

	out, err := Exclusive(context.Background(), g, func(ctx context.Context) ([]string, error) {
		return []string{"htop"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"htop"}, out)

	opErr := errors.New("boom")
	_, err = Exclusive(context.Background(), g, func(ctx context.Context) (int, error) {
		return 0, opErr
	})
	assert.ErrorIs(t, err, opErr)
}

func TestRunsInReservationOrder(t *testing.T) {
	g := New(nil)

	var mu sync.Mutex
	var order []int

	tickets := []*Ticket{g.Reserve(), g.Reserve(), g.Reserve()}

	var wg sync.WaitGroup
	// start the workers backwards; the reservation order still wins
	for i := len(tickets) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = g.RunReserved(context.Background(), tickets[i], func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestSecondOperationWaitsForFirst(t *testing.T) {
	g := New(nil)

	releaseA := make(chan struct{})
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})

	ticketA := g.Reserve()
	ticketB := g.Reserve()

	go func() {
		_ = g.RunReserved(context.Background(), ticketA, func(ctx context.Context) error {
			close(aStarted)
			<-releaseA
			return nil
		})
	}()
	go func() {
		_ = g.RunReserved(context.Background(), ticketB, func(ctx context.Context) error {
			close(bStarted)
			return nil
		})
	}()

	<-aStarted
	select {
	case <-bStarted:
		t.Fatal("B started while A held the gate")
	case <-time.After(50 * time.Millisecond):
	}

	close(releaseA)
	select {
	case <-bStarted:
	case <-time.After(time.Second):
		t.Fatal("B never started after A finished")
	}
}

func TestBusyIndicator(t *testing.T) {
	var mu sync.Mutex
	var signals []bool
	g := New(func(busy bool) {
		mu.Lock()
		signals = append(signals, busy)
		mu.Unlock()
	})

	var sawBusy bool
	require.NoError(t, g.Run(context.Background(), func(ctx context.Context) error {
		mu.Lock()
		sawBusy = len(signals) == 1 && signals[0]
		mu.Unlock()
		return nil
	}))
	_ = g.Run(context.Background(), func(ctx context.Context) error {
		return errors.New("failed operations still clear the indicator")
	})

	assert.True(t, sawBusy)
	assert.Equal(t, []bool{true, false, true, false}, signals)
}

func TestCancelledWaiterDoesNotStrandLaterTickets(t *testing.T) {
	g := New(nil)

	releaseA := make(chan struct{})
	aStarted := make(chan struct{})
	ticketA := g.Reserve()
	ticketB := g.Reserve()
	ticketC := g.Reserve()

	go func() {
		_ = g.RunReserved(context.Background(), ticketA, func(ctx context.Context) error {
			close(aStarted)
			<-releaseA
			return nil
		})
	}()
	<-aStarted

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bRan := false
	err := g.RunReserved(ctx, ticketB, func(ctx context.Context) error {
		bRan = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, bRan)

	cDone := make(chan struct{})
	go func() {
		_ = g.RunReserved(context.Background(), ticketC, func(ctx context.Context) error {
			return nil
		})
		close(cDone)
	}()

	close(releaseA)
	select {
	case <-cDone:
	case <-time.After(time.Second):
		t.Fatal("C stranded behind a cancelled ticket")
	}
}

func TestCancelledContextNeverStartsOp(t *testing.T) {
	g := New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := g.Run(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)

	// the released ticket does not block the next caller
	require.NoError(t, g.Run(context.Background(), func(ctx context.Context) error { return nil }))
}
