package workers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/channels/gochannel"
	"github.com/cascadehq/cascade/pkg/eventbus"
	"github.com/cascadehq/cascade/pkg/events"
	"github.com/cascadehq/cascade/pkg/persistence/memory"
	"github.com/cascadehq/cascade/pkg/testutil"
	"github.com/cascadehq/cascade/pkg/workers"
)

type countingAdvancer struct {
	mu       sync.Mutex
	advanced map[string]int
	done     chan string
}

func newCountingAdvancer() *countingAdvancer {
	return &countingAdvancer{
		advanced: make(map[string]int),
		done:     make(chan string, 16),
	}
}

func (a *countingAdvancer) Advance(_ context.Context, executionID string) error {
	a.mu.Lock()
	a.advanced[executionID]++
	a.mu.Unlock()

	a.done <- executionID

	return nil
}

func (a *countingAdvancer) count(executionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.advanced[executionID]
}

func newBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestPool_AdvancesQueuedExecutions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newBus(t)
	advancer := newCountingAdvancer()
	pool := workers.NewPool("w-1", testutil.Logger(), advancer, workers.NewLocalLease(),
		memory.NewPersistence(), nil, workers.WithConcurrency(2))

	require.NoError(t, pool.Start(ctx, bus))

	require.NoError(t, bus.Publish(ctx, "wf-1", events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, "wf-1"),
		ExecutionID: "exec-1",
	}))

	select {
	case id := <-advancer.done:
		assert.Equal(t, "exec-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("execution was never advanced")
	}

	assert.Equal(t, 1, advancer.count("exec-1"))
}

func TestPool_LeaseBlocksConcurrentAdvance(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newBus(t)
	advancer := newCountingAdvancer()
	lease := workers.NewLocalLease()

	// Another holder already owns the execution.
	held, err := lease.Acquire(ctx, "exec-1", "other-worker", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	pool := workers.NewPool("w-1", testutil.Logger(), advancer, lease,
		memory.NewPersistence(), nil, workers.WithConcurrency(1))
	require.NoError(t, pool.Start(ctx, bus))

	require.NoError(t, bus.Publish(ctx, "wf-1", events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, "wf-1"),
		ExecutionID: "exec-1",
	}))

	select {
	case <-advancer.done:
		t.Fatal("leased execution must not be advanced")
	case <-time.After(200 * time.Millisecond):
	}

	assert.Equal(t, 0, advancer.count("exec-1"))
}

func TestLocalLease_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	lease := workers.NewLocalLease()

	ok, err := lease.Acquire(ctx, "exec-1", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lease.Acquire(ctx, "exec-1", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-entrant for the same holder.
	ok, err = lease.Acquire(ctx, "exec-1", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Releasing with the wrong holder is a no-op.
	require.NoError(t, lease.Release(ctx, "exec-1", "b"))

	ok, err = lease.Acquire(ctx, "exec-1", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lease.Release(ctx, "exec-1", "a"))

	ok, err = lease.Acquire(ctx, "exec-1", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
