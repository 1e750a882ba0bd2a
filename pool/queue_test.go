package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bebewat/wrecksshop/rcon"
)

// fakeExecutor scripts per-command behavior for queue tests.
type fakeExecutor struct {
	mu       sync.Mutex
	state    rcon.State
	calls    []string
	respond  func(command string, attempt int) (string, error)
	attempts map[string]int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		state:    rcon.StateConnected,
		attempts: make(map[string]int),
		respond: func(command string, attempt int) (string, error) {
			return "ok", nil
		},
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, command string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.attempts[command]++
	attempt := f.attempts[command]
	respond := f.respond
	f.mu.Unlock()
	return respond(command, attempt)
}

func (f *fakeExecutor) State() rcon.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func startQueue(t *testing.T, exec Executor, cfg QueueConfig) *Queue {
	t.Helper()
	q := NewQueue("island", exec, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	q.Start(ctx)
	return q
}

func TestQueueDeliversInOrder(t *testing.T) {
	exec := newFakeExecutor()
	q := startQueue(t, exec, QueueConfig{})

	// A single worker drains the channel in arrival order.
	var wg sync.WaitGroup
	results := make([]Outcome, 3)
	for n, cmd := range []string{"first", "second", "third"} {
		n, cmd := n, cmd
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[n] = q.Do(context.Background(), cmd, cmd)
		}()
		// Stagger submissions so arrival order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	for n, out := range results {
		require.NoError(t, out.Err, "task %d", n)
		assert.Equal(t, "ok", out.Response)
		assert.Equal(t, 1, out.Attempts)
	}
	assert.Equal(t, []string{"first", "second", "third"}, exec.Calls())
}

func TestQueueRetriesTransientFailures(t *testing.T) {
	exec := newFakeExecutor()
	exec.respond = func(command string, attempt int) (string, error) {
		if attempt < 3 {
			return "", rcon.ErrTimeout
		}
		return "delivered", nil
	}
	q := startQueue(t, exec, QueueConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	out := q.Do(context.Background(), "GiveItem", "purch-1")

	require.NoError(t, out.Err)
	assert.Equal(t, "delivered", out.Response)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "purch-1", out.CorrelationID)
}

func TestQueueExhaustsRetryBudget(t *testing.T) {
	exec := newFakeExecutor()
	exec.respond = func(command string, attempt int) (string, error) {
		return "", rcon.ErrConnectionLost
	}
	q := startQueue(t, exec, QueueConfig{MaxAttempts: 2, RetryBackoff: time.Millisecond})

	out := q.Do(context.Background(), "GiveItem", "purch-2")

	assert.ErrorIs(t, out.Err, ErrDeliveryFailed)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, "purch-2", out.CorrelationID)
}

func TestQueueDoesNotRetryNonTransientErrors(t *testing.T) {
	exec := newFakeExecutor()
	exec.respond = func(command string, attempt int) (string, error) {
		return "", rcon.ErrSessionClosed
	}
	q := startQueue(t, exec, QueueConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond})

	out := q.Do(context.Background(), "GiveItem", "purch-3")

	assert.ErrorIs(t, out.Err, rcon.ErrSessionClosed)
	assert.Equal(t, 1, out.Attempts)
}

func TestQueueRejectsUnreachableServer(t *testing.T) {
	exec := newFakeExecutor()
	exec.state = rcon.StateUnreachable
	q := startQueue(t, exec, QueueConfig{})

	out := q.Do(context.Background(), "GiveItem", "purch-4")

	assert.ErrorIs(t, out.Err, ErrServerUnavailable)
	assert.Empty(t, exec.Calls())
}

func TestQueueHonorsCallerContext(t *testing.T) {
	exec := newFakeExecutor()
	block := make(chan struct{})
	exec.respond = func(command string, attempt int) (string, error) {
		<-block
		return "ok", nil
	}
	q := startQueue(t, exec, QueueConfig{})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := q.Do(ctx, "GiveItem", "purch-5")
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestQueueMaxInFlightBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := newFakeExecutor()
	exec.respond = func(command string, attempt int) (string, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}
	q := startQueue(t, exec, QueueConfig{MaxInFlight: 2})

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := q.Do(context.Background(), "cmd", "")
			assert.NoError(t, out.Err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}
