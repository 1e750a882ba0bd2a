package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/rcon"
)

var (
	// ErrServerUnavailable rejects admission for servers that are
	// unreachable or not configured. Tasks are never silently dropped.
	ErrServerUnavailable = errors.New("pool: server unavailable")

	// ErrDeliveryFailed means a task exhausted its retry budget. It wraps
	// the last transport error and carries the attempt count.
	ErrDeliveryFailed = errors.New("pool: delivery failed")
)

const (
	defaultMaxInFlight  = 1
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 2 * time.Second
	queueDepth          = 128
)

// Executor is the command primitive a queue dispatches through. A
// *rcon.Session satisfies it.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
	State() rcon.State
}

// QueueConfig tunes dispatch and retry per server.
type QueueConfig struct {
	// MaxInFlight bounds concurrent commands against one server. Game
	// server RCON throughput is low; the default is 1.
	MaxInFlight int
	// MaxAttempts bounds delivery attempts per task.
	MaxAttempts int
	// RetryBackoff is the wait between attempts.
	RetryBackoff time.Duration
}

// Outcome is the settled result of one task. The correlation id always
// travels with it so callers can reconcile.
type Outcome struct {
	CorrelationID string
	Response      string
	Attempts      int
	Err           error
}

type task struct {
	ctx           context.Context
	command       string
	correlationID string
	result        chan Outcome
}

// Queue is the per-server ordered command queue. Tasks dispatch strictly in
// arrival order; at most MaxInFlight are against the server at once. There
// is no ordering relationship between queues of different servers.
type Queue struct {
	serverID string
	exec     Executor
	cfg      QueueConfig
	tasks    chan *task
}

// NewQueue creates a queue for one server. Call Start before Do.
func NewQueue(serverID string, exec Executor, cfg QueueConfig) *Queue {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Queue{
		serverID: serverID,
		exec:     exec,
		cfg:      cfg,
		tasks:    make(chan *task, queueDepth),
	}
}

// Start launches the dispatch workers. Workers pull from a single channel,
// which preserves arrival order for dispatch starts.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.MaxInFlight; i++ {
		go q.worker(ctx)
	}
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			out := q.runTask(t)
			t.result <- out
		}
	}
}

// runTask drives one task through its retry budget.
func (q *Queue) runTask(t *task) Outcome {
	out := Outcome{CorrelationID: t.correlationID}

	var lastErr error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt
		if t.ctx.Err() != nil {
			out.Err = t.ctx.Err()
			return out
		}

		resp, err := q.exec.Execute(t.ctx, t.command)
		if err == nil {
			out.Response = resp
			return out
		}
		lastErr = err
		if !retryable(err) {
			out.Err = err
			return out
		}

		log.WithFields(log.Fields{
			"server":      q.serverID,
			"correlation": t.correlationID,
			"attempt":     attempt,
		}).WithError(err).Warn("Command attempt failed")

		if attempt < q.cfg.MaxAttempts {
			select {
			case <-t.ctx.Done():
				out.Err = t.ctx.Err()
				return out
			case <-time.After(q.cfg.RetryBackoff):
			}
		}
	}

	out.Err = fmt.Errorf("%w: %q on server %s after %d attempts: %v",
		ErrDeliveryFailed, t.command, q.serverID, out.Attempts, lastErr)
	return out
}

func retryable(err error) bool {
	return errors.Is(err, rcon.ErrTimeout) || errors.Is(err, rcon.ErrConnectionLost)
}

// Do enqueues one command and blocks until its outcome settles or ctx ends.
// Admission fails immediately with ErrServerUnavailable when the server is
// unreachable.
func (q *Queue) Do(ctx context.Context, command, correlationID string) Outcome {
	if q.exec.State() == rcon.StateUnreachable {
		return Outcome{
			CorrelationID: correlationID,
			Err:           fmt.Errorf("%w: server %s is unreachable", ErrServerUnavailable, q.serverID),
		}
	}

	t := &task{
		ctx:           ctx,
		command:       command,
		correlationID: correlationID,
		result:        make(chan Outcome, 1),
	}

	select {
	case q.tasks <- t:
	case <-ctx.Done():
		return Outcome{CorrelationID: correlationID, Err: ctx.Err()}
	}

	select {
	case out := <-t.result:
		return out
	case <-ctx.Done():
		return Outcome{CorrelationID: correlationID, Err: ctx.Err()}
	}
}
