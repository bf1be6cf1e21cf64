// Package detectqueue implements the single-slot, latest-wins detection
// queue: the scheduling core that keeps the system behaving in real time
// under load.
//
// Deliberately not a buffered channel: a depth-1 channel blocks the sender
// once full and delivers FIFO, which cannot express "overwrite any pending
// job with the newest one" — the queue needs true overwrite-on-send
// semantics, so the pending slot is a plain mutex-guarded field instead.
// The worker-loop shape (lock, take, unlock, process, repeat until empty)
// follows the same single-critical-section idiom internal/resilience.
// CircuitBreaker uses for its own state transitions, here restarted on
// every enqueue instead of wrapping a one-shot call.
package detectqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/commentator/pkg/types"
)

// ErrStaleJob is returned by callers that check staleness themselves (e.g.
// internal/detector's defensive re-check) when a job has exceeded the
// configured staleness bound.
var ErrStaleJob = errors.New("detectqueue: job is stale")

// defaultStaleness is the wall-clock age at which a pending job is dropped
// instead of processed.
const defaultStaleness = 5 * time.Second

// Job is a unit of detection work: a ready turn plus the buffer snapshots
// taken at enqueue time.
type Job struct {
	Turn            types.Turn
	UncommentedText string
	FullContext     string

	// EnqueuedAt is wall-clock (time.Time), never media-relative — staleness
	// is measured by wall-clock enqueue age, never by media timestamps,
	// since the two are not comparable.
	EnqueuedAt time.Time
}

// Queue is a single-slot, latest-wins work queue with a serial worker.
type Queue struct {
	mu      sync.Mutex
	pending *Job
	running bool

	staleness time.Duration
	process   func(context.Context, Job) error
	onDrop    func(Job)
	onError   func(error, Job)
	clock     func() time.Time

	ctx context.Context
}

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithStaleness overrides the default 5s staleness bound.
func WithStaleness(d time.Duration) Option {
	return func(q *Queue) { q.staleness = d }
}

// WithClock injects a clock function in place of time.Now, for deterministic
// staleness tests.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) { q.clock = clock }
}

// New creates a Queue. process is called synchronously for each fresh job;
// onDrop is called for jobs evicted as stale; onError is called when
// process returns a non-nil error. ctx governs the lifetime of worker
// goroutines — once cancelled, a running worker exits its loop without
// processing remaining pending work.
func New(ctx context.Context, process func(context.Context, Job) error, onDrop func(Job), onError func(error, Job), opts ...Option) *Queue {
	q := &Queue{
		staleness: defaultStaleness,
		process:   process,
		onDrop:    onDrop,
		onError:   onError,
		clock:     time.Now,
		ctx:       ctx,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue stamps job with the current time and unconditionally overwrites
// any existing pending job — the newest input always wins, and any older
// pending work is silently dropped without onDrop firing (only staleness
// eviction inside the worker triggers onDrop). If the worker is not
// currently running, Enqueue starts it.
func (q *Queue) Enqueue(job Job) {
	job.EnqueuedAt = q.clock()

	q.mu.Lock()
	q.pending = &job
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	if start {
		go q.worker()
	}
}

// worker drains the pending slot until it is empty, then exits; Enqueue
// restarts it on the next call. Only one process invocation is ever in
// flight: the next job waits for the current process call to return before
// the slot is reconsidered.
func (q *Queue) worker() {
	for {
		q.mu.Lock()
		job := q.pending
		q.pending = nil
		if job == nil {
			q.running = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		if q.ctx.Err() != nil {
			return
		}

		if q.clock().Sub(job.EnqueuedAt) > q.staleness {
			if q.onDrop != nil {
				q.onDrop(*job)
			}
			continue
		}

		if err := q.process(q.ctx, *job); err != nil {
			if q.onError != nil {
				q.onError(err, *job)
			}
		}
	}
}

// Clear drops the pending job, if any. It does not affect an in-flight
// process call.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}
