// Package scheduler implements the comment-generation scheduling step: a
// debounce wait followed by a cancellable generation call, where a new
// positive decision always supersedes whatever generation is currently in
// flight.
//
// Grounded directly on internal/engine/cascade's background-goroutine
// pattern: a single in-flight call is tracked via sync.WaitGroup (exposed
// through Wait for tests), and cancellation is propagated through a stored
// context.CancelFunc rather than rebuilt per call, since at most one
// generation may be in flight for a single stream at a time.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/commentator/pkg/types"
	"github.com/MrWong99/commentator/pkg/writer"
)

// GenerateFunc produces a comment from packaged context, or reports
// rejection/error. It must return promptly once ctx is cancelled.
type GenerateFunc func(ctx context.Context, cctx writer.CommentContext) (*types.Comment, bool, string, error)

// Scheduler sequences debounced, cancellable comment generation for a
// single stream. Safe for concurrent use; Schedule may be called from
// multiple goroutines, though in practice a single owning facade calls it
// serially.
type Scheduler struct {
	mu          sync.Mutex
	cancelPrior context.CancelFunc
	gen         uint64 // incremented on every Schedule call

	generate GenerateFunc

	onStarted   func(types.Turn)
	onGenerated func(*types.Comment, types.Turn)
	onRejected  func(reason string, turn types.Turn)
	onError     func(error)
	// afterEmit runs under the scheduler's lock, back-to-back with no
	// intervening operation, before onGenerated fires — e.g. decision
	// history update + uncommented-buffer clear, so no concurrently
	// enqueued job observes a half-reset state.
	afterEmit func(*types.Comment)

	wg sync.WaitGroup
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

func WithOnStarted(f func(types.Turn)) Option { return func(s *Scheduler) { s.onStarted = f } }
func WithOnGenerated(f func(*types.Comment, types.Turn)) Option {
	return func(s *Scheduler) { s.onGenerated = f }
}
func WithOnRejected(f func(reason string, turn types.Turn)) Option {
	return func(s *Scheduler) { s.onRejected = f }
}
func WithOnError(f func(error)) Option { return func(s *Scheduler) { s.onError = f } }
func WithAfterEmit(f func(*types.Comment)) Option {
	return func(s *Scheduler) { s.afterEmit = f }
}

// New creates a Scheduler that calls generate to produce comments.
func New(generate GenerateFunc, opts ...Option) *Scheduler {
	s := &Scheduler{generate: generate}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule supersedes any in-flight generation with a new one: waits
// decision.SuggestedDelay subject to cancellation, then calls generate.
// Schedule itself never blocks — the wait and call run on a background
// goroutine tracked by the internal WaitGroup.
func (s *Scheduler) Schedule(ctx context.Context, decision types.Decision, turn types.Turn, buildCtx func() writer.CommentContext) {
	s.mu.Lock()
	if s.cancelPrior != nil {
		s.cancelPrior()
	}
	genCtx, cancel := context.WithCancel(ctx)
	s.cancelPrior = cancel
	s.gen++
	myGen := s.gen
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(genCtx, myGen, decision, turn, buildCtx)
}

func (s *Scheduler) run(genCtx context.Context, myGen uint64, decision types.Decision, turn types.Turn, buildCtx func() writer.CommentContext) {
	defer s.wg.Done()
	defer s.clearIfCurrent(myGen)

	select {
	case <-time.After(decision.SuggestedDelay):
	case <-genCtx.Done():
		return
	}

	if s.onStarted != nil {
		s.onStarted(turn)
	}

	comment, accepted, reason, err := s.generate(genCtx, buildCtx())

	if genCtx.Err() != nil {
		// Superseded by a newer decision — not a failure, no callback.
		return
	}

	if err != nil {
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	if !accepted {
		if s.onRejected != nil {
			s.onRejected(reason, turn)
		}
		return
	}

	comment.Metadata.Timestamp = turn.EndTime

	s.mu.Lock()
	if s.afterEmit != nil {
		s.afterEmit(comment)
	}
	s.mu.Unlock()

	if s.onGenerated != nil {
		s.onGenerated(comment, turn)
	}
}

// clearIfCurrent clears s.cancelPrior only if no newer Schedule call has
// superseded this run — otherwise s.cancelPrior already belongs to that
// newer call and must be left alone.
func (s *Scheduler) clearIfCurrent(myGen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == myGen {
		s.cancelPrior = nil
	}
}

// Abort cancels any in-flight wait or generation without scheduling a new
// one. Used during teardown.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelPrior != nil {
		s.cancelPrior()
		s.cancelPrior = nil
	}
	s.gen++
}

// Wait blocks until every goroutine spawned by Schedule has returned.
// Primarily useful in tests to synchronise before asserting on callbacks.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
