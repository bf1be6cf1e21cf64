// Package app wires the context buffers, short-turn aggregator, detection
// queue, event detector, decision engine, and comment scheduler into a
// single facade: System. One System instance owns exactly one logical
// commentary stream.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/commentator/internal/aggregator"
	"github.com/MrWong99/commentator/internal/buffer"
	"github.com/MrWong99/commentator/internal/config"
	"github.com/MrWong99/commentator/internal/decision"
	"github.com/MrWong99/commentator/internal/detectqueue"
	"github.com/MrWong99/commentator/internal/detector"
	"github.com/MrWong99/commentator/internal/observe"
	"github.com/MrWong99/commentator/internal/scheduler"
	"github.com/MrWong99/commentator/pkg/types"
	"github.com/MrWong99/commentator/pkg/writer"
)

// Dependencies carries the externally-provided collaborators a System needs
// beyond its own configuration. Registry is required unless every
// provider-resolving Option (WithDetector, WithWriterResolve) is supplied
// instead, which tests do to avoid a live registry entirely.
type Dependencies struct {
	// Registry resolves model names to llm.Provider instances for both the
	// event detector and the comment writers/selector.
	Registry *config.Registry

	// Metrics records pipeline latency and counters. Nil disables metrics
	// recording entirely (no-op, not observe.DefaultMetrics) so tests never
	// touch the global OTel provider unless they ask for it explicitly.
	Metrics *observe.Metrics
}

// Statistics summarises the current state of both text buffers alongside
// the configuration the System was built with.
type Statistics struct {
	ContextBuffer     buffer.Statistics
	UncommentedBuffer buffer.Statistics
	Config            config.Config
}

// System is the facade for a single commentary stream: it owns the context
// and uncommented-text buffers, the short-turn aggregator, the detection
// queue, the event detector, the decision engine, and the comment
// scheduler, and exposes them as one OnTurnCompleted entry point plus a
// small observable event surface.
//
// A System is built for exactly one stream; running several streams means
// constructing several Systems, never sharing one across streams — the
// single-logical-stream invariant the whole pipeline depends on (debounce
// timers, the latest-wins queue slot, the scheduler's single in-flight
// generation) only holds per instance.
type System struct {
	cfg config.Config

	context     *buffer.TextBuffer
	uncommented *buffer.TextBuffer
	aggregator  *aggregator.Aggregator
	queue       *detectqueue.Queue
	detector    *detector.Detector
	decision    *decision.Engine
	scheduler   *scheduler.Scheduler

	writers  []writer.WriterConfig
	selector writer.SelectorConfig
	resolve  writer.ProviderFor

	queueClock func() time.Time
	metrics    *observe.Metrics

	listeners   map[EventName]map[int]func(Event)
	listenerSeq int
	lmu         sync.RWMutex

	closers  []func() error
	stopOnce sync.Once
}

// Option configures a System at construction time, chiefly for test
// injection: overriding the detector/resolver lets a test exercise the full
// facade against a mock.Provider without a live config.Registry.
type Option func(*System)

// WithDetector overrides the detector built from cfg/deps.Registry.
func WithDetector(d *detector.Detector) Option {
	return func(s *System) { s.detector = d }
}

// WithWriterResolve overrides the provider resolver used for the selector
// and every configured writer.
func WithWriterResolve(resolve writer.ProviderFor) Option {
	return func(s *System) { s.resolve = resolve }
}

// WithQueueClock injects a clock function into the detection queue in place
// of time.Now, for deterministic staleness tests.
func WithQueueClock(clock func() time.Time) Option {
	return func(s *System) { s.queueClock = clock }
}

// New builds a System for one commentary stream from cfg. ctx governs the
// lifetime of the detection queue's worker goroutine: cancelling it stops
// the worker after its current job, if any, finishes.
func New(ctx context.Context, cfg config.Config, deps Dependencies, opts ...Option) (*System, error) {
	s := &System{
		cfg:     cfg,
		metrics: deps.Metrics,
	}
	for _, o := range opts {
		o(s)
	}

	s.context = buffer.New(
		buffer.WithRetention(cfg.ContextBuffer.RetentionTime.Dur()),
		buffer.WithDefaultWindow(cfg.ContextBuffer.WindowDuration.Dur()),
	)
	s.uncommented = buffer.New(
		buffer.WithRetention(cfg.UncommentedBuffer.RetentionTime.Dur()),
		buffer.WithDefaultWindow(cfg.UncommentedBuffer.WindowDuration.Dur()),
	)

	if s.detector == nil {
		if deps.Registry == nil {
			return nil, fmt.Errorf("app: no detector LLM provider available: Dependencies.Registry is nil and WithDetector was not supplied")
		}
		provider, err := deps.Registry.CreateLLM(config.ProviderEntry{
			Name:    string(cfg.EventDetector.ModelProvider),
			APIKey:  cfg.EventDetector.APIKey,
			BaseURL: cfg.EventDetector.BaseURL,
			Model:   cfg.EventDetector.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("app: build event detector provider: %w", err)
		}
		s.detector = detector.New(provider, detector.Config{
			DetectionSensitivity:     cfg.EventDetector.DetectionSensitivity,
			EmotionThreshold:         cfg.EventDetector.EmotionThreshold,
			TopicTransitionThreshold: cfg.EventDetector.TopicTransitionThreshold,
			KeypointDensityThreshold: cfg.EventDetector.KeypointDensityThreshold,
			TriggerDedupThreshold:    0.9,
		})
	}

	if s.resolve == nil {
		if deps.Registry == nil {
			return nil, fmt.Errorf("app: no writer LLM provider available: Dependencies.Registry is nil and WithWriterResolve was not supplied")
		}
		cache := newProviderCache(deps.Registry, func(model string) config.ProviderEntry {
			return config.ProviderEntry{
				Name:    string(cfg.CommentGenerator.ModelProvider),
				APIKey:  cfg.CommentGenerator.APIKey,
				BaseURL: cfg.CommentGenerator.BaseURL,
				Model:   model,
			}
		})
		s.resolve = cache.resolve
	}

	s.writers = make([]writer.WriterConfig, len(cfg.CommentGenerator.Writers))
	for i, w := range cfg.CommentGenerator.Writers {
		s.writers[i] = writer.WriterConfig{
			Name:         w.Name,
			Instructions: w.Instructions,
			MinLength:    w.MinLength,
			MaxLength:    w.MaxLength,
			Model:        w.Model,
		}
	}
	s.selector = writer.SelectorConfig{
		Model:        cfg.CommentGenerator.SelectorModel,
		Instructions: cfg.CommentGenerator.SelectorInstructions,
	}

	s.decision = decision.New(decision.Config{
		BaseThreshold:        cfg.DecisionEngine.BaseThreshold,
		MinInterval:          cfg.DecisionEngine.MinInterval.Dur(),
		MaxInterval:          cfg.DecisionEngine.MaxInterval.Dur(),
		EmotionWeight:        cfg.DecisionEngine.EmotionWeight,
		TopicWeight:          cfg.DecisionEngine.TopicWeight,
		TimingWeight:         cfg.DecisionEngine.TimingWeight,
		ImportanceWeight:     cfg.DecisionEngine.ImportanceWeight,
		KeywordWeight:        cfg.DecisionEngine.KeywordWeight,
		FrequencySuppression: cfg.DecisionEngine.FrequencySuppression,
		TimeDecayRate:        cfg.DecisionEngine.TimeDecayRate,
	})

	s.scheduler = scheduler.New(s.generateComment,
		scheduler.WithOnStarted(s.onCommentStarted),
		scheduler.WithOnGenerated(s.onCommentGenerated),
		scheduler.WithOnRejected(s.onCommentRejected),
		scheduler.WithOnError(s.onSchedulerError),
		scheduler.WithAfterEmit(s.onBeforeCommentGenerated),
	)

	s.aggregator = aggregator.New(aggregator.Config{
		MinTurnDuration:  cfg.ShortTurnAggregator.MinTurnDuration.Dur(),
		MaxGap:           cfg.ShortTurnAggregator.MaxGap.Dur(),
		MaxWords:         cfg.ShortTurnAggregator.MaxWords,
		MaxTotalDuration: cfg.ShortTurnAggregator.MaxTotalDuration.Dur(),
		MaxDelay:         cfg.ShortTurnAggregator.MaxDelay.Dur(),
	}, s.enqueueReady)

	var queueOpts []detectqueue.Option
	if s.queueClock != nil {
		queueOpts = append(queueOpts, detectqueue.WithClock(s.queueClock))
	}
	s.queue = detectqueue.New(ctx, s.processJob, s.onJobDropped, s.onJobError, queueOpts...)

	return s, nil
}

// OnTurnCompleted admits a finished turn into the pipeline: both text
// buffers are appended to synchronously, then the turn is either enqueued
// immediately (it is substantial enough on its own) or handed to the
// short-turn aggregator, which will enqueue the merged turn itself — either
// synchronously (a flush trigger fires) or later from its own debounce
// timer.
func (s *System) OnTurnCompleted(turn types.Turn) {
	s.context.Append(turn)
	s.uncommented.Append(turn)

	if turn.EndTime-turn.StartTime >= s.cfg.ShortTurnAggregator.MinTurnDuration.Dur() {
		s.aggregator.Clear()
		s.enqueueReady(turn)
		return
	}

	if ready, ok := s.aggregator.Add(turn); ok {
		s.enqueueReady(ready)
	}
}

// enqueueReady packages turn with buffer snapshots taken at this instant
// and hands it to the detection queue. It is used both as
// OnTurnCompleted's own immediate/flush path and as the aggregator's
// onTimeout callback, in which case the snapshots are taken at debounce-fire
// time rather than at the original Add call.
func (s *System) enqueueReady(turn types.Turn) {
	s.queue.Enqueue(detectqueue.Job{
		Turn:            turn,
		UncommentedText: s.uncommented.GetWindow(),
		FullContext:     s.context.GetWindow(),
	})
}

// processJob is the detection queue's process callback: it runs the event
// detector and, on success, the decision engine, scheduling a comment
// generation when the decision says so. Detector errors are returned
// unhandled so the queue's onError hook — not this function — is the single
// place that turns a failure into an error event.
func (s *System) processJob(ctx context.Context, job detectqueue.Job) error {
	ctx, span := observe.StartPipelineSpan(ctx, observe.SpanProcessJob, job.Turn.ID)
	defer span.End()

	detectStart := time.Now()
	events, err := s.detector.Detect(ctx, job)
	if err != nil {
		return err
	}
	detectDur := time.Since(detectStart)
	if s.metrics != nil {
		s.metrics.DetectDuration.Record(ctx, detectDur.Seconds())
		for _, ev := range events {
			s.metrics.RecordEventDetected(ctx, string(ev.Type))
		}
	}
	s.emit(Event{Name: EventsDetected, Turn: job.Turn, Events: events, ProcessingTime: detectDur})

	decideStart := time.Now()
	dec := s.decision.Evaluate(events, job.Turn.EndTime)
	decideDur := time.Since(decideStart)
	if s.metrics != nil {
		s.metrics.DecideDuration.Record(ctx, decideDur.Seconds())
	}
	s.emit(Event{Name: EventDecisionMade, Turn: job.Turn, Decision: dec, ProcessingTime: decideDur})

	if !dec.ShouldComment {
		return nil
	}

	turn := job.Turn
	s.scheduler.Schedule(ctx, dec, turn, func() writer.CommentContext {
		return writer.CommentContext{
			CurrentText:     turn.Content,
			HistoricalText:  s.context.GetWindow(),
			UncommentedText: s.uncommented.GetWindow(),
			Events:          events,
		}
	})
	return nil
}

// onJobDropped fires when the detection queue evicts a pending job for
// staleness before it is ever processed.
func (s *System) onJobDropped(job detectqueue.Job) {
	if s.metrics != nil {
		s.metrics.DetectionJobsDropped.Add(context.Background(), 1)
	}
}

// onJobError fires when processJob returns a non-nil error — in practice,
// only a detector failure, since decision/scheduling never error.
func (s *System) onJobError(err error, job detectqueue.Job) {
	if s.metrics != nil {
		s.metrics.RecordProviderError(context.Background(), string(s.cfg.EventDetector.ModelProvider), "detect")
	}
	s.emit(Event{Name: EventError, Turn: job.Turn, Err: err})
}

// generateComment is the scheduler's GenerateFunc: it delegates to
// writer.Generate using this System's configured writers, selector, and
// provider resolver.
func (s *System) generateComment(ctx context.Context, cctx writer.CommentContext) (*types.Comment, bool, string, error) {
	ctx, span := observe.StartSpan(ctx, observe.SpanGenerateComment)
	defer span.End()

	start := time.Now()
	comment, accepted, reason, err := writer.Generate(ctx, cctx, s.writers, s.selector, s.resolve)
	if s.metrics != nil {
		s.metrics.GenerateDuration.Record(ctx, time.Since(start).Seconds())
	}
	return comment, accepted, reason, err
}

// onCommentStarted is the scheduler's onStarted hook.
func (s *System) onCommentStarted(turn types.Turn) {
	s.emit(Event{Name: EventCommentStarted, Turn: turn})
}

// onBeforeCommentGenerated is the scheduler's afterEmit hook: it runs under
// the scheduler's lock, atomically with respect to the comment-generated
// event that follows, so no concurrently enqueued job ever observes a
// half-reset uncommented buffer alongside a stale decision history.
func (s *System) onBeforeCommentGenerated(comment *types.Comment) {
	_ = s.decision.UpdateHistory(*comment)
	s.uncommented.Clear()
}

// onCommentGenerated is the scheduler's onGenerated hook.
func (s *System) onCommentGenerated(comment *types.Comment, turn types.Turn) {
	if s.metrics != nil {
		s.metrics.RecordCommentGenerated(context.Background(), comment.Writer)
	}
	s.emit(Event{Name: EventCommentGenerated, Turn: turn, Comment: comment})
}

// onCommentRejected is the scheduler's onRejected hook.
func (s *System) onCommentRejected(reason string, turn types.Turn) {
	if s.metrics != nil {
		s.metrics.RecordCommentRejected(context.Background(), reason)
	}
	s.emit(Event{Name: EventCommentRejected, Turn: turn, Reason: reason})
}

// onSchedulerError is the scheduler's onError hook, covering writer/selector
// provider failures.
func (s *System) onSchedulerError(err error) {
	if s.metrics != nil {
		s.metrics.RecordProviderError(context.Background(), string(s.cfg.CommentGenerator.ModelProvider), "generate")
	}
	s.emit(Event{Name: EventError, Err: err})
}

// GetStatistics returns a snapshot of both text buffers alongside the
// configuration this System was built with.
func (s *System) GetStatistics() Statistics {
	return Statistics{
		ContextBuffer:     s.context.Statistics(),
		UncommentedBuffer: s.uncommented.Statistics(),
		Config:            s.cfg,
	}
}

// Clear discards all buffered state — both text buffers, the pending
// aggregation, the pending detection job, and any in-flight comment
// schedule — without tearing down the System. Used between takes of the
// same stream (e.g. a VOD re-run) when the configuration should survive but
// accumulated state should not.
func (s *System) Clear() {
	s.context.Clear()
	s.uncommented.Clear()
	s.aggregator.Clear()
	s.scheduler.Abort()
	s.queue.Clear()
}

// AddCloser registers fn to run, in registration order, during Close. Used
// by callers that attach additional resources to this System's lifetime
// (e.g. an observe.InitProvider shutdown function).
func (s *System) AddCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close tears the System down: it clears all buffered and in-flight state
// exactly as Clear does, then runs every registered closer in the order it
// was added, joining their errors. Safe to call more than once; only the
// first call has effect.
func (s *System) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.Clear()
		var errs []error
		for _, closer := range s.closers {
			if e := closer(); e != nil {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
