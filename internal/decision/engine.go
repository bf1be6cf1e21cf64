// Package decision implements the scoring core: a stateful, per-stream
// engine that turns a batch of detected events into a Decision.
//
// Evaluate is pure computation over the engine's current state and never
// returns an error, mirroring the "small state machine behind a mutex,
// updated after every call" shape of internal/resilience.CircuitBreaker —
// here the dynamic threshold plays the role of the breaker's
// consecutive-failure counter, nudged after every Evaluate instead of every
// Execute.
package decision

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/commentator/pkg/types"
)

const (
	historyCap          = 10
	coldStartBound      = 20 * time.Second
	qualityBonusCap     = 0.3
	frequencyWindow     = 90 * time.Second
	minDynamicThreshold = 0.30
	maxDynamicThreshold = 0.95
)

// Config tunes factor weights, timing bounds, and the frequency-suppression
// and time-decay response.
type Config struct {
	BaseThreshold float64
	MinInterval   time.Duration
	MaxInterval   time.Duration

	EmotionWeight    float64
	TopicWeight      float64
	TimingWeight     float64
	ImportanceWeight float64
	KeywordWeight    float64

	// FrequencySuppression scales the count-based suppression factor
	// (1.25/0.75/0.5/0.25 for 0/1/2/3+ recent comments). At the default of
	// 0.80 this reproduces the canonical 1.0/0.6/0.4/0.2 suppression curve.
	FrequencySuppression float64

	TimeDecayRate float64
}

// Engine is a stateful, single-stream decision scorer. Safe for concurrent
// use; all state is guarded by an internal mutex.
type Engine struct {
	mu sync.Mutex

	cfg Config

	hasComment      bool
	lastCommentTime time.Duration
	history         []types.Comment // newest last, capped at historyCap

	dynamicThreshold float64
}

// New creates an Engine. The dynamic threshold starts at
// min(cfg.BaseThreshold*1.3, 0.85), biased conservative until the stream has
// a commenting history to regress toward.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:              cfg,
		dynamicThreshold: math.Min(cfg.BaseThreshold*1.3, 0.85),
	}
}

// Evaluate scores events observed at turnEndTime and returns a Decision. It
// never errors and always advances the engine's dynamic threshold as a side
// effect of the call.
func (e *Engine) Evaluate(events []types.Event, turnEndTime time.Duration) types.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	delta := e.delta(turnEndTime)
	coldStart := turnEndTime < coldStartBound

	factors := types.DecisionFactors{
		Emotion:    maxConfidence(events, types.EventEmotionPeak),
		Topic:      maxConfidence(events, types.EventTopicChange),
		Importance: maxConfidence(events, types.EventConclusionReached, types.EventKeyPoint, types.EventSummaryPoint),
		Keyword:    maxConfidence(events, types.EventQuestionRaised),
		Timing:     e.timing(turnEndTime, delta, coldStart),
	}

	base := factors.Emotion*e.cfg.EmotionWeight +
		factors.Topic*e.cfg.TopicWeight +
		factors.Timing*e.cfg.TimingWeight +
		factors.Importance*e.cfg.ImportanceWeight +
		factors.Keyword*e.cfg.KeywordWeight

	qualityBonus := contentQualityBonus(events)
	timeDecay := e.timeDecay(delta)
	freqSuppression := e.frequencySuppression(turnEndTime)

	final := (base + qualityBonus) * timeDecay * freqSuppression

	priority := priorityFor(events, final)
	shouldComment := final > e.dynamicThreshold
	confidence := math.Min(final/e.dynamicThreshold, 1)
	delay := e.suggestedDelay(priority, delta)

	decision := types.Decision{
		ShouldComment:  shouldComment,
		Score:          final,
		Confidence:     confidence,
		Factors:        factors,
		Priority:       priority,
		SuggestedDelay: delay,
		Reasoning:      reasoningFor(shouldComment, final, e.dynamicThreshold, coldStart),
	}

	e.updateDynamicThreshold(shouldComment, delta)

	return decision
}

// delta returns max(0, turnEndTime - lastCommentTime), or 0 if no comment
// has ever been recorded.
func (e *Engine) delta(turnEndTime time.Duration) time.Duration {
	if !e.hasComment {
		return 0
	}
	if d := turnEndTime - e.lastCommentTime; d > 0 {
		return d
	}
	return 0
}

// timing implements the cold-start suppression and the min/max-interval
// interpolation described for the timing factor.
func (e *Engine) timing(turnEndTime, delta time.Duration, coldStart bool) float64 {
	if coldStart {
		return 0.1
	}

	d := delta.Seconds()
	minI := e.cfg.MinInterval.Seconds()
	maxI := e.cfg.MaxInterval.Seconds()

	switch {
	case delta < e.cfg.MinInterval:
		return math.Max(0.05, (d/minI)*0.2)
	case delta > e.cfg.MaxInterval:
		return 1
	default:
		return (d - minI) / (maxI - minI)
	}
}

// timeDecay implements timeDecayRate^(max(0, 60s-delta)/60s).
func (e *Engine) timeDecay(delta time.Duration) float64 {
	rem := math.Max(0, (60*time.Second - delta).Seconds())
	return math.Pow(e.cfg.TimeDecayRate, rem/60)
}

// frequencySuppression counts history entries whose timestamp lies in
// [turnEndTime-frequencyWindow, turnEndTime) and scales cfg.FrequencySuppression
// by a count-based factor.
func (e *Engine) frequencySuppression(turnEndTime time.Duration) float64 {
	windowStart := turnEndTime - frequencyWindow

	count := 0
	for _, c := range e.history {
		if c.Metadata.Timestamp >= windowStart && c.Metadata.Timestamp < turnEndTime {
			count++
		}
	}
	return e.cfg.FrequencySuppression * frequencyFactor(count)
}

func frequencyFactor(count int) float64 {
	switch {
	case count >= 3:
		return 0.25
	case count == 2:
		return 0.5
	case count == 1:
		return 0.75
	default:
		return 1.25
	}
}

// updateDynamicThreshold nudges the threshold toward tightness (commenting
// too often), looseness (too quiet), or the configured baseline. Must be
// called with e.mu held.
func (e *Engine) updateDynamicThreshold(shouldComment bool, delta time.Duration) {
	switch {
	case shouldComment && delta < (e.cfg.MinInterval*3)/2:
		e.dynamicThreshold = math.Min(maxDynamicThreshold, e.dynamicThreshold*1.05)
	case !shouldComment && delta > e.cfg.MaxInterval:
		e.dynamicThreshold = math.Max(minDynamicThreshold, e.dynamicThreshold*0.95)
	default:
		e.dynamicThreshold += 0.1 * (e.cfg.BaseThreshold - e.dynamicThreshold)
	}
}

// UpdateHistory records an emitted comment. comment.Metadata.Timestamp is
// trusted as-is — a zero value is valid input (media start) and is not
// distinguishable from "absent", so callers must only invoke this after a
// successful generation that has stamped the timestamp from the triggering
// turn. There is no fallback to wall-clock time: that was the source of a
// unit-contamination bug in the reference this engine replaces.
func (e *Engine) UpdateHistory(comment types.Comment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, comment)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
	e.lastCommentTime = comment.Metadata.Timestamp
	e.hasComment = true
	return nil
}

// DynamicThreshold returns the engine's current threshold, always within
// [0.30, 0.95].
func (e *Engine) DynamicThreshold() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dynamicThreshold
}

func maxConfidence(events []types.Event, types_ ...types.EventType) float64 {
	best := 0.0
	for _, ev := range events {
		for _, t := range types_ {
			if ev.Type == t && ev.Confidence > best {
				best = ev.Confidence
			}
		}
	}
	return best
}

// contentQualityBonus sums max(0, (q-3)/10*0.3) over every event's
// ContentQualityScore, capped at qualityBonusCap.
func contentQualityBonus(events []types.Event) float64 {
	total := 0.0
	for _, ev := range events {
		if b := (ev.Metadata.ContentQualityScore - 3) / 10 * 0.3; b > 0 {
			total += b
		}
	}
	if total > qualityBonusCap {
		return qualityBonusCap
	}
	return total
}

func priorityFor(events []types.Event, final float64) types.Priority {
	highEligible := false
	for _, ev := range events {
		if ev.Type == types.EventConclusionReached || ev.Type == types.EventClimaxMoment {
			highEligible = true
			break
		}
	}

	switch {
	case highEligible && final > 0.95:
		return types.PriorityHigh
	case final > 0.85:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

// suggestedDelay returns the base delay for priority, extended when the
// gap since the last comment is still inside the minimum interval.
func (e *Engine) suggestedDelay(priority types.Priority, delta time.Duration) time.Duration {
	var base time.Duration
	switch priority {
	case types.PriorityHigh:
		base = 1500 * time.Millisecond
	case types.PriorityMedium:
		base = 2500 * time.Millisecond
	default:
		base = 4000 * time.Millisecond
	}
	if delta < e.cfg.MinInterval {
		base += e.cfg.MinInterval - delta
	}
	return base
}

func reasoningFor(shouldComment bool, final, threshold float64, coldStart bool) string {
	switch {
	case coldStart && !shouldComment:
		return fmt.Sprintf("score %.3f below dynamic threshold %.3f: cold-start timing suppression (<20s into stream)", final, threshold)
	case shouldComment:
		return fmt.Sprintf("score %.3f exceeds dynamic threshold %.3f", final, threshold)
	default:
		return fmt.Sprintf("score %.3f below dynamic threshold %.3f", final, threshold)
	}
}
