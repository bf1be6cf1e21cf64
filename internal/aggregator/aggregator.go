// Package aggregator merges consecutive sub-duration turns into a single
// synthetic turn that is substantial enough to justify running the event
// detector.
//
// The debounce/cancellation idiom is a single pending timer, guarded by a
// mutex, always stopped before being rescheduled; turns accumulate until a
// boundary condition (aggregated duration or word count) fires the flush. A
// gap larger than MaxGap discards the pending turns instead of flushing them.
package aggregator

import (
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/MrWong99/commentator/pkg/types"
)

// Config tunes aggregation admission, flush, and debounce behaviour.
type Config struct {
	// MinTurnDuration is the elapsed aggregated duration (lastEndTime -
	// startTime) at or above which the aggregator flushes immediately.
	MinTurnDuration time.Duration

	// MaxGap is the largest gap between a new turn's StartTime and the
	// aggregation's lastEndTime before the existing buffer is discarded and
	// a fresh aggregation starts.
	MaxGap time.Duration

	// MaxWords flushes once the cumulative word count reaches this value.
	// Zero disables the word-count flush trigger.
	MaxWords int

	// MaxTotalDuration flushes once the elapsed aggregated duration reaches
	// this value. Zero disables the trigger.
	MaxTotalDuration time.Duration

	// MaxDelay is the debounce duration: every non-flushing Add reschedules
	// a timer for this long; on fire, the buffered turn is emitted via
	// onTimeout.
	MaxDelay time.Duration
}

// Aggregator merges sub-threshold turns into one ready turn, emitted either
// synchronously from Add (a flush trigger fired) or asynchronously via the
// debounce timeout callback.
type Aggregator struct {
	mu sync.Mutex

	content     strings.Builder
	id          string
	startTime   time.Duration
	lastEndTime time.Duration
	wordCount   int
	active      bool

	timer     *time.Timer
	onTimeout func(types.Turn)

	cfg Config
}

// New creates an Aggregator with the given configuration. onTimeout is
// invoked (from the timer's own goroutine) whenever the debounce delay
// elapses without an intervening flush; it must not block.
func New(cfg Config, onTimeout func(types.Turn)) *Aggregator {
	return &Aggregator{cfg: cfg, onTimeout: onTimeout}
}

// Add admits turn into the aggregation. It returns the ready turn and true
// if a flush trigger fired immediately; otherwise it reschedules the
// debounce timer and returns (types.Turn{}, false).
func (a *Aggregator) Add(turn types.Turn) (types.Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active && turn.StartTime-a.lastEndTime > a.cfg.MaxGap {
		a.resetLocked()
	}

	if !a.active {
		a.active = true
		a.id = turn.ID
		a.startTime = turn.StartTime
		a.content.Reset()
		a.wordCount = 0
	}

	if a.content.Len() > 0 {
		a.content.WriteByte(' ')
	}
	a.content.WriteString(turn.Content)
	a.lastEndTime = turn.EndTime
	a.wordCount += countWords(turn.Content)

	if ready, ok := a.flushTriggerLocked(); ok {
		a.stopTimerLocked()
		a.active = false
		return ready, true
	}

	a.rescheduleLocked()
	return types.Turn{}, false
}

// flushTriggerLocked evaluates the three flush conditions in order and
// returns the aggregated turn if any fires. Must be called with a.mu held.
func (a *Aggregator) flushTriggerLocked() (types.Turn, bool) {
	elapsed := a.lastEndTime - a.startTime

	switch {
	case elapsed >= a.cfg.MinTurnDuration,
		a.cfg.MaxWords > 0 && a.wordCount >= a.cfg.MaxWords,
		a.cfg.MaxTotalDuration > 0 && elapsed >= a.cfg.MaxTotalDuration:
		return a.snapshotLocked(a.id), true
	default:
		return types.Turn{}, false
	}
}

// rescheduleLocked stops any pending timer and starts a fresh one for
// cfg.MaxDelay. Must be called with a.mu held.
func (a *Aggregator) rescheduleLocked() {
	a.stopTimerLocked()
	if a.cfg.MaxDelay <= 0 {
		return
	}
	a.timer = time.AfterFunc(a.cfg.MaxDelay, a.fireTimeout)
}

// stopTimerLocked stops the pending timer, if any. Must be called with a.mu held.
func (a *Aggregator) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// fireTimeout runs on the timer's own goroutine when the debounce delay
// elapses without a flush trigger firing.
func (a *Aggregator) fireTimeout() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	id := strconv.FormatFloat(a.startTime.Seconds(), 'f', -1, 64)
	ready := a.snapshotLocked(id)
	a.active = false
	a.timer = nil
	cb := a.onTimeout
	a.mu.Unlock()

	if cb != nil {
		cb(ready)
	}
}

// snapshotLocked builds the produced Turn from current state. Must be
// called with a.mu held.
func (a *Aggregator) snapshotLocked(id string) types.Turn {
	return types.Turn{
		ID:        id,
		Content:   a.content.String(),
		StartTime: a.startTime,
		EndTime:   a.lastEndTime,
	}
}

// resetLocked discards the current aggregation without emitting anything.
// Must be called with a.mu held.
func (a *Aggregator) resetLocked() {
	a.active = false
	a.content.Reset()
	a.wordCount = 0
}

// Clear stops any pending timer and discards the current aggregation.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopTimerLocked()
	a.resetLocked()
}

// countWords counts Unicode-aware word tokens in s: each token returned by
// the UAX #29 word segmenter that contains at least one letter or number
// rune counts as one word. CJK ideographs segment as their own tokens under
// UAX #29, so this satisfies the "CJK syllable as one word" rule without
// bespoke rune-class logic.
func countWords(s string) int {
	count := 0
	iter := words.FromString(s)
	for iter.Next() {
		if isWordToken(iter.Value()) {
			count++
		}
	}
	return count
}

// isWordToken reports whether tok contains at least one letter or digit
// rune, excluding pure punctuation/whitespace tokens from the word count.
func isWordToken(tok string) bool {
	for _, r := range tok {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return true
		}
		if r > 0x7f && (unicode.IsLetter(r) || unicode.IsNumber(r)) {
			return true
		}
	}
	return false
}
