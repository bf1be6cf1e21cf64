// Package buffer provides a time-indexed, append-only text segment store
// with windowed views over the most recent content.
//
// A [TextBuffer] backs both the long-retention context buffer and the
// per-comment uncommented-text buffer that the system facade maintains for
// a single stream. It is not a general-purpose ring buffer: eviction is
// opportunistic (driven by Append, never by a background goroutine) and the
// buffer only ever grows or shrinks from the front.
package buffer

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/commentator/pkg/types"
)

// TextSegment is a single appended piece of text, keyed by media-relative
// timestamp and arrival order.
type TextSegment struct {
	// Content is the segment's text.
	Content string

	// Timestamp is the media-relative time this segment was appended at
	// (copied from the triggering turn's EndTime).
	Timestamp time.Duration

	// Position is a monotonically increasing arrival index, starting at 0.
	Position uint64
}

// Statistics summarises the current contents of a TextBuffer.
type Statistics struct {
	Count      int
	TotalChars int
	Oldest     time.Duration
	Newest     time.Duration
}

// TextBuffer is an append-only, mutex-guarded sequence of [TextSegment]
// values ordered by arrival.
//
// Opportunistic eviction on Append recopies the surviving slice so evicted
// entries don't pin memory. The mutex guards read-path callers (statistics,
// debug endpoints) that may run concurrently with the single owning
// processing task.
type TextBuffer struct {
	mu       sync.RWMutex
	segments []TextSegment
	position uint64

	retention time.Duration // 0 = unlimited
	window    time.Duration // default GetWindow size
}

// Option configures a TextBuffer at construction time.
type Option func(*TextBuffer)

// WithRetention sets the maximum age of a segment before it is eligible for
// eviction on the next Append. Zero means unlimited retention.
func WithRetention(d time.Duration) Option {
	return func(b *TextBuffer) { b.retention = d }
}

// WithDefaultWindow sets the window size used by GetWindow when called
// without an explicit size argument.
func WithDefaultWindow(d time.Duration) Option {
	return func(b *TextBuffer) { b.window = d }
}

// New creates an empty TextBuffer.
func New(opts ...Option) *TextBuffer {
	b := &TextBuffer{}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Append pushes turn's content onto the buffer, keyed by its EndTime, and
// opportunistically evicts segments older than the configured retention.
func (b *TextBuffer) Append(turn types.Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.segments = append(b.segments, TextSegment{
		Content:   turn.Content,
		Timestamp: turn.EndTime,
		Position:  b.position,
	})
	b.position++
	b.evict()
}

// evict drops segments older than b.retention relative to the newest
// segment's timestamp. Must be called with b.mu held for writing.
func (b *TextBuffer) evict() {
	if b.retention <= 0 || len(b.segments) == 0 {
		return
	}
	cutoff := b.segments[len(b.segments)-1].Timestamp - b.retention

	start := 0
	for start < len(b.segments) && b.segments[start].Timestamp < cutoff {
		start++
	}
	if start == 0 {
		return
	}

	fresh := make([]TextSegment, len(b.segments)-start)
	copy(fresh, b.segments[start:])
	b.segments = fresh
}

// GetWindow returns the space-joined content of every segment whose
// timestamp falls within size of the newest segment's timestamp. If size is
// omitted, the buffer's configured default window is used; a zero-valued
// size (explicit or default) returns every segment.
//
// size is a time.Duration throughout — there is no seconds/milliseconds
// distinction to get wrong here, unlike an implementation that threads a
// bare numeric size through multiple unit conventions.
func (b *TextBuffer) GetWindow(size ...time.Duration) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.segments) == 0 {
		return ""
	}

	w := b.window
	if len(size) > 0 {
		w = size[0]
	}
	if w <= 0 {
		return b.joinAll()
	}

	newest := b.segments[len(b.segments)-1].Timestamp
	cutoff := newest - w

	var sb strings.Builder
	first := true
	for _, seg := range b.segments {
		if seg.Timestamp < cutoff {
			continue
		}
		if !first {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Content)
		first = false
	}
	return sb.String()
}

func (b *TextBuffer) joinAll() string {
	var sb strings.Builder
	for i, seg := range b.segments {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Content)
	}
	return sb.String()
}

// GetRange returns the space-joined content of every segment whose
// timestamp lies within [start, end].
func (b *TextBuffer) GetRange(start, end time.Duration) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sb strings.Builder
	first := true
	for _, seg := range b.segments {
		if seg.Timestamp < start || seg.Timestamp > end {
			continue
		}
		if !first {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Content)
		first = false
	}
	return sb.String()
}

// GetLastN returns the n most recent segments in arrival order (oldest of
// the selected segments first). Returns fewer than n if the buffer holds
// fewer segments.
func (b *TextBuffer) GetLastN(n int) []TextSegment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || len(b.segments) == 0 {
		return nil
	}
	start := len(b.segments) - n
	if start < 0 {
		start = 0
	}
	out := make([]TextSegment, len(b.segments)-start)
	copy(out, b.segments[start:])
	return out
}

// Search returns the most recent segments whose content matches pattern,
// newest first, capped at limit. A non-positive limit defaults to 10.
func (b *TextBuffer) Search(pattern *regexp.Regexp, limit int) []TextSegment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	var out []TextSegment
	for i := len(b.segments) - 1; i >= 0 && len(out) < limit; i-- {
		if pattern.MatchString(b.segments[i].Content) {
			out = append(out, b.segments[i])
		}
	}
	return out
}

// Clear drops all segments and resets the position counter to zero.
func (b *TextBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = nil
	b.position = 0
}

// Statistics returns a snapshot of the buffer's current contents.
func (b *TextBuffer) Statistics() Statistics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.segments) == 0 {
		return Statistics{}
	}

	stats := Statistics{
		Count:  len(b.segments),
		Oldest: b.segments[0].Timestamp,
		Newest: b.segments[len(b.segments)-1].Timestamp,
	}
	for _, seg := range b.segments {
		stats.TotalChars += len(seg.Content)
	}
	return stats
}
