package app

import (
	"time"

	"github.com/MrWong99/commentator/pkg/types"
)

// EventName identifies one of the facade's observable event kinds.
type EventName string

// Recognised EventName values.
const (
	EventCommentStarted   EventName = "comment-started"
	EventCommentGenerated EventName = "comment-generated"
	EventCommentRejected  EventName = "comment-rejected"
	EventsDetected        EventName = "events-detected"
	EventDecisionMade     EventName = "decision-made"
	EventError            EventName = "error"
)

// Event is the payload delivered to listeners. Only the fields relevant to
// Name are populated; it is a tagged union rather than N separate listener
// signatures, so adding a new event kind never touches the listener
// interface.
type Event struct {
	Name EventName
	Turn types.Turn

	// Set on events-detected.
	Events []types.Event

	// Set on decision-made.
	Decision types.Decision

	// Set on comment-generated.
	Comment *types.Comment

	// Set on comment-rejected.
	Reason string

	// Set on events-detected/decision-made.
	ProcessingTime time.Duration

	// Set on error. For a failed detection job, Turn holds that job's turn;
	// errors not tied to a specific job leave Turn zero-valued.
	Err error
}

// On registers listener for events named name. Each listener runs in its own
// goroutine with a deferred recover, so one listener's panic never blocks or
// affects the others or the facade itself. The returned function removes
// the listener; calling it more than once is a no-op.
func (s *System) On(name EventName, listener func(Event)) (unsubscribe func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()

	if s.listeners == nil {
		s.listeners = make(map[EventName]map[int]func(Event))
	}
	if s.listeners[name] == nil {
		s.listeners[name] = make(map[int]func(Event))
	}
	s.listenerSeq++
	id := s.listenerSeq
	s.listeners[name][id] = listener

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners[name], id)
	}
}

// emit fans ev out to every listener registered for ev.Name, isolating each
// invocation in its own goroutine.
func (s *System) emit(ev Event) {
	s.lmu.RLock()
	fns := make([]func(Event), 0, len(s.listeners[ev.Name]))
	for _, fn := range s.listeners[ev.Name] {
		fns = append(fns, fn)
	}
	s.lmu.RUnlock()

	for _, fn := range fns {
		go func(fn func(Event)) {
			defer func() { _ = recover() }()
			fn(ev)
		}(fn)
	}
}
