// Package stream owns the caller-facing event channel: one Session per
// connection, plus a registry of live sessions.
package stream

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicsignal/legisearch/internal/model"
)

// defaultBuffer is the event channel capacity. A consumer that falls
// this far behind is treated as disconnected.
const defaultBuffer = 64

// Session owns one output channel. Events are delivered in the exact
// order Emit is called; end is always the last event and nothing is
// accepted after it.
type Session struct {
	id string

	mu        sync.Mutex
	ch        chan model.StreamEvent
	closed    bool
	ended     bool
	cancelled bool
	lastSent  time.Time
	activity  time.Time

	nowFunc func() time.Time
}

// NewSession creates an open session for the given connection id.
func NewSession(id string) *Session {
	return &Session{
		id:       id,
		ch:       make(chan model.StreamEvent, defaultBuffer),
		activity: time.Now(),
		nowFunc:  time.Now,
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string { return s.id }

// Events returns the receive side of the channel. The consumer ranges
// over it; the channel closes when the session closes.
func (s *Session) Events() <-chan model.StreamEvent {
	return s.ch
}

// Emit appends an event to the channel if the session is open. Emitting
// on a closed session is a logged no-op, never an error to the caller.
// A full buffer means the consumer is gone; the session closes and the
// event is dropped.
func (s *Session) Emit(ev model.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ended {
		zap.L().Warn("emit on closed stream dropped",
			zap.String("session", s.id),
			zap.String("event", string(ev.Type)),
		)
		return
	}

	// Emission timestamps are strictly monotonic within a session.
	now := s.nowFunc()
	if !now.After(s.lastSent) {
		now = s.lastSent.Add(time.Nanosecond)
	}
	s.lastSent = now
	s.activity = now
	ev.Timestamp = now

	select {
	case s.ch <- ev:
	default:
		zap.L().Warn("stream buffer full, closing session", zap.String("session", s.id))
		s.closeLocked()
		return
	}

	if ev.Type == model.EventEnd {
		s.ended = true
		s.closeLocked()
	}
}

// IsOpen reports whether the session still accepts events.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.ended
}

// Cancel requests a stop. The channel stays open: the producer observes
// the request at its next checkpoint, winds down, and its terminal end
// event still reaches the consumer. Close is for a consumer that is
// gone; Cancel is for one that asked to stop and is still listening.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

// Cancelled reports whether a stop has been requested.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Close closes the channel. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// LastActivity returns the time of the most recent emit.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activity
}

func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
