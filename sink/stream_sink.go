package sink

import (
	"context"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	apperr "match-lab/errors"
	"sync"
)

// Message is what a stream writes to its client: the snapshot first, then events.
type Message struct {
	Snapshot *domain.Snapshot
	Event    event.DomainEvent
}

// StreamSink feeds one client connection. Events consumed before the
// snapshot is primed are held back, then everything at or below the
// snapshot sequence is dropped so the client sees each event once and in order.
// A client too slow to keep up is cut off and has to reconnect.
type StreamSink struct {
	mu      sync.Mutex
	log     *slog.Logger
	out     chan Message
	pending []event.DomainEvent
	primed  bool
	floor   uint64
	limit   int
	closed  bool
	err     error
}

var _ contract.EventSink = (*StreamSink)(nil)

// NewStreamSink buffers up to bufferSize events on top of the snapshot.
func NewStreamSink(log *slog.Logger, bufferSize int) *StreamSink {
	limit := max(bufferSize, 1)
	return &StreamSink{log: log, limit: limit, out: make(chan Message, limit+1)}
}

// Messages is closed once the sink is closed.
func (s *StreamSink) Messages() <-chan Message {
	return s.out
}

func (s *StreamSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperr.ErrSinkClosed
	}
	if !s.primed {
		if len(s.pending) >= s.limit {
			s.closeLocked(apperr.ErrSinkOverflow)
			return apperr.ErrSinkOverflow
		}
		s.pending = append(s.pending, e)
		return nil
	}
	return s.deliverLocked(e)
}

// Prime sends the snapshot and releases the held back events.
func (s *StreamSink) Prime(snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperr.ErrSinkClosed
	}
	// the channel is still empty here
	s.out <- Message{Snapshot: &snapshot}
	s.floor = snapshot.Sequence
	s.primed = true

	if snapshot.Room.Status.IsTerminal() {
		s.closeLocked(nil)
		return nil
	}
	pending := s.pending
	s.pending = nil
	for _, e := range pending {
		if err := s.deliverLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *StreamSink) deliverLocked(e event.DomainEvent) error {
	if e.Sequence() <= s.floor {
		s.log.Debug("Event already delivered", "room_id", e.RoomID(), "seq", e.Sequence())
		return nil
	}
	select {
	case s.out <- Message{Event: e}:
	default:
		s.closeLocked(apperr.ErrSinkOverflow)
		return apperr.ErrSinkOverflow
	}
	s.floor = e.Sequence()

	// nothing follows an abandonment
	if changed, ok := e.(event.RoomStatusChanged); ok && changed.Status.IsTerminal() {
		s.closeLocked(nil)
	}
	return nil
}

// Close stops the stream. Messages already queued stay readable.
func (s *StreamSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(nil)
}

// Err reports why the sink closed, nil for a normal end.
func (s *StreamSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StreamSink) closeLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.out)
}
