package workers

import (
	"context"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	"match-lab/observability"
	"sync"
	"time"
)

const defaultBatchSize = 128

// EventFanout delivers committed room events from the outbox to sinks.
//
// It wakes up on a room notification, reads every event past the room's
// cursor in sequence order and hands each one to the permanent sinks and
// to the connections watching the room. Each sink sees a room's events in
// order; an event may be seen twice after a restart, never skipped.
//
// EventFanout owns its cursors and must run as a single goroutine.
type EventFanout struct {
	log            *slog.Logger
	store          contract.Store
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	notifications  <-chan domain.RoomID
	sinkTimeout    time.Duration
	batchSize      int
	cursors        map[domain.RoomID]uint64
}

func NewEventFanout(log *slog.Logger, store contract.Store, registry contract.IRegistry,
	permanentSinks []contract.EventSink, notifications <-chan domain.RoomID, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		store:          store,
		registry:       registry,
		permanentSinks: permanentSinks,
		notifications:  notifications,
		sinkTimeout:    sinkTimeout,
		batchSize:      defaultBatchSize,
		cursors:        make(map[domain.RoomID]uint64),
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case roomID := <-w.notifications:
			if err := w.Drain(ctx, roomID); err != nil {
				// the next notification or sweep retries from the same cursor
				w.log.Warn("Outbox read failed", "room_id", roomID, "error", err)
			}
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Drain delivers every pending event of the room.
func (w *EventFanout) Drain(ctx context.Context, roomID domain.RoomID) error {
	for {
		var envs []event.Envelope
		err := w.store.View(ctx, func(tx contract.StoreTx) error {
			var err error
			envs, err = tx.EventsAfter(roomID, w.cursors[roomID], w.batchSize)
			return err
		})
		if err != nil {
			return err
		}

		ended := false
		for _, env := range envs {
			evt, err := env.Unwrap()
			if err != nil {
				w.log.Error("Skipping unreadable event", "room_id", roomID, "seq", env.Seq, "error", err)
			} else {
				w.Fanout(ctx, evt)
				if changed, ok := evt.(event.RoomStatusChanged); ok && changed.Status.IsTerminal() {
					ended = true
				}
			}
			w.cursors[roomID] = env.Seq
		}

		if ended {
			// nothing is ever appended after an abandonment
			delete(w.cursors, roomID)
			return nil
		}
		if len(envs) < w.batchSize {
			return nil
		}
	}
}

// Fanout hands one event to every sink, each one bounded by the sink timeout.
// Sinks run concurrently but the call returns only once all of them are done,
// which keeps the per-sink order.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	roomSinks := w.registry.GetSinksForRoom(evt.RoomID())

	var wg sync.WaitGroup
	deliver := func(kind string, sink contract.EventSink) {
		defer wg.Done()
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		defer cancel()
		if err := sink.Consume(sinkCtx, evt); err != nil {
			observability.EventsDelivered.WithLabelValues(kind, "failed").Inc()
			w.log.Debug("Sink refused event", "room_id", evt.RoomID(), "seq", evt.Sequence(), "error", err)
			return
		}
		observability.EventsDelivered.WithLabelValues(kind, "ok").Inc()
	}

	for _, sink := range w.permanentSinks {
		wg.Add(1)
		go deliver("permanent", sink)
	}
	for _, sink := range roomSinks {
		wg.Add(1)
		go deliver("stream", sink)
	}
	wg.Wait()
}
