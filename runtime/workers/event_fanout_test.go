package workers

import (
	"context"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	"match-lab/mocks"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) sequences() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]uint64, 0, len(s.events))
	for _, e := range s.events {
		res = append(res, e.Sequence())
	}
	return res
}

func statusEnvelope(seq uint64, status domain.Status) event.Envelope {
	return event.Wrap(event.RoomStatusChanged{Room: "room-1", Seq: seq, Status: status})
}

// viewWith makes the mocked store run every View callback against tx.
func viewWith(store *mocks.MockStore, tx contract.StoreTx) {
	store.EXPECT().View(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(contract.StoreTx) error) error {
			return fn(tx)
		}).AnyTimes()
}

func TestEventFanout_Drain_Delivers_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockStoreTx(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	viewWith(store, tx)

	permanent, stream := &recordingSink{}, &recordingSink{}
	fanout := NewEventFanout(log, store, registry, []contract.EventSink{permanent}, nil, time.Second)

	// Given two committed events and one watching connection
	gomock.InOrder(
		tx.EXPECT().EventsAfter(domain.RoomID("room-1"), uint64(0), defaultBatchSize).
			Return([]event.Envelope{
				statusEnvelope(1, domain.StatusWaiting),
				event.Wrap(event.MatchCreated{Room: "room-1", Seq: 2, ItemID: "5"}),
			}, nil),
		// a second notification only reads past the cursor
		tx.EXPECT().EventsAfter(domain.RoomID("room-1"), uint64(2), defaultBatchSize).
			Return([]event.Envelope{statusEnvelope(3, domain.StatusPaused)}, nil),
	)
	registry.EXPECT().GetSinksForRoom(domain.RoomID("room-1")).
		Return([]contract.EventSink{stream}).Times(3)

	// When the room is drained twice
	req.NoError(fanout.Drain(context.Background(), "room-1"))
	req.NoError(fanout.Drain(context.Background(), "room-1"))

	// Then every sink saw every event once and in order
	req.Equal([]uint64{1, 2, 3}, permanent.sequences())
	req.Equal([]uint64{1, 2, 3}, stream.sequences())
	req.Equal(uint64(3), fanout.cursors["room-1"])
}

func TestEventFanout_Drain_Pages_Through_Outbox(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockStoreTx(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	viewWith(store, tx)

	stream := &recordingSink{}
	fanout := NewEventFanout(slog.Default(), store, registry, nil, nil, time.Second)
	fanout.batchSize = 2

	gomock.InOrder(
		tx.EXPECT().EventsAfter(domain.RoomID("room-1"), uint64(0), 2).
			Return([]event.Envelope{statusEnvelope(1, domain.StatusWaiting), statusEnvelope(2, domain.StatusPlaying)}, nil),
		tx.EXPECT().EventsAfter(domain.RoomID("room-1"), uint64(2), 2).
			Return([]event.Envelope{statusEnvelope(3, domain.StatusAbandoned)}, nil),
	)
	registry.EXPECT().GetSinksForRoom(gomock.Any()).Return([]contract.EventSink{stream}).AnyTimes()

	req.NoError(fanout.Drain(context.Background(), "room-1"))

	req.Equal([]uint64{1, 2, 3}, stream.sequences())
	// the room ended, its cursor is released
	req.NotContains(fanout.cursors, domain.RoomID("room-1"))
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	fastSink := &recordingSink{}

	sinkTimeout := 20 * time.Millisecond
	fanout := NewEventFanout(slog.Default(), nil, registry, []contract.EventSink{fastSink}, nil, sinkTimeout)

	// Given a connection that never consumes
	registry.EXPECT().GetSinksForRoom(gomock.Any()).Return([]contract.EventSink{slowSink}).Times(1)
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			<-ctx.Done() // Waiting for timeout to trigger cancellation
			return ctx.Err()
		}).Times(1)

	// When an event is fanned out
	start := time.Now()
	fanout.Fanout(context.Background(), event.RoomStatusChanged{Room: "room-1", Seq: 1})

	// Then the slow sink is abandoned after the timeout and the others still got the event
	req.Less(time.Since(start), time.Second)
	req.Equal([]uint64{1}, fastSink.sequences())
}

func TestEventFanout_Run_Drains_Notified_Rooms(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockStoreTx(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	viewWith(store, tx)

	done := make(chan struct{})
	sink := mocks.NewMockEventSink(ctrl)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			close(done)
			return nil
		}).Times(1)
	tx.EXPECT().EventsAfter(domain.RoomID("room-7"), uint64(0), defaultBatchSize).
		Return([]event.Envelope{event.Wrap(event.RoomStatusChanged{Room: "room-7", Seq: 1})}, nil)
	registry.EXPECT().GetSinksForRoom(domain.RoomID("room-7")).Return(nil)

	notifications := make(chan domain.RoomID, 1)
	fanout := NewEventFanout(slog.Default(), store, registry, []contract.EventSink{sink}, notifications, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	notifications <- "room-7"

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Notified room was not drained")
	}
}
