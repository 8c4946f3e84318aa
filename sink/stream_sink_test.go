package sink_test

import (
	"context"
	"io"
	"log/slog"
	"match-lab/domain"
	"match-lab/domain/event"
	apperr "match-lab/errors"
	"match-lab/sink"
	"testing"

	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func statusChanged(seq uint64, status domain.Status) event.RoomStatusChanged {
	return event.RoomStatusChanged{Room: "room-1", Seq: seq, Status: status}
}

func drain(s *sink.StreamSink) []sink.Message {
	var res []sink.Message
	for m := range s.Messages() {
		res = append(res, m)
	}
	return res
}

func sequences(msgs []sink.Message) []uint64 {
	var res []uint64
	for _, m := range msgs {
		if m.Event != nil {
			res = append(res, m.Event.Sequence())
		}
	}
	return res
}

func TestStreamSink_Snapshot_First_Then_Newer_Events(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewStreamSink(logger, 10)

	// Given events arrive before the snapshot is read
	req.NoError(s.Consume(ctx, statusChanged(2, domain.StatusPlaying)))
	req.NoError(s.Consume(ctx, event.MatchCreated{Room: "room-1", Seq: 3, ItemID: "9"}))

	// When the snapshot already covers seq 2
	room := domain.Room{ID: "room-1", Status: domain.StatusPlaying}
	req.NoError(s.Prime(domain.Snapshot{Room: room, Sequence: 2}))
	req.NoError(s.Consume(ctx, statusChanged(4, domain.StatusPaused)))
	// a redelivery is ignored
	req.NoError(s.Consume(ctx, statusChanged(4, domain.StatusPaused)))
	s.Close()

	// Then the snapshot comes first and every event after it exactly once
	msgs := drain(s)
	req.NotNil(msgs[0].Snapshot)
	req.Equal(uint64(2), msgs[0].Snapshot.Sequence)
	req.Equal([]uint64{3, 4}, sequences(msgs))
	req.NoError(s.Err())
}

func TestStreamSink_Closes_After_Abandonment(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewStreamSink(logger, 10)
	req.NoError(s.Prime(domain.Snapshot{Room: domain.Room{Status: domain.StatusPlaying}, Sequence: 1}))

	req.NoError(s.Consume(ctx, statusChanged(2, domain.StatusAbandoned)))

	req.ErrorIs(s.Consume(ctx, statusChanged(3, domain.StatusPlaying)), apperr.ErrSinkClosed)
	req.Equal([]uint64{2}, sequences(drain(s)))
	req.NoError(s.Err())
}

func TestStreamSink_Snapshot_Of_Ended_Room(t *testing.T) {
	req := require.New(t)
	s := sink.NewStreamSink(logger, 4)

	req.NoError(s.Prime(domain.Snapshot{Room: domain.Room{Status: domain.StatusAbandoned}, Sequence: 7}))

	msgs := drain(s)
	req.Len(msgs, 1)
	req.Equal(domain.StatusAbandoned, msgs[0].Snapshot.Room.Status)
}

func TestStreamSink_Slow_Client_Is_Cut_Off(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewStreamSink(logger, 2)
	req.NoError(s.Prime(domain.Snapshot{Room: domain.Room{Status: domain.StatusPlaying}}))

	// Given nobody reads: the snapshot and two events fill the buffer
	req.NoError(s.Consume(ctx, statusChanged(1, domain.StatusPaused)))
	req.NoError(s.Consume(ctx, statusChanged(2, domain.StatusPausedHostReady)))

	// When another event arrives
	err := s.Consume(ctx, statusChanged(3, domain.StatusPlaying))

	// Then the stream is closed with an overflow, queued messages are kept
	req.ErrorIs(err, apperr.ErrSinkOverflow)
	req.ErrorIs(s.Err(), apperr.ErrSinkOverflow)
	req.Len(drain(s), 3)
}

func TestStreamSink_Pending_Overflow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := sink.NewStreamSink(logger, 1)

	req.NoError(s.Consume(ctx, statusChanged(1, domain.StatusPlaying)))
	req.ErrorIs(s.Consume(ctx, statusChanged(2, domain.StatusPaused)), apperr.ErrSinkOverflow)
	req.ErrorIs(s.Prime(domain.Snapshot{}), apperr.ErrSinkClosed)
}
