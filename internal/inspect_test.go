package internal

import (
	"encoding/json"
	"match-lab/domain"
	"match-lab/domain/event"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoomMapper(t *testing.T) {
	req := require.New(t)
	room := domain.NewRoom("room-1", "4821", "alice", []domain.ItemID{"1"}, time.Now().UTC())
	raw, err := json.Marshal(room)
	req.NoError(err)

	row := RoomMapper("room:room-1", raw)
	req.Equal("ROOM", row.Type)
	req.Contains(row.Detail, "code=4821")
	req.Contains(row.Detail, "status=waiting")

	status := domain.StatusPaused
	raw, err = json.Marshal(event.Envelope{Kind: event.RoomStatusChangedKind, Room: "room-1", Seq: 3, Status: &status})
	req.NoError(err)
	row = RoomMapper("evt:room-1\x0000000000000000000003", raw)
	req.Equal("EVENT", row.Type)
	req.Equal("#3 room_status_changed paused", row.Detail)

	row = RoomMapper("code:4821", []byte("room-1"))
	req.Equal("CODE", row.Type)
	req.Equal("room=room-1", row.Detail)

	row = RoomMapper("room:broken", []byte("{"))
	req.Equal("Error: unmarshal failed", row.Detail)
}
