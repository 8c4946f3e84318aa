package domain

import (
	"slices"
	"time"
)

// Match records mutual interest on an item. It is created once and never updated.
// Ordinal is the creation rank inside the room, starting at 1.
type Match struct {
	RoomID    RoomID    `json:"room_id"`
	ItemID    ItemID    `json:"item_id"`
	Ordinal   int       `json:"ordinal"`
	CreatedAt time.Time `json:"created_at"`
}

func SortMatches(matches []Match) {
	slices.SortFunc(matches, func(a, b Match) int {
		return a.Ordinal - b.Ordinal
	})
}

// Snapshot is what a reconnecting participant needs to rebuild its view.
// Sequence is the last event sequence folded into the snapshot.
type Snapshot struct {
	Room     Room    `json:"room"`
	Matches  []Match `json:"matches"`
	Sequence uint64  `json:"sequence"`
}
