package domain

import (
	"fmt"
	"time"
)

type ItemID string

// Preference is one participant's verdict on one item of a room.
// The triple (RoomID, ParticipantID, ItemID) is unique in the ledger.
type Preference struct {
	RoomID        RoomID        `json:"room_id"`
	ParticipantID ParticipantID `json:"participant_id"`
	ItemID        ItemID        `json:"item_id"`
	Liked         bool          `json:"liked"`
	At            time.Time     `json:"at"`
}

// LedgerPolicy decides what a second, different verdict on the same key does.
type LedgerPolicy string

const (
	// LedgerOverwrite keeps the latest verdict.
	LedgerOverwrite LedgerPolicy = "overwrite"
	// LedgerFirstWins ignores every verdict after the first one.
	LedgerFirstWins LedgerPolicy = "first_wins"
)

func ParseLedgerPolicy(str string) (LedgerPolicy, error) {
	switch LedgerPolicy(str) {
	case LedgerOverwrite, "":
		return LedgerOverwrite, nil
	case LedgerFirstWins:
		return LedgerFirstWins, nil
	default:
		return "", fmt.Errorf("unknown ledger policy %q", str)
	}
}

// Accepts reports whether incoming must be written given the existing record.
// An identical verdict is never rewritten, whatever the policy.
func (p LedgerPolicy) Accepts(existing Preference, found bool, liked bool) bool {
	if !found {
		return true
	}
	if existing.Liked == liked {
		return false
	}
	return p != LedgerFirstWins
}
