package event

import (
	"fmt"
	"match-lab/domain"
	"time"
)

type Kind string

const (
	RoomStatusChangedKind Kind = "room_status_changed"
	MatchCreatedKind      Kind = "match_created"
)

// DomainEvent is an immutable fact about a room.
// Sequence is contiguous per room and gives the delivery order.
type DomainEvent interface {
	RoomID() domain.RoomID
	Sequence() uint64
	Kind() Kind
}

type RoomStatusChanged struct {
	Room   domain.RoomID
	Seq    uint64
	Status domain.Status
	At     time.Time
}

func (e RoomStatusChanged) RoomID() domain.RoomID { return e.Room }
func (e RoomStatusChanged) Sequence() uint64      { return e.Seq }
func (e RoomStatusChanged) Kind() Kind            { return RoomStatusChangedKind }

type MatchCreated struct {
	Room      domain.RoomID
	Seq       uint64
	ItemID    domain.ItemID
	CreatedAt time.Time
}

func (e MatchCreated) RoomID() domain.RoomID { return e.Room }
func (e MatchCreated) Sequence() uint64      { return e.Seq }
func (e MatchCreated) Kind() Kind            { return MatchCreatedKind }

// Envelope is the flat representation used by the outbox and the pub/sub bridge.
type Envelope struct {
	Kind   Kind           `json:"kind"`
	Room   domain.RoomID  `json:"room_id"`
	Seq    uint64         `json:"seq"`
	Status *domain.Status `json:"status,omitempty"`
	ItemID domain.ItemID  `json:"item_id,omitempty"`
	At     time.Time      `json:"at"`
}

func Wrap(e DomainEvent) Envelope {
	env := Envelope{Kind: e.Kind(), Room: e.RoomID(), Seq: e.Sequence()}
	switch evt := e.(type) {
	case RoomStatusChanged:
		status := evt.Status
		env.Status = &status
		env.At = evt.At
	case MatchCreated:
		env.ItemID = evt.ItemID
		env.At = evt.CreatedAt
	}
	return env
}

func (e Envelope) Unwrap() (DomainEvent, error) {
	switch e.Kind {
	case RoomStatusChangedKind:
		if e.Status == nil {
			return nil, fmt.Errorf("event %s/%d has no status", e.Room, e.Seq)
		}
		return RoomStatusChanged{Room: e.Room, Seq: e.Seq, Status: *e.Status, At: e.At}, nil
	case MatchCreatedKind:
		return MatchCreated{Room: e.Room, Seq: e.Seq, ItemID: e.ItemID, CreatedAt: e.At}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
