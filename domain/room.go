package domain

import (
	"slices"
	"time"
)

type RoomID string

// DefaultCapacity is the number of participants a room pairs: one host and one guest.
const DefaultCapacity = 2

// Room is the unit of mutual exclusion: every mutation rewrites the whole
// record and bumps Revision, so two writers racing on the same room conflict.
type Room struct {
	ID         RoomID        `json:"id"`
	Code       string        `json:"code"`
	HostID     ParticipantID `json:"host_id"`
	GuestID    ParticipantID `json:"guest_id,omitempty"`
	ItemIDs    []ItemID      `json:"item_ids"`
	Status     Status        `json:"status"`
	Capacity   int           `json:"capacity"`
	Revision   uint64        `json:"revision"`
	EventSeq   uint64        `json:"event_seq"`
	MatchCount int           `json:"match_count"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func NewRoom(id RoomID, code string, hostID ParticipantID, itemIDs []ItemID, at time.Time) Room {
	return Room{
		ID:        id,
		Code:      code,
		HostID:    hostID,
		ItemIDs:   slices.Clone(itemIDs),
		Status:    StatusWaiting,
		Capacity:  DefaultCapacity,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func (r Room) IsHost(id ParticipantID) bool { return id != "" && r.HostID == id }

func (r Room) IsGuest(id ParticipantID) bool { return id != "" && r.GuestID == id }

func (r Room) HasParticipant(id ParticipantID) bool { return r.IsHost(id) || r.IsGuest(id) }

func (r Room) HasGuest() bool { return r.GuestID != "" }

func (r Room) HasItem(id ItemID) bool { return slices.Contains(r.ItemIDs, id) }

// Participants returns the host followed by the guest when one has joined.
func (r Room) Participants() []ParticipantID {
	res := []ParticipantID{r.HostID}
	if r.HasGuest() {
		res = append(res, r.GuestID)
	}
	return res
}

// Apply runs trigger through the transition table and stores the resulting status.
// It reports whether the status actually changed.
func (r *Room) Apply(trigger Trigger) (bool, error) {
	next, err := Transition(r.Status, trigger)
	if err != nil {
		return false, err
	}
	changed := next != r.Status
	r.Status = next
	return changed, nil
}

// Touch records a committed mutation.
func (r *Room) Touch(at time.Time) {
	r.Revision++
	r.UpdatedAt = at
}

// NextSequence reserves the next per-room event sequence number.
func (r *Room) NextSequence() uint64 {
	r.EventSeq++
	return r.EventSeq
}
