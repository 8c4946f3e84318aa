package domain

import (
	"fmt"
	"match-lab/errors"
)

// Trigger is an input of the room state machine.
type Trigger uint8

const (
	TriggerGuestJoined Trigger = iota
	TriggerMatchDetected
	TriggerHostConfirmed
	TriggerGuestConfirmed
	TriggerLeft
	TriggerExpired
)

func (t Trigger) String() string {
	switch t {
	case TriggerGuestJoined:
		return "guest_joined"
	case TriggerMatchDetected:
		return "match_detected"
	case TriggerHostConfirmed:
		return "host_confirmed"
	case TriggerGuestConfirmed:
		return "guest_confirmed"
	case TriggerLeft:
		return "left"
	case TriggerExpired:
		return "expired"
	default:
		return fmt.Sprintf("trigger(%d)", uint8(t))
	}
}

type transitionKey struct {
	from    Status
	trigger Trigger
}

// transitions lists every edge that moves or explicitly keeps a status.
// Pairs missing from the table fall through to the rules in Transition.
var transitions = map[transitionKey]Status{
	{StatusWaiting, TriggerGuestJoined}:  StatusPlaying,
	{StatusPlaying, TriggerMatchDetected}: StatusPaused,

	{StatusPaused, TriggerHostConfirmed}:  StatusPausedHostReady,
	{StatusPaused, TriggerGuestConfirmed}: StatusPausedGuestReady,

	{StatusPausedHostReady, TriggerGuestConfirmed}: StatusPlaying,
	{StatusPausedGuestReady, TriggerHostConfirmed}: StatusPlaying,

	{StatusPausedHostReady, TriggerHostConfirmed}:   StatusPausedHostReady,
	{StatusPausedGuestReady, TriggerGuestConfirmed}: StatusPausedGuestReady,
}

// Transition returns the status reached from `from` when `trigger` fires.
// Abandoned is terminal. Confirmations outside a pause and repeated match
// detections keep the current status.
func Transition(from Status, trigger Trigger) (Status, error) {
	if from.IsTerminal() {
		return from, errors.ErrRoomEnded
	}
	if next, ok := transitions[transitionKey{from, trigger}]; ok {
		return next, nil
	}
	switch trigger {
	case TriggerLeft, TriggerExpired:
		return StatusAbandoned, nil
	case TriggerGuestJoined:
		return from, errors.ErrRoomAlreadyStarted
	case TriggerMatchDetected, TriggerHostConfirmed, TriggerGuestConfirmed:
		return from, nil
	default:
		return from, fmt.Errorf("unknown trigger %s", trigger)
	}
}

// ConfirmTrigger maps a participant to the confirmation it produces.
func (r Room) ConfirmTrigger(id ParticipantID) (Trigger, error) {
	switch {
	case r.IsHost(id):
		return TriggerHostConfirmed, nil
	case r.IsGuest(id):
		return TriggerGuestConfirmed, nil
	default:
		return 0, errors.ErrNotParticipant
	}
}
