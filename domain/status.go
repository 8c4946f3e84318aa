package domain

import (
	"fmt"
)

// Status is the closed set of lifecycle states of a room.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusPaused
	StatusPausedHostReady
	StatusPausedGuestReady
	StatusAbandoned
)

var statusNames = map[Status]string{
	StatusWaiting:          "waiting",
	StatusPlaying:          "playing",
	StatusPaused:           "paused",
	StatusPausedHostReady:  "paused_host_ready",
	StatusPausedGuestReady: "paused_guest_ready",
	StatusAbandoned:        "abandoned",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

func ParseStatus(str string) (Status, error) {
	for status, name := range statusNames {
		if name == str {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown room status %q", str)
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown room status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) IsTerminal() bool { return s == StatusAbandoned }

// IsPaused covers the three sub-states of the resume handshake.
func (s Status) IsPaused() bool {
	return s == StatusPaused || s == StatusPausedHostReady || s == StatusPausedGuestReady
}
