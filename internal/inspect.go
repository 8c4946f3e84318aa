package internal

import (
	"encoding/json"
	"fmt"
	"match-lab/domain"
	"match-lab/domain/event"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// RoomMapper renders store entries for the Badger debug inspector.
func RoomMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "room:"):
		var room domain.Room
		if err := json.Unmarshal(val, &room); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "ROOM"
		row.Detail = fmt.Sprintf("code=%s status=%s host=%s guest=%s", room.Code, room.Status, room.HostID, room.GuestID)
		row.Scores = fmt.Sprintf("rev:%d seq:%d matches:%d", room.Revision, room.EventSeq, room.MatchCount)
	case strings.HasPrefix(key, "match:"):
		var m domain.Match
		if err := json.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "MATCH"
		row.Detail = fmt.Sprintf("item=%s #%d", m.ItemID, m.Ordinal)
	case strings.HasPrefix(key, "pref:"):
		var p domain.Preference
		if err := json.Unmarshal(val, &p); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "PREF"
		row.Detail = fmt.Sprintf("%s on %s liked=%t", p.ParticipantID, p.ItemID, p.Liked)
	case strings.HasPrefix(key, "evt:"):
		var env event.Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Type = "EVENT"
		row.Detail = fmt.Sprintf("#%d %s", env.Seq, env.Kind)
		if env.Status != nil {
			row.Detail += " " + env.Status.String()
		}
		if env.ItemID != "" {
			row.Detail += " item=" + string(env.ItemID)
		}
	case strings.HasPrefix(key, "code:"):
		row.Type = "CODE"
		row.Detail = "room=" + string(val)
	}
	return row
}
