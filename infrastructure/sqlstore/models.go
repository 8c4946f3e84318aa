package sqlstore

import (
	"encoding/json"
	"match-lab/domain"
	"match-lab/domain/event"
	"time"
)

type roomRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	Code       string `gorm:"size:4;index"`
	HostID     string `gorm:"size:64"`
	GuestID    string `gorm:"size:64"`
	ItemIDs    string `gorm:"type:text"`
	Status     string `gorm:"size:32;index"`
	Capacity   int
	Revision   uint64
	EventSeq   uint64
	MatchCount int
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false;index"`
}

func (roomRecord) TableName() string { return "rooms" }

// codeRecord is the uniqueness index on codes of non-terminal rooms.
type codeRecord struct {
	Code   string `gorm:"primaryKey;size:4"`
	RoomID string `gorm:"size:64"`
}

func (codeRecord) TableName() string { return "room_codes" }

type preferenceRecord struct {
	RoomID        string `gorm:"primaryKey;size:64"`
	ItemID        string `gorm:"primaryKey;size:64"`
	ParticipantID string `gorm:"primaryKey;size:64"`
	Liked         bool
	At            time.Time
}

func (preferenceRecord) TableName() string { return "preferences" }

type matchRecord struct {
	RoomID    string `gorm:"primaryKey;size:64"`
	ItemID    string `gorm:"primaryKey;size:64"`
	Ordinal   int
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (matchRecord) TableName() string { return "matches" }

// eventRecord is the per-room outbox.
type eventRecord struct {
	RoomID  string `gorm:"primaryKey;size:64"`
	Seq     uint64 `gorm:"primaryKey;autoIncrement:false"`
	Payload []byte
}

func (eventRecord) TableName() string { return "room_events" }

func toRoomRecord(room domain.Room) (roomRecord, error) {
	items, err := json.Marshal(room.ItemIDs)
	if err != nil {
		return roomRecord{}, err
	}
	return roomRecord{
		ID:         string(room.ID),
		Code:       room.Code,
		HostID:     string(room.HostID),
		GuestID:    string(room.GuestID),
		ItemIDs:    string(items),
		Status:     room.Status.String(),
		Capacity:   room.Capacity,
		Revision:   room.Revision,
		EventSeq:   room.EventSeq,
		MatchCount: room.MatchCount,
		CreatedAt:  room.CreatedAt,
		UpdatedAt:  room.UpdatedAt,
	}, nil
}

func (r roomRecord) toDomain() (domain.Room, error) {
	var items []domain.ItemID
	if err := json.Unmarshal([]byte(r.ItemIDs), &items); err != nil {
		return domain.Room{}, err
	}
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.Room{}, err
	}
	return domain.Room{
		ID:         domain.RoomID(r.ID),
		Code:       r.Code,
		HostID:     domain.ParticipantID(r.HostID),
		GuestID:    domain.ParticipantID(r.GuestID),
		ItemIDs:    items,
		Status:     status,
		Capacity:   r.Capacity,
		Revision:   r.Revision,
		EventSeq:   r.EventSeq,
		MatchCount: r.MatchCount,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func (p preferenceRecord) toDomain() domain.Preference {
	return domain.Preference{
		RoomID:        domain.RoomID(p.RoomID),
		ParticipantID: domain.ParticipantID(p.ParticipantID),
		ItemID:        domain.ItemID(p.ItemID),
		Liked:         p.Liked,
		At:            p.At,
	}
}

func (m matchRecord) toDomain() domain.Match {
	return domain.Match{
		RoomID:    domain.RoomID(m.RoomID),
		ItemID:    domain.ItemID(m.ItemID),
		Ordinal:   m.Ordinal,
		CreatedAt: m.CreatedAt,
	}
}

func (e eventRecord) toEnvelope() (event.Envelope, error) {
	var env event.Envelope
	err := json.Unmarshal(e.Payload, &env)
	return env, err
}
