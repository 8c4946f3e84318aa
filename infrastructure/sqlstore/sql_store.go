// Package sqlstore persists rooms in a relational database through GORM.
// Postgres is the production target, SQLite backs the tests.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	apperr "match-lab/errors"

	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// errRevisionConflict is raised when a room row was rewritten since it was read.
var errRevisionConflict = fmt.Errorf("room revision conflict")

type SQLStore struct {
	db         *gorm.DB
	log        *slog.Logger
	maxRetries int
}

var _ contract.Store = (*SQLStore)(nil)

// Open connects to the database behind driver ("postgres" or "sqlite").
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnsupportedDriver, driver)
	}
}

func NewSQLStore(db *gorm.DB, log *slog.Logger, maxRetries int) (*SQLStore, error) {
	if err := db.AutoMigrate(&roomRecord{}, &codeRecord{}, &preferenceRecord{}, &matchRecord{}, &eventRecord{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return &SQLStore{db: db, log: log, maxRetries: maxRetries}, nil
}

// Update runs fn in a database transaction. Room rows are written with a
// revision check; a stale revision rolls the transaction back and fn is replayed.
func (s *SQLStore) Update(ctx context.Context, fn func(tx contract.StoreTx) error) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(newSQLTx(gtx))
		})
		if !errors.Is(err, errRevisionConflict) {
			return err
		}
		s.log.Debug("Stale room revision, replaying transaction", "attempt", attempt+1)
	}
	return apperr.ErrConcurrentUpdate
}

func (s *SQLStore) View(ctx context.Context, fn func(tx contract.StoreTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(newSQLTx(gtx))
	})
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlTx struct {
	db *gorm.DB
	// revisions read in this transaction, used as the compare-and-set guard
	revisions map[domain.RoomID]uint64
}

func newSQLTx(db *gorm.DB) *sqlTx {
	return &sqlTx{db: db, revisions: make(map[domain.RoomID]uint64)}
}

func (t *sqlTx) GetRoom(id domain.RoomID) (domain.Room, error) {
	var rec roomRecord
	err := t.db.Take(&rec, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Room{}, apperr.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	room, err := rec.toDomain()
	if err != nil {
		return domain.Room{}, err
	}
	if _, ok := t.revisions[id]; !ok {
		t.revisions[id] = room.Revision
	}
	return room, nil
}

func (t *sqlTx) PutRoom(room domain.Room) error {
	rec, err := toRoomRecord(room)
	if err != nil {
		return err
	}
	expected, loaded := t.revisions[room.ID]
	if !loaded {
		if err := t.db.Create(&rec).Error; err != nil {
			return err
		}
		t.revisions[room.ID] = room.Revision
		return nil
	}
	res := t.db.Model(&roomRecord{}).
		Where("id = ? AND revision = ?", rec.ID, expected).
		Updates(map[string]any{
			"code":        rec.Code,
			"host_id":     rec.HostID,
			"guest_id":    rec.GuestID,
			"item_ids":    rec.ItemIDs,
			"status":      rec.Status,
			"capacity":    rec.Capacity,
			"revision":    rec.Revision,
			"event_seq":   rec.EventSeq,
			"match_count": rec.MatchCount,
			"updated_at":  rec.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errRevisionConflict
	}
	t.revisions[room.ID] = room.Revision
	return nil
}

func (t *sqlTx) ListRooms() ([]domain.Room, error) {
	var recs []roomRecord
	if err := t.db.Order("created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	rooms := make([]domain.Room, 0, len(recs))
	for _, rec := range recs {
		room, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (t *sqlTx) RoomIDByCode(code string) (domain.RoomID, error) {
	var rec codeRecord
	err := t.db.Take(&rec, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.ErrRoomNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.RoomID(rec.RoomID), nil
}

func (t *sqlTx) ClaimCode(code string, id domain.RoomID) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&codeRecord{Code: code, RoomID: string(id)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *sqlTx) ReleaseCode(code string) error {
	return t.db.Delete(&codeRecord{}, "code = ?", code).Error
}

func (t *sqlTx) TakenCodes() (map[string]struct{}, error) {
	var codes []string
	if err := t.db.Model(&codeRecord{}).Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return lo.SliceToMap(codes, func(code string) (string, struct{}) {
		return code, struct{}{}
	}), nil
}

func (t *sqlTx) GetPreference(roomID domain.RoomID, participantID domain.ParticipantID, itemID domain.ItemID) (domain.Preference, bool, error) {
	var rec preferenceRecord
	err := t.db.Take(&rec, "room_id = ? AND item_id = ? AND participant_id = ?",
		string(roomID), string(itemID), string(participantID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Preference{}, false, nil
	}
	if err != nil {
		return domain.Preference{}, false, err
	}
	return rec.toDomain(), true, nil
}

func (t *sqlTx) PutPreference(p domain.Preference) error {
	rec := preferenceRecord{
		RoomID:        string(p.RoomID),
		ItemID:        string(p.ItemID),
		ParticipantID: string(p.ParticipantID),
		Liked:         p.Liked,
		At:            p.At,
	}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "item_id"}, {Name: "participant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"liked", "at"}),
	}).Create(&rec).Error
}

func (t *sqlTx) CountLikes(roomID domain.RoomID, itemID domain.ItemID) (int, error) {
	var count int64
	err := t.db.Model(&preferenceRecord{}).
		Where("room_id = ? AND item_id = ? AND liked = ?", string(roomID), string(itemID), true).
		Count(&count).Error
	return int(count), err
}

func (t *sqlTx) InsertMatch(m domain.Match) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&matchRecord{
		RoomID:    string(m.RoomID),
		ItemID:    string(m.ItemID),
		Ordinal:   m.Ordinal,
		CreatedAt: m.CreatedAt,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *sqlTx) ListMatches(roomID domain.RoomID) ([]domain.Match, error) {
	var recs []matchRecord
	if err := t.db.Where("room_id = ?", string(roomID)).Order("ordinal").Find(&recs).Error; err != nil {
		return nil, err
	}
	return lo.Map(recs, func(rec matchRecord, _ int) domain.Match { return rec.toDomain() }), nil
}

func (t *sqlTx) AppendEvent(env event.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = t.db.Create(&eventRecord{RoomID: string(env.Room), Seq: env.Seq, Payload: payload}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// another writer took this slot of the room's outbox first
		return fmt.Errorf("%w: event %d of room %s", errRevisionConflict, env.Seq, env.Room)
	}
	return err
}

func (t *sqlTx) EventsAfter(roomID domain.RoomID, seq uint64, limit int) ([]event.Envelope, error) {
	var recs []eventRecord
	q := t.db.Where("room_id = ? AND seq > ?", string(roomID), seq).Order("seq")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	envs := make([]event.Envelope, 0, len(recs))
	for _, rec := range recs {
		env, err := rec.toEnvelope()
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}
