package storage

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
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key layout, with parts after the prefix joined by a NUL byte (shown as |).
// Ids are printable, so a part never spills into the next one:
//
//	room:{room}                        -> Room
//	code:{code}                        -> room id (only while the room is not abandoned)
//	pref:{room}|{item}|{participant}   -> Preference
//	match:{room}|{item}                -> Match
//	evt:{room}|{seq%020d}              -> event.Envelope
const (
	sep = "\x00"


	roomPrefix  = "room:"
	codePrefix  = "code:"
	prefPrefix  = "pref:"
	matchPrefix = "match:"
	eventPrefix = "evt:"
)

type BadgerStore struct {
	db         *badger.DB
	log        *slog.Logger
	maxRetries int
}

var _ contract.Store = (*BadgerStore)(nil)

func NewBadgerStore(db *badger.DB, log *slog.Logger, maxRetries int) *BadgerStore {
	return &BadgerStore{db: db, log: log, maxRetries: maxRetries}
}

// Update runs fn in a read-write transaction. Badger detects read/write
// conflicts at commit time; the losing transaction is replayed from scratch
// up to maxRetries times.
func (s *BadgerStore) Update(ctx context.Context, fn func(tx contract.StoreTx) error) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(&badgerTx{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Write conflict, replaying transaction", "attempt", attempt+1)
	}
	return apperr.ErrConcurrentUpdate
}

func (s *BadgerStore) View(ctx context.Context, fn func(tx contract.StoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerTx struct {
	txn *badger.Txn
}

func roomKey(id domain.RoomID) []byte { return []byte(roomPrefix + string(id)) }

func codeKey(code string) []byte { return []byte(codePrefix + code) }

func prefKey(roomID domain.RoomID, itemID domain.ItemID, participantID domain.ParticipantID) []byte {
	return []byte(prefPrefix + string(roomID) + sep + string(itemID) + sep + string(participantID))
}

func prefItemPrefix(roomID domain.RoomID, itemID domain.ItemID) []byte {
	return []byte(prefPrefix + string(roomID) + sep + string(itemID) + sep)
}

func matchKey(roomID domain.RoomID, itemID domain.ItemID) []byte {
	return []byte(matchPrefix + string(roomID) + sep + string(itemID))
}

// RoomMatchPrefix covers every match of a room.
func RoomMatchPrefix(roomID domain.RoomID) []byte {
	return []byte(matchPrefix + string(roomID) + sep)
}

func eventKey(roomID domain.RoomID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d", eventPrefix, roomID, sep, seq))
}

func eventRoomPrefix(roomID domain.RoomID) []byte {
	return []byte(eventPrefix + string(roomID) + sep)
}

// getJSON decodes the value at key into dst. It reports false when the key is absent.
func (t *badgerTx) getJSON(key []byte, dst any) (bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
	return err == nil, err
}

func (t *badgerTx) setJSON(key []byte, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return t.txn.Set(key, data)
}

// scan decodes every value under prefix, in key order.
func scan[T any](txn *badger.Txn, prefix []byte, limit int, seek []byte) ([]T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	if seek == nil {
		seek = prefix
	}
	var res []T
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if limit > 0 && len(res) >= limit {
			break
		}
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.Item().Key(), err)
		}
		res = append(res, v)
	}
	return res, nil
}

func (t *badgerTx) GetRoom(id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	found, err := t.getJSON(roomKey(id), &room)
	if err != nil {
		return domain.Room{}, err
	}
	if !found {
		return domain.Room{}, apperr.ErrRoomNotFound
	}
	return room, nil
}

func (t *badgerTx) PutRoom(room domain.Room) error {
	return t.setJSON(roomKey(room.ID), room)
}

func (t *badgerTx) ListRooms() ([]domain.Room, error) {
	return scan[domain.Room](t.txn, []byte(roomPrefix), 0, nil)
}

func (t *badgerTx) RoomIDByCode(code string) (domain.RoomID, error) {
	item, err := t.txn.Get(codeKey(code))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", apperr.ErrRoomNotFound
	}
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return domain.RoomID(val), nil
}

func (t *badgerTx) ClaimCode(code string, id domain.RoomID) (bool, error) {
	_, err := t.txn.Get(codeKey(code))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}
	return true, t.txn.Set(codeKey(code), []byte(id))
}

func (t *badgerTx) ReleaseCode(code string) error {
	return t.txn.Delete(codeKey(code))
}

func (t *badgerTx) TakenCodes() (map[string]struct{}, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	prefix := []byte(codePrefix)
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	taken := make(map[string]struct{})
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		taken[strings.TrimPrefix(string(it.Item().Key()), codePrefix)] = struct{}{}
	}
	return taken, nil
}

func (t *badgerTx) GetPreference(roomID domain.RoomID, participantID domain.ParticipantID, itemID domain.ItemID) (domain.Preference, bool, error) {
	var p domain.Preference
	found, err := t.getJSON(prefKey(roomID, itemID, participantID), &p)
	return p, found, err
}

func (t *badgerTx) PutPreference(p domain.Preference) error {
	return t.setJSON(prefKey(p.RoomID, p.ItemID, p.ParticipantID), p)
}

// CountLikes sees the pending writes of the current transaction.
func (t *badgerTx) CountLikes(roomID domain.RoomID, itemID domain.ItemID) (int, error) {
	prefs, err := scan[domain.Preference](t.txn, prefItemPrefix(roomID, itemID), 0, nil)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range prefs {
		if p.Liked {
			count++
		}
	}
	return count, nil
}

func (t *badgerTx) InsertMatch(m domain.Match) (bool, error) {
	_, err := t.txn.Get(matchKey(m.RoomID, m.ItemID))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}
	return true, t.setJSON(matchKey(m.RoomID, m.ItemID), m)
}

func (t *badgerTx) ListMatches(roomID domain.RoomID) ([]domain.Match, error) {
	matches, err := scan[domain.Match](t.txn, RoomMatchPrefix(roomID), 0, nil)
	if err != nil {
		return nil, err
	}
	domain.SortMatches(matches)
	return matches, nil
}

func (t *badgerTx) AppendEvent(env event.Envelope) error {
	return t.setJSON(eventKey(env.Room, env.Seq), env)
}

func (t *badgerTx) EventsAfter(roomID domain.RoomID, seq uint64, limit int) ([]event.Envelope, error) {
	return scan[event.Envelope](t.txn, eventRoomPrefix(roomID), limit, eventKey(roomID, seq+1))
}
