//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"match-lab/domain"
	"match-lab/domain/event"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// It is used for logging during supervision, so workers don't need to name themselves.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry maps a room to the sinks of its live connections.
type IRegistry interface {
	GetSinksForRoom(roomID domain.RoomID) []EventSink
	Rooms() []domain.RoomID
	Subscribe(connectionID string, roomID domain.RoomID, sink EventSink)
	Unsubscribe(connectionID string, roomID domain.RoomID)
}

// INotifier is told that a room has new committed events in its outbox.
type INotifier interface {
	Notify(roomID domain.RoomID)
}

// Store runs unit-of-work transactions. Update retries fn on write conflicts,
// so fn must only have effects through the transaction it receives.
type Store interface {
	Update(ctx context.Context, fn func(tx StoreTx) error) error
	View(ctx context.Context, fn func(tx StoreTx) error) error
	Close() error
}

type StoreTx interface {
	GetRoom(id domain.RoomID) (domain.Room, error)
	PutRoom(room domain.Room) error
	ListRooms() ([]domain.Room, error)

	RoomIDByCode(code string) (domain.RoomID, error)
	// ClaimCode binds code to a room. It reports false when the code is already bound.
	ClaimCode(code string, id domain.RoomID) (bool, error)
	ReleaseCode(code string) error
	TakenCodes() (map[string]struct{}, error)

	GetPreference(roomID domain.RoomID, participantID domain.ParticipantID, itemID domain.ItemID) (domain.Preference, bool, error)
	PutPreference(p domain.Preference) error
	CountLikes(roomID domain.RoomID, itemID domain.ItemID) (int, error)

	// InsertMatch reports false when a match already exists for (room, item).
	InsertMatch(m domain.Match) (bool, error)
	ListMatches(roomID domain.RoomID) ([]domain.Match, error)

	AppendEvent(env event.Envelope) error
	EventsAfter(roomID domain.RoomID, seq uint64, limit int) ([]event.Envelope, error)
}

// ICatalog is the candidate items provider. It never fails: a broken upstream
// yields an empty or partial result.
type ICatalog interface {
	FetchCandidateItems(ctx context.Context) []domain.Item
	FetchItemsByIDs(ctx context.Context, ids []domain.ItemID) []domain.Item
	// FetchTrailer returns nil when the item has no trailer or the upstream fails.
	FetchTrailer(ctx context.Context, id domain.ItemID) *domain.Trailer
}

type IRoomExpirer interface {
	ExpireIdleRooms(ctx context.Context, cutoff time.Time) (int, error)
}
