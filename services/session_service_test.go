package services

import (
	"context"
	"errors"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	apperr "match-lab/errors"
	"match-lab/infrastructure/sqlstore"
	"match-lab/infrastructure/storage"
	"match-lab/mocks"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var items = []domain.ItemID{"1", "2", "3", "4"}

type fixture struct {
	svc      *SessionService
	store    contract.Store
	catalog  *mocks.MockICatalog
	notifier *mocks.MockINotifier
}

func newFixture(t *testing.T, policy domain.LedgerPolicy) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newFixtureOn(t, storage.NewBadgerStore(db, slog.Default(), 10), policy)
}

// newSQLFixture runs the service on a SQLite file shared by several connections.
func newSQLFixture(t *testing.T, policy domain.LedgerPolicy) fixture {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "rooms.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := sqlstore.Open("sqlite", dsn)
	require.NoError(t, err)
	store, err := sqlstore.NewSQLStore(db, slog.Default(), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureOn(t, store, policy)
}

func newFixtureOn(t *testing.T, store contract.Store, policy domain.LedgerPolicy) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	catalog := mocks.NewMockICatalog(ctrl)
	notifier := mocks.NewMockINotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any()).AnyTimes()
	return fixture{
		svc:      NewSessionService(slog.Default(), store, catalog, notifier, policy),
		store:    store,
		catalog:  catalog,
		notifier: notifier,
	}
}

// playingRoom creates a room for alice and seats bob.
func (f fixture) playingRoom(t *testing.T) domain.Room {
	t.Helper()
	req := require.New(t)
	room, err := f.svc.CreateRoomWithItems(context.Background(), "alice", items)
	req.NoError(err)
	room, err = f.svc.JoinRoomByCode(context.Background(), room.Code, "bob")
	req.NoError(err)
	req.Equal(domain.StatusPlaying, room.Status)
	return room
}

func TestSessionService_CreateRoom_Snapshots_Catalog(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()

	// Given a catalog answering with two items
	f.catalog.EXPECT().FetchCandidateItems(gomock.Any()).
		Return([]domain.Item{{ID: "550"}, {ID: "680"}}).Times(1)

	// When a host creates a room
	room, err := f.svc.CreateRoom(ctx, "alice")

	// Then the room waits for a guest with a four-digit code and the snapshot
	req.NoError(err)
	req.Equal(domain.StatusWaiting, room.Status)
	req.Len(room.Code, 4)
	code, err := strconv.Atoi(room.Code)
	req.NoError(err)
	req.GreaterOrEqual(code, 1000)
	req.LessOrEqual(code, 9999)
	req.Equal([]domain.ItemID{"550", "680"}, room.ItemIDs)
	req.Equal(domain.ParticipantID("alice"), room.HostID)
	req.Empty(room.GuestID)

	// And it can be found by code and by id
	byCode, err := f.svc.FindByCode(ctx, room.Code)
	req.NoError(err)
	req.Equal(room.ID, byCode.ID)
	byID, err := f.svc.GetRoomByID(ctx, room.ID)
	req.NoError(err)
	req.Equal(room.Code, byID.Code)
}

func TestSessionService_CreateRoom_Falls_Back_When_Catalog_Is_Empty(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)

	f.catalog.EXPECT().FetchCandidateItems(gomock.Any()).Return(nil).Times(1)

	room, err := f.svc.CreateRoom(context.Background(), "alice")
	req.NoError(err)
	req.Equal(domain.ItemIDs(domain.FallbackItems), room.ItemIDs)
}

func TestSessionService_CreateRoom_Requires_Identity_And_Items(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)

	_, err := f.svc.CreateRoomWithItems(context.Background(), "", items)
	req.ErrorIs(err, apperr.ErrNotAuthenticated)

	_, err = f.svc.CreateRoomWithItems(context.Background(), "alice", nil)
	req.ErrorIs(err, apperr.ErrInvalidRequest)

	// Item ids must not contain the store's key separators
	_, err = f.svc.CreateRoomWithItems(context.Background(), "alice", []domain.ItemID{"1", "1:x"})
	req.ErrorIs(err, apperr.ErrInvalidRequest)
}

func TestSessionService_Join_Guards(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()

	room, err := f.svc.CreateRoomWithItems(ctx, "alice", items)
	req.NoError(err)

	// Unknown code
	_, err = f.svc.JoinRoomByCode(ctx, "0000", "bob")
	req.ErrorIs(err, apperr.ErrRoomNotFound)

	// The host joining its own room gets it back unchanged
	same, err := f.svc.JoinRoomByCode(ctx, room.Code, "alice")
	req.NoError(err)
	req.Equal(domain.StatusWaiting, same.Status)
	req.Empty(same.GuestID)

	// A guest takes the single slot and the game starts at once
	joined, err := f.svc.JoinRoomByCode(ctx, room.Code, "bob")
	req.NoError(err)
	req.Equal(domain.StatusPlaying, joined.Status)
	req.Equal(domain.ParticipantID("bob"), joined.GuestID)

	// Re-join by the guest is idempotent
	again, err := f.svc.JoinRoomByCode(ctx, room.Code, "bob")
	req.NoError(err)
	req.Equal(joined.Revision, again.Revision)

	// A third participant is turned away
	_, err = f.svc.JoinRoomByCode(ctx, room.Code, "carol")
	req.ErrorIs(err, apperr.ErrRoomFull)
}

func TestSessionService_Concurrent_Joins_Seat_One_Guest(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room, err := f.svc.CreateRoomWithItems(ctx, "alice", items)
	req.NoError(err)

	// When eight participants race for the guest slot
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.JoinRoomByCode(ctx, room.Code, domain.ParticipantID("guest-"+strconv.Itoa(i)))
		}(i)
	}
	wg.Wait()

	// Then exactly one wins and the others see a full room
	req.Equal(1, lo.CountBy(errs, func(err error) bool { return err == nil }))
	for _, err := range errs {
		if err != nil {
			req.ErrorIs(err, apperr.ErrRoomFull)
		}
	}
	final, err := f.svc.GetRoomByID(ctx, room.ID)
	req.NoError(err)
	req.Equal(domain.StatusPlaying, final.Status)
	req.NotEmpty(final.GuestID)
}

// Scenario A: both participants like the same item.
func TestSessionService_Mutual_Like_Creates_Match_And_Pauses(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)

	res, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "3", true)
	req.NoError(err)
	req.Nil(res.Match)
	req.Equal(domain.StatusPlaying, res.Status)

	res, err = f.svc.SubmitPreference(ctx, room.ID, "bob", "3", true)
	req.NoError(err)
	req.NotNil(res.Match)
	req.Equal(domain.ItemID("3"), res.Match.ItemID)
	req.Equal(domain.StatusPaused, res.Status)

	snap, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)
	req.Equal(domain.StatusPaused, snap.Room.Status)
	req.Len(snap.Matches, 1)
	req.Equal(domain.ItemID("3"), snap.Matches[0].ItemID)
	// waiting, playing, match created, paused
	req.Equal(uint64(4), snap.Sequence)
}

// Scenario B: a like and a dislike never match.
func TestSessionService_Like_And_Dislike_Do_Not_Match(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)

	_, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "3", true)
	req.NoError(err)
	res, err := f.svc.SubmitPreference(ctx, room.ID, "bob", "3", false)
	req.NoError(err)
	req.Nil(res.Match)
	req.Equal(domain.StatusPlaying, res.Status)

	snap, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)
	req.Empty(snap.Matches)
	req.Equal(domain.StatusPlaying, snap.Room.Status)
}

// Scenario C: the resume handshake, including a repeated confirmation.
func TestSessionService_Resume_Handshake(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)
	_, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
	req.NoError(err)
	_, err = f.svc.SubmitPreference(ctx, room.ID, "bob", "1", true)
	req.NoError(err)

	status, err := f.svc.ConfirmResume(ctx, room.ID, "alice")
	req.NoError(err)
	req.Equal(domain.StatusPausedHostReady, status)

	before, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)

	// A second host confirmation changes nothing, not even the event stream
	status, err = f.svc.ConfirmResume(ctx, room.ID, "alice")
	req.NoError(err)
	req.Equal(domain.StatusPausedHostReady, status)
	after, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)
	req.Equal(before.Sequence, after.Sequence)
	req.Equal(before.Room.Revision, after.Room.Revision)

	// Preferences are rejected while paused
	_, err = f.svc.SubmitPreference(ctx, room.ID, "alice", "2", true)
	req.ErrorIs(err, apperr.ErrIngestionRejected)

	status, err = f.svc.ConfirmResume(ctx, room.ID, "bob")
	req.NoError(err)
	req.Equal(domain.StatusPlaying, status)

	// Confirming while playing is a no-op
	status, err = f.svc.ConfirmResume(ctx, room.ID, "bob")
	req.NoError(err)
	req.Equal(domain.StatusPlaying, status)

	// Strangers cannot confirm
	_, err = f.svc.ConfirmResume(ctx, room.ID, "mallory")
	req.ErrorIs(err, apperr.ErrNotParticipant)
}

func TestSessionService_Guest_Confirms_First(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)
	_, _ = f.svc.SubmitPreference(ctx, room.ID, "alice", "2", true)
	_, _ = f.svc.SubmitPreference(ctx, room.ID, "bob", "2", true)

	status, err := f.svc.ConfirmResume(ctx, room.ID, "bob")
	req.NoError(err)
	req.Equal(domain.StatusPausedGuestReady, status)
	status, err = f.svc.ConfirmResume(ctx, room.ID, "bob")
	req.NoError(err)
	req.Equal(domain.StatusPausedGuestReady, status)
	status, err = f.svc.ConfirmResume(ctx, room.ID, "alice")
	req.NoError(err)
	req.Equal(domain.StatusPlaying, status)
}

// Scenario D: leaving ends the room for good.
func TestSessionService_Leave_Abandons_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)

	req.NoError(f.svc.LeaveRoom(ctx, room.ID, "bob"))

	snap, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)
	req.Equal(domain.StatusAbandoned, snap.Room.Status)

	_, err = f.svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
	req.ErrorIs(err, apperr.ErrIngestionRejected)
	req.ErrorIs(err, apperr.ErrRoomEnded)

	_, err = f.svc.ConfirmResume(ctx, room.ID, "alice")
	req.ErrorIs(err, apperr.ErrRoomEnded)

	// The code is released
	_, err = f.svc.FindByCode(ctx, room.Code)
	req.ErrorIs(err, apperr.ErrRoomNotFound)
	_, err = f.svc.JoinRoomByCode(ctx, room.Code, "carol")
	req.ErrorIs(err, apperr.ErrRoomNotFound)

	// Leaving again, leaving an unknown room or a room one is not in never fails
	req.NoError(f.svc.LeaveRoom(ctx, room.ID, "alice"))
	req.NoError(f.svc.LeaveRoom(ctx, "unknown", "alice"))
	other, err := f.svc.CreateRoomWithItems(ctx, "dave", items)
	req.NoError(err)
	req.NoError(f.svc.LeaveRoom(ctx, other.ID, "alice"))
	untouched, err := f.svc.GetRoomByID(ctx, other.ID)
	req.NoError(err)
	req.Equal(domain.StatusWaiting, untouched.Status)
}

func TestSessionService_Duplicate_Preference_Counts_Once(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)

	first, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "4", true)
	req.NoError(err)
	req.False(first.Duplicate)

	second, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "4", true)
	req.NoError(err)
	req.True(second.Duplicate)
	req.Nil(second.Match)

	// One participant liking twice is not a mutual like
	snap, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)
	req.Empty(snap.Matches)
	req.Equal(domain.StatusPlaying, snap.Room.Status)
}

func TestSessionService_Ledger_Policies(t *testing.T) {
	ctx := context.Background()

	t.Run("overwrite keeps the latest verdict", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, domain.LedgerOverwrite)
		room := f.playingRoom(t)

		_, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "1", false)
		req.NoError(err)
		_, err = f.svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
		req.NoError(err)
		res, err := f.svc.SubmitPreference(ctx, room.ID, "bob", "1", true)
		req.NoError(err)
		req.NotNil(res.Match)
	})

	t.Run("first wins ignores a change of mind", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t, domain.LedgerFirstWins)
		room := f.playingRoom(t)

		_, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "1", false)
		req.NoError(err)
		res, err := f.svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
		req.NoError(err)
		req.True(res.Duplicate)
		res, err = f.svc.SubmitPreference(ctx, room.ID, "bob", "1", true)
		req.NoError(err)
		req.Nil(res.Match)
	})
}

func TestSessionService_Rejected_Preferences_Leave_Ledger_Untouched(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()

	// Given a room still waiting for its guest
	room, err := f.svc.CreateRoomWithItems(ctx, "alice", items)
	req.NoError(err)

	_, err = f.svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
	req.ErrorIs(err, apperr.ErrIngestionRejected)

	_, err = f.svc.SubmitPreference(ctx, room.ID, "mallory", "1", true)
	req.ErrorIs(err, apperr.ErrNotParticipant)

	_, err = f.svc.SubmitPreference(ctx, "nope", "alice", "1", true)
	req.ErrorIs(err, apperr.ErrRoomNotFound)

	room, err = f.svc.JoinRoomByCode(ctx, room.Code, "bob")
	req.NoError(err)
	_, err = f.svc.SubmitPreference(ctx, room.ID, "alice", "not-in-room", true)
	req.ErrorIs(err, apperr.ErrUnknownItem)

	// Then nothing was recorded while rejected
	err = f.store.View(ctx, func(tx contract.StoreTx) error {
		_, found, err := tx.GetPreference(room.ID, "alice", "1")
		req.False(found)
		return err
	})
	req.NoError(err)
}

func TestSessionService_Racing_Likes_Create_One_Match(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)

	// When host and guest like the same item at the same time, several times each
	var wg sync.WaitGroup
	results := make(chan SubmitResult, 10)
	for i := 0; i < 10; i++ {
		participant := domain.ParticipantID("alice")
		if i%2 == 1 {
			participant = "bob"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.SubmitPreference(ctx, room.ID, participant, "2", true)
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	// Then a single submission reports the match
	matched := 0
	for res := range results {
		if res.Match != nil {
			matched++
		}
	}
	req.Equal(1, matched)

	snap, err := f.svc.Snapshot(ctx, room.ID)
	req.NoError(err)
	req.Len(snap.Matches, 1)
	req.Equal(domain.StatusPaused, snap.Room.Status)
}

func TestSessionService_Racing_Confirms_Resume_Once(t *testing.T) {
	stores := map[string]func(*testing.T, domain.LedgerPolicy) fixture{
		"badger": newFixture,
		"sqlite": newSQLFixture,
	}
	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			f := build(t, domain.LedgerOverwrite)
			ctx := context.Background()
			room := f.playingRoom(t)

			for _, item := range items[:3] {
				// Given a match paused the room
				_, err := f.svc.SubmitPreference(ctx, room.ID, "alice", item, true)
				req.NoError(err)
				res, err := f.svc.SubmitPreference(ctx, room.ID, "bob", item, true)
				req.NoError(err)
				req.NotNil(res.Match)

				// When both confirm at the same time
				var wg sync.WaitGroup
				errs := make(chan error, 2)
				for _, p := range []domain.ParticipantID{"alice", "bob"} {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := f.svc.ConfirmResume(ctx, room.ID, p)
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)

				// Then neither is rejected and the game resumes
				for err := range errs {
					req.NoError(err)
				}
				snap, err := f.svc.Snapshot(ctx, room.ID)
				req.NoError(err)
				req.Equal(domain.StatusPlaying, snap.Room.Status)
			}

			// And the outbox holds one resume per match, without gaps
			err := f.store.View(ctx, func(tx contract.StoreTx) error {
				envs, err := tx.EventsAfter(room.ID, 0, 0)
				playing := 0
				for i, e := range envs {
					req.Equal(uint64(i+1), e.Seq)
					if e.Status != nil && *e.Status == domain.StatusPlaying {
						playing++
					}
				}
				// one from the join, one per resume
				req.Equal(4, playing)
				req.Len(envs, 2+3*4)
				return err
			})
			req.NoError(err)
		})
	}
}

func TestSessionService_DetectMatch_Leaves_Room_Alone_When_Match_Exists(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tx := mocks.NewMockStoreTx(ctrl)
	svc := NewSessionService(slog.Default(), nil, nil, nil, domain.LedgerOverwrite)
	now := time.Now().UTC()

	room := domain.NewRoom("room", "1234", "alice", items, now)
	room.GuestID = "bob"
	room.Status = domain.StatusPlaying
	room.EventSeq = 2

	// Given both liked the item but its match is already recorded
	tx.EXPECT().CountLikes(domain.RoomID("room"), domain.ItemID("3")).Return(2, nil)
	tx.EXPECT().InsertMatch(domain.Match{RoomID: "room", ItemID: "3", Ordinal: 1, CreatedAt: now}).Return(false, nil)

	// When the match is checked
	match, events, err := svc.detectMatch(tx, &room, "3", now)

	// Then nothing is reported and the room keeps playing
	req.NoError(err)
	req.Nil(match)
	req.Empty(events)
	req.Equal(domain.StatusPlaying, room.Status)
	req.Equal(uint64(2), room.EventSeq)
	req.Zero(room.MatchCount)
}

func TestSessionService_Room_Is_Written_Before_Its_Events(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockStoreTx(ctrl)
	svc := NewSessionService(slog.Default(), store, nil, mocks.NewMockINotifier(ctrl), domain.LedgerOverwrite)
	ctx := context.Background()

	paused := domain.NewRoom("room", "1234", "alice", items, time.Now())
	paused.GuestID = "bob"
	paused.Status = domain.StatusPaused
	paused.EventSeq = 5

	store.EXPECT().Update(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(contract.StoreTx) error) error { return fn(tx) })

	// Given another writer moved the room since it was read
	stale := errors.New("stale room")
	gomock.InOrder(
		tx.EXPECT().GetRoom(domain.RoomID("room")).Return(paused, nil),
		tx.EXPECT().PutRoom(gomock.Any()).Return(stale),
	)
	tx.EXPECT().AppendEvent(gomock.Any()).Times(0)

	// When alice confirms
	_, err := svc.ConfirmResume(ctx, "room", "alice")

	// Then the failed room write leaves the outbox untouched
	req.ErrorIs(err, stale)
}

func TestSessionService_Events_Are_Contiguous(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()
	room := f.playingRoom(t)
	_, _ = f.svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
	_, _ = f.svc.SubmitPreference(ctx, room.ID, "bob", "1", true)
	_, _ = f.svc.ConfirmResume(ctx, room.ID, "alice")
	_, _ = f.svc.ConfirmResume(ctx, room.ID, "bob")
	req.NoError(f.svc.LeaveRoom(ctx, room.ID, "alice"))

	err := f.store.View(ctx, func(tx contract.StoreTx) error {
		envs, err := tx.EventsAfter(room.ID, 0, 0)
		kinds := lo.Map(envs, func(e event.Envelope, i int) string {
			req.Equal(uint64(i+1), e.Seq)
			if e.Status != nil {
				return e.Status.String()
			}
			return string(e.Kind)
		})
		req.Equal([]string{
			"waiting", "playing", "match_created", "paused",
			"paused_host_ready", "playing", "abandoned",
		}, kinds)
		return err
	})
	req.NoError(err)
}

func TestSessionService_Notifies_Only_Committed_Changes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()
	notifier := mocks.NewMockINotifier(ctrl)
	svc := NewSessionService(slog.Default(), storage.NewBadgerStore(db, slog.Default(), 3),
		mocks.NewMockICatalog(ctrl), notifier, domain.LedgerOverwrite)
	ctx := context.Background()

	// create + join + match
	notifier.EXPECT().Notify(gomock.Any()).Times(3)

	room, err := svc.CreateRoomWithItems(ctx, "alice", items)
	req.NoError(err)
	_, err = svc.JoinRoomByCode(ctx, room.Code, "bob")
	req.NoError(err)
	_, err = svc.JoinRoomByCode(ctx, room.Code, "bob")
	req.NoError(err)
	_, err = svc.SubmitPreference(ctx, room.ID, "alice", "1", true)
	req.NoError(err)
	_, err = svc.SubmitPreference(ctx, room.ID, "bob", "1", true)
	req.NoError(err)
	_, err = svc.SubmitPreference(ctx, room.ID, "bob", "2", true)
	req.ErrorIs(err, apperr.ErrIngestionRejected)
}

// Scenario E: the four-digit code space holds 9,000 live rooms.
func TestSessionService_Code_Space_Exhaustion(t *testing.T) {
	if testing.Short() {
		t.Skip("creates 9,001 rooms")
	}
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()

	codes := make(map[string]struct{}, codeSpace)
	for i := 0; i < codeSpace; i++ {
		room, err := f.svc.CreateRoomWithItems(ctx, domain.ParticipantID("host-"+strconv.Itoa(i)), items)
		req.NoError(err)
		codes[room.Code] = struct{}{}
	}
	req.Len(codes, codeSpace)

	_, err := f.svc.CreateRoomWithItems(ctx, "one-too-many", items)
	req.ErrorIs(err, apperr.ErrCodeSpaceExhausted)
}

func TestSessionService_AllocateCode_Is_Bounded(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tx := mocks.NewMockStoreTx(ctrl)
	svc := NewSessionService(slog.Default(), nil, nil, nil, domain.LedgerOverwrite)

	full := make(map[string]struct{}, codeSpace)
	for c := codeMin; c < codeMin+codeSpace; c++ {
		full[strconv.Itoa(c)] = struct{}{}
	}

	// Given every sampled code is already taken
	tx.EXPECT().ClaimCode(gomock.Any(), domain.RoomID("r")).Return(false, nil).Times(codeSampleAttempts)
	tx.EXPECT().TakenCodes().Return(full, nil).Times(1)

	// Then allocation stops after one scan
	_, err := svc.allocateCode(tx, "r")
	req.ErrorIs(err, apperr.ErrCodeSpaceExhausted)
}

func TestSessionService_AllocateCode_Finds_Last_Free_Code(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	tx := mocks.NewMockStoreTx(ctrl)
	svc := NewSessionService(slog.Default(), nil, nil, nil, domain.LedgerOverwrite)

	taken := make(map[string]struct{}, codeSpace)
	for c := codeMin; c < codeMin+codeSpace; c++ {
		if c != 5555 {
			taken[strconv.Itoa(c)] = struct{}{}
		}
	}

	gomock.InOrder(
		tx.EXPECT().ClaimCode(gomock.Any(), domain.RoomID("r")).Return(false, nil).Times(codeSampleAttempts),
		tx.EXPECT().TakenCodes().Return(taken, nil),
		tx.EXPECT().ClaimCode("5555", domain.RoomID("r")).Return(true, nil),
	)

	code, err := svc.allocateCode(tx, "r")
	req.NoError(err)
	req.Equal("5555", code)
}

func TestSessionService_ExpireIdleRooms(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, domain.LedgerOverwrite)
	ctx := context.Background()

	// Given a room created an hour ago and a fresh one
	past := time.Now().UTC().Add(-time.Hour)
	f.svc.now = func() time.Time { return past }
	old, err := f.svc.CreateRoomWithItems(ctx, "alice", items)
	req.NoError(err)
	f.svc.now = func() time.Time { return time.Now().UTC() }
	fresh, err := f.svc.CreateRoomWithItems(ctx, "bob", items)
	req.NoError(err)

	// When rooms idle for more than ten minutes expire
	n, err := f.svc.ExpireIdleRooms(ctx, time.Now().UTC().Add(-10*time.Minute))

	// Then only the old one is abandoned and its code freed
	req.NoError(err)
	req.Equal(1, n)
	expired, err := f.svc.GetRoomByID(ctx, old.ID)
	req.NoError(err)
	req.Equal(domain.StatusAbandoned, expired.Status)
	_, err = f.svc.FindByCode(ctx, old.Code)
	req.ErrorIs(err, apperr.ErrRoomNotFound)

	kept, err := f.svc.GetRoomByID(ctx, fresh.ID)
	req.NoError(err)
	req.Equal(domain.StatusWaiting, kept.Status)

	// And a second pass has nothing left to do
	n, err = f.svc.ExpireIdleRooms(ctx, time.Now().UTC().Add(-10*time.Minute))
	req.NoError(err)
	req.Zero(n)
}
