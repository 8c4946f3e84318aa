package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/domain/event"
	apperr "match-lab/errors"
	"match-lab/observability"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	codeMin = 1000
	// codeSpace is the number of four-digit codes: "1000" to "9999".
	codeSpace = 9000
	// codeSampleAttempts random picks are tried before scanning for a free code.
	codeSampleAttempts = 16
)

type ISessionService interface {
	CreateRoom(ctx context.Context, hostID domain.ParticipantID) (domain.Room, error)
	CreateRoomWithItems(ctx context.Context, hostID domain.ParticipantID, itemIDs []domain.ItemID) (domain.Room, error)
	FindByCode(ctx context.Context, code string) (domain.Room, error)
	GetRoomByID(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	Snapshot(ctx context.Context, roomID domain.RoomID) (domain.Snapshot, error)
	JoinRoomByCode(ctx context.Context, code string, participantID domain.ParticipantID) (domain.Room, error)
	SubmitPreference(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID, itemID domain.ItemID, liked bool) (SubmitResult, error)
	ConfirmResume(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID) (domain.Status, error)
	LeaveRoom(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID) error
	ExpireIdleRooms(ctx context.Context, cutoff time.Time) (int, error)
}

// SubmitResult describes what a preference submission did to the ledger.
type SubmitResult struct {
	// Duplicate is true when the ledger already held this verdict, or held
	// another one under the first-wins policy. Nothing was written.
	Duplicate bool
	// Match is set only by the submission that created it.
	Match  *domain.Match
	Status domain.Status
}

type SessionService struct {
	log      *slog.Logger
	store    contract.Store
	catalog  contract.ICatalog
	notifier contract.INotifier
	policy   domain.LedgerPolicy
	now      func() time.Time
	intN     func(n int) int
}

var _ ISessionService = (*SessionService)(nil)
var _ contract.IRoomExpirer = (*SessionService)(nil)

func NewSessionService(log *slog.Logger, store contract.Store, catalog contract.ICatalog,
	notifier contract.INotifier, policy domain.LedgerPolicy) *SessionService {
	return &SessionService{
		log:      log,
		store:    store,
		catalog:  catalog,
		notifier: notifier,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
		intN:     rand.IntN,
	}
}

// CreateRoom snapshots the catalog's current candidates into a new room.
// An empty catalog answer is replaced by the static fallback list.
func (s *SessionService) CreateRoom(ctx context.Context, hostID domain.ParticipantID) (domain.Room, error) {
	items := s.catalog.FetchCandidateItems(ctx)
	if len(items) == 0 {
		s.log.Warn("Catalog returned no candidate, using fallback items", "count", len(domain.FallbackItems))
		items = domain.FallbackItems
	}
	return s.CreateRoomWithItems(ctx, hostID, domain.ItemIDs(items))
}

func (s *SessionService) CreateRoomWithItems(ctx context.Context, hostID domain.ParticipantID, itemIDs []domain.ItemID) (domain.Room, error) {
	if hostID == "" {
		return domain.Room{}, apperr.ErrNotAuthenticated
	}
	itemIDs = lo.Uniq(lo.Compact(itemIDs))
	if len(itemIDs) == 0 {
		return domain.Room{}, fmt.Errorf("%w: a room needs at least one item", apperr.ErrInvalidRequest)
	}
	if bad, found := lo.Find(itemIDs, func(id domain.ItemID) bool { return !domain.ValidItemID(id) }); found {
		return domain.Room{}, fmt.Errorf("%w: invalid item id %q", apperr.ErrInvalidRequest, bad)
	}

	var room domain.Room
	err := s.store.Update(ctx, func(tx contract.StoreTx) error {
		now := s.now()
		room = domain.NewRoom(domain.RoomID(uuid.NewString()), "", hostID, itemIDs, now)
		code, err := s.allocateCode(tx, room.ID)
		if err != nil {
			return err
		}
		room.Code = code
		room.Touch(now)
		env := statusChanged(&room, now)
		return commit(tx, room, env)
	})
	if err != nil {
		return domain.Room{}, err
	}

	observability.RoomsCreated.Inc()
	s.log.Info("Room created", "room_id", room.ID, "code", room.Code, "items", len(room.ItemIDs))
	s.notifier.Notify(room.ID)
	return room, nil
}

// allocateCode samples the code space a bounded number of times, then falls
// back to a scan of the taken codes, so it always terminates.
func (s *SessionService) allocateCode(tx contract.StoreTx, roomID domain.RoomID) (string, error) {
	for range codeSampleAttempts {
		code := strconv.Itoa(codeMin + s.intN(codeSpace))
		claimed, err := tx.ClaimCode(code, roomID)
		if err != nil {
			return "", err
		}
		if claimed {
			return code, nil
		}
	}

	taken, err := tx.TakenCodes()
	if err != nil {
		return "", err
	}
	free := make([]string, 0, codeSpace-min(len(taken), codeSpace))
	for c := codeMin; c < codeMin+codeSpace; c++ {
		code := strconv.Itoa(c)
		if _, ok := taken[code]; !ok {
			free = append(free, code)
		}
	}
	if len(free) == 0 {
		return "", apperr.ErrCodeSpaceExhausted
	}
	code := free[s.intN(len(free))]
	claimed, err := tx.ClaimCode(code, roomID)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", apperr.ErrCodeSpaceExhausted
	}
	return code, nil
}

func (s *SessionService) FindByCode(ctx context.Context, code string) (domain.Room, error) {
	var room domain.Room
	err := s.store.View(ctx, func(tx contract.StoreTx) error {
		id, err := tx.RoomIDByCode(code)
		if err != nil {
			return err
		}
		room, err = tx.GetRoom(id)
		return err
	})
	return room, err
}

func (s *SessionService) GetRoomByID(ctx context.Context, roomID domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := s.store.View(ctx, func(tx contract.StoreTx) error {
		var err error
		room, err = tx.GetRoom(roomID)
		return err
	})
	return room, err
}

// Snapshot reads the room and its whole match history in one consistent view.
func (s *SessionService) Snapshot(ctx context.Context, roomID domain.RoomID) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.store.View(ctx, func(tx contract.StoreTx) error {
		room, err := tx.GetRoom(roomID)
		if err != nil {
			return err
		}
		matches, err := tx.ListMatches(roomID)
		if err != nil {
			return err
		}
		snap = domain.Snapshot{Room: room, Matches: matches, Sequence: room.EventSeq}
		return nil
	})
	return snap, err
}

// JoinRoomByCode seats participantID as the guest and starts the game in the
// same transaction. A host or guest joining again gets the room back unchanged.
func (s *SessionService) JoinRoomByCode(ctx context.Context, code string, participantID domain.ParticipantID) (domain.Room, error) {
	if participantID == "" {
		return domain.Room{}, apperr.ErrNotAuthenticated
	}
	var room domain.Room
	var joined bool
	err := s.store.Update(ctx, func(tx contract.StoreTx) error {
		joined = false
		id, err := tx.RoomIDByCode(code)
		if err != nil {
			return err
		}
		r, err := tx.GetRoom(id)
		if err != nil {
			return err
		}
		switch {
		case r.HasParticipant(participantID):
			room = r
			return nil
		case r.Status.IsTerminal():
			return apperr.ErrRoomEnded
		case r.HasGuest():
			return apperr.ErrRoomFull
		case r.Status != domain.StatusWaiting:
			return apperr.ErrRoomAlreadyStarted
		}

		r.GuestID = participantID
		if _, err := r.Apply(domain.TriggerGuestJoined); err != nil {
			return err
		}
		now := s.now()
		r.Touch(now)
		env := statusChanged(&r, now)
		room, joined = r, true
		return commit(tx, r, env)
	})
	if err != nil {
		return domain.Room{}, err
	}

	if joined {
		observability.RoomTransitions.WithLabelValues(room.Status.String()).Inc()
		s.log.Info("Guest joined room", "room_id", room.ID, "participant_id", participantID)
		s.notifier.Notify(room.ID)
	} else {
		s.log.Debug("Participant re-joined room", "room_id", room.ID, "participant_id", participantID)
	}
	return room, nil
}

// SubmitPreference records a verdict, and on a like checks whether every
// participant now likes the item. The first submission to complete the set
// creates the match and pauses the room. Everything happens in one
// transaction on the room record, so racing likes are serialized.
func (s *SessionService) SubmitPreference(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID,
	itemID domain.ItemID, liked bool) (SubmitResult, error) {
	var res SubmitResult
	err := s.store.Update(ctx, func(tx contract.StoreTx) error {
		res = SubmitResult{}
		room, err := tx.GetRoom(roomID)
		if err != nil {
			return err
		}
		if !room.HasParticipant(participantID) {
			return apperr.ErrNotParticipant
		}
		if room.Status.IsTerminal() {
			return fmt.Errorf("%w: %w", apperr.ErrIngestionRejected, apperr.ErrRoomEnded)
		}
		if room.Status != domain.StatusPlaying {
			return fmt.Errorf("%w: room is %s", apperr.ErrIngestionRejected, room.Status)
		}
		if !room.HasItem(itemID) {
			return apperr.ErrUnknownItem
		}

		res.Status = room.Status
		existing, found, err := tx.GetPreference(roomID, participantID, itemID)
		if err != nil {
			return err
		}
		if !s.policy.Accepts(existing, found, liked) {
			res.Duplicate = true
			return nil
		}

		now := s.now()
		if err := tx.PutPreference(domain.Preference{
			RoomID:        roomID,
			ParticipantID: participantID,
			ItemID:        itemID,
			Liked:         liked,
			At:            now,
		}); err != nil {
			return err
		}

		var events []event.Envelope
		if liked {
			res.Match, events, err = s.detectMatch(tx, &room, itemID, now)
			if err != nil {
				return err
			}
		}

		room.Touch(now)
		res.Status = room.Status
		return commit(tx, room, events...)
	})
	if err != nil {
		return SubmitResult{}, err
	}

	outcome := "recorded"
	if res.Duplicate {
		outcome = "duplicate"
	}
	observability.PreferencesSubmitted.WithLabelValues(strconv.FormatBool(liked), outcome).Inc()
	if res.Match != nil {
		observability.MatchesCreated.Inc()
		observability.RoomTransitions.WithLabelValues(res.Status.String()).Inc()
		s.log.Info("Match created", "room_id", roomID, "item_id", itemID, "ordinal", res.Match.Ordinal)
		s.notifier.Notify(roomID)
	}
	return res, nil
}

// detectMatch counts likes on the item, own write included. Only the
// transaction that inserts the match record pauses the room. The returned
// events have their sequences reserved on room but are not written yet.
func (s *SessionService) detectMatch(tx contract.StoreTx, room *domain.Room, itemID domain.ItemID,
	now time.Time) (*domain.Match, []event.Envelope, error) {
	likes, err := tx.CountLikes(room.ID, itemID)
	if err != nil {
		return nil, nil, err
	}
	if likes < room.Capacity {
		return nil, nil, nil
	}

	match := domain.Match{RoomID: room.ID, ItemID: itemID, Ordinal: room.MatchCount + 1, CreatedAt: now}
	created, err := tx.InsertMatch(match)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		s.log.Debug("Match already recorded", "room_id", room.ID, "item_id", itemID)
		return nil, nil, nil
	}
	room.MatchCount++
	events := []event.Envelope{event.Wrap(event.MatchCreated{
		Room:      room.ID,
		Seq:       room.NextSequence(),
		ItemID:    itemID,
		CreatedAt: now,
	})}

	changed, err := room.Apply(domain.TriggerMatchDetected)
	if err != nil {
		return nil, nil, err
	}
	if changed {
		events = append(events, statusChanged(room, now))
	}
	return &match, events, nil
}

// ConfirmResume records that participantID is ready to continue after a match.
// Confirming outside a pause, or twice, leaves the room untouched.
func (s *SessionService) ConfirmResume(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID) (domain.Status, error) {
	var status domain.Status
	var changed bool
	err := s.store.Update(ctx, func(tx contract.StoreTx) error {
		changed = false
		room, err := tx.GetRoom(roomID)
		if err != nil {
			return err
		}
		trigger, err := room.ConfirmTrigger(participantID)
		if err != nil {
			return err
		}
		changed, err = room.Apply(trigger)
		if err != nil {
			return err
		}
		status = room.Status
		if !changed {
			return nil
		}
		now := s.now()
		room.Touch(now)
		env := statusChanged(&room, now)
		return commit(tx, room, env)
	})
	if err != nil {
		return 0, err
	}

	if changed {
		observability.RoomTransitions.WithLabelValues(status.String()).Inc()
		s.log.Debug("Resume confirmed", "room_id", roomID, "participant_id", participantID, "status", status)
		s.notifier.Notify(roomID)
	}
	return status, nil
}

// LeaveRoom abandons the room and frees its code. It only fails when the
// store does: unknown rooms, strangers and already abandoned rooms are no-ops.
func (s *SessionService) LeaveRoom(ctx context.Context, roomID domain.RoomID, participantID domain.ParticipantID) error {
	var left bool
	err := s.store.Update(ctx, func(tx contract.StoreTx) error {
		left = false
		room, err := tx.GetRoom(roomID)
		if errors.Is(err, apperr.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !room.HasParticipant(participantID) || room.Status.IsTerminal() {
			return nil
		}
		left, err = s.abandon(tx, &room, domain.TriggerLeft)
		return err
	})
	if err != nil {
		return err
	}

	if left {
		observability.RoomTransitions.WithLabelValues(domain.StatusAbandoned.String()).Inc()
		s.log.Info("Participant left room", "room_id", roomID, "participant_id", participantID)
		s.notifier.Notify(roomID)
	} else {
		s.log.Debug("Leave ignored", "room_id", roomID, "participant_id", participantID)
	}
	return nil
}

// ExpireIdleRooms abandons every non-terminal room untouched since cutoff.
func (s *SessionService) ExpireIdleRooms(ctx context.Context, cutoff time.Time) (int, error) {
	var candidates []domain.RoomID
	err := s.store.View(ctx, func(tx contract.StoreTx) error {
		rooms, err := tx.ListRooms()
		if err != nil {
			return err
		}
		candidates = lo.FilterMap(rooms, func(r domain.Room, _ int) (domain.RoomID, bool) {
			return r.ID, isIdle(r, cutoff)
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range candidates {
		var done bool
		err := s.store.Update(ctx, func(tx contract.StoreTx) error {
			done = false
			room, err := tx.GetRoom(id)
			if err != nil {
				return err
			}
			// the room may have moved since the scan
			if !isIdle(room, cutoff) {
				return nil
			}
			done, err = s.abandon(tx, &room, domain.TriggerExpired)
			return err
		})
		if err != nil {
			return expired, err
		}
		if done {
			expired++
			observability.RoomTransitions.WithLabelValues(domain.StatusAbandoned.String()).Inc()
			s.notifier.Notify(id)
		}
	}
	return expired, nil
}

func isIdle(room domain.Room, cutoff time.Time) bool {
	return !room.Status.IsTerminal() && room.UpdatedAt.Before(cutoff)
}

func (s *SessionService) abandon(tx contract.StoreTx, room *domain.Room, trigger domain.Trigger) (bool, error) {
	changed, err := room.Apply(trigger)
	if err != nil || !changed {
		return false, err
	}
	if err := tx.ReleaseCode(room.Code); err != nil {
		return false, err
	}
	now := s.now()
	room.Touch(now)
	env := statusChanged(room, now)
	return true, commit(tx, *room, env)
}

// statusChanged reserves the next sequence of room for its current status.
func statusChanged(room *domain.Room, at time.Time) event.Envelope {
	return event.Wrap(event.RoomStatusChanged{
		Room:   room.ID,
		Seq:    room.NextSequence(),
		Status: room.Status,
		At:     at,
	})
}

// commit writes the room before its events. The room write is the
// compare-and-set, so a writer that lost the race is turned back before it
// touches the outbox.
func commit(tx contract.StoreTx, room domain.Room, events ...event.Envelope) error {
	if err := tx.PutRoom(room); err != nil {
		return err
	}
	for _, env := range events {
		if err := tx.AppendEvent(env); err != nil {
			return err
		}
	}
	return nil
}
