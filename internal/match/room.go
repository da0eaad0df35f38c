package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gokatarajesh/quiz-duel/internal/profile"
	"github.com/gokatarajesh/quiz-duel/internal/question"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

// RoomStore is the capability the match package needs from the shared store.
type RoomStore interface {
	Get(ctx context.Context, path string) (store.Snapshot, error)
	Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (func(), error)
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Transact(ctx context.Context, path string, fn store.TxFunc) (store.Snapshot, bool, error)
}

// DisconnectHook registers writes to perform when the calling session drops.
type DisconnectHook interface {
	OnDisconnectSet(path string, value any)
	Cancel(path string)
}

// QuestionBank resolves question order indices.
type QuestionBank interface {
	Len() int
	Question(idx int) (question.Question, bool)
}

// ProfileService reads and adjusts player profiles.
type ProfileService interface {
	Get(ctx context.Context, studentID string) (profile.Profile, error)
	Apply(ctx context.Context, studentID string, d profile.Delta) (profile.Profile, error)
}

// StatsRecorder counts per-question answers.
type StatsRecorder interface {
	Record(ctx context.Context, q question.Question, correct bool) error
}

// RoomPath returns the store path of a room record.
func RoomPath(roomID string) string {
	return store.Join("rooms", roomID)
}

func presencePath(roomID string, seat Seat) string {
	return store.Join("rooms", roomID, "players", string(seat), "presence")
}

// RoomIDs returns the ids of the numbered rooms, "1".."total".
func RoomIDs(total int) []string {
	ids := make([]string, total)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

func validRoomID(id string, total int) bool {
	n, err := strconv.Atoi(id)
	return err == nil && n >= 1 && n <= total && strconv.Itoa(n) == id
}

func decodeRoom(raw json.RawMessage) (*Room, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	r.normalize()
	return &r, nil
}

// loadRoom reads a room once. A missing room is returned as nil.
func loadRoom(ctx context.Context, s RoomStore, roomID string) (*Room, error) {
	snap, err := s.Get(ctx, RoomPath(roomID))
	if err != nil {
		return nil, err
	}
	return decodeRoom(snap.Value)
}

// transactRoom runs fn over the decoded room. fn receives nil for a missing room and returns the
// record to store, or store.ErrAbort to leave it untouched. The room after the transaction is
// returned either way.
func transactRoom(ctx context.Context, s RoomStore, roomID string, fn func(cur *Room) (*Room, error)) (*Room, bool, error) {
	snap, committed, err := s.Transact(ctx, RoomPath(roomID), func(raw json.RawMessage) (any, error) {
		cur, err := decodeRoom(raw)
		if err != nil {
			return nil, err
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, false, err
	}
	room, err := decodeRoom(snap.Value)
	if err != nil {
		return nil, committed, err
	}
	return room, committed, nil
}

// newRoom builds a fresh record with the caller in p1.
func newRoom(order []int, who Identity, roundSeconds int, createdAt int64) *Room {
	r := &Room{
		Players: map[Seat]PlayerSlot{
			SeatP1: {Presence: true, Identity: who.StudentID, DisplayName: who.DisplayName},
			SeatP2: {},
		},
		QuestionOrder: append([]int(nil), order...),
		Scores:        map[Seat]int{SeatP1: 0, SeatP2: 0},
		Streaks:       map[Seat]int{SeatP1: 0, SeatP2: 0},
		Selections:    map[Seat]*Selection{SeatP1: nil, SeatP2: nil},
		TimeLeft:      roundSeconds,
		CreatedAt:     createdAt,
	}
	return r
}

// forfeitRoom ends the match naming seat as the forfeiter. It does nothing when the room is
// already over or guard rejects the current record, so concurrent forfeits collapse into one write.
func forfeitRoom(ctx context.Context, s RoomStore, roomID string, seat Seat, guard func(Room) bool) (bool, error) {
	_, committed, err := transactRoom(ctx, s, roomID, func(cur *Room) (*Room, error) {
		if cur == nil || cur.GameOver {
			return nil, store.ErrAbort
		}
		if guard != nil && !guard(*cur) {
			return nil, store.ErrAbort
		}
		cur.GameOver = true
		cur.ForfeitedBy = seat
		return cur, nil
	})
	if err != nil {
		return false, fmt.Errorf("forfeit room %s: %w", roomID, err)
	}
	return committed, nil
}
