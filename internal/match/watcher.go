package match

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/clock"
	"github.com/gokatarajesh/quiz-duel/internal/metrics"
)

// watcherRetryInterval spaces out forfeit attempts after a store error.
const watcherRetryInterval = time.Second

// PresenceWatcher turns a seat that stays absent for the grace period into a forfeit.
type PresenceWatcher struct {
	roomID string
	store  RoomStore
	clock  clock.Scheduler
	grace  time.Duration
	retry  time.Duration
	seats  []Seat
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	latest  Room
	timers  map[Seat]clock.Timer
	stopped bool
}

// NewPresenceWatcher watches the given seats of roomID.
func NewPresenceWatcher(roomID string, s RoomStore, sched clock.Scheduler, grace time.Duration, seats []Seat, logger zerolog.Logger) *PresenceWatcher {
	return &PresenceWatcher{
		roomID: roomID,
		store:  s,
		clock:  sched,
		grace:  grace,
		retry:  watcherRetryInterval,
		seats:  append([]Seat(nil), seats...),
		logger: logger.With().Str("component", "presence_watcher").Str("room_id", roomID).Logger(),
		ctx:    context.Background(),
		timers: make(map[Seat]clock.Timer, len(seats)),
	}
}

// watchedSeats returns the seats a session with role should watch.
func watchedSeats(role Role) []Seat {
	if role == RoleObserver {
		return Seats[:]
	}
	return []Seat{role.Seat().Opponent()}
}

// WithContext sets the context forfeit writes run under.
func (w *PresenceWatcher) WithContext(ctx context.Context) *PresenceWatcher {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	return w
}

// Observe arms or disarms a grace timer per watched seat.
func (w *PresenceWatcher) Observe(room Room) {
	room.normalize()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.latest = room
	if room.GameOver {
		w.disarmAllLocked()
		return
	}
	for _, seat := range w.seats {
		t, armed := w.timers[seat]
		switch absent := seatAbsent(room, seat); {
		case absent && !armed:
			seat := seat
			w.logger.Info().Str("seat", string(seat)).Dur("grace", w.grace).Msg("seat lost presence")
			w.timers[seat] = w.clock.AfterFunc(w.grace, func() { w.expire(seat) })
		case !absent && armed:
			t.Stop()
			delete(w.timers, seat)
		}
	}
}

// seatAbsent reports a claimed seat of a started match whose holder is not connected.
func seatAbsent(room Room, seat Seat) bool {
	slot := room.Players[seat]
	return !room.GameOver && room.OpponentJoined() && slot.Identity != "" && !slot.Presence
}

func (w *PresenceWatcher) expire(seat Seat) {
	w.mu.Lock()
	delete(w.timers, seat)
	if w.stopped || !seatAbsent(w.latest, seat) {
		w.mu.Unlock()
		return
	}
	ctx := w.ctx
	w.mu.Unlock()

	// The pushed copy can lag, so presence is re-checked inside the forfeit transaction.
	committed, err := forfeitRoom(ctx, w.store, w.roomID, seat, func(cur Room) bool {
		return seatAbsent(cur, seat)
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("seat", string(seat)).Dur("retry_in", w.retry).Msg("disconnect forfeit failed")
		w.rearm(seat)
		return
	}
	if committed {
		metrics.Forfeits.WithLabelValues("disconnect").Inc()
		w.logger.Info().Str("seat", string(seat)).Msg("seat forfeited after disconnect")
	}
}

// rearm retries a failed expiry while the seat still looks absent.
func (w *PresenceWatcher) rearm(seat Seat) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || !seatAbsent(w.latest, seat) {
		return
	}
	if _, armed := w.timers[seat]; armed {
		return
	}
	w.timers[seat] = w.clock.AfterFunc(w.retry, func() { w.expire(seat) })
}

// Stop disarms every timer.
func (w *PresenceWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.disarmAllLocked()
}

func (w *PresenceWatcher) disarmAllLocked() {
	for seat, t := range w.timers {
		t.Stop()
		delete(w.timers, seat)
	}
}
