package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/metrics"
	"github.com/gokatarajesh/quiz-duel/internal/question"
	"github.com/gokatarajesh/quiz-duel/internal/store"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// Participant is one session's live attachment to a room: it mirrors the record to the client,
// submits answers, forfeits, settles when responsible, and owns the controller for p1.
type Participant struct {
	svc    *Service
	roomID string
	role   Role
	seat   Seat
	who    Identity
	hook   DisconnectHook
	sink   func(ws.RoomStatePayload)
	logger zerolog.Logger

	controller *Controller
	watcher    *PresenceWatcher

	mu       sync.Mutex
	ctx      context.Context
	rng      *rand.Rand
	shuffled map[int][]string
	unsub    func()
	settling bool
	stopped  bool
}

func (s *Service) newParticipant(res JoinResult, who Identity, hook DisconnectHook, sink func(ws.RoomStatePayload)) *Participant {
	p := &Participant{
		svc:      s,
		roomID:   res.RoomID,
		role:     res.Role,
		seat:     res.Seat,
		who:      who,
		hook:     hook,
		sink:     sink,
		logger:   s.logger.With().Str("room_id", res.RoomID).Str("role", res.Role.String()).Str("student_id", who.StudentID).Logger(),
		ctx:      context.Background(),
		rng:      s.newSessionRand(),
		shuffled: make(map[int][]string),
	}
	p.watcher = NewPresenceWatcher(res.RoomID, s.store, s.clock, s.cfg.DisconnectGrace, watchedSeats(res.Role), s.logger)
	if res.Role == RoleAuthority {
		p.controller = NewController(res.RoomID, s.store, s.clock, s.cfg, s.engine, s.logger)
	}
	return p
}

// Role returns the session's role.
func (p *Participant) Role() Role { return p.role }

// Seat returns the held seat, NoSeat for observers.
func (p *Participant) Seat() Seat { return p.seat }

// RoomID returns the attached room.
func (p *Participant) RoomID() string { return p.roomID }

// Start subscribes to the room record.
func (p *Participant) Start(ctx context.Context) error {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()
	p.watcher.WithContext(ctx)
	if p.controller != nil {
		p.controller.WithContext(ctx)
	}

	unsub, err := p.svc.store.Subscribe(ctx, RoomPath(p.roomID), p.onSnapshot)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		unsub()
		return nil
	}
	p.unsub = unsub
	p.mu.Unlock()
	return nil
}

func (p *Participant) onSnapshot(snap store.Snapshot) {
	room, err := decodeRoom(snap.Value)
	if err != nil {
		p.logger.Warn().Err(err).Msg("skip undecodable room snapshot")
		return
	}
	if room == nil {
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	options := p.optionsLocked(*room)
	settle := p.role != RoleObserver && room.GameOver && !room.StatsSaved &&
		ResponsibleSeat(*room) == p.seat && room.Players[p.seat].Identity == p.who.StudentID && !p.settling
	if settle {
		p.settling = true
	}
	ctx := p.ctx
	p.mu.Unlock()

	if p.controller != nil {
		p.controller.Observe(*room)
	}
	p.watcher.Observe(*room)

	if settle {
		if _, _, err := p.svc.settler.Settle(ctx, p.roomID); err != nil {
			p.logger.Error().Err(err).Msg("settlement failed")
			p.mu.Lock()
			p.settling = false
			p.mu.Unlock()
		}
	}

	if p.sink != nil {
		p.sink(buildView(p.roomID, *room, p.role, p.svc.bank, options, p.svc.cfg.MaxQuestions))
	}
}

// optionsLocked shuffles the current question's options once per round for this session.
func (p *Participant) optionsLocked(room Room) []string {
	if opts, ok := p.shuffled[room.CurrentIdx]; ok {
		return opts
	}
	q, ok := currentQuestion(room, p.svc.bank)
	if !ok {
		return nil
	}
	opts := append([]string(nil), q.Options...)
	p.rng.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
	p.shuffled[room.CurrentIdx] = opts
	return opts
}

// Submit stores the seat's answer for the current round. It returns the round index answered.
func (p *Participant) Submit(ctx context.Context, option string) (int, error) {
	if p.role == RoleObserver {
		return 0, ErrNotPlayer
	}

	var (
		round   int
		correct bool
		hasQ    bool
		q       question.Question
	)
	_, _, err := transactRoom(ctx, p.svc.store, p.roomID, func(cur *Room) (*Room, error) {
		switch {
		case cur == nil:
			return nil, ErrUnknownRoom
		case cur.GameOver:
			return nil, ErrMatchOver
		case cur.ShowResult:
			return nil, ErrRoundClosed
		case !cur.OpponentJoined():
			return nil, ErrOpponentMissing
		case cur.Players[p.seat].Identity != p.who.StudentID:
			return nil, ErrNotSeatHolder
		case cur.Selections[p.seat] != nil:
			return nil, ErrAlreadyAnswered
		}
		q, hasQ = currentQuestion(*cur, p.svc.bank)
		if !hasQ || !q.HasOption(option) {
			return nil, ErrUnknownOption
		}
		round = cur.CurrentIdx
		correct = q.IsCorrect(option)
		cur.Selections[p.seat] = &Selection{Text: option, IsCorrect: correct, Time: cur.TimeLeft}
		return cur, nil
	})
	if err != nil {
		return 0, err
	}

	metrics.AnswersSubmitted.WithLabelValues(strconv.FormatBool(correct)).Inc()
	p.logger.Info().Int("round", round).Bool("correct", correct).Msg("answer submitted")
	if p.svc.stats != nil && hasQ {
		if err := p.svc.stats.Record(ctx, q, correct); err != nil {
			p.logger.Warn().Err(err).Msg("failed to record question stats")
		}
	}
	return round, nil
}

// Forfeit concedes the match on behalf of the seat.
func (p *Participant) Forfeit(ctx context.Context) error {
	if p.role == RoleObserver {
		return ErrNotPlayer
	}
	committed, err := forfeitRoom(ctx, p.svc.store, p.roomID, p.seat, nil)
	if err != nil {
		return err
	}
	if !committed {
		return ErrMatchOver
	}
	metrics.Forfeits.WithLabelValues("voluntary").Inc()
	p.logger.Info().Str("seat", string(p.seat)).Msg("seat forfeited")
	return nil
}

// Leave detaches from the room. Leaving a running match forfeits it; leaving after the match or
// before an opponent arrived just clears presence. It reports whether the leave forfeited.
func (p *Participant) Leave(ctx context.Context) (bool, error) {
	defer p.Stop()
	if p.role == RoleObserver {
		return false, nil
	}

	room, err := loadRoom(ctx, p.svc.store, p.roomID)
	if err != nil {
		return false, fmt.Errorf("load room: %w", err)
	}
	if room == nil || room.Players[p.seat].Identity != p.who.StudentID {
		p.cancelHook()
		return false, nil
	}

	forfeited := false
	if !room.GameOver && room.OpponentJoined() {
		err := p.Forfeit(ctx)
		if err != nil && !errors.Is(err, ErrMatchOver) {
			return false, err
		}
		forfeited = err == nil
	}
	if err := p.svc.store.Set(ctx, presencePath(p.roomID, p.seat), false); err != nil {
		return forfeited, fmt.Errorf("clear presence: %w", err)
	}
	p.cancelHook()
	return forfeited, nil
}

func (p *Participant) cancelHook() {
	if p.hook != nil {
		p.hook.Cancel(presencePath(p.roomID, p.seat))
	}
}

// Stop detaches the subscription and cancels every timer of this session.
func (p *Participant) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if p.controller != nil {
		p.controller.Stop()
	}
	p.watcher.Stop()
}
