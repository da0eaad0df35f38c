package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/clock"
	"github.com/gokatarajesh/quiz-duel/internal/match/scoring"
	"github.com/gokatarajesh/quiz-duel/internal/metrics"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

const (
	tickInterval  = time.Second
	retryInterval = time.Second
)

// Controller is the round state machine of one room. Only the session holding p1 runs one.
//
// The controller keeps a local phase but every write is a transaction that re-checks the stored
// record, so a stale local view can delay a transition but never repeat one.
type Controller struct {
	roomID string
	store  RoomStore
	clock  clock.Scheduler
	cfg    Config
	engine *scoring.Engine
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	unsub   func()
	started bool
	stopped bool
	phase   Phase
	round   int
	ending  bool
	tick    clock.Timer
	reveal  clock.Timer
}

// NewController creates the state machine for roomID.
func NewController(roomID string, s RoomStore, sched clock.Scheduler, cfg Config, engine *scoring.Engine, logger zerolog.Logger) *Controller {
	return &Controller{
		roomID: roomID,
		store:  s,
		clock:  sched,
		cfg:    cfg,
		engine: engine,
		logger: logger.With().Str("component", "match_controller").Str("room_id", roomID).Logger(),
		ctx:    context.Background(),
		phase:  PhaseWaitingForOpponent,
	}
}

// WithContext sets the context timer-driven writes run under.
func (c *Controller) WithContext(ctx context.Context) *Controller {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	return c
}

// Start subscribes the controller to its room. Sessions that already subscribe feed Observe
// themselves instead.
func (c *Controller) Start(ctx context.Context) error {
	c.WithContext(ctx)

	unsub, err := c.store.Subscribe(ctx, RoomPath(c.roomID), func(snap store.Snapshot) {
		room, err := decodeRoom(snap.Value)
		if err != nil {
			c.logger.Warn().Err(err).Msg("skip undecodable room snapshot")
			return
		}
		if room != nil {
			c.Observe(*room)
		}
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsub = unsub
	c.mu.Unlock()
	return nil
}

// Phase returns the controller's current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Observe feeds the latest room snapshot to the state machine.
func (c *Controller) Observe(room Room) {
	room.normalize()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if room.GameOver {
		c.phase = PhaseGameOver
		c.stopTimersLocked()
		c.mu.Unlock()
		return
	}

	if !c.started {
		c.started = true
		c.resumeLocked(room)
	}

	endRound := -1
	switch c.phase {
	case PhaseWaitingForOpponent:
		if p2 := room.Players[SeatP2]; p2.Presence && p2.Identity != "" {
			c.logger.Info().Str("opponent", p2.Identity).Msg("opponent joined, starting round")
			c.enterRoundLocked(room.CurrentIdx)
		}
	case PhaseInRound:
		if room.CurrentIdx == c.round && room.BothAnswered() && !room.ShowResult && !c.ending {
			endRound = c.round
		}
	}
	c.mu.Unlock()

	if endRound >= 0 {
		c.endRound(endRound, "both_answered")
	}
}

// resumeLocked derives the phase from the first snapshot so a reclaimed p1 continues the match.
func (c *Controller) resumeLocked(room Room) {
	switch room.Phase() {
	case PhaseInRound:
		c.enterRoundLocked(room.CurrentIdx)
	case PhaseRevealing:
		c.phase = PhaseRevealing
		c.round = room.CurrentIdx
		round := c.round
		c.reveal = c.clock.AfterFunc(c.cfg.RevealDelay, func() { c.advance(round) })
	default:
		c.phase = room.Phase()
	}
}

func (c *Controller) enterRoundLocked(round int) {
	c.phase = PhaseInRound
	c.round = round
	c.ending = false
	c.scheduleTickLocked()
}

func (c *Controller) scheduleTickLocked() {
	if c.tick != nil {
		c.tick.Stop()
	}
	c.tick = c.clock.AfterFunc(tickInterval, c.onTick)
}

func (c *Controller) onTick() {
	c.mu.Lock()
	c.tick = nil
	if c.stopped || c.phase != PhaseInRound || c.ending {
		c.mu.Unlock()
		return
	}
	round, ctx := c.round, c.ctx
	c.mu.Unlock()

	var timedOut, answered bool
	_, committed, err := transactRoom(ctx, c.store, c.roomID, func(cur *Room) (*Room, error) {
		timedOut, answered = false, false
		if cur == nil || cur.GameOver || cur.CurrentIdx != round || cur.ShowResult {
			return nil, store.ErrAbort
		}
		if cur.BothAnswered() {
			answered = true
			return nil, store.ErrAbort
		}
		if cur.TimeLeft > 0 {
			cur.TimeLeft--
		}
		timedOut = cur.TimeLeft <= 0
		return cur, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("round", round).Msg("tick write failed, retrying")
		c.mu.Lock()
		if !c.stopped && c.phase == PhaseInRound && c.round == round {
			c.scheduleTickLocked()
		}
		c.mu.Unlock()
		return
	}

	switch {
	case answered:
		c.endRound(round, "both_answered")
	case committed && timedOut:
		c.endRound(round, "timeout")
	case committed:
		c.mu.Lock()
		if !c.stopped && c.phase == PhaseInRound && c.round == round && !c.ending && c.tick == nil {
			c.scheduleTickLocked()
		}
		c.mu.Unlock()
	}
}

// endRound scores the round once and opens the reveal window.
func (c *Controller) endRound(round int, trigger string) {
	c.mu.Lock()
	if c.stopped || c.phase != PhaseInRound || c.round != round || c.ending {
		c.mu.Unlock()
		return
	}
	c.ending = true
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	ctx := c.ctx
	c.mu.Unlock()

	results := make(map[Seat]scoring.RoundResult, 2)
	room, committed, err := transactRoom(ctx, c.store, c.roomID, func(cur *Room) (*Room, error) {
		if cur == nil || cur.GameOver || cur.CurrentIdx != round || cur.ShowResult {
			return nil, store.ErrAbort
		}
		for _, seat := range Seats {
			sel := cur.Selections[seat]
			var res scoring.RoundResult
			if sel != nil {
				res = c.engine.ScoreRound(true, sel.IsCorrect, sel.Time, cur.Streaks[seat])
			}
			results[seat] = res
			cur.Scores[seat] += res.Points
			cur.Streaks[seat] = res.Streak
		}
		if trigger == "timeout" {
			cur.TimeLeft = 0
		}
		cur.ShowResult = true
		return cur, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("round", round).Msg("reveal write failed, retrying")
		c.mu.Lock()
		c.ending = false
		if !c.stopped {
			c.tick = c.clock.AfterFunc(retryInterval, func() { c.endRound(round, trigger) })
		}
		c.mu.Unlock()
		return
	}
	if committed {
		metrics.RoundsRevealed.WithLabelValues(trigger).Inc()
		c.logger.Info().
			Int("round", round).
			Str("trigger", trigger).
			Int("p1_points", results[SeatP1].Points).
			Int("p2_points", results[SeatP2].Points).
			Msg("round revealed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || room == nil {
		return
	}
	if room.GameOver {
		c.phase = PhaseGameOver
		c.stopTimersLocked()
		return
	}
	if room.ShowResult && room.CurrentIdx == round && c.phase == PhaseInRound && c.round == round {
		c.phase = PhaseRevealing
		c.reveal = c.clock.AfterFunc(c.cfg.RevealDelay, func() { c.advance(round) })
	}
}

// advance leaves the reveal window: next round or game over.
func (c *Controller) advance(round int) {
	c.mu.Lock()
	c.reveal = nil
	if c.stopped || c.phase != PhaseRevealing || c.round != round {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()

	room, committed, err := transactRoom(ctx, c.store, c.roomID, func(cur *Room) (*Room, error) {
		if cur == nil || cur.GameOver || cur.CurrentIdx != round || !cur.ShowResult {
			return nil, store.ErrAbort
		}
		total := len(cur.QuestionOrder)
		if total == 0 || total > c.cfg.MaxQuestions {
			total = c.cfg.MaxQuestions
		}
		if round+1 >= total {
			cur.GameOver = true
			return cur, nil
		}
		cur.CurrentIdx = round + 1
		cur.Selections = map[Seat]*Selection{SeatP1: nil, SeatP2: nil}
		cur.TimeLeft = c.cfg.roundSeconds()
		cur.ShowResult = false
		return cur, nil
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Warn().Err(err).Int("round", round).Msg("advance write failed, retrying")
		}
		c.mu.Lock()
		if !c.stopped {
			c.reveal = c.clock.AfterFunc(retryInterval, func() { c.advance(round) })
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || room == nil {
		return
	}
	switch {
	case room.GameOver:
		if committed && room.ForfeitedBy == NoSeat {
			c.logger.Info().Int("p1_score", room.Scores[SeatP1]).Int("p2_score", room.Scores[SeatP2]).Msg("match finished")
		}
		c.phase = PhaseGameOver
		c.stopTimersLocked()
	case room.CurrentIdx == round+1 && !room.ShowResult && c.phase == PhaseRevealing:
		c.enterRoundLocked(room.CurrentIdx)
	}
}

// Stop cancels every pending timer and detaches from the room.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.stopTimersLocked()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) stopTimersLocked() {
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	if c.reveal != nil {
		c.reveal.Stop()
		c.reveal = nil
	}
}
