package match

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/quiz-duel/internal/clock"
	"github.com/gokatarajesh/quiz-duel/internal/match/scoring"
	"github.com/gokatarajesh/quiz-duel/internal/store"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// Sampler draws a match's question order.
type Sampler interface {
	QuestionBank
	Sample(rng *rand.Rand, n int) ([]int, error)
}

// ServiceDeps are the collaborators of a match service. Stats and Results are optional.
type ServiceDeps struct {
	Store     RoomStore
	Bank      Sampler
	Profiles  ProfileService
	Stats     StatsRecorder
	Results   ResultRecorder
	Scheduler clock.Scheduler
	Rand      *rand.Rand
	Scoring   scoring.Config
}

// Service orchestrates seat assignment and owns the per-room building blocks.
type Service struct {
	store    RoomStore
	bank     Sampler
	profiles ProfileService
	stats    StatsRecorder
	settler  *Settler
	clock    clock.Scheduler
	engine   *scoring.Engine
	cfg      Config
	logger   zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// JoinResult describes the seat a join produced.
type JoinResult struct {
	RoomID string
	Role   Role
	Seat   Seat
}

// RoomSummary is one lobby entry.
type RoomSummary struct {
	RoomID  string              `json:"room_id"`
	Phase   Phase               `json:"phase"`
	Round   int                 `json:"round"`
	Players map[Seat]PlayerSlot `json:"players"`
}

// NewService creates a match service with all dependencies.
func NewService(deps ServiceDeps, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxQuestions <= 0 {
		cfg = DefaultConfig()
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = clock.Real()
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(sched.Now().UnixNano()))
	}
	scoringCfg := deps.Scoring
	if scoringCfg.PointsPerSecond == 0 {
		scoringCfg = scoring.DefaultConfig()
	}

	return &Service{
		store:    deps.Store,
		bank:     deps.Bank,
		profiles: deps.Profiles,
		stats:    deps.Stats,
		settler:  NewSettler(deps.Store, deps.Profiles, deps.Results, logger),
		clock:    sched,
		engine:   scoring.NewEngine(scoringCfg),
		cfg:      cfg,
		logger:   logger.With().Str("component", "match").Logger(),
		rng:      rng,
	}
}

// Config returns the match configuration in use.
func (s *Service) Config() Config { return s.cfg }

// Settler returns the match settler.
func (s *Service) Settler() *Settler { return s.settler }

func (s *Service) newSessionRand() *rand.Rand {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rand.New(rand.NewSource(s.rng.Int63()))
}

// Enter joins roomID and attaches a participant to the claimed seat.
func (s *Service) Enter(ctx context.Context, roomID string, who Identity, hook DisconnectHook, sink func(ws.RoomStatePayload)) (*Participant, JoinResult, error) {
	res, err := s.JoinRoom(ctx, roomID, who, hook)
	if err != nil {
		return nil, JoinResult{}, err
	}
	p, err := s.Attach(ctx, res, who, hook, sink)
	if err != nil {
		if relErr := s.Release(ctx, res, who, hook); relErr != nil {
			s.logger.Warn().Err(relErr).Str("room_id", roomID).Msg("release after failed attach")
		}
		return nil, JoinResult{}, err
	}
	return p, res, nil
}

// Attach starts the session's participant for a successful join, plus the round controller when
// the caller holds p1. sink receives one view per room snapshot.
func (s *Service) Attach(ctx context.Context, res JoinResult, who Identity, hook DisconnectHook, sink func(ws.RoomStatePayload)) (*Participant, error) {
	p := s.newParticipant(res, who, hook, sink)
	if err := p.Start(ctx); err != nil {
		p.Stop()
		return nil, fmt.Errorf("start participant: %w", err)
	}
	return p, nil
}

// Rooms summarises every numbered room for the lobby.
func (s *Service) Rooms(ctx context.Context) ([]RoomSummary, error) {
	ids := RoomIDs(s.cfg.TotalRooms)
	out := make([]RoomSummary, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			sum, err := s.Room(gctx, id)
			if err != nil {
				return err
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Room summarises one room.
func (s *Service) Room(ctx context.Context, roomID string) (RoomSummary, error) {
	if !validRoomID(roomID, s.cfg.TotalRooms) {
		return RoomSummary{}, ErrUnknownRoom
	}
	room, err := loadRoom(ctx, s.store, roomID)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("load room %s: %w", roomID, err)
	}
	sum := RoomSummary{RoomID: roomID, Phase: PhaseWaitingForOpponent, Players: map[Seat]PlayerSlot{SeatP1: {}, SeatP2: {}}}
	if room != nil {
		sum.Phase = room.Phase()
		sum.Round = room.CurrentIdx
		for _, seat := range Seats {
			sum.Players[seat] = room.Players[seat]
		}
	}
	return sum, nil
}

// NewDisconnectActions creates the on-disconnect action set of one session.
func (s *Service) NewDisconnectActions() *store.DisconnectActions {
	return store.NewDisconnectActions(s.store)
}
