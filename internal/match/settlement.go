package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/quiz-duel/internal/leaderboard"
	"github.com/gokatarajesh/quiz-duel/internal/metrics"
	"github.com/gokatarajesh/quiz-duel/internal/profile"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

// OutcomeKind classifies how a match ended.
type OutcomeKind string

const (
	OutcomeForfeit OutcomeKind = "forfeit"
	OutcomeWin     OutcomeKind = "win"
	OutcomeTie     OutcomeKind = "tie"
)

// Energy and win changes applied at settlement.
const (
	ForfeitPenaltyEnergy = -5
	ForfeitRewardEnergy  = 2
	WinRewardEnergy      = 2
	LossPenaltyEnergy    = -1
)

// Outcome is the decided result of a finished match and the profile change per seat.
type Outcome struct {
	Kind   OutcomeKind
	Winner Seat
	Loser  Seat
	Deltas map[Seat]profile.Delta
}

// ResultRecorder receives per-player match results after settlement.
type ResultRecorder interface {
	RecordResult(ctx context.Context, req leaderboard.RecordRequest) error
}

// ResponsibleSeat returns the seat that settles a finished match: the non-forfeiting seat after a
// forfeit, p1 otherwise.
func ResponsibleSeat(room Room) Seat {
	if room.ForfeitedBy.Valid() {
		return room.ForfeitedBy.Opponent()
	}
	return SeatP1
}

// DecideOutcome computes the outcome of a finished room.
func DecideOutcome(room Room) Outcome {
	room.normalize()
	out := Outcome{Deltas: make(map[Seat]profile.Delta, 2)}

	if room.ForfeitedBy.Valid() {
		out.Kind = OutcomeForfeit
		out.Loser = room.ForfeitedBy
		out.Winner = room.ForfeitedBy.Opponent()
		out.Deltas[out.Loser] = profile.Delta{Energy: ForfeitPenaltyEnergy}
		out.Deltas[out.Winner] = profile.Delta{Wins: 1, Energy: ForfeitRewardEnergy}
		return out
	}

	p1, p2 := room.Scores[SeatP1], room.Scores[SeatP2]
	switch {
	case p1 > p2:
		out.Kind, out.Winner, out.Loser = OutcomeWin, SeatP1, SeatP2
	case p2 > p1:
		out.Kind, out.Winner, out.Loser = OutcomeWin, SeatP2, SeatP1
	default:
		out.Kind = OutcomeTie
	}
	for _, seat := range Seats {
		d := profile.Delta{Score: room.Scores[seat]}
		switch seat {
		case out.Winner:
			d.Wins = 1
			d.Energy = WinRewardEnergy
		case out.Loser:
			d.Energy = LossPenaltyEnergy
		}
		out.Deltas[seat] = d
	}
	return out
}

// Settler applies a finished match to both players' profiles exactly once.
type Settler struct {
	store    RoomStore
	profiles ProfileService
	results  ResultRecorder
	logger   zerolog.Logger
}

// NewSettler creates a settler. results may be nil.
func NewSettler(s RoomStore, profiles ProfileService, results ResultRecorder, logger zerolog.Logger) *Settler {
	return &Settler{
		store:    s,
		profiles: profiles,
		results:  results,
		logger:   logger.With().Str("component", "settlement").Logger(),
	}
}

// Settle flips statsSaved with a compare-and-set and, only when this call won it, applies the
// outcome. The returned bool reports whether this call settled the match.
func (s *Settler) Settle(ctx context.Context, roomID string) (Outcome, bool, error) {
	var settled Room
	_, committed, err := transactRoom(ctx, s.store, roomID, func(cur *Room) (*Room, error) {
		if cur == nil {
			return nil, ErrUnknownRoom
		}
		if !cur.GameOver {
			return nil, ErrNotFinished
		}
		if cur.StatsSaved {
			return nil, store.ErrAbort
		}
		cur.StatsSaved = true
		settled = *cur
		return cur, nil
	})
	if err != nil {
		return Outcome{}, false, fmt.Errorf("settle room %s: %w", roomID, err)
	}
	if !committed {
		return Outcome{}, false, nil
	}

	out := DecideOutcome(settled)
	logger := s.logger.With().Str("room_id", roomID).Str("outcome", string(out.Kind)).Logger()

	g, gctx := errgroup.WithContext(ctx)
	for _, seat := range Seats {
		seat := seat
		studentID := settled.Players[seat].Identity
		delta := out.Deltas[seat]
		if studentID == "" || delta.IsZero() {
			continue
		}
		g.Go(func() error {
			if _, err := s.profiles.Apply(gctx, studentID, delta); err != nil {
				return fmt.Errorf("apply %s result to %s: %w", seat, studentID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("settlement profile update failed")
		return out, true, err
	}

	metrics.MatchesSettled.WithLabelValues(string(out.Kind)).Inc()
	if out.Kind == OutcomeForfeit {
		metrics.Forfeits.WithLabelValues("settled").Inc()
	}
	s.recordResults(ctx, roomID, settled, out, logger)

	logger.Info().
		Str("winner", string(out.Winner)).
		Int("p1_score", settled.Scores[SeatP1]).
		Int("p2_score", settled.Scores[SeatP2]).
		Msg("match settled")
	return out, true, nil
}

func (s *Settler) recordResults(ctx context.Context, roomID string, room Room, out Outcome, logger zerolog.Logger) {
	if s.results == nil {
		return
	}
	var errs []error
	for _, seat := range Seats {
		slot := room.Players[seat]
		if slot.Identity == "" {
			continue
		}
		err := s.results.RecordResult(ctx, leaderboard.RecordRequest{
			StudentID:   slot.Identity,
			DisplayName: slot.DisplayName,
			Score:       out.Deltas[seat].Score,
			Won:         out.Winner == seat,
			RoomID:      roomID,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn().Err(err).Msg("failed to record leaderboard result")
	}
}
