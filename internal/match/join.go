package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/gokatarajesh/quiz-duel/internal/metrics"
	"github.com/gokatarajesh/quiz-duel/internal/question"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

// JoinRoom assigns the caller a role in roomID. Teachers always observe. Students claim p1 or p2
// inside one transaction, and the disconnect hook clears their presence if the session drops.
func (s *Service) JoinRoom(ctx context.Context, roomID string, who Identity, hook DisconnectHook) (JoinResult, error) {
	if !validRoomID(roomID, s.cfg.TotalRooms) {
		return JoinResult{}, ErrUnknownRoom
	}
	logger := s.logger.With().Str("room_id", roomID).Str("student_id", who.StudentID).Logger()

	if who.Teacher {
		metrics.RoomJoins.WithLabelValues(RoleObserver.String()).Inc()
		logger.Info().Msg("teacher joined as observer")
		return JoinResult{RoomID: roomID, Role: RoleObserver}, nil
	}

	p, err := s.profiles.Get(ctx, who.StudentID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("load profile: %w", err)
	}
	if p.Energy <= 0 {
		s.reject(ErrEnergyExhausted)
		return JoinResult{}, ErrEnergyExhausted
	}
	if who.DisplayName == "" {
		who.DisplayName = p.DisplayName
	}

	order, err := s.drawOrder()
	if err != nil {
		return JoinResult{}, err
	}
	now := s.clock.Now().UnixMilli()

	var seat Seat
	_, _, err = transactRoom(ctx, s.store, roomID, func(cur *Room) (*Room, error) {
		seat = NoSeat
		next, claimed, err := claimSeat(cur, who, order, s.cfg.roundSeconds(), now)
		if err != nil {
			return nil, err
		}
		seat = claimed
		return next, nil
	})
	if err != nil {
		s.reject(err)
		logger.Info().Err(err).Msg("join rejected")
		return JoinResult{}, err
	}

	if hook != nil {
		hook.OnDisconnectSet(presencePath(roomID, seat), false)
	}
	role := RoleForSeat(seat)
	metrics.RoomJoins.WithLabelValues(role.String()).Inc()
	logger.Info().Str("seat", string(seat)).Msg("seat claimed")
	return JoinResult{RoomID: roomID, Role: role, Seat: seat}, nil
}

// Release gives back a seat claimed by JoinRoom that never got a live participant: the holder's
// presence is cleared and the pending disconnect write dropped, so the same student can retry.
func (s *Service) Release(ctx context.Context, res JoinResult, who Identity, hook DisconnectHook) error {
	if res.Seat == NoSeat {
		return nil
	}
	path := presencePath(res.RoomID, res.Seat)
	if hook != nil {
		hook.Cancel(path)
	}
	_, _, err := transactRoom(ctx, s.store, res.RoomID, func(cur *Room) (*Room, error) {
		if cur == nil || cur.Players[res.Seat].Identity != who.StudentID || !cur.Players[res.Seat].Presence {
			return nil, store.ErrAbort
		}
		slot := cur.Players[res.Seat]
		slot.Presence = false
		cur.Players[res.Seat] = slot
		return cur, nil
	})
	if err != nil {
		return fmt.Errorf("release seat %s of room %s: %w", res.Seat, res.RoomID, err)
	}
	return nil
}

// claimSeat applies the seat rules to the current record.
func claimSeat(cur *Room, who Identity, order []int, roundSeconds int, now int64) (*Room, Seat, error) {
	if cur != nil {
		if seat := cur.SeatOf(who.StudentID); seat != NoSeat && !cur.GameOver {
			if cur.Players[seat].Presence {
				return nil, NoSeat, ErrAlreadySeated
			}
			slot := cur.Players[seat]
			slot.Presence = true
			cur.Players[seat] = slot
			return cur, seat, nil
		}
	}

	if cur == nil || !cur.Players[SeatP1].Presence {
		if cur != nil && !cur.GameOver && cur.OpponentJoined() && cur.Players[SeatP2].Presence {
			return nil, NoSeat, ErrMatchInProgress
		}
		return newRoom(order, who, roundSeconds, now), SeatP1, nil
	}

	if cur.Players[SeatP1].Identity == who.StudentID {
		return nil, NoSeat, ErrAlreadySeated
	}
	if cur.Players[SeatP2].Presence {
		return nil, NoSeat, ErrRoomFull
	}
	if cur.GameOver || cur.CurrentIdx > 0 || cur.ShowResult {
		return nil, NoSeat, ErrMatchInProgress
	}
	if cur.Players[SeatP2].Identity != who.StudentID {
		// A replacement starts from nothing; the previous holder's round state is discarded.
		cur.Scores[SeatP2] = 0
		cur.Streaks[SeatP2] = 0
		cur.Selections[SeatP2] = nil
	}
	cur.Players[SeatP2] = PlayerSlot{Presence: true, Identity: who.StudentID, DisplayName: who.DisplayName}
	return cur, SeatP2, nil
}

func (s *Service) drawOrder() ([]int, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	order, err := s.bank.Sample(s.rng, s.cfg.MaxQuestions)
	if errors.Is(err, question.ErrBankTooSmall) {
		return nil, fmt.Errorf("%w: %v", ErrQuestionBankTooSmall, err)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) reject(err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrRoomFull):
		reason = "room_full"
	case errors.Is(err, ErrMatchInProgress):
		reason = "in_progress"
	case errors.Is(err, ErrEnergyExhausted):
		reason = "energy"
	case errors.Is(err, ErrAlreadySeated):
		reason = "already_seated"
	}
	metrics.JoinRejections.WithLabelValues(reason).Inc()
}
