package match

import (
	"github.com/gokatarajesh/quiz-duel/internal/question"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// buildView renders room for one session. Opponent selections and the answer stay hidden until
// the round is revealed, except for observers who see both selections live.
func buildView(roomID string, room Room, role Role, bank QuestionBank, options []string, total int) ws.RoomStatePayload {
	room.normalize()
	phase := room.Phase()
	revealed := phase == PhaseRevealing || phase == PhaseGameOver
	own := role.Seat()

	view := ws.RoomStatePayload{
		RoomID:      roomID,
		Role:        role.String(),
		Seat:        string(own),
		Phase:       string(phase),
		Round:       room.CurrentIdx,
		TotalRounds: total,
		TimeLeft:    room.TimeLeft,
		ForfeitedBy: string(room.ForfeitedBy),
	}

	if q, ok := currentQuestion(room, bank); ok {
		qv := &ws.QuestionPayload{Prompt: q.Prompt, Category: q.Category, Options: options}
		if qv.Options == nil {
			qv.Options = append([]string(nil), q.Options...)
		}
		if revealed || role == RoleObserver {
			qv.Answer = q.Answer
		}
		view.Question = qv
	}

	for _, seat := range Seats {
		slot := room.Players[seat]
		pv := ws.RoomPlayerPayload{
			Seat:        string(seat),
			StudentID:   slot.Identity,
			DisplayName: slot.DisplayName,
			Present:     slot.Presence,
			Score:       room.Scores[seat],
			Streak:      room.Streaks[seat],
		}
		if sel := room.Selections[seat]; sel != nil {
			pv.Answered = true
			if seat == own || revealed || role == RoleObserver {
				pv.Selection = sel.Text
			}
			if revealed || role == RoleObserver {
				correct := sel.IsCorrect
				pv.Correct = &correct
			}
		}
		view.Players = append(view.Players, pv)
	}

	if room.GameOver {
		out := DecideOutcome(room)
		view.Result = &ws.MatchResultPayload{Outcome: string(out.Kind), Winner: string(out.Winner)}
	}
	return view
}

func currentQuestion(room Room, bank QuestionBank) (question.Question, bool) {
	if bank == nil || room.CurrentIdx < 0 || room.CurrentIdx >= len(room.QuestionOrder) {
		return question.Question{}, false
	}
	return bank.Question(room.QuestionOrder[room.CurrentIdx])
}
