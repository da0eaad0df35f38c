package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answeredRoom(showResult bool) Room {
	r := newRoom([]int{0, 1, 2}, Identity{StudentID: "01", DisplayName: "A"}, 30, 0)
	r.Players[SeatP2] = PlayerSlot{Presence: true, Identity: "02", DisplayName: "B"}
	r.Selections[SeatP1] = &Selection{Text: "right-0", IsCorrect: true, Time: 20}
	r.Selections[SeatP2] = &Selection{Text: "wrong-0", IsCorrect: false, Time: 18}
	r.ShowResult = showResult
	return *r
}

func TestBuildView_HidesOpponentUntilReveal(t *testing.T) {
	bank := testBank(3)
	view := buildView("1", answeredRoom(false), RoleParticipant, bank, nil, 3)

	assert.Equal(t, string(PhaseInRound), view.Phase)
	assert.Equal(t, "participant", view.Role)
	assert.Equal(t, "p2", view.Seat)
	require.NotNil(t, view.Question)
	assert.Empty(t, view.Question.Answer)
	assert.Equal(t, []string{"right-0", "wrong-0", "other-0"}, view.Question.Options)

	require.Len(t, view.Players, 2)
	opp, own := view.Players[0], view.Players[1]
	assert.True(t, opp.Answered)
	assert.Empty(t, opp.Selection)
	assert.Nil(t, opp.Correct)
	assert.Equal(t, "wrong-0", own.Selection)
	assert.Nil(t, own.Correct)
	assert.Nil(t, view.Result)
}

func TestBuildView_RevealAndObserver(t *testing.T) {
	bank := testBank(3)

	view := buildView("1", answeredRoom(true), RoleAuthority, bank, []string{"other-0", "right-0", "wrong-0"}, 3)
	assert.Equal(t, string(PhaseRevealing), view.Phase)
	assert.Equal(t, "right-0", view.Question.Answer)
	assert.Equal(t, []string{"other-0", "right-0", "wrong-0"}, view.Question.Options)
	require.NotNil(t, view.Players[1].Correct)
	assert.False(t, *view.Players[1].Correct)
	assert.Equal(t, "wrong-0", view.Players[1].Selection)

	view = buildView("1", answeredRoom(false), RoleObserver, bank, nil, 3)
	assert.Empty(t, view.Seat)
	assert.Equal(t, "right-0", view.Question.Answer)
	assert.Equal(t, "right-0", view.Players[0].Selection)
	assert.Equal(t, "wrong-0", view.Players[1].Selection)
}

func TestBuildView_GameOverResult(t *testing.T) {
	room := answeredRoom(true)
	room.GameOver = true
	room.Scores[SeatP1] = 400
	room.Scores[SeatP2] = 100

	view := buildView("1", room, RoleParticipant, testBank(3), nil, 3)
	assert.Equal(t, string(PhaseGameOver), view.Phase)
	require.NotNil(t, view.Result)
	assert.Equal(t, "win", view.Result.Outcome)
	assert.Equal(t, "p1", view.Result.Winner)
}
