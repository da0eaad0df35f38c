package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipant_SubmitRules(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.enter("1", h.student("01"))

	_, err := a.p.Submit(h.ctx, h.option("1", true))
	assert.ErrorIs(t, err, ErrOpponentMissing)

	b := h.enter("1", h.student("02"))
	v := h.enter("1", Identity{StudentID: "TEACHER", Teacher: true})

	_, err = v.p.Submit(h.ctx, h.option("1", true))
	assert.ErrorIs(t, err, ErrNotPlayer)
	assert.ErrorIs(t, v.p.Forfeit(h.ctx), ErrNotPlayer)

	_, err = a.p.Submit(h.ctx, "not an option")
	assert.ErrorIs(t, err, ErrUnknownOption)

	h.clk.Advance(4 * time.Second)
	_, err = a.p.Submit(h.ctx, h.option("1", false))
	require.NoError(t, err)
	sel := h.room("1").Selections[SeatP1]
	require.NotNil(t, sel)
	assert.Equal(t, Selection{Text: h.option("1", false), IsCorrect: false, Time: 26}, *sel)

	_, err = a.p.Submit(h.ctx, h.option("1", true))
	assert.ErrorIs(t, err, ErrAlreadyAnswered)

	_, err = b.p.Submit(h.ctx, h.option("1", true))
	require.NoError(t, err)
	_, err = b.p.Submit(h.ctx, h.option("1", true))
	assert.ErrorIs(t, err, ErrRoundClosed)

	require.NoError(t, b.p.Forfeit(h.ctx))
	_, err = a.p.Submit(h.ctx, h.option("1", true))
	assert.ErrorIs(t, err, ErrMatchOver)
}

func TestParticipant_LeaveBeforeOpponentClearsPresence(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.enter("1", h.student("01"))
	require.NotEmpty(t, a.actions.Pending())

	forfeited, err := a.p.Leave(h.ctx)
	require.NoError(t, err)
	assert.False(t, forfeited)
	assert.False(t, h.room("1").Players[SeatP1].Presence)
	assert.Empty(t, a.actions.Pending(), "clean leave cancels the disconnect write")

	// A second student now starts a fresh room from p1.
	c := h.enter("1", h.student("03"))
	assert.Equal(t, SeatP1, c.res.Seat)
}

func TestParticipant_LeaveMidMatchForfeits(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.enter("1", h.student("01"))
	b := h.enter("1", h.student("02"))

	forfeited, err := b.p.Leave(h.ctx)
	require.NoError(t, err)
	assert.True(t, forfeited)

	room := h.room("1")
	assert.True(t, room.GameOver)
	assert.Equal(t, SeatP2, room.ForfeitedBy)
	assert.False(t, room.Players[SeatP2].Presence)
	assert.True(t, room.StatsSaved, "remaining seat settles")
	assert.Equal(t, 5, h.profile("02").Energy)

	forfeited, err = a.p.Leave(h.ctx)
	require.NoError(t, err)
	assert.False(t, forfeited, "leaving a finished match is not a forfeit")
	assert.Zero(t, h.clk.Pending())
}

func TestParticipant_ObserverLeave(t *testing.T) {
	h := newHarness(t, testConfig())
	h.enter("1", h.student("01"))
	h.enter("1", h.student("02"))
	v := h.enter("1", Identity{StudentID: "TEACHER", Teacher: true})

	forfeited, err := v.p.Leave(h.ctx)
	require.NoError(t, err)
	assert.False(t, forfeited)
	assert.False(t, h.room("1").GameOver)
}

func TestParticipant_ShufflesOncePerRound(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.enter("1", h.student("01"))
	h.enter("1", h.student("02"))

	first := a.lastView().Question.Options
	h.clk.Advance(3 * time.Second)
	assert.Equal(t, first, a.lastView().Question.Options, "order is stable within a round")

	q, ok := currentQuestion(h.room("1"), h.bank)
	require.True(t, ok)
	assert.ElementsMatch(t, q.Options, first)
}

func TestParticipant_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.enter("1", h.student("01"))
	h.enter("1", h.student("02"))

	a.p.Stop()
	a.p.Stop()
	n := len(a.views)
	h.clk.Advance(5 * time.Second)
	assert.Len(t, a.views, n, "stopped sessions receive nothing")
	assert.Zero(t, h.clk.Pending())
}
