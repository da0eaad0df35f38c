package match

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-duel/internal/leaderboard"
	"github.com/gokatarajesh/quiz-duel/internal/profile"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

type mockResults struct {
	mock.Mock
}

func (m *mockResults) RecordResult(ctx context.Context, req leaderboard.RecordRequest) error {
	return m.Called(ctx, req).Error(0)
}

func finishedRoom(p1, p2 int, forfeitedBy Seat) *Room {
	r := newRoom([]int{0, 1, 2}, Identity{StudentID: "01", DisplayName: "A"}, 30, 0)
	r.Players[SeatP2] = PlayerSlot{Presence: true, Identity: "02", DisplayName: "B"}
	r.Scores[SeatP1], r.Scores[SeatP2] = p1, p2
	r.GameOver = true
	r.ForfeitedBy = forfeitedBy
	return r
}

func TestDecideOutcome(t *testing.T) {
	out := DecideOutcome(*finishedRoom(500, 300, NoSeat))
	assert.Equal(t, OutcomeWin, out.Kind)
	assert.Equal(t, SeatP1, out.Winner)
	assert.Equal(t, profile.Delta{Wins: 1, Score: 500, Energy: WinRewardEnergy}, out.Deltas[SeatP1])
	assert.Equal(t, profile.Delta{Score: 300, Energy: LossPenaltyEnergy}, out.Deltas[SeatP2])

	out = DecideOutcome(*finishedRoom(100, 100, NoSeat))
	assert.Equal(t, OutcomeTie, out.Kind)
	assert.Equal(t, NoSeat, out.Winner)
	assert.Equal(t, profile.Delta{Score: 100}, out.Deltas[SeatP1])
	assert.Equal(t, profile.Delta{Score: 100}, out.Deltas[SeatP2])

	out = DecideOutcome(*finishedRoom(900, 0, SeatP1))
	assert.Equal(t, OutcomeForfeit, out.Kind)
	assert.Equal(t, SeatP2, out.Winner)
	assert.Equal(t, SeatP1, out.Loser)
	assert.Equal(t, profile.Delta{Energy: ForfeitPenaltyEnergy}, out.Deltas[SeatP1], "forfeit keeps no score")
	assert.Equal(t, profile.Delta{Wins: 1, Energy: ForfeitRewardEnergy}, out.Deltas[SeatP2])
}

func TestResponsibleSeat(t *testing.T) {
	assert.Equal(t, SeatP1, ResponsibleSeat(*finishedRoom(0, 0, NoSeat)))
	assert.Equal(t, SeatP1, ResponsibleSeat(*finishedRoom(0, 0, SeatP2)))
	assert.Equal(t, SeatP2, ResponsibleSeat(*finishedRoom(0, 0, SeatP1)))
}

func newSettlerFixture(t *testing.T, room *Room, results ResultRecorder) (*Settler, *profile.Service, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	profiles := profile.NewService(mem, profile.Options{StartingEnergy: 10, DailyEnergyFloor: 10}, zerolog.Nop())
	for _, id := range []string{"01", "02"} {
		_, err := profiles.Login(ctx, id, id)
		require.NoError(t, err)
	}
	if room != nil {
		require.NoError(t, mem.Set(ctx, RoomPath("1"), room))
	}
	return NewSettler(mem, profiles, results, zerolog.Nop()), profiles, mem
}

func TestSettle_AppliesOnce(t *testing.T) {
	ctx := context.Background()
	results := new(mockResults)
	results.On("RecordResult", mock.Anything, leaderboard.RecordRequest{StudentID: "01", DisplayName: "A", Score: 500, Won: true, RoomID: "1"}).Return(nil).Once()
	results.On("RecordResult", mock.Anything, leaderboard.RecordRequest{StudentID: "02", DisplayName: "B", Score: 300, Won: false, RoomID: "1"}).Return(nil).Once()
	settler, profiles, mem := newSettlerFixture(t, finishedRoom(500, 300, NoSeat), results)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := settler.Settle(ctx, "1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, settled)

	p1, err := profiles.Get(ctx, "01")
	require.NoError(t, err)
	assert.Equal(t, profile.Profile{DisplayName: "01", TotalWins: 1, TotalScore: 500, Energy: 12, LastLoginDate: p1.LastLoginDate}, p1)
	p2, err := profiles.Get(ctx, "02")
	require.NoError(t, err)
	assert.Equal(t, 9, p2.Energy)
	assert.Equal(t, 300, p2.TotalScore)

	room, err := loadRoom(ctx, mem, "1")
	require.NoError(t, err)
	assert.True(t, room.StatsSaved)
	results.AssertExpectations(t)
}

func TestSettle_RejectsUnfinishedAndMissing(t *testing.T) {
	ctx := context.Background()
	running := finishedRoom(0, 0, NoSeat)
	running.GameOver = false
	settler, _, _ := newSettlerFixture(t, running, nil)

	_, ok, err := settler.Settle(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFinished)
	assert.False(t, ok)

	_, _, err = settler.Settle(ctx, "9")
	assert.ErrorIs(t, err, ErrUnknownRoom)
}

func TestSettle_ResultRecorderFailureDoesNotFail(t *testing.T) {
	ctx := context.Background()
	results := new(mockResults)
	results.On("RecordResult", mock.Anything, mock.Anything).Return(assert.AnError)
	settler, _, _ := newSettlerFixture(t, finishedRoom(0, 10, SeatP1), results)

	out, ok, err := settler.Settle(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, OutcomeForfeit, out.Kind)
	results.AssertNumberOfCalls(t, "RecordResult", 2)
}
