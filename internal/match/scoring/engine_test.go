package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreRound(t *testing.T) {
	e := NewEngine(DefaultConfig())

	tests := []struct {
		name     string
		answered bool
		correct  bool
		time     int
		streak   int
		want     RoundResult
	}{
		{"correct first answer", true, true, 22, 0, RoundResult{Correct: true, Points: 220, Streak: 1}},
		{"wrong answer resets streak", true, false, 22, 4, RoundResult{}},
		{"missing answer resets streak", false, false, 0, 7, RoundResult{}},
		{"third in a row earns 50", true, true, 10, 2, RoundResult{Correct: true, Points: 150, Streak: 3}},
		{"sixth in a row earns 100", true, true, 10, 5, RoundResult{Correct: true, Points: 200, Streak: 6}},
		{"zero time left still counts streak", true, true, 0, 0, RoundResult{Correct: true, Points: 0, Streak: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ScoreRound(tt.answered, tt.correct, tt.time, tt.streak))
		})
	}
}

func TestStreakBonusTiersAreOrdered(t *testing.T) {
	e := NewEngine(Config{
		PointsPerSecond: 1,
		StreakBonuses:   []StreakBonus{{MinStreak: 3, Points: 50}, {MinStreak: 6, Points: 100}},
	})
	assert.Equal(t, 0, e.StreakBonus(2))
	assert.Equal(t, 50, e.StreakBonus(5))
	assert.Equal(t, 100, e.StreakBonus(9))
}
