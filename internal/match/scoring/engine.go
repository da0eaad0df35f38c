package scoring

import "sort"

// StreakBonus awards Points once the streak reaches MinStreak.
type StreakBonus struct {
	MinStreak int
	Points    int
}

// Config holds configurable scoring constants.
type Config struct {
	PointsPerSecond int           // default: 10
	StreakBonuses   []StreakBonus // default: +100 at 6, +50 at 3
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PointsPerSecond: 10,
		StreakBonuses: []StreakBonus{
			{MinStreak: 6, Points: 100},
			{MinStreak: 3, Points: 50},
		},
	}
}

// Engine scores rounds with configurable constants.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	bonuses := append([]StreakBonus(nil), config.StreakBonuses...)
	sort.Slice(bonuses, func(i, j int) bool { return bonuses[i].MinStreak > bonuses[j].MinStreak })
	config.StreakBonuses = bonuses
	return &Engine{config: config}
}

// RoundResult is the outcome of one round for one seat.
type RoundResult struct {
	Correct bool
	Points  int
	Streak  int
}

// ScoreRound scores a seat's round.
// Formula: timeRemaining*PointsPerSecond + streak bonus of the new streak
// - missing or wrong answer: streak resets to 0, no points
// - correct answer: streak+1, bonus from the highest tier the new streak reaches
func (e *Engine) ScoreRound(answered, correct bool, timeRemaining, streak int) RoundResult {
	if !answered || !correct {
		return RoundResult{}
	}
	if timeRemaining < 0 {
		timeRemaining = 0
	}
	next := streak + 1
	return RoundResult{
		Correct: true,
		Points:  timeRemaining*e.config.PointsPerSecond + e.StreakBonus(next),
		Streak:  next,
	}
}

// StreakBonus returns the bonus awarded for reaching streak.
func (e *Engine) StreakBonus(streak int) int {
	for _, b := range e.config.StreakBonuses {
		if streak >= b.MinStreak {
			return b.Points
		}
	}
	return 0
}
