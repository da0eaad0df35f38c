package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/clock"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

const dateLayout = "2006-01-02"

var ErrNotFound = errors.New("profile not found")

// Profile is the persistent per-student record stored at users/<studentId>.
type Profile struct {
	DisplayName   string `json:"displayName"`
	TotalWins     int    `json:"totalWins"`
	TotalScore    int    `json:"totalScore"`
	Energy        int    `json:"energy"`
	LastLoginDate string `json:"lastLoginDate"`
}

// Delta is a relative change applied at match settlement.
type Delta struct {
	Wins   int
	Score  int
	Energy int
}

// IsZero reports whether applying the delta would change nothing.
func (d Delta) IsZero() bool {
	return d.Wins == 0 && d.Score == 0 && d.Energy == 0
}

// Store is the subset of the room store the profile service uses.
type Store interface {
	Get(ctx context.Context, path string) (store.Snapshot, error)
	Transact(ctx context.Context, path string, fn store.TxFunc) (store.Snapshot, bool, error)
}

// Options configures energy policy.
type Options struct {
	StartingEnergy   int
	DailyEnergyFloor int
	Location         *time.Location
	Clock            clock.Scheduler
}

// Service reads and mutates player profiles. Every mutation is a single transaction over the
// whole profile record.
type Service struct {
	store          Store
	startingEnergy int
	dailyFloor     int
	loc            *time.Location
	clock          clock.Scheduler
	logger         zerolog.Logger
}

// NewService creates a profile service.
func NewService(s Store, opts Options, logger zerolog.Logger) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		store:          s,
		startingEnergy: opts.StartingEnergy,
		dailyFloor:     opts.DailyEnergyFloor,
		loc:            loc,
		clock:          clk,
		logger:         logger.With().Str("component", "profile").Logger(),
	}
}

// Path returns the store path of a student's profile.
func Path(studentID string) string {
	return store.Join("users", studentID)
}

// Login creates the profile on first login and tops energy up to the daily floor once per day.
func (s *Service) Login(ctx context.Context, studentID, displayName string) (Profile, error) {
	today := s.clock.Now().In(s.loc).Format(dateLayout)

	var out Profile
	_, _, err := s.store.Transact(ctx, Path(studentID), func(cur json.RawMessage) (any, error) {
		p, exists, err := decode(cur)
		if err != nil {
			return nil, err
		}
		if !exists {
			p = Profile{Energy: s.startingEnergy}
		}
		if displayName != "" {
			p.DisplayName = displayName
		}
		if p.LastLoginDate != today {
			if p.Energy < s.dailyFloor {
				p.Energy = s.dailyFloor
			}
			p.LastLoginDate = today
		}
		out = p
		return p, nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("login profile %s: %w", studentID, err)
	}
	s.logger.Info().Str("student_id", studentID).Int("energy", out.Energy).Msg("profile login")
	return out, nil
}

// Get returns a profile or ErrNotFound.
func (s *Service) Get(ctx context.Context, studentID string) (Profile, error) {
	snap, err := s.store.Get(ctx, Path(studentID))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %s: %w", studentID, err)
	}
	p, exists, err := decode(snap.Value)
	if err != nil {
		return Profile{}, err
	}
	if !exists {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// Apply adds d to the profile atomically. Energy never drops below zero.
func (s *Service) Apply(ctx context.Context, studentID string, d Delta) (Profile, error) {
	var out Profile
	_, _, err := s.store.Transact(ctx, Path(studentID), func(cur json.RawMessage) (any, error) {
		p, exists, err := decode(cur)
		if err != nil {
			return nil, err
		}
		if !exists {
			p = Profile{Energy: s.startingEnergy}
		}
		p.TotalWins += d.Wins
		p.TotalScore += d.Score
		p.Energy += d.Energy
		if p.Energy < 0 {
			p.Energy = 0
		}
		out = p
		return p, nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("apply profile delta %s: %w", studentID, err)
	}
	s.logger.Info().
		Str("student_id", studentID).
		Int("wins_delta", d.Wins).
		Int("score_delta", d.Score).
		Int("energy_delta", d.Energy).
		Int("energy", out.Energy).
		Msg("profile updated")
	return out, nil
}

func decode(raw json.RawMessage) (Profile, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Profile{}, false, nil
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false, fmt.Errorf("decode profile: %w", err)
	}
	return p, true, nil
}
