// Package stats keeps per-question answer counters and builds the teacher's error-rate report.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/question"
	"github.com/gokatarajesh/quiz-duel/internal/store"
)

const (
	collection = "questionStats"

	// HighRiskThreshold is the error rate, in percent, from which a question is flagged.
	HighRiskThreshold = 50.0
)

// Record is the stored counter document of one question.
type Record struct {
	Question   string `json:"question"`
	Category   string `json:"category"`
	WrongCount int    `json:"wrongCount"`
	TotalCount int    `json:"totalCount"`
}

// ReportEntry is one row of the error-rate report.
type ReportEntry struct {
	Key        string  `json:"key"`
	Question   string  `json:"question"`
	Category   string  `json:"category"`
	WrongCount int     `json:"wrong_count"`
	TotalCount int     `json:"total_count"`
	ErrorRate  float64 `json:"error_rate"`
	HighRisk   bool    `json:"high_risk"`
}

// Store is the subset of the room store the stats service uses.
type Store interface {
	Transact(ctx context.Context, path string, fn store.TxFunc) (store.Snapshot, bool, error)
	List(ctx context.Context, collection string) ([]store.Snapshot, error)
}

// Service counts answers per question.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates a stats service.
func NewService(s Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  s,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// Key derives the document key of a prompt: path metacharacters are removed and whitespace runs
// become a single underscore.
func Key(prompt string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '.', '#', '$', '/', '[', ']':
			return -1
		}
		return r
	}, prompt)
	key := strings.Join(strings.Fields(cleaned), "_")
	if key == "" {
		return "_"
	}
	return key
}

// Path returns the store path of a prompt's counters.
func Path(prompt string) string {
	return store.Join(collection, Key(prompt))
}

// Record counts one submitted answer for q.
func (s *Service) Record(ctx context.Context, q question.Question, correct bool) error {
	_, _, err := s.store.Transact(ctx, Path(q.Prompt), func(cur json.RawMessage) (any, error) {
		var rec Record
		if len(cur) > 0 && string(cur) != "null" {
			if err := json.Unmarshal(cur, &rec); err != nil {
				return nil, fmt.Errorf("decode question stats: %w", err)
			}
		}
		rec.Question = q.Prompt
		rec.Category = q.Category
		rec.TotalCount++
		if !correct {
			rec.WrongCount++
		}
		return rec, nil
	})
	if err != nil {
		return fmt.Errorf("record question stats: %w", err)
	}
	return nil
}

// Report lists every counted question, highest error rate first, then most answered.
func (s *Service) Report(ctx context.Context) ([]ReportEntry, error) {
	snaps, err := s.store.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list question stats: %w", err)
	}

	entries := make([]ReportEntry, 0, len(snaps))
	for _, snap := range snaps {
		var rec Record
		if err := snap.Decode(&rec); err != nil {
			s.logger.Warn().Err(err).Str("path", snap.Path).Msg("skip undecodable question stats")
			continue
		}
		if rec.TotalCount <= 0 {
			continue
		}
		rate := math.Round(float64(rec.WrongCount)/float64(rec.TotalCount)*1000) / 10
		entries = append(entries, ReportEntry{
			Key:        snap.Path[strings.LastIndex(snap.Path, "/")+1:],
			Question:   rec.Question,
			Category:   rec.Category,
			WrongCount: rec.WrongCount,
			TotalCount: rec.TotalCount,
			ErrorRate:  rate,
			HighRisk:   rate >= HighRiskThreshold,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ErrorRate != entries[j].ErrorRate {
			return entries[i].ErrorRate > entries[j].ErrorRate
		}
		if entries[i].TotalCount != entries[j].TotalCount {
			return entries[i].TotalCount > entries[j].TotalCount
		}
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}
