package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// Supported leaderboard windows.
const (
	WindowWeekly  = "weekly"
	WindowAllTime = "all_time"
)

var defaultWindows = []string{WindowWeekly, WindowAllTime}

// ErrUnknownWindow is returned for a window the service does not keep.
var ErrUnknownWindow = errors.New("unknown leaderboard window")

// Entry represents a leaderboard record sent to clients.
type Entry struct {
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Wins        int    `json:"wins"`
	Games       int    `json:"games"`
}

// RecordRequest captures one player's settled match result.
type RecordRequest struct {
	StudentID   string
	DisplayName string
	Score       int
	Won         bool
	RoomID      string
	Windows     []string
}

// DefaultChannel is the pub/sub channel ranking updates are published on.
const DefaultChannel = "lb:updates"

// ServiceOptions configures leaderboard service behavior.
type ServiceOptions struct {
	TopN           int
	BroadcastTop   int
	PubSubChannel  string
	Windows        []string
	WeeklyTTL      time.Duration
	RedisKeyPrefix string
}

// Service manages the class ranking in Redis and emits updates over Pub/Sub.
type Service struct {
	redis         *redis.Client
	logger        zerolog.Logger
	topN          int
	broadcastTop  int
	pubsubChannel string
	windows       []string
	weeklyTTL     time.Duration
	prefix        string
}

// NewService constructs a leaderboard service instance.
func NewService(redis *redis.Client, logger zerolog.Logger, opts ServiceOptions) *Service {
	topN := opts.TopN
	if topN <= 0 {
		topN = 50
	}
	broadcastTop := opts.BroadcastTop
	if broadcastTop <= 0 {
		broadcastTop = 10
	}
	channel := opts.PubSubChannel
	if channel == "" {
		channel = DefaultChannel
	}
	windows := opts.Windows
	if len(windows) == 0 {
		windows = defaultWindows
	}
	prefix := opts.RedisKeyPrefix
	if prefix == "" {
		prefix = "lb:class"
	}
	ttl := opts.WeeklyTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &Service{
		redis:         redis,
		logger:        logger.With().Str("component", "leaderboard").Logger(),
		topN:          topN,
		broadcastTop:  broadcastTop,
		pubsubChannel: channel,
		windows:       windows,
		weeklyTTL:     ttl,
		prefix:        prefix,
	}
}

// Windows returns the windows this service maintains.
func (s *Service) Windows() []string {
	return append([]string(nil), s.windows...)
}

// Channel returns the Pub/Sub channel updates are published on.
func (s *Service) Channel() string { return s.pubsubChannel }

// HasWindow reports whether window is maintained by the service.
func (s *Service) HasWindow(window string) bool {
	for _, w := range s.windows {
		if w == window {
			return true
		}
	}
	return false
}

// RecordResult adds one settled result to every applicable window and publishes the new top list.
func (s *Service) RecordResult(ctx context.Context, req RecordRequest) error {
	if req.StudentID == "" {
		return nil
	}
	windows := req.Windows
	if len(windows) == 0 {
		windows = s.windows
	}

	entry := Entry{
		StudentID:   req.StudentID,
		DisplayName: req.DisplayName,
		Score:       req.Score,
		Wins:        boolToInt(req.Won),
		Games:       1,
	}
	for _, window := range windows {
		if !s.HasWindow(window) {
			return fmt.Errorf("%w: %s", ErrUnknownWindow, window)
		}
		if err := s.updateWindow(ctx, window, entry); err != nil {
			return err
		}
	}

	s.publishUpdate(ctx, req.RoomID, windows)
	return nil
}

// Top retrieves the top N entries for a given window.
func (s *Service) Top(ctx context.Context, window string, limit int) ([]Entry, error) {
	if !s.HasWindow(window) {
		return nil, ErrUnknownWindow
	}
	if limit <= 0 || limit > s.topN {
		limit = s.topN
	}

	results, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(window), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, z := range results {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entry, err := s.readMeta(ctx, window, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("student_id", id).Msg("failed to read leaderboard metadata")
			continue
		}
		entry.Score = int(z.Score)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) updateWindow(ctx context.Context, window string, entry Entry) error {
	zKey := s.leaderboardKey(window)
	metaKey := s.metaKey(window, entry.StudentID)

	pipe := s.redis.TxPipeline()
	pipe.ZIncrBy(ctx, zKey, float64(entry.Score), entry.StudentID)
	pipe.HIncrBy(ctx, metaKey, "wins", int64(entry.Wins))
	pipe.HIncrBy(ctx, metaKey, "games", int64(entry.Games))
	if entry.DisplayName != "" {
		pipe.HSet(ctx, metaKey, "display_name", entry.DisplayName)
	}
	if window == WindowWeekly {
		pipe.Expire(ctx, zKey, s.weeklyTTL)
		pipe.Expire(ctx, metaKey, s.weeklyTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update leaderboard window %s: %w", window, err)
	}
	return nil
}

func (s *Service) publishUpdate(ctx context.Context, roomID string, windows []string) {
	for _, window := range windows {
		entries, err := s.Top(ctx, window, s.broadcastTop)
		if err != nil {
			s.logger.Warn().Err(err).Str("window", window).Msg("failed to collect leaderboard update")
			continue
		}
		if len(entries) == 0 {
			continue
		}

		data, err := json.Marshal(ws.LeaderboardUpdatePayload{
			Window: window,
			RoomID: roomID,
			Top:    toWSEntries(entries),
		})
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to marshal leaderboard update")
			continue
		}
		if err := s.redis.Publish(ctx, s.pubsubChannel, data).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish leaderboard update")
		}
	}
}

func (s *Service) readMeta(ctx context.Context, window, studentID string) (Entry, error) {
	data, err := s.redis.HGetAll(ctx, s.metaKey(window, studentID)).Result()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{StudentID: studentID, DisplayName: studentID}
	if name := data["display_name"]; name != "" {
		entry.DisplayName = name
	}
	entry.Wins = parseInt(data["wins"])
	entry.Games = parseInt(data["games"])
	return entry, nil
}

func (s *Service) leaderboardKey(window string) string {
	return fmt.Sprintf("%s:%s", s.prefix, window)
}

func (s *Service) metaKey(window, studentID string) string {
	return fmt.Sprintf("%s:%s:meta:%s", s.prefix, window, studentID)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func parseInt(val string) int {
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return i
}
