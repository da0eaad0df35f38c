package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

const (
	insertSnapshotSQL = `INSERT INTO leaderboard_snapshots (time_window, generated_at, entries, source_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT (time_window, source_hash) DO NOTHING`

	latestSnapshotSQL = `SELECT entries FROM leaderboard_snapshots
WHERE time_window = $1
ORDER BY generated_at DESC
LIMIT 1`
)

// SnapshotDB is the part of a pgx pool the snapshot worker and fallback reads use.
type SnapshotDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SnapshotWorker periodically persists Redis leaderboards into Postgres.
type SnapshotWorker struct {
	svc      *Service
	db       SnapshotDB
	logger   zerolog.Logger
	interval time.Duration
	topN     int
	now      func() time.Time
}

func NewSnapshotWorker(svc *Service, db SnapshotDB, interval time.Duration, topN int, logger zerolog.Logger) *SnapshotWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if topN <= 0 {
		topN = 50
	}
	return &SnapshotWorker{
		svc:      svc,
		db:       db,
		logger:   logger.With().Str("component", "leaderboard_snapshot_worker").Logger(),
		interval: interval,
		topN:     topN,
		now:      time.Now,
	}
}

// Run blocks until context cancellation.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	if w.svc == nil || w.db == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	for _, window := range w.svc.Windows() {
		if err := w.snapshotWindow(ctx, window); err != nil {
			w.logger.Warn().Err(err).Str("window", window).Msg("snapshot failed")
		}
	}
}

func (w *SnapshotWorker) snapshotWindow(ctx context.Context, window string) error {
	entries, err := w.svc.Top(ctx, window, w.topN)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	wsEntries := toWSEntries(entries)
	data, err := json.Marshal(wsEntries)
	if err != nil {
		return err
	}

	sourceHash := sha256.Sum256(data)
	now := w.now().UTC()

	tag, err := w.db.Exec(ctx, insertSnapshotSQL, window, now, data, hex.EncodeToString(sourceHash[:]))
	if err != nil {
		return fmt.Errorf("insert leaderboard snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		w.logger.Debug().Str("window", window).Msg("leaderboard unchanged since last snapshot")
		return nil
	}

	w.logger.Info().
		Str("window", window).
		Int("entries", len(wsEntries)).
		Time("generated_at", now).
		Msg("leaderboard snapshot persisted")

	return nil
}

// latestSnapshot reads the newest persisted top list of window. It returns nil when none exists.
func latestSnapshot(ctx context.Context, db SnapshotDB, window string) ([]ws.LeaderboardEntry, error) {
	var raw []byte
	if err := db.QueryRow(ctx, latestSnapshotSQL, window).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch leaderboard snapshot: %w", err)
	}
	var entries []ws.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode leaderboard snapshot: %w", err)
	}
	return entries, nil
}
