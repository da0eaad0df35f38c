package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// HTTPHandler exposes REST endpoints for leaderboard queries.
type HTTPHandler struct {
	svc    *Service
	db     SnapshotDB
	logger zerolog.Logger
	now    func() time.Time
}

// NewHTTPHandler constructs a leaderboard HTTP handler. db may be nil, which disables the snapshot
// fallback.
func NewHTTPHandler(svc *Service, db SnapshotDB, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		db:     db,
		logger: logger.With().Str("component", "leaderboard_http").Logger(),
		now:    time.Now,
	}
}

// HandleGet responds with the class leaderboard.
// Route: GET /v1/leaderboard?window=all_time&limit=10
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}
	if h.svc == nil {
		httperrors.RespondFeatureDisabled(w, "Leaderboard")
		return
	}

	window := r.URL.Query().Get("window")
	if window == "" {
		window = WindowAllTime
	}
	if !h.svc.HasWindow(window) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeUnknownWindow, "Unknown leaderboard window")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	ctx := r.Context()
	source := "redis"
	var top []ws.LeaderboardEntry

	entries, err := h.svc.Top(ctx, window, limit)
	if err == nil {
		top = toWSEntries(entries)
	} else {
		h.logger.Warn().Err(err).Str("window", window).Msg("redis leaderboard fetch failed")
	}

	if len(top) == 0 && h.db != nil {
		if snap := h.snapshotFallback(ctx, window, limit); len(snap) > 0 {
			source = "snapshot"
			top = snap
		}
	}
	if top == nil && err != nil {
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeLeaderboardFetchFailed, "Failed to fetch leaderboard")
		return
	}
	if top == nil {
		top = []ws.LeaderboardEntry{}
	}

	writeJSON(w, map[string]interface{}{
		"window":      window,
		"top":         top,
		"source":      source,
		"retrievedAt": h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HTTPHandler) snapshotFallback(ctx context.Context, window string, limit int) []ws.LeaderboardEntry {
	entries, err := latestSnapshot(ctx, h.db, window)
	if err != nil {
		h.logger.Warn().Err(err).Str("window", window).Msg("snapshot fetch failed")
		return nil
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
