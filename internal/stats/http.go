package stats

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
)

// HTTPHandler serves the question report.
type HTTPHandler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHTTPHandler(svc *Service, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger.With().Str("component", "stats_http").Logger()}
}

// HandleReport responds with the error-rate report.
// Route: GET /v1/stats/questions (teacher only)
func (h *HTTPHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	entries, err := h.svc.Report(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("question report failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeStatsFetchFailed, "Failed to load question stats")
		return
	}

	highRisk := 0
	for _, e := range entries {
		if e.HighRisk {
			highRisk++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"questions": entries,
		"high_risk": highRisk,
	})
}
