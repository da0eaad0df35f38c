package match

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for the room lobby.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for room endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "match_http").Logger(),
	}
}

// ListRooms handles GET /v1/rooms
func (h *HTTPHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	rooms, err := h.service.Rooms(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list rooms")
		httperrors.RespondInternalError(w, "Failed to list rooms")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rooms":         rooms,
		"max_questions": h.service.Config().MaxQuestions,
		"round_seconds": h.service.Config().roundSeconds(),
	})
}

// GetRoom handles GET /v1/rooms/{id}
func (h *HTTPHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	room, err := h.service.Room(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrUnknownRoom) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeRoomNotFound, "Room does not exist")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load room")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeRoomFetchFailed, "Failed to load room")
		return
	}

	h.respondJSON(w, http.StatusOK, room)
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
