package board

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
)

// HTTPHandlers serves the board REST routes.
type HTTPHandlers struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHTTPHandlers(svc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{svc: svc, logger: logger.With().Str("component", "board_http").Logger()}
}

// Messages handles GET and POST /api/messages.
func (h *HTTPHandlers) Messages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.post(w, r)
	default:
		httperrors.RespondMethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// MessageCount handles GET /api/message_count.
func (h *HTTPHandlers) MessageCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}
	n, err := h.svc.Count(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("count board messages failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeBoardFetchFailed, "Failed to count messages")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *HTTPHandlers) list(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list board messages failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeBoardFetchFailed, "Failed to load messages")
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (h *HTTPHandlers) post(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return
	}

	msg, err := h.svc.Post(r.Context(), req)
	switch {
	case errors.Is(err, ErrEmptyNickname):
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "Nickname is required", "nickname")
		return
	case errors.Is(err, ErrEmptyContent):
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "Content is required", "content")
		return
	case errors.Is(err, ErrNicknameTooLong):
		httperrors.RespondValidationError(w, httperrors.ErrCodeContentTooLong,
			fmt.Sprintf("Nickname exceeds %d characters", h.svc.opts.MaxNickname), "nickname")
		return
	case errors.Is(err, ErrContentTooLong):
		httperrors.RespondValidationError(w, httperrors.ErrCodeContentTooLong,
			fmt.Sprintf("Content exceeds %d characters", h.svc.opts.MaxContent), "content")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("store board message failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeBoardPostFailed, "Failed to store message")
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
