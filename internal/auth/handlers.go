package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/profile"
	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for authentication.
type HTTPHandlers struct {
	authSvc *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for auth endpoints.
func NewHTTPHandlers(authSvc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		authSvc: authSvc,
		logger:  logger,
	}
}

// Login handles POST /v1/auth/login
func (h *HTTPHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.RespondMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.StudentID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "Student ID required", "student_id")
		return
	}

	res, err := h.authSvc.Login(r.Context(), req)
	if errors.Is(err, ErrInvalidCredentials) {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeLoginFailed, "Wrong student ID or password")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("student_id", req.StudentID).Msg("login failed")
		httperrors.RespondInternalError(w, "Login failed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"student_id":   res.User.StudentID,
		"display_name": res.User.DisplayName,
		"role":         res.User.Role,
		"access_token": res.Tokens.AccessToken,
		"expires_in":   res.Tokens.ExpiresIn,
		"profile":      res.Profile,
	})
}

// GetMe handles GET /v1/users/me (requires auth middleware)
func (h *HTTPHandlers) GetMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w, http.MethodGet)
		return
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Invalid or missing token")
		return
	}

	body := map[string]interface{}{
		"student_id":   claims.StudentID,
		"display_name": claims.DisplayName,
		"role":         claims.Role,
	}
	if claims.Role == RoleStudent {
		p, err := h.authSvc.Profile(r.Context(), claims.StudentID)
		switch {
		case errors.Is(err, profile.ErrNotFound):
			httperrors.RespondNotFound(w, httperrors.ErrCodeNotFound, "Profile not found")
			return
		case err != nil:
			h.logger.Error().Err(err).Str("student_id", claims.StudentID).Msg("load profile failed")
			httperrors.RespondInternalError(w, "Failed to load profile")
			return
		}
		body["profile"] = p
	}

	h.respondJSON(w, http.StatusOK, body)
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
