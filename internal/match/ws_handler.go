package match

import (
	"net/http"
	"strings"

	"github.com/gokatarajesh/quiz-duel/internal/auth"
	"github.com/gokatarajesh/quiz-duel/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-duel/internal/server"
	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
)

// TokenValidator checks access tokens presented on the upgrade request.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// HandleWebSocket upgrades HTTP connection to WebSocket and authenticates user.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Missing token")
		return
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket token validation failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
		return
	}

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.HandleConnection(conn, IdentityFromClaims(claims))
}

// IdentityFromClaims builds the room identity of a token holder.
func IdentityFromClaims(c *jwt.Claims) Identity {
	return Identity{
		StudentID:   c.StudentID,
		DisplayName: c.DisplayName,
		Teacher:     c.Role == auth.RoleTeacher,
	}
}
