package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-duel/internal/profile"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ProfileService creates and refreshes student profiles at login.
type ProfileService interface {
	Login(ctx context.Context, studentID, displayName string) (profile.Profile, error)
	Get(ctx context.Context, studentID string) (profile.Profile, error)
}

// Service handles roster authentication.
type Service struct {
	roster   *Roster
	profiles ProfileService
	tokenMgr *jwt.Manager
	logger   zerolog.Logger
}

// ServiceOptions configures the auth service.
type ServiceOptions struct {
	TokenConfig jwt.TokenConfig
}

// NewService creates an authentication service.
func NewService(roster *Roster, profiles ProfileService, opts ServiceOptions, logger zerolog.Logger) *Service {
	return &Service{
		roster:   roster,
		profiles: profiles,
		tokenMgr: jwt.NewManager(opts.TokenConfig),
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Login authenticates a roster member. Students get their profile created or replenished for the
// day as part of the login.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	cred, role, err := s.roster.Lookup(req.StudentID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := verifyCredential(cred, req.Password); err != nil {
		s.logger.Info().Str("student_id", cred.ID).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	user := User{StudentID: cred.ID, DisplayName: cred.Name, Role: role}
	res := &LoginResult{User: user}

	if role == RoleStudent {
		p, err := s.profiles.Login(ctx, user.StudentID, user.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("refresh profile: %w", err)
		}
		res.Profile = &p
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	res.Tokens = tokens

	s.logger.Info().Str("student_id", user.StudentID).Str("role", role).Msg("user logged in")
	return res, nil
}

// Profile returns the stored profile of a student.
func (s *Service) Profile(ctx context.Context, studentID string) (profile.Profile, error) {
	return s.profiles.Get(ctx, studentID)
}

// ValidateToken validates an access token and returns user claims.
func (s *Service) ValidateToken(tokenString string) (*jwt.Claims, error) {
	return s.tokenMgr.ValidateAccessToken(tokenString)
}

// UserFromClaims converts token claims back into a user.
func UserFromClaims(c *jwt.Claims) User {
	return User{StudentID: c.StudentID, DisplayName: c.DisplayName, Role: c.Role}
}

func (s *Service) issue(user User) (TokenPair, error) {
	token, err := s.tokenMgr.GenerateAccessToken(jwt.Subject{
		StudentID:   user.StudentID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken: token,
		ExpiresIn:   int64(s.tokenMgr.TTL().Seconds()),
	}, nil
}
