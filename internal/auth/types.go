package auth

import (
	"github.com/gokatarajesh/quiz-duel/internal/profile"
)

// Account roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// User is an authenticated roster member.
type User struct {
	StudentID   string
	DisplayName string
	Role        string
}

// IsTeacher reports whether the user is the class teacher.
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// TokenPair holds the issued access token.
type TokenPair struct {
	AccessToken string
	ExpiresIn   int64
}

// LoginRequest for roster authentication.
type LoginRequest struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

// LoginResult is what a successful login returns. Profile is nil for the teacher.
type LoginResult struct {
	User    User
	Tokens  TokenPair
	Profile *profile.Profile
}
