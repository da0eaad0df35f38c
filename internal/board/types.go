// Package board implements the classroom discussion board.
package board

import (
	"context"
	"errors"
	"time"
)

// TimeLayout is the display format of message timestamps.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrEmptyNickname   = errors.New("nickname is required")
	ErrEmptyContent    = errors.New("content is required")
	ErrContentTooLong  = errors.New("content too long")
	ErrNicknameTooLong = errors.New("nickname too long")
)

// Message is a stored board post.
type Message struct {
	ID        int64
	Nickname  string
	Content   string
	CreatedAt time.Time
}

// MessageView is the wire form of a post.
type MessageView struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Content  string `json:"content"`
	Time     string `json:"time"`
}

// PostRequest is the body of a new post.
type PostRequest struct {
	Nickname string `json:"nickname"`
	Content  string `json:"content"`
}

// Store persists board messages.
type Store interface {
	Insert(ctx context.Context, nickname, content string, at time.Time) (Message, error)
	List(ctx context.Context, limit int) ([]Message, error)
	Count(ctx context.Context) (int64, error)
}
