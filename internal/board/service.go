package board

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/metrics"
)

// Options configures board limits.
type Options struct {
	ListLimit   int
	MaxContent  int
	MaxNickname int
	Location    *time.Location
	Now         func() time.Time
}

// Service validates and serves board posts.
type Service struct {
	store  Store
	opts   Options
	logger zerolog.Logger
}

func NewService(store Store, opts Options, logger zerolog.Logger) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent = 500
	}
	if opts.MaxNickname <= 0 {
		opts.MaxNickname = 32
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "board").Logger(),
	}
}

// Post stores a new message after trimming and validating it.
func (s *Service) Post(ctx context.Context, req PostRequest) (MessageView, error) {
	nickname := strings.TrimSpace(req.Nickname)
	content := strings.TrimSpace(req.Content)
	switch {
	case nickname == "":
		return MessageView{}, ErrEmptyNickname
	case content == "":
		return MessageView{}, ErrEmptyContent
	case utf8.RuneCountInString(nickname) > s.opts.MaxNickname:
		return MessageView{}, ErrNicknameTooLong
	case utf8.RuneCountInString(content) > s.opts.MaxContent:
		return MessageView{}, ErrContentTooLong
	}

	msg, err := s.store.Insert(ctx, nickname, content, s.opts.Now().UTC())
	if err != nil {
		return MessageView{}, err
	}
	metrics.BoardPosts.Inc()
	s.logger.Debug().Int64("message_id", msg.ID).Str("nickname", nickname).Msg("board message stored")
	return s.view(msg), nil
}

// List returns the newest messages first.
func (s *Service) List(ctx context.Context) ([]MessageView, error) {
	msgs, err := s.store.List(ctx, s.opts.ListLimit)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = s.view(m)
	}
	return out, nil
}

// Count returns the total number of stored messages.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func (s *Service) view(m Message) MessageView {
	return MessageView{
		ID:       m.ID,
		Nickname: m.Nickname,
		Content:  m.Content,
		Time:     m.CreatedAt.In(s.opts.Location).Format(TimeLayout),
	}
}
