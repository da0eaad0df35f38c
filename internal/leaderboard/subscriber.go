package leaderboard

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/metrics"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// Fanout delivers one message to every open session.
type Fanout interface {
	BroadcastAll(msg ws.Message) error
	Len() int
}

// Broadcaster relays ranking updates published on the redis channel to every WebSocket session.
// An update whose top list equals the last one relayed for its window is dropped.
type Broadcaster struct {
	redis   *redis.Client
	out     Fanout
	channel string
	logger  zerolog.Logger

	mu   sync.Mutex
	last map[string]string
}

func NewBroadcaster(client *redis.Client, out Fanout, channel string, logger zerolog.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{
		redis:   client,
		out:     out,
		channel: channel,
		logger:  logger.With().Str("component", "leaderboard_broadcaster").Logger(),
		last:    make(map[string]string),
	}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.out == nil {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Info().Str("channel", b.channel).Msg("relaying leaderboard updates")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg.Payload)
		}
	}
}

// relay reports whether payload was sent to the sessions.
func (b *Broadcaster) relay(payload string) bool {
	var evt ws.LeaderboardUpdatePayload
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("skip undecodable leaderboard update")
		return false
	}
	if b.out.Len() == 0 || !b.changed(evt) {
		return false
	}

	msg, err := ws.NewMessage(ws.TypeLeaderboardUpdate, evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("encode leaderboard update")
		return false
	}
	if err := b.out.BroadcastAll(msg); err != nil {
		b.logger.Warn().Err(err).Str("window", evt.Window).Msg("broadcast leaderboard update")
		return false
	}
	metrics.LeaderboardBroadcasts.WithLabelValues(evt.Window).Inc()
	return true
}

func (b *Broadcaster) changed(evt ws.LeaderboardUpdatePayload) bool {
	top, err := json.Marshal(evt.Top)
	if err != nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last[evt.Window] == string(top) {
		return false
	}
	b.last[evt.Window] = string(top)
	return true
}
