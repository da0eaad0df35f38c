// Package metrics holds the process-wide prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz_duel"

var (
	RoomJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_joins_total",
		Help:      "Successful room joins by role.",
	}, []string{"role"})

	JoinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_join_rejections_total",
		Help:      "Rejected room joins by reason.",
	}, []string{"reason"})

	RoundsRevealed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_revealed_total",
		Help:      "Rounds closed by the authority, by trigger.",
	}, []string{"trigger"})

	Forfeits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forfeits_total",
		Help:      "Matches ended by forfeit, by reason.",
	}, []string{"reason"})

	MatchesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_settled_total",
		Help:      "Settled matches by outcome.",
	}, []string{"outcome"})

	AnswersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "answers_submitted_total",
		Help:      "Accepted answers by correctness.",
	}, []string{"correct"})

	BoardPosts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "board_posts_total",
		Help:      "Discussion board messages stored.",
	})

	LeaderboardBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_broadcasts_total",
		Help:      "Leaderboard updates relayed to websocket sessions, by window.",
	}, []string{"window"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_sessions_active",
		Help:      "Open websocket sessions.",
	})
)
