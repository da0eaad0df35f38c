package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/auth"
	"github.com/gokatarajesh/quiz-duel/internal/config"
)

// WSUpgrader handles WebSocket upgrades. Origins are checked by the CORS layer.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Routes are the feature handlers mounted by the API server. Nil handlers are skipped.
type Routes struct {
	Auth        *auth.HTTPHandlers
	AuthService *auth.Service

	ListRooms http.HandlerFunc
	GetRoom   http.HandlerFunc
	WebSocket http.HandlerFunc

	QuestionStats http.HandlerFunc
	Leaderboard   http.HandlerFunc

	BoardMessages     http.HandlerFunc
	BoardMessageCount http.HandlerFunc
}

// NewHTTPServer wires base routes (health, metrics) and the feature routes for the API service.
// pool and redis may be nil when the deployment runs without them.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, routes Routes) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewHandler(cfg, logger, pool, redis, routes),
	}
}

// NewHandler builds the root handler with CORS and request logging applied.
func NewHandler(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, routes Routes) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), pool, redis); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	var authed, teacherOnly func(http.Handler) http.Handler
	if routes.AuthService != nil {
		mw := auth.AuthMiddleware(routes.AuthService, logger)
		authed = func(next http.Handler) http.Handler { return mw(auth.RequireAuth(next)) }
		teacherOnly = func(next http.Handler) http.Handler { return mw(auth.RequireTeacher(next)) }
	}

	if routes.Auth != nil {
		mux.HandleFunc("/v1/auth/login", routes.Auth.Login)
		if authed != nil {
			mux.Handle("/v1/users/me", authed(http.HandlerFunc(routes.Auth.GetMe)))
		}
	}

	if routes.ListRooms != nil {
		mux.HandleFunc("/v1/rooms", routes.ListRooms)
	}
	if routes.GetRoom != nil {
		mux.HandleFunc("/v1/rooms/{id}", routes.GetRoom)
	}
	if routes.QuestionStats != nil && teacherOnly != nil {
		mux.Handle("/v1/stats/questions", teacherOnly(routes.QuestionStats))
	}
	if routes.Leaderboard != nil {
		mux.HandleFunc("/v1/leaderboard", routes.Leaderboard)
	}

	if routes.BoardMessages != nil {
		mux.HandleFunc("/api/messages", routes.BoardMessages)
	}
	if routes.BoardMessageCount != nil {
		mux.HandleFunc("/api/message_count", routes.BoardMessageCount)
	}

	if routes.WebSocket != nil {
		mux.HandleFunc("/ws", routes.WebSocket)
	} else {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "WebSocket handler not yet integrated", http.StatusNotImplemented)
		})
	}

	return RequestLogger(logger)(CORS(cfg.CORS)(mux))
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if pool != nil {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
	}
	if redis != nil {
		if err := redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
