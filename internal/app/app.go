package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/auth"
	"github.com/gokatarajesh/quiz-duel/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-duel/internal/board"
	"github.com/gokatarajesh/quiz-duel/internal/clock"
	"github.com/gokatarajesh/quiz-duel/internal/config"
	"github.com/gokatarajesh/quiz-duel/internal/leaderboard"
	"github.com/gokatarajesh/quiz-duel/internal/logging"
	"github.com/gokatarajesh/quiz-duel/internal/match"
	"github.com/gokatarajesh/quiz-duel/internal/profile"
	"github.com/gokatarajesh/quiz-duel/internal/question"
	"github.com/gokatarajesh/quiz-duel/internal/server"
	"github.com/gokatarajesh/quiz-duel/internal/stats"
	"github.com/gokatarajesh/quiz-duel/internal/store"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

// Application aggregates shared infrastructure (store, DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server
	hub   *ws.Hub

	lbBroadcaster  *leaderboard.Broadcaster
	snapshotWorker *leaderboard.SnapshotWorker
	bgCancels      []context.CancelFunc
}

// New bootstraps configs, logger, the room store, Postgres, Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Str("store", cfg.StoreBackend).Msg("starting application bootstrap")

	loc, err := cfg.Classroom.Location()
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.Enabled() {
		pool, err = pgxpool.New(ctx, cfg.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	} else {
		logger.Warn().Msg("PG_HOST not set; board runs in memory and leaderboard snapshots are disabled")
	}

	var redisClient *redis.Client
	var roomStore store.Store
	switch cfg.StoreBackend {
	case config.StoreRedis:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		roomStore = store.NewRedis(redisClient, logger, store.RedisOptions{
			KeyPrefix:      cfg.Redis.KeyPrefix,
			ResyncInterval: cfg.Redis.ResyncInterval,
		})
	default:
		logger.Warn().Msg("memory room store selected; state is lost on restart and leaderboard is disabled")
		roomStore = store.NewMemory()
	}

	bank, err := question.LoadFile(cfg.Classroom.QuestionsPath)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	if bank.Len() < cfg.Match.MaxQuestions {
		return nil, fmt.Errorf("question bank has %d questions, need at least %d", bank.Len(), cfg.Match.MaxQuestions)
	}
	logger.Info().Int("questions", bank.Len()).Msg("question bank loaded")

	roster, err := auth.LoadRoster(cfg.Classroom.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	logger.Info().Int("students", len(roster.Students())).Msg("roster loaded")

	sched := clock.Real()
	profiles := profile.NewService(roomStore, profile.Options{
		StartingEnergy:   cfg.Classroom.StartingEnergy,
		DailyEnergyFloor: cfg.Classroom.DailyEnergyFloor,
		Location:         loc,
		Clock:            sched,
	}, logger)

	authSvc := auth.NewService(roster, profiles, auth.ServiceOptions{
		TokenConfig: jwt.TokenConfig{
			Secret: []byte(cfg.Security.JWTSecret),
			TTL:    cfg.Security.TokenTTL,
			Issuer: cfg.Name,
		},
	}, logger)
	authHandlers := auth.NewHTTPHandlers(authSvc, logger)

	statsSvc := stats.NewService(roomStore, logger)
	wsHub := ws.NewHub(logger)

	var (
		leaderboardSvc *leaderboard.Service
		results        match.ResultRecorder
		lbBroadcaster  *leaderboard.Broadcaster
		snapshotWorker *leaderboard.SnapshotWorker
		snapshotDB     leaderboard.SnapshotDB
	)
	if pool != nil {
		snapshotDB = pool
	}
	if redisClient != nil {
		leaderboardSvc = leaderboard.NewService(redisClient, logger, leaderboard.ServiceOptions{
			TopN:         cfg.Leaderboard.TopN,
			BroadcastTop: cfg.Leaderboard.BroadcastTop,
			WeeklyTTL:    cfg.Leaderboard.WeeklyTTL,
		})
		results = leaderboardSvc
		lbBroadcaster = leaderboard.NewBroadcaster(redisClient, wsHub, leaderboardSvc.Channel(), logger)
		if interval := cfg.Leaderboard.SnapshotInterval; interval > 0 && snapshotDB != nil {
			snapshotWorker = leaderboard.NewSnapshotWorker(leaderboardSvc, snapshotDB, interval, cfg.Leaderboard.SnapshotTopN, logger)
		}
	}

	matchSvc := match.NewService(match.ServiceDeps{
		Store:     roomStore,
		Bank:      bank,
		Profiles:  profiles,
		Stats:     statsSvc,
		Results:   results,
		Scheduler: sched,
	}, match.Config{
		MaxQuestions:    cfg.Match.MaxQuestions,
		RoundDuration:   cfg.Match.RoundDuration,
		RevealDelay:     cfg.Match.RevealDelay,
		DisconnectGrace: cfg.Match.DisconnectGrace,
		TotalRooms:      cfg.Match.TotalRooms,
	}, logger)
	matchWSHandler := match.NewHandler(matchSvc, wsHub, authSvc, logger)
	matchHTTP := match.NewHTTPHandlers(matchSvc, logger)

	var boardStore board.Store = board.NewMemoryStore()
	if pool != nil {
		boardStore = board.NewPostgresStore(pool)
	}
	boardHandlers := board.NewHTTPHandlers(board.NewService(boardStore, board.Options{
		ListLimit:   cfg.Board.ListLimit,
		MaxContent:  cfg.Board.MaxContent,
		MaxNickname: cfg.Board.MaxNickname,
		Location:    loc,
	}, logger), logger)

	routes := server.Routes{
		Auth:              authHandlers,
		AuthService:       authSvc,
		ListRooms:         matchHTTP.ListRooms,
		GetRoom:           matchHTTP.GetRoom,
		WebSocket:         matchWSHandler.HandleWebSocket,
		QuestionStats:     stats.NewHTTPHandler(statsSvc, logger).HandleReport,
		Leaderboard:       leaderboard.NewHTTPHandler(leaderboardSvc, snapshotDB, logger).HandleGet,
		BoardMessages:     boardHandlers.Messages,
		BoardMessageCount: boardHandlers.MessageCount,
	}
	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, routes)

	return &Application{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		http:           apiServer,
		hub:            wsHub,
		lbBroadcaster:  lbBroadcaster,
		snapshotWorker: snapshotWorker,
		bgCancels:      make([]context.CancelFunc, 0, 2),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}
	// Hijacked WebSocket connections are not tracked by Shutdown. Closing them runs each
	// session's disconnect actions while the store is still reachable.
	a.drainSessions(shutdownCtx)

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) drainSessions(ctx context.Context) {
	a.hub.CloseAll()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for a.hub.Len() > 0 {
		select {
		case <-ctx.Done():
			a.logger.Warn().Int("sessions", a.hub.Len()).Msg("sessions still open at shutdown")
			return
		case <-ticker.C:
		}
	}
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.lbBroadcaster != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.lbBroadcaster.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("leaderboard broadcaster stopped")
			}
		}()
	}

	if a.snapshotWorker != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.snapshotWorker.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("leaderboard snapshot worker stopped")
			}
		}()
	}
}
