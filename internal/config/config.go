package config

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v10"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quiz-duel"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`
	StoreBackend            string        `env:"STORE_BACKEND" envDefault:"redis"`

	Postgres    Postgres
	Redis       Redis
	Security    Security
	Match       Match
	Classroom   Classroom
	Board       Board
	Leaderboard Leaderboard
	CORS        CORS
}

// Postgres captures connection info for the SQL database. An empty host disables it.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:""`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:""`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:""`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// Enabled reports whether a database is configured.
func (p Postgres) Enabled() bool { return p.Host != "" }

// ConnString returns the pgx connection string.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.MaxConns)
}

// Redis holds store, leaderboard and pub/sub configuration.
type Redis struct {
	Addr           string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DB             int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize       int           `env:"REDIS_POOL_SIZE" envDefault:"20"`
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX" envDefault:"rtdb"`
	ResyncInterval time.Duration `env:"REDIS_RESYNC_INTERVAL" envDefault:"2s"`
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"8h"`
}

// Match groups gameplay timing.
type Match struct {
	MaxQuestions    int           `env:"MATCH_MAX_QUESTIONS" envDefault:"10"`
	RoundDuration   time.Duration `env:"MATCH_ROUND_SECONDS" envDefault:"30s"`
	RevealDelay     time.Duration `env:"MATCH_REVEAL_DELAY" envDefault:"3s"`
	DisconnectGrace time.Duration `env:"MATCH_DISCONNECT_GRACE" envDefault:"4s"`
	TotalRooms      int           `env:"MATCH_TOTAL_ROOMS" envDefault:"15"`
}

// Classroom points at the roster and question files and the local calendar.
type Classroom struct {
	RosterPath       string `env:"CLASSROOM_ROSTER_PATH" envDefault:"configs/roster.yaml"`
	QuestionsPath    string `env:"CLASSROOM_QUESTIONS_PATH" envDefault:"configs/questions.csv"`
	Timezone         string `env:"CLASSROOM_TIMEZONE" envDefault:"Asia/Taipei"`
	StartingEnergy   int    `env:"CLASSROOM_STARTING_ENERGY" envDefault:"10"`
	DailyEnergyFloor int    `env:"CLASSROOM_DAILY_ENERGY_FLOOR" envDefault:"10"`
}

// Location resolves the classroom timezone.
func (c Classroom) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Board limits the discussion board.
type Board struct {
	ListLimit   int `env:"BOARD_LIST_LIMIT" envDefault:"100"`
	MaxContent  int `env:"BOARD_MAX_CONTENT" envDefault:"500"`
	MaxNickname int `env:"BOARD_MAX_NICKNAME" envDefault:"32"`
}

// Leaderboard governs ranking, snapshotting and broadcast behavior.
type Leaderboard struct {
	TopN             int           `env:"LEADERBOARD_TOP" envDefault:"50"`
	BroadcastTop     int           `env:"LEADERBOARD_BROADCAST_TOP" envDefault:"10"`
	WeeklyTTL        time.Duration `env:"LEADERBOARD_WEEKLY_TTL" envDefault:"168h"`
	SnapshotInterval time.Duration `env:"LEADERBOARD_SNAPSHOT_INTERVAL" envDefault:"5m"`
	SnapshotTopN     int           `env:"LEADERBOARD_SNAPSHOT_TOP" envDefault:"50"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://127.0.0.1:5173"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	switch cfg.StoreBackend {
	case StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("parse config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.Match.MaxQuestions <= 0 || cfg.Match.TotalRooms <= 0 {
		return nil, fmt.Errorf("parse config: MATCH_MAX_QUESTIONS and MATCH_TOTAL_ROOMS must be positive")
	}
	if cfg.Match.RoundDuration < time.Second {
		return nil, fmt.Errorf("parse config: MATCH_ROUND_SECONDS must be at least one second")
	}
	return cfg, nil
}
