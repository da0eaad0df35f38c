package board

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	insertMessageSQL = `INSERT INTO board_messages (nickname, content, created_at)
VALUES ($1, $2, $3)
RETURNING id, nickname, content, created_at`

	listMessagesSQL = `SELECT id, nickname, content, created_at
FROM board_messages
ORDER BY created_at DESC, id DESC
LIMIT $1`

	countMessagesSQL = `SELECT COUNT(*) FROM board_messages`
)

// Querier is the part of a pgx pool the board uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists messages in the board_messages table.
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, nickname, content string, at time.Time) (Message, error) {
	var m Message
	err := s.db.QueryRow(ctx, insertMessageSQL, nickname, content, at).
		Scan(&m.ID, &m.Nickname, &m.Content, &m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert board message: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx, listMessagesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list board messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.Nickname, &m.Content, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan board messages: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, countMessagesSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count board messages: %w", err)
	}
	return n, nil
}
