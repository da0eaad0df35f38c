package board

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps messages in process. It is used when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) Insert(_ context.Context, nickname, content string, at time.Time) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := Message{ID: m.nextID, Nickname: nickname, Content: content, CreatedAt: at}
	m.nextID++
	m.messages = append(m.messages, msg)
	return msg, nil
}

// List returns up to limit messages, newest first.
func (m *MemoryStore) List(_ context.Context, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, 0, min(limit, len(m.messages)))
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.messages[i])
	}
	return out, nil
}

func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.messages)), nil
}
