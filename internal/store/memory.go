package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Subscribers are notified synchronously on the writing goroutine;
// a subscriber that writes from inside its callback has the resulting snapshot queued and delivered
// once the callback returns, so deliveries never nest.
type Memory struct {
	engine

	mu     sync.Mutex
	docs   map[string]memDoc
	subs   map[string]map[int]*memSub
	nextID int
}

type memDoc struct {
	data []byte
	rev  int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	m := &Memory{
		docs: make(map[string]memDoc),
		subs: make(map[string]map[int]*memSub),
	}
	m.engine = engine{b: m}
	return m
}

func (m *Memory) read(_ context.Context, p docPath) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[p.key()]
	return d.data, d.rev, nil
}

func (m *Memory) commit(ctx context.Context, p docPath, fn func(cur []byte) ([]byte, error)) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	key := p.key()
	cur := m.docs[key]
	next, err := fn(cur.data)
	if err != nil {
		m.mu.Unlock()
		return cur.data, cur.rev, err
	}
	rev := cur.rev + 1
	m.docs[key] = memDoc{data: next, rev: rev}
	subs := make([]*memSub, 0, len(m.subs[key]))
	for _, s := range m.subs[key] {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, s := range subs {
		s.push(next, rev)
	}
	return next, rev, nil
}

func (m *Memory) watch(_ context.Context, p docPath, fn func(doc []byte, rev int64)) (func(), error) {
	m.mu.Lock()
	key := p.key()
	m.nextID++
	s := &memSub{id: m.nextID, fn: fn, queuedRev: -1}
	if m.subs[key] == nil {
		m.subs[key] = make(map[int]*memSub)
	}
	m.subs[key][s.id] = s
	cur := m.docs[key]
	m.mu.Unlock()

	s.push(cur.data, cur.rev)

	return func() {
		m.mu.Lock()
		delete(m.subs[key], s.id)
		m.mu.Unlock()
		s.close()
	}, nil
}

func (m *Memory) list(_ context.Context, collection string) ([]docRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := collection + "/"
	var out []docRecord
	for key, d := range m.docs {
		if !strings.HasPrefix(key, prefix) || len(d.data) == 0 {
			continue
		}
		out = append(out, docRecord{id: strings.TrimPrefix(key, prefix), doc: d.data, rev: d.rev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

type memSub struct {
	id int
	fn func(doc []byte, rev int64)

	mu         sync.Mutex
	closed     bool
	delivering bool
	hasPending bool
	pendingDoc []byte
	pendingRev int64
	queuedRev  int64
}

func (s *memSub) push(doc []byte, rev int64) {
	s.mu.Lock()
	if s.closed || rev <= s.queuedRev {
		s.mu.Unlock()
		return
	}
	s.pendingDoc, s.pendingRev, s.hasPending = doc, rev, true
	s.queuedRev = rev
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for s.hasPending && !s.closed {
		doc, rev := s.pendingDoc, s.pendingRev
		s.hasPending = false
		s.mu.Unlock()
		s.fn(doc, rev)
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (s *memSub) close() {
	s.mu.Lock()
	s.closed = true
	s.hasPending = false
	s.mu.Unlock()
}
