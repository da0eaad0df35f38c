package match

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-duel/internal/clock"
	"github.com/gokatarajesh/quiz-duel/internal/profile"
	"github.com/gokatarajesh/quiz-duel/internal/question"
	"github.com/gokatarajesh/quiz-duel/internal/store"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

type harness struct {
	t        *testing.T
	ctx      context.Context
	mem      *store.Memory
	clk      *clock.Fake
	bank     *question.Bank
	profiles *profile.Service
	svc      *Service
}

func testConfig() Config {
	return Config{
		MaxQuestions:    3,
		RoundDuration:   30 * time.Second,
		RevealDelay:     3 * time.Second,
		DisconnectGrace: 4 * time.Second,
		TotalRooms:      15,
	}
}

func testBank(n int) *question.Bank {
	qs := make([]question.Question, n)
	for i := range qs {
		qs[i] = question.Question{
			Prompt:   fmt.Sprintf("Q%d", i),
			Options:  []string{fmt.Sprintf("right-%d", i), fmt.Sprintf("wrong-%d", i), fmt.Sprintf("other-%d", i)},
			Answer:   fmt.Sprintf("right-%d", i),
			Category: question.DefaultCategory,
		}
	}
	return question.NewBank(qs)
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:    t,
		ctx:  context.Background(),
		mem:  store.NewMemory(),
		clk:  clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
		bank: testBank(12),
	}
	h.profiles = profile.NewService(h.mem, profile.Options{
		StartingEnergy:   10,
		DailyEnergyFloor: 10,
		Location:         time.UTC,
		Clock:            h.clk,
	}, zerolog.Nop())
	h.svc = NewService(ServiceDeps{
		Store:     h.mem,
		Bank:      h.bank,
		Profiles:  h.profiles,
		Scheduler: h.clk,
		Rand:      rand.New(rand.NewSource(1)),
	}, cfg, zerolog.Nop())
	return h
}

func (h *harness) student(id string) Identity {
	h.t.Helper()
	_, err := h.profiles.Login(h.ctx, id, "student "+id)
	require.NoError(h.t, err)
	return Identity{StudentID: id, DisplayName: "student " + id}
}

func (h *harness) profile(id string) profile.Profile {
	h.t.Helper()
	p, err := h.profiles.Get(h.ctx, id)
	require.NoError(h.t, err)
	return p
}

func (h *harness) room(id string) Room {
	h.t.Helper()
	r, err := loadRoom(h.ctx, h.mem, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, r, "room %s missing", id)
	return *r
}

// option returns the right or a wrong option text of the room's current question.
func (h *harness) option(roomID string, right bool) string {
	h.t.Helper()
	q, ok := currentQuestion(h.room(roomID), h.bank)
	require.True(h.t, ok)
	if right {
		return q.Answer
	}
	return q.Options[1]
}

// sess is one simulated client connection.
type sess struct {
	h       *harness
	who     Identity
	actions *store.DisconnectActions
	p       *Participant
	res     JoinResult

	mu    sync.Mutex
	views []ws.RoomStatePayload
}

func (h *harness) enter(roomID string, who Identity) *sess {
	h.t.Helper()
	s, err := h.tryEnter(roomID, who)
	require.NoError(h.t, err)
	return s
}

func (h *harness) tryEnter(roomID string, who Identity) (*sess, error) {
	s := &sess{h: h, who: who, actions: h.svc.NewDisconnectActions()}
	p, res, err := h.svc.Enter(h.ctx, roomID, who, s.actions, s.record)
	if err != nil {
		return nil, err
	}
	s.p, s.res = p, res
	return s, nil
}

func (s *sess) record(v ws.RoomStatePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, v)
}

func (s *sess) lastView() ws.RoomStatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.h.t, s.views)
	return s.views[len(s.views)-1]
}

// drop simulates the connection going away without a clean leave.
func (s *sess) drop() {
	s.h.t.Helper()
	s.p.Stop()
	require.NoError(s.h.t, s.actions.Fire(s.h.ctx))
}
