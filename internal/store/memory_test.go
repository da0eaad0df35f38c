package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roomDoc struct {
	CurrentIdx int            `json:"currentIdx"`
	GameOver   bool           `json:"gameOver"`
	Players    map[string]any `json:"players,omitempty"`
}

func TestMemory_SetGetNestedPaths(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, "rooms/1", roomDoc{CurrentIdx: 2}))
	require.NoError(t, s.Set(ctx, "rooms/1/players/p2/presence", true))

	snap, err := s.Get(ctx, "rooms/1/players/p2/presence")
	require.NoError(t, err)
	assert.True(t, snap.Exists())
	assert.JSONEq(t, `true`, string(snap.Value))

	var doc roomDoc
	full, err := s.Get(ctx, "rooms/1")
	require.NoError(t, err)
	require.NoError(t, full.Decode(&doc))
	assert.Equal(t, 2, doc.CurrentIdx)
	assert.Equal(t, int64(2), full.Revision)

	missing, err := s.Get(ctx, "rooms/9")
	require.NoError(t, err)
	assert.False(t, missing.Exists())
}

func TestMemory_SetNilDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, "rooms/1/selections/p1", map[string]any{"text": "A"}))
	require.NoError(t, s.Set(ctx, "rooms/1/selections/p1", nil))

	snap, err := s.Get(ctx, "rooms/1/selections/p1")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestMemory_UpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"currentIdx": 0, "timeLeft": 30}))
	require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{
		"timeLeft":            29,
		"players/p1/presence": true,
	}))

	snap, err := s.Get(ctx, "rooms/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"currentIdx":0,"timeLeft":29,"players":{"p1":{"presence":true}}}`, string(snap.Value))
}

func TestMemory_TransactAbortAndError(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"statsSaved": true}))

	_, committed, err := s.Transact(ctx, "rooms/1", func(cur json.RawMessage) (any, error) {
		return nil, ErrAbort
	})
	require.NoError(t, err)
	assert.False(t, committed)

	boom := errors.New("boom")
	_, committed, err = s.Transact(ctx, "rooms/1", func(cur json.RawMessage) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, committed)

	snap, committed, err := s.Transact(ctx, "rooms/1/statsSaved", func(cur json.RawMessage) (any, error) {
		assert.JSONEq(t, `true`, string(cur))
		return false, nil
	})
	require.NoError(t, err)
	assert.True(t, committed)
	assert.JSONEq(t, `false`, string(snap.Value))
}

func TestMemory_TransactOnAbsentValue(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, committed, err := s.Transact(ctx, "users/07", func(cur json.RawMessage) (any, error) {
		assert.Nil(t, cur)
		return map[string]any{"energy": 10}, nil
	})
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestMemory_SubscribeDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"timeLeft": 30}))

	var seen []string
	unsub, err := s.Subscribe(ctx, "rooms/1", func(snap Snapshot) {
		seen = append(seen, string(snap.Value))
	})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"timeLeft": 29}))
	unsub()
	require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"timeLeft": 28}))

	require.Len(t, seen, 2)
	assert.JSONEq(t, `{"timeLeft":30}`, seen[0])
	assert.JSONEq(t, `{"timeLeft":29}`, seen[1])
}

func TestMemory_FieldSubscriptionSkipsUnrelatedWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "rooms/1/players/p2/presence", true))

	var seen []string
	_, err := s.Subscribe(ctx, "rooms/1/players/p2/presence", func(snap Snapshot) {
		seen = append(seen, string(snap.Value))
	})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"timeLeft": 29}))
	require.NoError(t, s.Set(ctx, "rooms/1/players/p2/presence", false))

	assert.Equal(t, []string{"true", "false"}, seen)
}

func TestMemory_ReentrantWriteFromSubscriber(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"timeLeft": 3}))

	var seen []int
	_, err := s.Subscribe(ctx, "rooms/1", func(snap Snapshot) {
		var doc struct {
			TimeLeft int `json:"timeLeft"`
		}
		require.NoError(t, snap.Decode(&doc))
		seen = append(seen, doc.TimeLeft)
		if doc.TimeLeft > 0 {
			require.NoError(t, s.Update(ctx, "rooms/1", map[string]any{"timeLeft": doc.TimeLeft - 1}))
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 2, 1, 0}, seen)
}

func TestMemory_List(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "questionStats/b", map[string]any{"totalCount": 2}))
	require.NoError(t, s.Set(ctx, "questionStats/a", map[string]any{"totalCount": 1}))
	require.NoError(t, s.Set(ctx, "rooms/1", map[string]any{"timeLeft": 1}))

	snaps, err := s.List(ctx, "questionStats")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "questionStats/a", snaps[0].Path)
	assert.Equal(t, "questionStats/b", snaps[1].Path)
}

func TestInvalidPaths(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.Get(ctx, "rooms")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.List(ctx, "rooms/1")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDisconnectActions_FireOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	d := NewDisconnectActions(s)

	d.OnDisconnectSet("rooms/1/players/p1/presence", false)
	d.OnDisconnectSet("rooms/2/players/p2/presence", false)
	d.Cancel("rooms/2/players/p2/presence")
	assert.Equal(t, []string{"rooms/1/players/p1/presence"}, d.Pending())

	require.NoError(t, s.Set(ctx, "rooms/1/players/p1/presence", true))
	require.NoError(t, d.Fire(ctx))

	snap, err := s.Get(ctx, "rooms/1/players/p1/presence")
	require.NoError(t, err)
	assert.JSONEq(t, `false`, string(snap.Value))

	require.NoError(t, s.Set(ctx, "rooms/1/players/p1/presence", true))
	require.NoError(t, d.Fire(ctx))
	snap, err = s.Get(ctx, "rooms/1/players/p1/presence")
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(snap.Value))
}
