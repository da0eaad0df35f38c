package leaderboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

func newTestService(t *testing.T) (*Service, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewService(client, zerolog.Nop(), ServiceOptions{}), client, mr
}

func seed(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.RecordResult(ctx, RecordRequest{StudentID: "01", DisplayName: "Amy", Score: 100, Won: true, RoomID: "1"}))
	require.NoError(t, svc.RecordResult(ctx, RecordRequest{StudentID: "01", DisplayName: "Amy", Score: 50, RoomID: "2"}))
	require.NoError(t, svc.RecordResult(ctx, RecordRequest{StudentID: "02", DisplayName: "Ben", Score: 300, Won: true, RoomID: "2"}))
}

func TestRecordResult_Aggregates(t *testing.T) {
	svc, _, mr := newTestService(t)
	seed(t, svc)

	top, err := svc.Top(context.Background(), WindowAllTime, 10)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{StudentID: "02", DisplayName: "Ben", Score: 300, Wins: 1, Games: 1},
		{StudentID: "01", DisplayName: "Amy", Score: 150, Wins: 1, Games: 2},
	}, top)

	assert.Greater(t, mr.TTL("lb:class:weekly"), time.Duration(0))
	assert.Greater(t, mr.TTL("lb:class:weekly:meta:01"), time.Duration(0))
	assert.Equal(t, time.Duration(0), mr.TTL("lb:class:all_time"))

	limited, err := svc.Top(context.Background(), WindowWeekly, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "02", limited[0].StudentID)
}

func TestRecordResult_Windows(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordResult(ctx, RecordRequest{StudentID: "03", Score: 20, Windows: []string{WindowAllTime}}))
	assert.False(t, mr.Exists("lb:class:weekly"))

	top, err := svc.Top(ctx, WindowAllTime, 0)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "03", top[0].DisplayName, "display name falls back to the id")

	err = svc.RecordResult(ctx, RecordRequest{StudentID: "03", Windows: []string{"monthly"}})
	assert.ErrorIs(t, err, ErrUnknownWindow)

	_, err = svc.Top(ctx, "monthly", 10)
	assert.ErrorIs(t, err, ErrUnknownWindow)

	assert.NoError(t, svc.RecordResult(ctx, RecordRequest{}))
}

func TestRecordResult_PublishesTop(t *testing.T) {
	svc, client, _ := newTestService(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, svc.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	ch := sub.Channel()

	require.NoError(t, svc.RecordResult(ctx, RecordRequest{StudentID: "01", DisplayName: "Amy", Score: 90, Won: true, RoomID: "7"}))

	got := map[string]ws.LeaderboardUpdatePayload{}
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var evt ws.LeaderboardUpdatePayload
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
			got[evt.Window] = evt
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for updates, got %d", len(got))
		}
	}

	evt := got[WindowAllTime]
	assert.Equal(t, "7", evt.RoomID)
	assert.Equal(t, []ws.LeaderboardEntry{{Rank: 1, StudentID: "01", DisplayName: "Amy", Score: 90, Wins: 1, Games: 1}}, evt.Top)
}

type fakeRow struct {
	raw []byte
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.raw
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	execs    []execCall
	affected bool
	row      fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.affected {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 0"), nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

func TestSnapshotWorker_PersistsEachWindow(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)
	db := &fakeDB{affected: true}

	w := NewSnapshotWorker(svc, db, time.Minute, 1, zerolog.Nop())
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	w.tick(context.Background())

	require.Len(t, db.execs, 2)
	call := db.execs[0]
	assert.Equal(t, insertSnapshotSQL, call.sql)
	require.Len(t, call.args, 4)
	assert.Equal(t, WindowWeekly, call.args[0])
	assert.Equal(t, fixed, call.args[1])

	var entries []ws.LeaderboardEntry
	require.NoError(t, json.Unmarshal(call.args[2].([]byte), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "02", entries[0].StudentID)
	assert.Len(t, call.args[3], 64)
	assert.Equal(t, call.args[3], db.execs[1].args[3], "identical top lists hash the same")
}

func TestSnapshotWorker_SkipsEmptyBoards(t *testing.T) {
	svc, _, _ := newTestService(t)
	db := &fakeDB{}
	NewSnapshotWorker(svc, db, 0, 0, zerolog.Nop()).tick(context.Background())
	assert.Empty(t, db.execs)
}

func TestHTTPHandler_Get(t *testing.T) {
	svc, _, _ := newTestService(t)
	seed(t, svc)
	h := NewHTTPHandler(svc, nil, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboard?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Window string                `json:"window"`
		Top    []ws.LeaderboardEntry `json:"top"`
		Source string                `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, WindowAllTime, body.Window)
	assert.Equal(t, "redis", body.Source)
	require.Len(t, body.Top, 1)
	assert.Equal(t, "Ben", body.Top[0].DisplayName)

	rec = httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboard?window=daily", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodPost, "/v1/leaderboard", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPHandler_SnapshotFallback(t *testing.T) {
	svc, _, _ := newTestService(t)
	raw, err := json.Marshal([]ws.LeaderboardEntry{
		{Rank: 1, StudentID: "05", DisplayName: "Eve", Score: 900},
		{Rank: 2, StudentID: "06", DisplayName: "Fay", Score: 800},
	})
	require.NoError(t, err)
	h := NewHTTPHandler(svc, &fakeDB{row: fakeRow{raw: raw}}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboard?window=weekly&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"snapshot"`)
	assert.Contains(t, rec.Body.String(), `"Eve"`)
	assert.NotContains(t, rec.Body.String(), `"Fay"`)

	h = NewHTTPHandler(svc, &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, zerolog.Nop())
	rec = httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"top":[]`)
}

func TestHTTPHandler_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(nil, nil, zerolog.Nop()).HandleGet(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeFanout struct {
	mu       sync.Mutex
	sessions int
	sent     []ws.Message
}

func (f *fakeFanout) BroadcastAll(msg ws.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeFanout) Len() int { return f.sessions }

func (f *fakeFanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestBroadcaster_RelayDropsRepeats(t *testing.T) {
	out := &fakeFanout{sessions: 2}
	b := NewBroadcaster(nil, out, "", zerolog.Nop())

	update := `{"window":"weekly","top":[{"rank":1,"student_id":"01","display_name":"Amy","score":100}]}`
	assert.True(t, b.relay(update))
	assert.False(t, b.relay(update))
	assert.True(t, b.relay(`{"window":"all_time","top":[{"rank":1,"student_id":"01","display_name":"Amy","score":100}]}`))
	assert.False(t, b.relay("not json"))
	require.Equal(t, 2, out.count())
	assert.Equal(t, ws.TypeLeaderboardUpdate, out.sent[0].Type)

	idle := NewBroadcaster(nil, &fakeFanout{}, "", zerolog.Nop())
	assert.False(t, idle.relay(update))
}

func TestBroadcaster_RunForwardsPublishedUpdates(t *testing.T) {
	svc, client, _ := newTestService(t)
	out := &fakeFanout{sessions: 1}
	b := NewBroadcaster(client, out, svc.Channel(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	score := 0
	assert.Eventually(t, func() bool {
		score += 10
		require.NoError(t, svc.RecordResult(context.Background(), RecordRequest{StudentID: "01", DisplayName: "Amy", Score: score}))
		return out.count() > 0
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}
