package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-duel/internal/config"
	"github.com/gokatarajesh/quiz-duel/internal/profile"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

const testRoster = `teacher:
  id: TEACHER
  name: 王老師
  password: chalk
students:
  - id: "01"
    name: 小明
    password: "0101"
  - id: "02"
    name: 小華
    password: "0202"
`

const testQuestions = "題目,選項A,選項B,選項C,選項D,答案,分類\n" +
	"1+1=?,1,2,3,4,2,數學\n" +
	"台灣最高的山?,玉山,雪山,合歡山,,玉山,地理\n"

var answers = map[string]struct{ right, wrong string }{
	"1+1=?":   {"2", "3"},
	"台灣最高的山?": {"玉山", "雪山"},
}

func testConfig(t *testing.T) *config.App {
	t.Helper()
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.yaml")
	questions := filepath.Join(dir, "questions.csv")
	require.NoError(t, os.WriteFile(roster, []byte(testRoster), 0o600))
	require.NoError(t, os.WriteFile(questions, []byte(testQuestions), 0o600))

	return &config.App{
		Name:                    "quiz-duel",
		Env:                     "test",
		HTTPAddr:                "127.0.0.1:0",
		GracefulShutdownTimeout: time.Second,
		StoreBackend:            config.StoreMemory,
		Security:                config.Security{JWTSecret: "app-test-secret", TokenTTL: time.Hour},
		Match: config.Match{
			MaxQuestions:    2,
			RoundDuration:   5 * time.Second,
			RevealDelay:     50 * time.Millisecond,
			DisconnectGrace: time.Second,
			TotalRooms:      3,
		},
		Classroom: config.Classroom{
			RosterPath:       roster,
			QuestionsPath:    questions,
			Timezone:         "Asia/Taipei",
			StartingEnergy:   10,
			DailyEnergyFloor: 10,
		},
		Board: config.Board{ListLimit: 100, MaxContent: 500, MaxNickname: 32},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	instance, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	srv := httptest.NewServer(instance.http.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srv *httptest.Server, id, password string) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{"student_id": id, "password": password})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func getJSON(t *testing.T, srv *httptest.Server, path, token string, into any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := ws.NewMessage(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// await reads until a message of msgType satisfies match.
func await(t *testing.T, conn *websocket.Conn, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == ws.TypeError {
			t.Fatalf("unexpected error message: %s", msg.Payload)
		}
		if msg.Type == msgType && (match == nil || match(msg.Payload)) {
			return msg.Payload
		}
	}
}

func roundState(round int) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var st ws.RoomStatePayload
		return json.Unmarshal(raw, &st) == nil && st.Phase == "in_round" && st.Round == round && st.Question != nil
	}
}

func answerRound(t *testing.T, conn *websocket.Conn, round int, right bool) {
	t.Helper()
	var st ws.RoomStatePayload
	require.NoError(t, json.Unmarshal(await(t, conn, ws.TypeRoomState, roundState(round)), &st))
	a, ok := answers[st.Question.Prompt]
	require.True(t, ok, st.Question.Prompt)
	option := a.wrong
	if right {
		option = a.right
	}
	send(t, conn, ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{Option: option})
	await(t, conn, ws.TypeAnswerAck, nil)
}

func TestApplication_FullMatch(t *testing.T) {
	srv := newTestServer(t)
	tok1 := login(t, srv, "01", "0101")
	tok2 := login(t, srv, "02", "0202")

	c1, c2 := dial(t, srv, tok1), dial(t, srv, tok2)

	var joined ws.JoinedPayload
	send(t, c1, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomID: "1"})
	require.NoError(t, json.Unmarshal(await(t, c1, ws.TypeJoined, nil), &joined))
	assert.Equal(t, "p1", joined.Seat)

	send(t, c2, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomID: "1"})
	require.NoError(t, json.Unmarshal(await(t, c2, ws.TypeJoined, nil), &joined))
	assert.Equal(t, "p2", joined.Seat)

	for round := 0; round < 2; round++ {
		answerRound(t, c1, round, true)
		answerRound(t, c2, round, false)
	}

	var final ws.RoomStatePayload
	gameOver := func(raw json.RawMessage) bool {
		var st ws.RoomStatePayload
		return json.Unmarshal(raw, &st) == nil && st.Result != nil
	}
	require.NoError(t, json.Unmarshal(await(t, c1, ws.TypeRoomState, gameOver), &final))
	assert.Equal(t, "game_over", final.Phase)
	assert.Equal(t, "win", final.Result.Outcome)
	assert.Equal(t, "p1", final.Result.Winner)

	me := func(token string) profile.Profile {
		var out struct {
			Profile profile.Profile `json:"profile"`
		}
		require.Equal(t, http.StatusOK, getJSON(t, srv, "/v1/users/me", token, &out))
		return out.Profile
	}
	assert.Eventually(t, func() bool { return me(tok1).TotalWins == 1 }, 2*time.Second, 20*time.Millisecond)
	winner, loser := me(tok1), me(tok2)
	assert.Equal(t, 12, winner.Energy)
	assert.Positive(t, winner.TotalScore)
	assert.Equal(t, 9, loser.Energy)
	assert.Zero(t, loser.TotalWins)

	teacher := login(t, srv, "TEACHER", "chalk")
	var report struct {
		Questions []struct {
			ErrorRate float64 `json:"error_rate"`
			HighRisk  bool    `json:"high_risk"`
		} `json:"questions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/v1/stats/questions", teacher, &report))
	require.Len(t, report.Questions, 2)
	for _, q := range report.Questions {
		assert.Equal(t, 50.0, q.ErrorRate)
		assert.True(t, q.HighRisk)
	}
	assert.Equal(t, http.StatusForbidden, getJSON(t, srv, "/v1/stats/questions", tok1, nil))
}

func TestApplication_LobbyAndBoard(t *testing.T) {
	srv := newTestServer(t)

	var lobby struct {
		Rooms []struct {
			RoomID string `json:"room_id"`
			Phase  string `json:"phase"`
		} `json:"rooms"`
		MaxQuestions int `json:"max_questions"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/v1/rooms", "", &lobby))
	assert.Len(t, lobby.Rooms, 3)
	assert.Equal(t, 2, lobby.MaxQuestions)
	assert.Equal(t, "waiting", lobby.Rooms[0].Phase)

	resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader(`{"nickname":"小明","content":"好難"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var count struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/api/message_count", "", &count))
	assert.Equal(t, 1, count.Count)

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv, "/v1/leaderboard", "", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv, "/healthz", "", nil))

	_, resp, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNew_RejectsSmallBank(t *testing.T) {
	cfg := testConfig(t)
	cfg.Match.MaxQuestions = 5
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "need at least 5")
}
