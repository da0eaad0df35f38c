package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeJoinRoom     = "join_room"
	TypeSubmitAnswer = "submit_answer"
	TypeForfeit      = "forfeit"
	TypeLeaveRoom    = "leave_room"
	TypePing         = "ping"

	// Server -> Client
	TypeJoined            = "joined"
	TypeRoomState         = "room_state"
	TypeAnswerAck         = "answer_ack"
	TypeLeft              = "left"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeError             = "error"
	TypePong              = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = data
	return msg, nil
}

// Client Messages (incoming)

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type SubmitAnswerPayload struct {
	Option string `json:"option"`
}

// Server Messages (outgoing)

type JoinedPayload struct {
	RoomID string `json:"room_id"`
	Role   string `json:"role"`
	Seat   string `json:"seat,omitempty"`
}

type RoomStatePayload struct {
	RoomID      string              `json:"room_id"`
	Role        string              `json:"role"`
	Seat        string              `json:"seat,omitempty"`
	Phase       string              `json:"phase"`
	Round       int                 `json:"round"`
	TotalRounds int                 `json:"total_rounds"`
	TimeLeft    int                 `json:"time_left"`
	Question    *QuestionPayload    `json:"question,omitempty"`
	Players     []RoomPlayerPayload `json:"players"`
	ForfeitedBy string              `json:"forfeited_by,omitempty"`
	Result      *MatchResultPayload `json:"result,omitempty"`
}

type QuestionPayload struct {
	Prompt   string   `json:"prompt"`
	Category string   `json:"category"`
	Options  []string `json:"options"`
	// Answer is only filled once the round is revealed.
	Answer string `json:"answer,omitempty"`
}

type RoomPlayerPayload struct {
	Seat        string `json:"seat"`
	StudentID   string `json:"student_id,omitempty"`
	DisplayName string `json:"display_name"`
	Present     bool   `json:"present"`
	Score       int    `json:"score"`
	Streak      int    `json:"streak"`
	Answered    bool   `json:"answered"`
	Selection   string `json:"selection,omitempty"`
	Correct     *bool  `json:"correct,omitempty"`
}

type MatchResultPayload struct {
	Outcome string `json:"outcome"`
	Winner  string `json:"winner,omitempty"`
}

type AnswerAckPayload struct {
	RoomID   string `json:"room_id"`
	Round    int    `json:"round"`
	Accepted bool   `json:"accepted"`
}

type LeftPayload struct {
	RoomID    string `json:"room_id"`
	Forfeited bool   `json:"forfeited"`
}

type LeaderboardUpdatePayload struct {
	Window string             `json:"window"`
	Top    []LeaderboardEntry `json:"top"`
	RoomID string             `json:"room_id,omitempty"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Wins        int    `json:"wins"`
	Games       int    `json:"games"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
