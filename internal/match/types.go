package match

import (
	"errors"
	"time"
)

// Seat is one of the two competing slots of a room.
type Seat string

const (
	SeatP1 Seat = "p1"
	SeatP2 Seat = "p2"
	NoSeat Seat = ""
)

// Seats lists both competing seats in order.
var Seats = [...]Seat{SeatP1, SeatP2}

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	switch s {
	case SeatP1:
		return SeatP2
	case SeatP2:
		return SeatP1
	default:
		return NoSeat
	}
}

// Valid reports whether s names a competing seat.
func (s Seat) Valid() bool {
	return s == SeatP1 || s == SeatP2
}

// Role decides what a session may do in a room.
type Role int

const (
	// RoleAuthority holds p1 and drives the round clock.
	RoleAuthority Role = iota + 1
	// RoleParticipant holds p2.
	RoleParticipant
	// RoleObserver spectates without a seat.
	RoleObserver
)

func (r Role) String() string {
	switch r {
	case RoleAuthority:
		return "authority"
	case RoleParticipant:
		return "participant"
	case RoleObserver:
		return "observer"
	default:
		return "unknown"
	}
}

// Seat returns the seat a role plays from.
func (r Role) Seat() Seat {
	switch r {
	case RoleAuthority:
		return SeatP1
	case RoleParticipant:
		return SeatP2
	default:
		return NoSeat
	}
}

// RoleForSeat maps a claimed seat to its role.
func RoleForSeat(s Seat) Role {
	switch s {
	case SeatP1:
		return RoleAuthority
	case SeatP2:
		return RoleParticipant
	default:
		return RoleObserver
	}
}

// Phase of the round state machine.
type Phase string

const (
	PhaseWaitingForOpponent Phase = "waiting"
	PhaseInRound            Phase = "in_round"
	PhaseRevealing          Phase = "revealing"
	PhaseGameOver           Phase = "game_over"
)

// PlayerSlot is the occupancy record of one seat.
type PlayerSlot struct {
	Presence    bool   `json:"presence"`
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
}

// Selection is the answer a seat submitted in the current round.
type Selection struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
	Time      int    `json:"time"`
}

// Room is the shared record of one match, stored at rooms/<id>.
type Room struct {
	Players       map[Seat]PlayerSlot `json:"players"`
	CurrentIdx    int                 `json:"currentIdx"`
	QuestionOrder []int               `json:"questionOrder"`
	Scores        map[Seat]int        `json:"scores"`
	Streaks       map[Seat]int        `json:"streaks"`
	Selections    map[Seat]*Selection `json:"selections"`
	TimeLeft      int                 `json:"timeLeft"`
	ShowResult    bool                `json:"showResult"`
	GameOver      bool                `json:"gameOver"`
	ForfeitedBy   Seat                `json:"forfeitedBy,omitempty"`
	StatsSaved    bool                `json:"statsSaved"`
	CreatedAt     int64               `json:"createdAt"`
}

// normalize fills the maps a decoded record may be missing.
func (r *Room) normalize() {
	if r.Players == nil {
		r.Players = make(map[Seat]PlayerSlot, 2)
	}
	if r.Scores == nil {
		r.Scores = make(map[Seat]int, 2)
	}
	if r.Streaks == nil {
		r.Streaks = make(map[Seat]int, 2)
	}
	if r.Selections == nil {
		r.Selections = make(map[Seat]*Selection, 2)
	}
}

// OpponentJoined reports whether p2 has been claimed during this match.
func (r *Room) OpponentJoined() bool {
	return r.Players[SeatP2].Identity != ""
}

// BothAnswered reports whether both seats hold a selection for the current round.
func (r *Room) BothAnswered() bool {
	return r.Selections[SeatP1] != nil && r.Selections[SeatP2] != nil
}

// SeatOf returns the seat held by studentID in this room.
func (r *Room) SeatOf(studentID string) Seat {
	for _, s := range Seats {
		if studentID != "" && r.Players[s].Identity == studentID {
			return s
		}
	}
	return NoSeat
}

// Phase derives the state machine phase from the record alone.
func (r *Room) Phase() Phase {
	switch {
	case r.GameOver:
		return PhaseGameOver
	case !r.OpponentJoined():
		return PhaseWaitingForOpponent
	case r.ShowResult:
		return PhaseRevealing
	default:
		return PhaseInRound
	}
}

// Config holds the match timing and sizing constants.
type Config struct {
	MaxQuestions    int
	RoundDuration   time.Duration
	RevealDelay     time.Duration
	DisconnectGrace time.Duration
	TotalRooms      int
}

// DefaultConfig returns the classroom defaults.
func DefaultConfig() Config {
	return Config{
		MaxQuestions:    10,
		RoundDuration:   30 * time.Second,
		RevealDelay:     3 * time.Second,
		DisconnectGrace: 4 * time.Second,
		TotalRooms:      15,
	}
}

func (c Config) roundSeconds() int {
	return int(c.RoundDuration / time.Second)
}

// Identity is the caller of a room operation.
type Identity struct {
	StudentID   string
	DisplayName string
	Teacher     bool
}

var (
	ErrUnknownRoom          = errors.New("unknown room")
	ErrRoomFull             = errors.New("room is full")
	ErrMatchInProgress      = errors.New("match already in progress")
	ErrEnergyExhausted      = errors.New("energy exhausted")
	ErrAlreadySeated        = errors.New("already seated in this room")
	ErrQuestionBankTooSmall = errors.New("question bank too small")
	ErrNotPlayer            = errors.New("observers cannot play")
	ErrNotSeatHolder        = errors.New("seat is held by another player")
	ErrOpponentMissing      = errors.New("opponent has not joined")
	ErrAlreadyAnswered      = errors.New("already answered this round")
	ErrRoundClosed          = errors.New("round is closed")
	ErrMatchOver            = errors.New("match is over")
	ErrUnknownOption        = errors.New("unknown option")
	ErrNotFinished          = errors.New("match not finished")
)
