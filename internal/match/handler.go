package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-duel/internal/metrics"
	"github.com/gokatarajesh/quiz-duel/internal/store"
	httperrors "github.com/gokatarajesh/quiz-duel/pkg/http/errors"
	ws "github.com/gokatarajesh/quiz-duel/pkg/http/ws"
)

const disconnectTimeout = 5 * time.Second

// Handler manages WebSocket sessions and routes room messages.
type Handler struct {
	service *Service
	hub     *ws.Hub
	auth    TokenValidator
	logger  zerolog.Logger
}

// NewHandler creates a match WebSocket handler.
func NewHandler(service *Service, hub *ws.Hub, auth TokenValidator, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		auth:    auth,
		logger:  logger.With().Str("component", "match_ws").Logger(),
	}
}

// session is one WebSocket connection. It holds at most one room attachment at a time.
type session struct {
	id      uuid.UUID
	who     Identity
	conn    *ws.Connection
	actions *store.DisconnectActions
	ctx     context.Context
	logger  zerolog.Logger

	mu          sync.Mutex
	participant *Participant
}

// HandleConnection serves a connection until the peer goes away. The identity must come from a
// validated token.
func (h *Handler) HandleConnection(conn ws.Conn, who Identity) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:      uuid.New(),
		who:     who,
		actions: h.service.NewDisconnectActions(),
		ctx:     ctx,
	}
	sess.logger = h.logger.With().Str("session_id", sess.id.String()).Str("student_id", who.StudentID).Logger()
	sess.conn = ws.NewConnection(conn, sess.logger)

	h.hub.Register(sess.id, sess.conn)
	metrics.ActiveSessions.Inc()
	sess.logger.Info().Bool("teacher", who.Teacher).Msg("session opened")

	go sess.conn.WritePump()

	sess.conn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(sess, msg)
	})

	// The peer is gone: stop local timers first, then run the registered disconnect writes.
	if p := sess.detach(); p != nil {
		p.Stop()
	}
	cancel()
	fireCtx, fireCancel := context.WithTimeout(context.Background(), disconnectTimeout)
	if err := sess.actions.Fire(fireCtx); err != nil {
		sess.logger.Warn().Err(err).Msg("disconnect actions failed")
	}
	fireCancel()

	h.hub.Unregister(sess.id)
	metrics.ActiveSessions.Dec()
	sess.logger.Info().Msg("session closed")
}

func (s *session) current() *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

func (s *session) detach() *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participant
	s.participant = nil
	return p
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(sess *session, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinRoom:
		return h.handleJoinRoom(sess, msg)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(sess, msg)
	case ws.TypeForfeit:
		return h.handleForfeit(sess, msg)
	case ws.TypeLeaveRoom:
		return h.handleLeaveRoom(sess, msg)
	case ws.TypePing:
		return h.reply(sess, msg, ws.TypePong, nil)
	default:
		return h.sendError(sess, msg, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleJoinRoom(sess *session, msg ws.Message) error {
	var req ws.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.RoomID == "" {
		return h.sendError(sess, msg, httperrors.ErrCodeInvalidPayload, "Invalid join_room payload")
	}
	if p := sess.current(); p != nil {
		return h.sendError(sess, msg, httperrors.ErrCodeAlreadySeated, fmt.Sprintf("Already in room %s, leave it first", p.RoomID()))
	}

	res, err := h.service.JoinRoom(sess.ctx, req.RoomID, sess.who, sess.actions)
	if err != nil {
		return h.sendMatchError(sess, msg, err)
	}
	if err := h.reply(sess, msg, ws.TypeJoined, ws.JoinedPayload{
		RoomID: res.RoomID,
		Role:   res.Role.String(),
		Seat:   string(res.Seat),
	}); err != nil {
		return err
	}

	p, err := h.service.Attach(sess.ctx, res, sess.who, sess.actions, func(view ws.RoomStatePayload) {
		if err := h.push(sess, ws.TypeRoomState, view); err != nil {
			sess.logger.Debug().Err(err).Msg("room_state not delivered")
		}
	})
	if err != nil {
		sess.logger.Error().Err(err).Str("room_id", res.RoomID).Msg("attach failed")
		if relErr := h.service.Release(sess.ctx, res, sess.who, sess.actions); relErr != nil {
			sess.logger.Warn().Err(relErr).Str("room_id", res.RoomID).Msg("release after failed attach")
		}
		return h.sendError(sess, msg, httperrors.ErrCodeJoinFailed, "Could not attach to room")
	}

	sess.mu.Lock()
	sess.participant = p
	sess.mu.Unlock()
	return nil
}

func (h *Handler) handleSubmitAnswer(sess *session, msg ws.Message) error {
	p := sess.current()
	if p == nil {
		return h.sendError(sess, msg, httperrors.ErrCodeNotInRoom, "Join a room first")
	}
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Option == "" {
		return h.sendError(sess, msg, httperrors.ErrCodeInvalidPayload, "Invalid submit_answer payload")
	}

	round, err := p.Submit(sess.ctx, req.Option)
	if err != nil {
		return h.sendMatchError(sess, msg, err)
	}
	return h.reply(sess, msg, ws.TypeAnswerAck, ws.AnswerAckPayload{RoomID: p.RoomID(), Round: round, Accepted: true})
}

func (h *Handler) handleForfeit(sess *session, msg ws.Message) error {
	p := sess.current()
	if p == nil {
		return h.sendError(sess, msg, httperrors.ErrCodeNotInRoom, "Join a room first")
	}
	if err := p.Forfeit(sess.ctx); err != nil {
		return h.sendMatchError(sess, msg, err)
	}
	return nil
}

func (h *Handler) handleLeaveRoom(sess *session, msg ws.Message) error {
	p := sess.detach()
	if p == nil {
		return h.sendError(sess, msg, httperrors.ErrCodeNotInRoom, "Not in a room")
	}
	forfeited, err := p.Leave(sess.ctx)
	if err != nil {
		sess.logger.Error().Err(err).Str("room_id", p.RoomID()).Msg("leave failed")
		return h.sendError(sess, msg, httperrors.ErrCodeInternalError, "Leave failed")
	}
	return h.reply(sess, msg, ws.TypeLeft, ws.LeftPayload{RoomID: p.RoomID(), Forfeited: forfeited})
}

func (h *Handler) push(sess *session, msgType string, payload any) error {
	out, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return sess.conn.Send(out)
}

func (h *Handler) reply(sess *session, req ws.Message, msgType string, payload any) error {
	out, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	out.RequestID = req.RequestID
	return sess.conn.Send(out)
}

func (h *Handler) sendError(sess *session, req ws.Message, code, message string) error {
	return h.reply(sess, req, ws.TypeError, ws.ErrorPayload{Code: code, Message: message})
}

func (h *Handler) sendMatchError(sess *session, req ws.Message, err error) error {
	code, message := ErrorCode(err)
	if code == httperrors.ErrCodeInternalError {
		sess.logger.Error().Err(err).Str("type", req.Type).Msg("room operation failed")
	}
	return h.sendError(sess, req, code, message)
}

// ErrorCode maps a match error to its client-facing code and message.
func ErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, ErrUnknownRoom):
		return httperrors.ErrCodeRoomNotFound, "Room does not exist"
	case errors.Is(err, ErrRoomFull):
		return httperrors.ErrCodeRoomFull, "Room is full"
	case errors.Is(err, ErrMatchInProgress):
		return httperrors.ErrCodeMatchInProgress, "A match is already running in this room"
	case errors.Is(err, ErrEnergyExhausted):
		return httperrors.ErrCodeEnergyExhausted, "Not enough energy to play"
	case errors.Is(err, ErrAlreadySeated):
		return httperrors.ErrCodeAlreadySeated, "Already seated in this room"
	case errors.Is(err, ErrQuestionBankTooSmall):
		return httperrors.ErrCodeQuestionBankTooSmall, "Not enough questions to start a match"
	case errors.Is(err, ErrNotPlayer):
		return httperrors.ErrCodeObserverCannotPlay, "Observers cannot play"
	case errors.Is(err, ErrNotSeatHolder):
		return httperrors.ErrCodeNotSeatHolder, "Seat belongs to another student"
	case errors.Is(err, ErrOpponentMissing):
		return httperrors.ErrCodeOpponentMissing, "Waiting for an opponent"
	case errors.Is(err, ErrAlreadyAnswered):
		return httperrors.ErrCodeAlreadyAnswered, "Already answered this round"
	case errors.Is(err, ErrRoundClosed):
		return httperrors.ErrCodeRoundClosed, "Round is closed"
	case errors.Is(err, ErrMatchOver):
		return httperrors.ErrCodeMatchOver, "Match is over"
	case errors.Is(err, ErrUnknownOption):
		return httperrors.ErrCodeUnknownOption, "Option is not part of the question"
	default:
		return httperrors.ErrCodeInternalError, "Internal error"
	}
}
