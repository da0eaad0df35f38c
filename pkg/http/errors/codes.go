package errors

// Stable error codes shared by REST responses and WebSocket error payloads.
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeForbidden              = "forbidden"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeLoginFailed            = "login_failed"

	// Validation errors
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeMissingField   = "missing_field"
	ErrCodeContentTooLong = "content_too_long"

	// Resource errors
	ErrCodeNotFound = "not_found"

	// Room/Match errors
	ErrCodeRoomNotFound         = "room_not_found"
	ErrCodeRoomFull             = "room_full"
	ErrCodeMatchInProgress      = "match_in_progress"
	ErrCodeEnergyExhausted      = "energy_exhausted"
	ErrCodeAlreadySeated        = "already_seated"
	ErrCodeNotInRoom            = "not_in_room"
	ErrCodeJoinFailed           = "join_failed"
	ErrCodeObserverCannotPlay   = "observer_cannot_play"
	ErrCodeRoundClosed          = "round_closed"
	ErrCodeAlreadyAnswered      = "already_answered"
	ErrCodeOpponentMissing      = "opponent_missing"
	ErrCodeMatchOver            = "match_over"
	ErrCodeUnknownOption        = "unknown_option"
	ErrCodeNotSeatHolder        = "not_seat_holder"
	ErrCodeQuestionBankTooSmall = "question_bank_too_small"
	ErrCodeRoomFetchFailed      = "room_fetch_failed"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError = "internal_error"

	// Feature availability
	ErrCodeFeatureNotAvailable = "feature_not_available"

	// Leaderboard errors
	ErrCodeLeaderboardFetchFailed = "leaderboard_fetch_failed"
	ErrCodeUnknownWindow          = "unknown_leaderboard_window"

	// Stats and board errors
	ErrCodeStatsFetchFailed = "stats_fetch_failed"
	ErrCodeBoardFetchFailed = "board_fetch_failed"
	ErrCodeBoardPostFailed  = "board_post_failed"
)
