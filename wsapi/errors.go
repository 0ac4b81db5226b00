package wsapi

import "errors"

var (
	errConnClosed     = errors.New("wsapi: connection closed")
	errSendBufferFull = errors.New("wsapi: send buffer full")
)

// Error codes carried on the `error` frame's `code` field (§4.5 "Error
// surface").
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeNotAuthenticated   = "NOT_AUTHENTICATED"
	CodeInvalidTerminalID  = "INVALID_TERMINAL_ID"
	CodeMaxTerminalsReach  = "MAX_TERMINALS_REACHED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL"
)

// WebSocket close codes (§6 "Close codes").
const (
	CloseNormal            = 1000
	CloseAuthFailed         = 4001
	CloseTooManyConnections = 4003
	CloseBackpressure       = 4008
)
