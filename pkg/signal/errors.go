package signal

import "errors"

// Protocol error taxonomy. All of these are recoverable: they are reported
// to the originating connection and never take the coordinator down.
var (
	ErrCodeTaken          = errors.New("room code already taken")
	ErrRoomNotFound       = errors.New("room not found")
	ErrUnknownViewer      = errors.New("unknown viewer id")
	ErrUnexpectedAnswer   = errors.New("answer received before any offer was sent")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrTransportClosed    = errors.New("signaling transport closed")

	// ErrSessionClosed marks messages that arrived for a session already torn
	// down. Disconnect races are expected, so callers log and drop instead of
	// reporting back to the sender.
	ErrSessionClosed = errors.New("session closed")
)
