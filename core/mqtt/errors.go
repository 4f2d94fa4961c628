package mqtt

import "errors"

var (
	// ErrAckTimeout is returned when no acknowledgment is received before the timeout.
	ErrAckTimeout = errors.New("timeout waiting for ack")
	// ErrRejected is returned when a vehicle refuses a command.
	ErrRejected = errors.New("command rejected by vehicle")
	// ErrNotConnected is returned when a command is sent without a broker
	// connection.
	ErrNotConnected = errors.New("mqtt not connected")
)
