package rcon

import (
	"errors"
)

var (
	// ErrAuth means the server rejected the RCON password.
	ErrAuth = errors.New("rcon: authentication rejected")

	// ErrConnect means the transport could not be established.
	ErrConnect = errors.New("rcon: connect failed")

	// ErrConnectionLost invalidates calls that were in flight when the
	// transport dropped. The session reconnects on its own; callers retry
	// through the command queue.
	ErrConnectionLost = errors.New("rcon: connection lost")

	// ErrTimeout means no matching response arrived within the per-call
	// deadline.
	ErrTimeout = errors.New("rcon: command timed out")

	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("rcon: session closed")
)
