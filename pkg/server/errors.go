package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for server conditions.
var (
	// ErrServerStopped is returned by Serve and ServeConn after Stop.
	ErrServerStopped = errors.New("server: stopped")

	// ErrMaxSessionsReached is returned by ServeConn when MaxSessions
	// sessions are already open.
	ErrMaxSessionsReached = errors.New("server: max sessions reached")

	// ErrHandshakeTimeout is returned by ServeConn when a client does
	// not finish the handshake within HandshakeTimeout.
	ErrHandshakeTimeout = errors.New("server: handshake timeout")
)

// SessionError wraps an error with session context.
type SessionError struct {
	SessionID string
	Op        string // Operation that failed
	Err       error  // Underlying error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}
