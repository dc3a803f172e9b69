package domain

import "time"

// SessionID identifies one meeting/recording unit. It is supplied by the
// client and unique per recording; at most one live session exists per id.
type SessionID string

// Identity is the authenticated principal behind a connection.
type Identity string

type SessionState int32

const (
	StateIdle SessionState = iota
	StateStarting
	StateActive
	StateStopping
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the registry-visible snapshot of a live transcription session.
type Session struct {
	ID        SessionID
	Owner     Identity
	CreatedAt time.Time
}
