package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed is returned by Send on a closed recognition stream.
	ErrStreamClosed = errors.New("recognition stream closed")

	// ErrInvalidToken is returned by Verifier for a bad or missing token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrOwnerNotFound is returned by OwnershipLookup for an unknown session id.
	ErrOwnerNotFound = errors.New("session owner not found")
)

type UpstreamErrorKind string

const (
	UpstreamAuth        UpstreamErrorKind = "auth"
	UpstreamRateLimited UpstreamErrorKind = "rate_limited"
	UpstreamProtocol    UpstreamErrorKind = "protocol"
	UpstreamUnavailable UpstreamErrorKind = "unavailable"
)

// UpstreamError is a recognition-provider failure, distinct from
// ErrStreamClosed so the coordinator can tell a dead stream from a dying one.
type UpstreamError struct {
	Kind   UpstreamErrorKind
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Detail)
}

// Transient reports whether a fresh start could reasonably succeed.
func (e *UpstreamError) Transient() bool {
	return e.Kind == UpstreamRateLimited || e.Kind == UpstreamUnavailable
}
