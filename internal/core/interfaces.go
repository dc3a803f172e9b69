package core

import (
	"context"

	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// Frame is a raw outbound payload (JSON-encoded event).
type Frame []byte

// SignalConnection abstracts a client messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	ID() string
	Identity() domain.Identity
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the coordinator.
type PublishResult struct {
	SentTo  int
	Dropped []SignalConnection
}

// RoomService owns the listener membership set for one session but never
// touches transport resources.
type RoomService interface {
	SessionID() domain.SessionID
	MemberCount() int

	AddMember(conn SignalConnection)
	RemoveMember(connID string)
	Broadcast(data Frame) PublishResult
}

type RoomInfo struct {
	SessionID   domain.SessionID `json:"sessionId"`
	MemberCount int              `json:"listener_count"`
}

// RoomManager hands out per-session rooms and broadcasts to them. It is the
// only broadcast capability the coordinator holds; nothing reaches into
// connection state directly.
type RoomManager interface {
	GetOrCreate(id domain.SessionID) RoomService
	Get(id domain.SessionID) (RoomService, bool)
	List() []RoomInfo
	Drop(id domain.SessionID)

	// Publish JSON-encodes v and fans it out to every member of the
	// session's room. Unknown session is a no-op.
	Publish(id domain.SessionID, v any)
}

// StreamConfig is the recognizer-facing session configuration.
type StreamConfig struct {
	Model          string
	Language       string
	Punctuate      bool
	InterimResults bool
	Diarize        bool
	Encoding       string
	SampleRate     int
	Channels       int
}

// RecognitionStream is one upstream live-recognition connection. The result
// channel is finite and in order; it closes when the stream ends, after which
// Err reports the terminal upstream error, if any.
type RecognitionStream interface {
	Send(chunk []byte) error
	Results() <-chan domain.TranscriptFragment
	Err() error
	Close() error
}

// Recognizer opens upstream recognition streams, one per session.
type Recognizer interface {
	Open(ctx context.Context, id domain.SessionID, cfg StreamConfig) (RecognitionStream, error)
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// OwnershipLookup resolves the declared owner of a session id.
type OwnershipLookup interface {
	OwnerOf(ctx context.Context, id domain.SessionID) (domain.Identity, error)
}

// TranscriptStore persists the final transcript of a closed session.
// Best effort: failures must not block teardown.
type TranscriptStore interface {
	Persist(ctx context.Context, id domain.SessionID, transcript string) error
}
