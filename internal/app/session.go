package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// session is the coordinator-owned state for one live transcription session.
// All transitions and buffer writes happen on its run loop; other goroutines
// only enqueue.
type session struct {
	id        domain.SessionID
	owner     domain.Identity
	ownerConn string
	createdAt time.Time

	state atomic.Int32

	buf    *Buffer
	stream core.RecognitionStream

	audio chan []byte
	stopc chan struct{}
	// done closes when the run loop has finished teardown (state Closed).
	done chan struct{}

	stopOnce sync.Once
}

func newSession(id domain.SessionID, owner domain.Identity, ownerConn string, at time.Time) *session {
	s := &session{
		id:        id,
		owner:     owner,
		ownerConn: ownerConn,
		createdAt: at,
		buf:       NewBuffer(),
		audio:     make(chan []byte, 256),
		stopc:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(domain.StateIdle))
	return s
}

func (s *session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

func (s *session) setState(st domain.SessionState) {
	s.state.Store(int32(st))
	log.Debug().Str("module", "app.session").Str("session", string(s.id)).Str("state", st.String()).Msg("transition")
}

func (s *session) Snapshot() domain.Session {
	return domain.Session{ID: s.id, Owner: s.owner, CreatedAt: s.createdAt}
}

// requestStop is idempotent and never blocks.
func (s *session) requestStop() {
	s.stopOnce.Do(func() { close(s.stopc) })
}

// enqueueAudio never blocks the transport goroutine; when the mailbox is full
// the chunk is dropped, matching the backpressure policy on the outbound side.
func (s *session) enqueueAudio(chunk []byte) {
	select {
	case s.audio <- chunk:
	case <-s.done:
	default:
		log.Warn().Str("module", "app.session").Str("session", string(s.id)).Int("bytes", len(chunk)).Msg("audio mailbox full, chunk dropped")
	}
}
