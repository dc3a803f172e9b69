package app

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// ErrAlreadyActive is returned by Create when a live session with the same id
// already exists.
var ErrAlreadyActive = errors.New("session already active")

// Registry is the single source of truth for which sessions are live. Create
// is an indivisible check-and-insert: of two concurrent Create calls for the
// same id, exactly one succeeds.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionID]*session)}
}

func (r *Registry) Create(id domain.SessionID, owner domain.Identity, ownerConn string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrAlreadyActive
	}
	s := newSession(id, owner, ownerConn, time.Now())
	r.sessions[id] = s
	log.Info().Str("module", "app.registry").Str("session", string(id)).Str("owner", string(owner)).Msg("session created")
	return s, nil
}

func (r *Registry) Get(id domain.SessionID) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove is idempotent.
func (r *Registry) Remove(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("session", string(id)).Msg("session removed")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the currently registered sessions, for shutdown sweeps.
func (r *Registry) Snapshot() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
