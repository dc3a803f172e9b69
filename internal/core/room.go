package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/domain"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned connections.
type roomImpl struct {
	id   domain.SessionID
	mu   sync.RWMutex
	byID map[string]SignalConnection
}

func NewRoomService(id domain.SessionID) RoomService {
	return &roomImpl{
		id:   id,
		byID: make(map[string]SignalConnection),
	}
}

func (r *roomImpl) SessionID() domain.SessionID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *roomImpl) AddMember(conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[conn.ID()] = conn
	log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("conn", conn.ID()).Msg("member added")
}

func (r *roomImpl) RemoveMember(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, connID)
	log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("conn", connID).Msg("member removed")
}

func (r *roomImpl) Broadcast(data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, m := range r.byID {
		if err := m.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("session", string(r.id)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
