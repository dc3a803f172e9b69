package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mirko1075/in-one-button-be/internal/core"
	"github.com/mirko1075/in-one-button-be/internal/domain"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.SessionID]core.RoomService
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.SessionID]core.RoomService)}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.SessionID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(id)
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) Get(id domain.SessionID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{SessionID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) Drop(id domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}

func (f *RoomManagerImpl) Publish(id domain.SessionID, v any) {
	room, ok := f.Get(id)
	if !ok {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("session", string(id)).Msg("publish marshal")
		return
	}
	room.Broadcast(core.Frame(b))
}
