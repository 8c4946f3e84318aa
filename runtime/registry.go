package runtime

import (
	"match-lab/contract"
	"match-lab/domain"
	"sync"

	"github.com/samber/lo"
)

type Set map[string]struct{}

type Registry struct {
	mu          sync.RWMutex
	connections map[string]contract.EventSink // map connection -> Sink
	roomMembers map[domain.RoomID]Set         // map room to connections
}

var _ contract.IRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
	}
}

// GetSinksForRoom resolves the connections watching a room into their sinks.
// Returns nil if nobody watches the room.
func (r *Registry) GetSinksForRoom(roomID domain.RoomID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connectionID := range members {
		if sink, exists := r.connections[connectionID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Rooms lists the rooms with at least one live connection.
func (r *Registry) Rooms() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.roomMembers)
}

// Subscribe attaches a connection to a room. A participant may hold several
// connections (tabs, devices), each one gets its own sink.
func (r *Registry) Subscribe(connectionID string, roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[connectionID] = sink

	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connectionID] = struct{}{}
}

// Unsubscribe removes the connection and drops the room entry once empty.
func (r *Registry) Unsubscribe(connectionID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, connectionID)

	if members, ok := r.roomMembers[roomID]; ok {
		delete(members, connectionID)

		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}
}
