package match

import (
	"sync"

	"go.uber.org/zap"
)

// Registry maps match ids to rooms. Rooms are created on first lookup and
// discarded once their last occupant leaves.
//
// The registry lock is always taken before a room lock, never the reverse.
type Registry struct {
	logger *zap.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger,
		rooms:  make(map[string]*Room),
	}
}

// GetOrCreate returns the room registered under matchID, creating and
// storing an empty one if none exists. Concurrent calls for the same id
// always observe the same Room.
func (g *Registry) GetOrCreate(matchID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[matchID]; ok {
		return room
	}
	room := NewRoom(matchID)
	g.rooms[matchID] = room
	g.logger.Debug("room created",
		zap.String("match_id", matchID),
		zap.Int("rooms", len(g.rooms)),
	)
	return room
}

// Lookup returns the room registered under matchID, if any.
func (g *Registry) Lookup(matchID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[matchID]
	return room, ok
}

// DeleteIfEmpty removes room from the registry if it has no occupants and is
// still the room registered under its id. A removed room is closed: later
// joins on it fail with ErrRoomClosed.
func (g *Registry) DeleteIfEmpty(room *Room) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rooms[room.ID] != room {
		return false
	}
	if !room.closeIfEmpty() {
		return false
	}
	delete(g.rooms, room.ID)
	g.logger.Debug("room deleted",
		zap.String("match_id", room.ID),
		zap.Int("rooms", len(g.rooms)),
	)
	return true
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Shutdown closes every occupant connection so that their sessions unwind
// through the normal leave path. Rooms are removed by those sessions.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	closed := 0
	for _, room := range rooms {
		for _, c := range room.Occupants() {
			_ = c.Close()
			closed++
		}
	}
	g.logger.Info("registry shut down",
		zap.Int("rooms", len(rooms)),
		zap.Int("connections", closed),
	)
}
