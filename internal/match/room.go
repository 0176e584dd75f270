package match

import (
	"errors"
	"sync"
)

// Capacity is the number of occupants that makes a room full.
const Capacity = 2

var (
	// ErrRoomFull is returned when a new player tries to join a full room.
	ErrRoomFull = errors.New("match is full")
	// ErrRoomClosed is returned when joining a room that its registry has
	// already discarded. Callers should resolve the match id again.
	ErrRoomClosed = errors.New("room closed")
)

type occupant struct {
	playerID string
	conn     Conn
}

// Room is the state of a single match: at most two occupants and the set of
// occupants that have signalled readiness since the last reset.
// All methods are safe for concurrent use.
type Room struct {
	ID string

	mu        sync.Mutex
	occupants []occupant // join order
	ready     map[string]struct{}
	closed    bool
}

// NewRoom creates an empty room for matchID.
func NewRoom(matchID string) *Room {
	return &Room{
		ID:    matchID,
		ready: make(map[string]struct{}),
	}
}

// JoinResult describes the outcome of a successful Join.
type JoinResult struct {
	// Replaced is the handle previously bound to the same player id, if any.
	// The caller owns it and is expected to close it.
	Replaced Conn
	// Others is a snapshot of the remaining occupants after the join.
	Others []Conn
}

// Reconnected reports whether the join evicted an earlier connection.
func (r JoinResult) Reconnected() bool { return r.Replaced != nil }

// Join binds conn to the room under conn.PlayerID().
//
// A player id that already occupies a slot is a reconnection: the old handle
// is detached and returned, and readiness is reset for the whole room. A new
// player id is rejected with ErrRoomFull when the room is full.
func (r *Room) Join(conn Conn) (JoinResult, error) {
	playerID := conn.PlayerID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}

	var res JoinResult
	if r.indexOf(playerID) >= 0 {
		res.Replaced = r.reconcileLocked(playerID)
	} else if len(r.occupants) >= Capacity {
		return JoinResult{}, ErrRoomFull
	}

	r.addLocked(playerID, conn)
	res.Others = r.othersLocked(playerID)
	return res, nil
}

// Leave removes conn from the room if it is still the handle bound to its
// player id. It returns the remaining occupants and whether anything was
// removed; a connection that was replaced by a reconnection removes nothing.
func (r *Room) Leave(conn Conn) ([]Conn, bool) {
	playerID := conn.PlayerID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.boundLocked(conn) {
		return nil, false
	}
	r.removeLocked(playerID)
	return r.othersLocked(playerID), true
}

// Ready marks the player behind conn as ready. When the room becomes
// match-ready it returns a snapshot of every occupant, sender included, and
// true. A connection no longer bound to its slot changes nothing.
func (r *Room) Ready(conn Conn) ([]Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.boundLocked(conn) {
		return nil, false
	}
	if !r.markReadyLocked(conn.PlayerID()) {
		return nil, false
	}
	return r.allLocked(), true
}

// Peers returns the occupants other than conn, in join order. It reports
// false when conn is no longer bound to its slot, so a replaced connection
// cannot speak for the player that replaced it.
func (r *Room) Peers(conn Conn) ([]Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.boundLocked(conn) {
		return nil, false
	}
	return r.othersLocked(conn.PlayerID()), true
}

// IsFull reports whether the room holds Capacity occupants.
func (r *Room) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupants) >= Capacity
}

// AddOccupant inserts or overwrites the occupant entry for playerID. Callers
// must have resolved reconnection and capacity beforehand; Join does both.
func (r *Room) AddOccupant(playerID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(playerID, conn)
}

// RemoveOccupant deletes playerID from the occupants and the ready set.
func (r *Room) RemoveOccupant(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(playerID)
}

// ReconcileReconnection detaches the handle currently bound to playerID and
// clears readiness for every occupant. It returns nil if playerID is absent.
func (r *Room) ReconcileReconnection(playerID string) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(playerID) < 0 {
		return nil
	}
	return r.reconcileLocked(playerID)
}

// MarkReady records playerID as ready and reports whether the room is now
// match-ready. Non-occupants are ignored.
func (r *Room) MarkReady(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markReadyLocked(playerID)
}

// OtherOccupants returns every occupant except playerID, in join order.
// The slice is a fresh snapshot owned by the caller.
func (r *Room) OtherOccupants(playerID string) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.othersLocked(playerID)
}

// Occupants returns every occupant in join order.
func (r *Room) Occupants() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allLocked()
}

// Len returns the number of occupants.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.occupants)
}

// IsReady reports whether playerID is in the ready set.
func (r *Room) IsReady(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ready[playerID]
	return ok
}

// ReadyCount returns the size of the ready set.
func (r *Room) ReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ready)
}

func (r *Room) indexOf(playerID string) int {
	for i, o := range r.occupants {
		if o.playerID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) boundLocked(conn Conn) bool {
	i := r.indexOf(conn.PlayerID())
	return i >= 0 && r.occupants[i].conn == conn
}

func (r *Room) addLocked(playerID string, conn Conn) {
	if i := r.indexOf(playerID); i >= 0 {
		r.occupants[i].conn = conn
		return
	}
	r.occupants = append(r.occupants, occupant{playerID: playerID, conn: conn})
}

func (r *Room) removeLocked(playerID string) {
	if i := r.indexOf(playerID); i >= 0 {
		r.occupants = append(r.occupants[:i], r.occupants[i+1:]...)
	}
	delete(r.ready, playerID)
}

func (r *Room) reconcileLocked(playerID string) Conn {
	old := r.occupants[r.indexOf(playerID)].conn
	r.removeLocked(playerID)
	// A stale ready from the peer must not count toward the next handshake.
	clear(r.ready)
	return old
}

func (r *Room) markReadyLocked(playerID string) bool {
	if r.indexOf(playerID) >= 0 {
		r.ready[playerID] = struct{}{}
	}
	return len(r.ready) >= Capacity && len(r.occupants) >= Capacity
}

func (r *Room) othersLocked(playerID string) []Conn {
	others := make([]Conn, 0, len(r.occupants))
	for _, o := range r.occupants {
		if o.playerID != playerID {
			others = append(others, o.conn)
		}
	}
	return others
}

func (r *Room) allLocked() []Conn {
	all := make([]Conn, 0, len(r.occupants))
	for _, o := range r.occupants {
		all = append(all, o.conn)
	}
	return all
}

// closeIfEmpty marks the room closed when it has no occupants.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.occupants) > 0 {
		return false
	}
	r.closed = true
	return true
}
