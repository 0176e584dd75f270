// Package match holds the in-memory state of two-player match rooms: who
// occupies a room, who has signalled readiness, and the registry mapping
// match ids to rooms.
package match

// Conn is a single client's connection as seen by a room. Implementations
// must be safe for concurrent use and comparable: every session in a room
// sends through the same Conn, and a replaced connection is told apart from
// its successor by identity.
type Conn interface {
	// PlayerID is the identifier the client supplied at connect time.
	PlayerID() string
	// Send delivers one text payload. It must not block on a slow peer.
	Send(payload []byte) error
	// Close terminates the underlying stream. Closing twice is harmless.
	Close() error
}
