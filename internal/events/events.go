// Package events publishes match lifecycle events for observers outside the
// relay process and keeps running counters per event type.
package events

import (
	"context"
	"time"
)

// Event types published by the relay.
const (
	PlayerJoined      = "player_joined"
	PlayerReconnected = "player_reconnected"
	PlayerLeft        = "player_left"
	MatchStart        = "match_start"
	MatchRejected     = "match_rejected"
)

// Event is one lifecycle transition of a match room.
type Event struct {
	Type     string    `json:"type"`
	MatchID  string    `json:"match_id"`
	PlayerID string    `json:"player_id,omitempty"`
	ConnID   string    `json:"conn_id,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts lifecycle events. Publish must never block the caller.
type Publisher interface {
	Publish(ev Event)
	// Counts returns the number of events published per type.
	Counts(ctx context.Context) (map[string]int64, error)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Event) {}

// Counts implements Publisher.
func (NopPublisher) Counts(context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}
