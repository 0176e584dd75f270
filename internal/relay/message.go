package relay

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Message types understood or produced by the relay.
const (
	TypePlayerReady  = "player_ready"
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypeMatchStart   = "match_start"
	TypeError        = "error"
)

// MatchFullMessage is the error text sent to a player rejected for capacity.
const MatchFullMessage = "Match is full"

// PlayerMessage announces a player joining or leaving a match.
type PlayerMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	MatchID  string `json:"match_id"`
}

// MatchStartMessage tells both occupants that the ready handshake completed.
type MatchStartMessage struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// ErrorMessage reports a protocol error to a single client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func playerJoined(playerID, matchID string) []byte {
	return encode(PlayerMessage{Type: TypePlayerJoined, PlayerID: playerID, MatchID: matchID})
}

func playerLeft(playerID, matchID string) []byte {
	return encode(PlayerMessage{Type: TypePlayerLeft, PlayerID: playerID, MatchID: matchID})
}

func matchStart(matchID string) []byte {
	return encode(MatchStartMessage{Type: TypeMatchStart, MatchID: matchID})
}

func errorMessage(text string) []byte {
	return encode(ErrorMessage{Type: TypeError, Message: text})
}

// encode marshals one of the outbound message structs. They hold only string
// fields, which encoding/json always encodes (invalid UTF-8 becomes U+FFFD),
// so an error here is a programming mistake.
func encode(msg any) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		panic(fmt.Sprintf("relay: encoding %T: %v", msg, err))
	}
	return b
}

// isReady reports whether doc is a {"type":"player_ready"} control message.
func isReady(doc gjson.Result) bool {
	if !doc.IsObject() {
		return false
	}
	t := doc.Get("type")
	return t.Type == gjson.String && t.Str == TypePlayerReady
}

// withDefaults adds match_id and from_player_id to a JSON object payload
// when those keys are absent. Existing keys, their order and non-object
// payloads are left untouched.
func withDefaults(raw []byte, doc gjson.Result, matchID, playerID string) ([]byte, error) {
	if !doc.IsObject() {
		return raw, nil
	}
	out := raw
	var err error
	if !doc.Get("match_id").Exists() {
		if out, err = sjson.SetBytes(out, "match_id", matchID); err != nil {
			return nil, err
		}
	}
	if !doc.Get("from_player_id").Exists() {
		if out, err = sjson.SetBytes(out, "from_player_id", playerID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
