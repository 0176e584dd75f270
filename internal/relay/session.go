// Package relay binds client connections to match rooms and forwards
// messages between the two occupants of a room.
package relay

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Pranay-ai/match-relay/internal/events"
	"github.com/Pranay-ai/match-relay/internal/match"
)

// ErrMissingIdentifiers is returned when a connection arrives without a
// match id or player id.
var ErrMissingIdentifiers = errors.New("match_id and player_id are required")

// Stream is a client connection as driven by a session.
type Stream interface {
	match.Conn
	// ID identifies this connection in logs and events.
	ID() string
	// Receive blocks until the next inbound payload. Any error ends the session.
	Receive() ([]byte, error)
}

// Handler runs the per-connection session loop against a shared registry.
type Handler struct {
	registry  *match.Registry
	publisher events.Publisher
	logger    *zap.Logger
}

// NewHandler creates a Handler.
//
// Precondition: registry, publisher and logger must be non-nil.
func NewHandler(registry *match.Registry, publisher events.Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
}

// Serve binds s to the room for matchID and relays its messages until the
// stream ends or ctx is cancelled. A normal disconnect returns nil. A
// connection rejected for capacity is sent an error message and
// match.ErrRoomFull is returned; closing s is left to the caller.
func (h *Handler) Serve(ctx context.Context, matchID string, s Stream) error {
	playerID := s.PlayerID()
	if matchID == "" || playerID == "" {
		return ErrMissingIdentifiers
	}

	log := h.logger.With(
		zap.String("match_id", matchID),
		zap.String("player_id", playerID),
		zap.String("conn_id", s.ID()),
	)

	room, res, err := h.join(matchID, s)
	if err != nil {
		log.Info("rejecting player", zap.Error(err))
		h.publish(events.MatchRejected, matchID, s)
		if errors.Is(err, match.ErrRoomFull) {
			h.send(log, s, errorMessage(MatchFullMessage))
		}
		return err
	}

	if res.Reconnected() {
		if err := res.Replaced.Close(); err != nil {
			log.Debug("closing replaced connection", zap.Error(err))
		}
		log.Info("player reconnected, readiness reset")
		h.publish(events.PlayerReconnected, matchID, s)
	} else {
		log.Info("player joined", zap.Int("occupants", len(res.Others)+1))
		h.publish(events.PlayerJoined, matchID, s)
	}
	h.broadcast(log, res.Others, playerJoined(playerID, matchID))

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()
	defer h.leave(log, room, s)

	for {
		raw, err := s.Receive()
		if err != nil {
			log.Debug("connection ended", zap.Error(err))
			return nil
		}
		h.dispatch(log, room, s, raw)
	}
}

// join resolves the room and binds s to it. A room discarded by the registry
// between lookup and join is replaced by a fresh one.
func (h *Handler) join(matchID string, s Stream) (*match.Room, match.JoinResult, error) {
	for {
		room := h.registry.GetOrCreate(matchID)
		res, err := room.Join(s)
		if errors.Is(err, match.ErrRoomClosed) {
			continue
		}
		return room, res, err
	}
}

func (h *Handler) dispatch(log *zap.Logger, room *match.Room, s Stream, raw []byte) {
	log.Debug("received message", zap.ByteString("payload", raw))

	if !gjson.ValidBytes(raw) {
		log.Debug("discarding invalid JSON")
		return
	}
	doc := gjson.ParseBytes(raw)

	if isReady(doc) {
		recipients, started := room.Ready(s)
		if started {
			log.Info("both players ready, starting match")
			h.publish(events.MatchStart, room.ID, s)
			h.broadcast(log, recipients, matchStart(room.ID))
		}
		return
	}

	peers, ok := room.Peers(s)
	if !ok {
		log.Debug("dropping message from replaced connection")
		return
	}
	out, err := withDefaults(raw, doc, room.ID, s.PlayerID())
	if err != nil {
		log.Warn("error adding relay fields", zap.Error(err))
		return
	}
	h.broadcast(log, peers, out)
}

func (h *Handler) leave(log *zap.Logger, room *match.Room, s Stream) {
	others, removed := room.Leave(s)
	if !removed {
		log.Info("replaced connection closed")
		return
	}

	log.Info("player left", zap.Int("remaining", len(others)))
	h.publish(events.PlayerLeft, room.ID, s)
	h.broadcast(log, others, playerLeft(s.PlayerID(), room.ID))

	if h.registry.DeleteIfEmpty(room) {
		log.Debug("empty room removed")
	}
}

// broadcast sends payload to each recipient. Failures are logged and
// otherwise ignored: a peer that cannot be reached is on its way out.
func (h *Handler) broadcast(log *zap.Logger, recipients []match.Conn, payload []byte) {
	for _, c := range recipients {
		h.send(log, c, payload)
	}
}

func (h *Handler) send(log *zap.Logger, c match.Conn, payload []byte) {
	if err := c.Send(payload); err != nil {
		log.Debug("send failed", zap.String("to", c.PlayerID()), zap.Error(err))
	}
}

func (h *Handler) publish(eventType, matchID string, s Stream) {
	h.publisher.Publish(events.Event{
		Type:     eventType,
		MatchID:  matchID,
		PlayerID: s.PlayerID(),
		ConnID:   s.ID(),
	})
}
