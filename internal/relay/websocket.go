package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pranay-ai/match-relay/internal/config"
)

// Close codes sent to clients.
const (
	CloseMissingIdentifiers = 4000
	CloseMatchFull          = 4001
)

var (
	// ErrConnClosed is returned by Send after the connection was closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the peer is not draining
	// its outbound queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// WebSocketConn adapts a gorilla connection to Stream. Reads happen on the
// session goroutine; all data writes go through writePump.
type WebSocketConn struct {
	id       string
	playerID string
	conn     *websocket.Conn
	cfg      config.WebSocketConfig
	logger   *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeMsg  []byte
	pumpDone  chan struct{}
}

func newWebSocketConn(conn *websocket.Conn, playerID string, cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketConn {
	id := uuid.NewString()
	c := &WebSocketConn{
		id:       id,
		playerID: playerID,
		conn:     conn,
		cfg:      cfg,
		logger:   logger.With(zap.String("conn_id", id)),
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxMessageBytes)
	if cfg.PingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
	}
	return c
}

// ID returns the connection id.
func (c *WebSocketConn) ID() string { return c.id }

// PlayerID returns the player id supplied at connect time.
func (c *WebSocketConn) PlayerID() string { return c.playerID }

// Send queues payload for the write pump without blocking.
func (c *WebSocketConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Receive returns the next text frame. Binary frames are skipped.
func (c *WebSocketConn) Receive() ([]byte, error) {
	for {
		mt, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			return nil, err
		}
		if mt != websocket.TextMessage {
			c.logger.Debug("skipping non-text frame", zap.Int("message_type", mt))
			continue
		}
		return payload, nil
	}
}

// Close closes the connection with a normal closure frame.
func (c *WebSocketConn) Close() error {
	return c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith flushes queued payloads, sends a close frame with code and
// reason, then closes the socket. Only the first call has any effect.
func (c *WebSocketConn) CloseWith(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.done)
	})
	return nil
}

// Wait blocks until the write pump has closed the socket.
func (c *WebSocketConn) Wait() {
	<-c.pumpDone
}

func (c *WebSocketConn) writePump() {
	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer func() {
		c.conn.Close()
		close(c.pumpDone)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.logger.Debug("websocket write error", zap.Error(err))
				_ = c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("websocket ping error", zap.Error(err))
				_ = c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

// flush writes whatever is still queued after the connection was closed.
func (c *WebSocketConn) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *WebSocketConn) write(msg []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}
