package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Pranay-ai/match-relay/internal/config"
	"github.com/Pranay-ai/match-relay/internal/events"
	"github.com/Pranay-ai/match-relay/internal/match"
)

// Server exposes the relay over HTTP: the WebSocket endpoint, a liveness
// probe and a stats endpoint.
type Server struct {
	cfg       config.Config
	handler   *Handler
	registry  *match.Registry
	publisher events.Publisher
	upgrader  websocket.Upgrader
	logger    *zap.Logger

	sessions sync.WaitGroup
}

// NewServer creates a Server sharing registry and publisher with its session handler.
func NewServer(cfg config.Config, registry *match.Registry, publisher events.Publisher, logger *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		handler:   NewHandler(registry, publisher, logger),
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes returns the HTTP handler with CORS applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.serveWs)

	if len(s.cfg.Server.AllowedOrigins) == 0 {
		return cors.Default().Handler(mux)
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)
}

// Drain waits up to timeout for open WebSocket sessions to return. It reports
// whether all of them did. Call it after the listener stopped accepting.
func (s *Server) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.Server.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.Server.AllowedOrigins, origin)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statsResponse struct {
	Rooms  int              `json:"rooms"`
	Events map[string]int64 `json:"events"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.publisher.Counts(r.Context())
	if err != nil {
		s.logger.Warn("error reading event counters", zap.Error(err))
		counts = map[string]int64{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statsResponse{Rooms: s.registry.Len(), Events: counts})
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match_id")
	playerID := r.URL.Query().Get("player_id")
	if matchID == "" || playerID == "" {
		s.logger.Info("rejecting connection without identifiers",
			zap.String("remote_addr", r.RemoteAddr),
		)
		http.Error(w, ErrMissingIdentifiers.Error(), http.StatusBadRequest)
		return
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	wc := newWebSocketConn(conn, playerID, s.cfg.WebSocket, s.logger)
	go wc.writePump()

	err = s.handler.Serve(r.Context(), matchID, wc)
	code, reason := closeStatus(err)
	_ = wc.CloseWith(code, reason)
	wc.Wait()
}

func closeStatus(err error) (int, string) {
	switch {
	case err == nil:
		return websocket.CloseNormalClosure, ""
	case errors.Is(err, match.ErrRoomFull):
		return CloseMatchFull, MatchFullMessage
	case errors.Is(err, ErrMissingIdentifiers):
		return CloseMissingIdentifiers, err.Error()
	default:
		return websocket.CloseInternalServerErr, ""
	}
}
