// Package gateway serves the operator surface: a WebSocket feed of
// moderation events and a small HTTP API over the outcome store.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/buildersguild/sentinel/internal/bus"
	"github.com/buildersguild/sentinel/internal/config"
	"github.com/buildersguild/sentinel/internal/store"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 32
)

// Server exposes the WebSocket event feed and the flagged-message API.
type Server struct {
	cfg      *config.Config
	eventPub bus.EventPublisher
	outcomes store.OutcomeStore

	upgrader   websocket.Upgrader
	clients    map[string]*client
	mu         sync.RWMutex
	httpServer *http.Server
	mux        *http.ServeMux
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan bus.Event
	once sync.Once
}

func NewServer(cfg *config.Config, eventPub bus.EventPublisher, outcomes store.OutcomeStore) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		outcomes: outcomes,
		clients:  make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return s
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/flagged", s.handleFlagged)
	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled. A port of 0 in config means the
// gateway is disabled and the caller should not invoke Start at all.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.BuildMux()}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan bus.Event, sendQueueSize),
	}
	s.register(c)
	defer s.unregister(c)

	go c.writeLoop()

	// the feed is one-way; the read loop only notices disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.eventPub.Subscribe(c.id, func(ev bus.Event) {
		select {
		case c.send <- ev:
		default:
			slog.Debug("gateway client send queue full, dropping event", "client_id", c.id, "event", ev.Name)
		}
	})
	slog.Debug("gateway client connected", "client_id", c.id)
}

func (s *Server) unregister(c *client) {
	s.eventPub.Unsubscribe(c.id)
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.close()
	slog.Debug("gateway client disconnected", "client_id", c.id)
}

func (c *client) writeLoop() {
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			// closing the conn kicks the read loop, which unregisters us
			c.conn.Close()
			return
		}
	}
}

// close tears the client down. Only called after Unsubscribe, so no
// broadcast handler can still be sending on the queue.
func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleFlagged lists stored outcomes, optionally filtered by
// ?author=&channel=&guild= query parameters.
func (s *Server) handleFlagged(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := store.QueryFilter{
		AuthorID:  r.URL.Query().Get("author"),
		ChannelID: r.URL.Query().Get("channel"),
		GuildID:   r.URL.Query().Get("guild"),
	}
	recs, err := s.outcomes.List(r.Context(), filter)
	if err != nil {
		slog.Error("flagged list failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []store.OutcomeRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		slog.Debug("flagged response write failed", "error", err)
	}
}
