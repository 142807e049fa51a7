// Package stream pushes session state changes to browsers over WebSocket.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"wayfarer/internal/auth"
	"wayfarer/internal/gate"
	"wayfarer/internal/logger"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StateSource is the published session state. authctx.Context implements it.
type StateSource interface {
	State() auth.SessionState
	Allowlist() gate.Allowlist
	Subscribe(fn func(auth.SessionState)) (cancel func())
}

// Scoper narrows published states to what one request may see.
// middleware.Sessions implements it.
type Scoper interface {
	Scope(r *http.Request) func(auth.SessionState) auth.SessionState
}

// Message is sent to browsers on connect and on every state change.
type Message struct {
	Type  string            `json:"type"`
	State auth.SessionState `json:"state"`
	Level string            `json:"level"`
}

const MessageTypeSession = "session"

func newMessage(s auth.SessionState, allowlist gate.Allowlist) Message {
	return Message{
		Type:  MessageTypeSession,
		State: s,
		Level: gate.Classify(s.Identity, allowlist).String(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// enqueue never blocks; a client that falls behind is dropped.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logger.Warn("session stream client too slow, dropping", nil)
		c.drop()
	}
}

func (c *client) drop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Server manages WebSocket connections for session updates.
type Server struct {
	source   StateSource
	scope    Scoper
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewServer creates a session stream server. Cross-origin upgrades are
// rejected. A nil scope streams the published state unchanged.
func NewServer(source StateSource, scope Scoper) *Server {
	return &Server{
		source:  source,
		scope:   scope,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) viewFor(r *http.Request) func(auth.SessionState) auth.SessionState {
	if s.scope == nil {
		return func(state auth.SessionState) auth.SessionState { return state }
	}
	return s.scope.Scope(r)
}

// Snapshot serves the current state, as seen by the caller, as JSON.
func (s *Server) Snapshot(c *gin.Context) {
	view := s.viewFor(c.Request)
	c.JSON(http.StatusOK, newMessage(view(s.source.State()), s.source.Allowlist()))
}

// HandleWebSocket upgrades the connection and streams state until the
// client disconnects. The connection keeps the session binding of its
// handshake; after signing in again a client must reconnect.
func (s *Server) HandleWebSocket(c *gin.Context) {
	view := s.viewFor(c.Request)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug("session stream upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()

	allowlist := s.source.Allowlist()
	cancel := s.source.Subscribe(func(state auth.SessionState) {
		data, err := json.Marshal(newMessage(view(state), allowlist))
		if err != nil {
			return
		}
		cl.enqueue(data)
	})

	go s.writePump(cl)
	s.readPump(cl)

	cancel()
	cl.drop()

	s.mu.Lock()
	delete(s.clients, cl)
	s.mu.Unlock()
}

// readPump discards client messages and returns when the connection ends.
func (s *Server) readPump(cl *client) {
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				cl.drop()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.drop()
				return
			}
		case <-cl.done:
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects all clients.
func (s *Server) Close() {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for cl := range s.clients {
		clients = append(clients, cl)
	}
	s.mu.RUnlock()

	for _, cl := range clients {
		_ = cl.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second),
		)
		cl.drop()
	}
}
