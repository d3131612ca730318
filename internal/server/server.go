// Package server publishes strip state over WebSocket. Each completed
// show is broadcast as a JSON frame snapshot to every connected
// client.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fcurrie/clockless-led-golang/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local monitoring tool, accept any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected WebSocket viewer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans frame snapshots out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast sends a frame snapshot to all connected clients. Slow
// clients are dropped rather than allowed to stall the show loop.
func (h *Hub) Broadcast(snap types.FrameSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("error marshalling frame snapshot: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = payload
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	// New viewers get the latest frame immediately.
	if h.last != nil {
		c.send <- h.last
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// serveWS upgrades an HTTP request and starts the client pumps.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.add(c)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump drains incoming messages so close frames and pongs are
// processed. Viewers do not send application data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			return
		}
	}
}

// writePump pumps frames from the send channel to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Server is the HTTP server exposing the frame stream and a health
// endpoint.
type Server struct {
	hub  *Hub
	http *http.Server
}

// New creates a server for the given configuration.
func New(cfg types.ServerConfig, hub *Hub) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ws", hub.serveWS)

	return &Server{
		hub: hub,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: mux,
		},
	}
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown stops the server, allowing in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
