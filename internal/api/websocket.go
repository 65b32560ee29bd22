package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pattern-engine/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSClient is one connected WebSocket consumer.
type WSClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *WSHub
	closeChan chan struct{}
}

// WSHub fans bus events out to connected WebSocket clients. Slow clients
// are dropped rather than allowed to block the broadcast.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	logger     zerolog.Logger
	mu         sync.RWMutex
}

// NewWSHub creates a hub subscribed to every event on the bus. bus may be
// nil in tests.
func NewWSHub(bus *events.EventBus, logger zerolog.Logger) *WSHub {
	h := &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, 4096),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		logger:     logger.With().Str("component", "WSHub").Logger(),
	}

	if bus != nil {
		bus.SubscribeAll(func(event events.Event) {
			h.BroadcastEvent(event)
		})
	}
	return h
}

// Run processes register/unregister/broadcast until the process exits.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full; hand the client to unregister.
					go func(c *WSClient) {
						h.unregister <- c
					}(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastEvent serializes and queues an event for every client. A full
// broadcast channel drops the message instead of blocking the publisher.
func (h *WSHub) BroadcastEvent(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to marshal event")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Str("type", string(event.Type)).Msg("broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		// Clients only listen; reads exist to detect disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &WSClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       s.hub,
		closeChan: make(chan struct{}),
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()

	welcome := map[string]interface{}{
		"type":      "CONNECTED",
		"timestamp": time.Now().UTC(),
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}
}
