package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/events/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEnvelope is the exact shape delivered to every WebSocket client.
type wsEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// marshalEnvelope converts a bus event into the client-facing envelope.
// Bus subjects are dotted for NATS compatibility ("task.status"); the
// WebSocket contract names events with a colon ("task:status").
func marshalEnvelope(event *bus.Event) ([]byte, error) {
	return json.Marshal(wsEnvelope{
		Type:      strings.Replace(event.Type, ".", ":", 1),
		Data:      event.Data,
		Timestamp: event.Timestamp,
	})
}

// serveWS upgrades the request to a WebSocket connection and registers a
// client with the hub. Clients may connect, disconnect, and reconnect
// freely; there is no replay of events missed while disconnected.
func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 64),
		hub:    s.hub,
		logger: s.logger,
	}
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains and discards client-sent frames (the event feed is
// server-to-client only) and enforces the pong deadline that detects
// dead connections.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump relays broadcast events to the client and keeps the connection
// alive with periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
