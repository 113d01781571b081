package api

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/logger"
	"github.com/squadlite/squadlite/internal/events/bus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

// wsClient is one connected WebSocket listener. Every client receives
// every event: the feed is a firehose with no subscribe/unsubscribe
// semantics and no backfill guarantee.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *logger.Logger
}

// Hub fans every published control-plane event out to every connected
// WebSocket client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	logger     *logger.Logger
}

// NewHub builds a Hub. Call Run to start its event loop.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
		logger:     log.WithFields(zap.String("component", "ws-hub")),
	}
}

// Run is the Hub's event loop; it blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("client_id", c.id), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("client send buffer full, dropping", zap.String("client_id", c.id))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*wsClient]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues an already-marshaled payload for fan-out to every
// connected client, dropping it if the broadcast channel is full.
func (h *Hub) Broadcast(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// SubscribeToBus wires every subject on eb into the hub's broadcast channel.
func (h *Hub) SubscribeToBus(eb bus.EventBus) error {
	_, err := eb.Subscribe(">", func(event *bus.Event) {
		payload, err := marshalEnvelope(event)
		if err != nil {
			h.logger.Warn("failed to marshal event for broadcast", zap.Error(err))
			return
		}
		h.Broadcast(payload)
	})
	return err
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
