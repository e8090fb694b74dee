// Package pubsub implements the PubSub topic bus spec.md §6 describes:
// a fan-out broadcaster consensus.Driver publishes CONSENSUS_TX_UPDATE and
// CONSENSUS_TX_REMOVED notifications to, and that external subscribers
// (a dashboard, another service) drain over a websocket connection.
package pubsub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is same-origin or explicitly CORS-allowed upstream
	},
}

// Envelope is the wire shape of one published notification.
type Envelope struct {
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

// Hub maintains the set of active websocket subscribers and fans out
// every Publish call to all of them. It implements consensus.Publisher.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan Envelope
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan Envelope, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel and must be started once, e.g. `go hub.Run()`.
func (h *Hub) Run() {
	for env := range h.broadcast {
		data, err := json.Marshal(env)
		if err != nil {
			log.Printf("[pubsub] dropping envelope, marshal error: %v", err)
			continue
		}

		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[pubsub] write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an inbound request to a websocket connection and
// registers it as a broadcast recipient.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[pubsub] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mutex.Unlock()

	log.Printf("[pubsub] client connected, total=%d", n)

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			n := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("[pubsub] client disconnected, total=%d", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[pubsub] read error: %v", err)
				}
				break
			}
		}
	}()
}

// Publish implements consensus.Publisher: it queues topic/payload for
// broadcast to every connected subscriber. The queue holds 256 envelopes;
// Publish blocks only when it is full, i.e. when Run has fallen behind
// (Run bounds each subscriber write with a 5-second deadline).
func (h *Hub) Publish(topic string, payload map[string]any) {
	h.broadcast <- Envelope{Topic: topic, Payload: payload}
}
