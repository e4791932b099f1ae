// Package realtime fans optimization run events out to connected
// dashboard clients over websockets.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"salla-repricer/optimizer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Broker is the websocket hub. Each connected client gets a buffered send
// channel; a slow client that falls behind is dropped rather than allowed
// to block the broadcast loop.
type Broker struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewBroker creates a websocket broker
func NewBroker() *Broker {
	return &Broker{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 1000),
		clients:    make(map[*client]bool),
	}
}

// Run starts the hub loop. Callers run it in its own goroutine.
func (b *Broker) Run() {
	for {
		select {
		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = true
			total := len(b.clients)
			b.mu.Unlock()
			log.Infof("📡 Dashboard client connected, total: %d", total)

		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.send)
			}
			total := len(b.clients)
			b.mu.Unlock()
			log.Infof("📡 Dashboard client disconnected, total: %d", total)

		case msg := <-b.broadcast:
			b.mu.RLock()
			for c := range b.clients {
				select {
				case c.send <- msg:
				default:
					// Client buffer full, skip to keep the loop moving
				}
			}
			b.mu.RUnlock()
		}
	}
}

// PublishRunEvent broadcasts one run event to all connected clients.
// A full broadcast buffer drops the event rather than blocking a run.
func (b *Broker) PublishRunEvent(evt optimizer.RunEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Errorf("❌ Failed to marshal run event: %v", err)
		return
	}

	select {
	case b.broadcast <- payload:
	default:
	}
}

// ServeHTTP upgrades the request to a websocket and streams run events
// until the client disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("⚠️ Websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}
	b.register <- c

	go c.writeLoop()
	c.readLoop(b)
}

// writeLoop pushes broadcast messages to one client
func (c *client) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames; it exists to detect the close
func (c *client) readLoop(b *Broker) {
	defer func() {
		b.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
