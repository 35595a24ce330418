package rpc

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minseo/galleria/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The feed is read-only and carries public chain data, so any origin
	// may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	feedSendBuffer = 64
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
)

// Feed streams chain events to websocket clients. It subscribes to the
// emitter's firehose once and fans out to however many connections are open.
// Slow clients are disconnected rather than allowed to stall block execution:
// Emit runs on the block-commit path, so delivery must never block.
type Feed struct {
	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewFeed creates a Feed and wires it to emitter.
func NewFeed(emitter *events.Emitter) *Feed {
	f := &Feed{clients: make(map[*feedClient]struct{})}
	emitter.SubscribeAll(f.broadcast)
	return f
}

func (f *Feed) broadcast(ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- ev:
		default:
			// Client can't keep up; drop it.
			delete(f.clients, c)
			close(c.send)
		}
	}
}

// ServeWS upgrades the connection and streams events until the client
// disconnects.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[rpc] ws upgrade: %v", err)
		return
	}

	c := &feedClient{conn: conn, send: make(chan events.Event, feedSendBuffer)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	go f.writePump(c)
	f.readPump(c)
}

// writePump serializes events to the connection and keeps it alive with
// periodic pings.
func (f *Feed) writePump(c *feedClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				f.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.drop(c)
				return
			}
		}
	}
}

// readPump discards inbound messages; the feed is one-way. It exists to
// process pong frames and to notice the client going away.
func (f *Feed) readPump(c *feedClient) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			f.drop(c)
			return
		}
	}
}

func (f *Feed) drop(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and refuses new connections.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		delete(f.clients, c)
		close(c.send)
	}
}
