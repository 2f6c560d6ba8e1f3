package indexer

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
	feedBuffer     = 64
)

// FeedMessage is the frame written to feed subscribers.
type FeedMessage struct {
	Type    string  `json:"type"`
	Payload *Update `json:"payload,omitempty"`
}

const (
	feedAck  = "connection_ack"
	feedData = "data"
)

// Feed fans committed updates out to websocket subscribers. A subscriber that
// falls more than feedBuffer updates behind is disconnected.
type Feed struct {
	upgrader websocket.Upgrader
	metrics  *Metrics

	mu      sync.Mutex
	clients map[*feedClient]struct{}
	closed  bool
}

type feedClient struct {
	conn   *websocket.Conn
	remote string
	send   chan FeedMessage
	once   sync.Once
}

func (c *feedClient) close() {
	c.once.Do(func() { close(c.send) })
}

func NewFeed(metrics *Metrics) *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: metrics,
		clients: make(map[*feedClient]struct{}),
	}
}

// Publish queues an update for every subscriber without blocking.
func (f *Feed) Publish(update Update) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg := FeedMessage{Type: feedData, Payload: &update}
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("remote", c.remote).Msg("feed client too slow, dropping")
			f.removeLocked(c)
		}
	}
}

// Clients returns the number of connected subscribers.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		f.removeLocked(c)
	}
}

func (f *Feed) removeLocked(c *feedClient) {
	if _, ok := f.clients[c]; !ok {
		return
	}
	delete(f.clients, c)
	c.close()
	f.metrics.FeedClients(len(f.clients))
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(c)
}

// ServeHTTP upgrades the request and streams updates until the peer goes away.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("feed upgrade failed")
		return
	}
	c := &feedClient{conn: conn, remote: r.RemoteAddr, send: make(chan FeedMessage, feedBuffer)}
	c.send <- FeedMessage{Type: feedAck}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.metrics.FeedClients(len(f.clients))
	f.mu.Unlock()

	go f.writeLoop(c)
	f.readLoop(c)
}

// readLoop discards client frames and notices disconnects.
func (f *Feed) readLoop(c *feedClient) {
	defer f.remove(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writeLoop(c *feedClient) {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				f.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.remove(c)
				return
			}
		}
	}
}
