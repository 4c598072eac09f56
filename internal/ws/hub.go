// Package ws implements the realtime push layer (spec §4.J): a connection
// registry, a bidirectional subscription index, and a message
// handler/publisher built on nhooyr.io/websocket, generalising the
// teacher's client-side WebSocket usage to the server side.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/marketwatch/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

// InactivityTimeout closes a connection that hasn't pinged in this long
// (spec §4.J: "cleans inactive connections after 300 s of no ping").
const InactivityTimeout = 300 * time.Second

// sendBuffer bounds each client's outbound queue (spec §5: "When a
// WebSocket client's send buffer is full the connection is closed rather
// than allowed to grow without bound").
const sendBuffer = 64

// client is one connected WebSocket session.
type client struct {
	id   string
	conn *websocket.Conn

	send chan []byte

	mu            sync.RWMutex
	connectedAt   time.Time
	lastPing      time.Time
	subscriptions map[subKey]struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastPing = time.Now()
	c.mu.Unlock()
}

func (c *client) idle(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return now.Sub(c.lastPing) > InactivityTimeout
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

// enqueue attempts a non-blocking send; a full buffer closes the
// connection rather than growing unbounded.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Hub owns the connection registry, subscription manager, and publisher
// (spec §4.J's three objects).
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*client

	subs *subscriptionManager

	quotes    QuoteSource
	signals   SignalSource
	testMode  bool
	janitorOn bool
}

// QuoteSource is the subset of quotes.Service the hub needs to build
// price_update payloads.
type QuoteSource interface {
	SnapshotOne(symbol string) (model.Quote, bool)
}

// SignalSource is the subset of the strategy engine's Redis view the hub
// needs to build signal-backed price_update payloads.
type SignalSource interface {
	SignalsByStrategy(ctx context.Context, strategyName string) ([]model.Signal, error)
}

// New builds a Hub. testMode adds the bounded random-walk jitter to every
// published price (spec §4.J), intended for load-testing only.
func New(quoteSource QuoteSource, signalSource SignalSource, testMode bool, log zerolog.Logger) *Hub {
	return &Hub{
		log:      log.With().Str("component", "ws_hub").Logger(),
		clients:  make(map[string]*client),
		subs:     newSubscriptionManager(),
		quotes:   quoteSource,
		signals:  signalSource,
		testMode: testMode,
	}
}

// ServeHTTP accepts an inbound WebSocket upgrade and runs the connection
// until it closes. client_id collisions evict the prior connection (spec
// §4.J).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c := &client{
		id:            clientID,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		connectedAt:   time.Now(),
		lastPing:      time.Now(),
		subscriptions: make(map[subKey]struct{}),
		done:          make(chan struct{}),
	}

	h.register(c)
	defer h.unregister(c)

	ctx := r.Context()
	go h.writePump(ctx, c)

	h.sendJSON(c, connectedMessage(clientID))
	h.readPump(ctx, c)
}

// register evicts any existing connection under the same client_id before
// installing the new one.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	if prev, ok := h.clients[c.id]; ok {
		h.mu.Unlock()
		h.unregister(prev)
		h.mu.Lock()
	}
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	h.subs.unsubscribeAll(c.id)
	c.close(websocket.StatusNormalClosure, "")
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		h.handleMessage(ctx, c, data)
	}
}

// Janitor closes connections idle for longer than InactivityTimeout. The
// caller runs this on a ticker (e.g. every 30s) for the hub's lifetime.
func (h *Hub) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.mu.RLock()
			stale := make([]*client, 0)
			for _, c := range h.clients {
				if c.idle(now) {
					stale = append(stale, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range stale {
				h.unregister(c)
			}
		}
	}
}

const writeWait = 10 * time.Second
