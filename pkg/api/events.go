package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/xerc1155/xchain/pkg/xerc1155"
)

const (
	eventChanSize     = 512
	clientSendSize    = 256
	recentEventsLimit = 256
	writeWait         = 10 * time.Second
	pingPeriod        = 54 * time.Second
	pongWait          = 60 * time.Second
)

var (
	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xerc_api_events_dropped_total",
			Help: "Total number of events dropped because the event hub was not keeping up",
		})
	wsClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xerc_api_websocket_clients",
			Help: "Current number of connected event stream clients",
		})
)

// EventHub fans contract events out to websocket clients and keeps the most recent ones for polling clients.
type EventHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	events   chan *xerc1155.Event

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	recent  []*xerc1155.Event
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		logger: logger.With(zap.String("component", "eventhub")),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		events:  make(chan *xerc1155.Event, eventChanSize),
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish implements xerc1155.EventSink. It never blocks; events are dropped when the hub falls behind.
func (h *EventHub) Publish(ev *xerc1155.Event) {
	select {
	case h.events <- ev:
	default:
		eventsDropped.Inc()
	}
}

// Run broadcasts published events until ctx is canceled.
func (h *EventHub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

// Recent returns up to the last recentEventsLimit events, oldest first.
func (h *EventHub) Recent() []*xerc1155.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*xerc1155.Event(nil), h.recent...)
}

func (h *EventHub) broadcast(ev *xerc1155.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, ev)
	if len(h.recent) > recentEventsLimit {
		h.recent = h.recent[len(h.recent)-recentEventsLimit:]
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client.
			h.removeLocked(c)
		}
	}
}

func (h *EventHub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	wsClients.Set(float64(len(h.clients)))
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// ServeWS upgrades the request to a websocket that receives every event as a JSON text message.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientSendSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	wsClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("client", c.id))

	go c.writePump()
	go h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *EventHub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		c.conn.Close()
		h.logger.Debug("websocket client disconnected", zap.String("client", c.id))
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
