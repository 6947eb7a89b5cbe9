package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"trade_sim/internal/domain"
	"trade_sim/internal/engine"
	"trade_sim/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local simulator; any origin may watch prices
		return true
	},
}

// TickMessage is the JSON frame pushed to clients after every tick.
type TickMessage struct {
	Type   string         `json:"type"`
	Seq    uint64         `json:"seq"`
	At     time.Time      `json:"at"`
	Quotes []engine.Quote `json:"quotes"`
}

// ControlRequest is what clients may send: {"op":"subscribe","symbols":["AAPL"]}.
// An empty subscription set means every symbol.
type ControlRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// ControlAck confirms a processed ControlRequest.
type ControlAck struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Hub fans tick reports out to websocket clients. Broadcast never blocks;
// a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	metrics *infra.Metrics
	last    *engine.TickReport // latest broadcast, served by /quotes
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu sync.RWMutex
	subs   map[string]struct{}
}

// NewHub creates a hub reporting connections to metrics (GlobalMetrics when nil).
func NewHub(metrics *infra.Metrics) *Hub {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		metrics: metrics,
	}
}

// Handler serves /ws (price stream), /quotes and /quotes/{symbol} (latest
// tick as JSON) and /metrics (JSON counters). Browser dashboards on any
// origin may read them.
func (h *Hub) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws", h.ServeWS)
	router.HandleFunc("/quotes", h.serveQuotes).Methods(http.MethodGet)
	router.HandleFunc("/quotes/{symbol}", h.serveQuote).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.serveMetrics).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(router)
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   uuid.NewString(),
		subs: make(map[string]struct{}),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) serveQuotes(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()
	if last == nil {
		respondJSON(w, http.StatusOK, TickMessage{Type: "tick", Quotes: []engine.Quote{}})
		return
	}
	respondJSON(w, http.StatusOK, TickMessage{Type: "tick", Seq: last.Seq, At: last.At, Quotes: last.Quotes})
}

func (h *Hub) serveQuote(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeSymbol(mux.Vars(r)["symbol"])
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()
	if last != nil {
		for _, q := range last.Quotes {
			if q.Symbol == symbol {
				respondJSON(w, http.StatusOK, q)
				return
			}
		}
	}
	respondJSON(w, http.StatusNotFound, map[string]string{"error": (&domain.NotFoundError{Symbol: symbol}).Error()})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Feed response encode failed", slog.Any("error", err))
	}
}

func (h *Hub) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.IncrementConnections()
	slog.Info("Feed client connected", slog.String("client", c.id), slog.Int("total", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.metrics.DecrementConnections()
		slog.Info("Feed client disconnected", slog.String("client", c.id), slog.Int("total", n))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends report to every client, filtered by its subscription.
func (h *Hub) Broadcast(report engine.TickReport) {
	full, err := encodeTick(report, report.Quotes)
	if err != nil {
		slog.Error("Feed marshal failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	h.last = &report
	h.mu.Unlock()

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		msg := full
		if quotes, filtered := c.filter(report.Quotes); filtered {
			if len(quotes) == 0 {
				continue
			}
			if msg, err = encodeTick(report, quotes); err != nil {
				continue
			}
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Feed client too slow, dropping", slog.String("client", c.id))
		h.unregister(c)
	}
}

// Publish sends an arbitrary JSON message to every client, ignoring
// subscriptions.
func (h *Hub) Publish(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		slog.Error("Feed marshal failed", slog.Any("error", err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Feed client too slow, dropping", slog.String("client", c.id))
		h.unregister(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

func encodeTick(report engine.TickReport, quotes []engine.Quote) ([]byte, error) {
	return json.Marshal(TickMessage{Type: "tick", Seq: report.Seq, At: report.At, Quotes: quotes})
}

// filter returns the subscribed subset; filtered is false when the client
// takes every symbol.
func (c *client) filter(quotes []engine.Quote) (out []engine.Quote, filtered bool) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if len(c.subs) == 0 {
		return quotes, false
	}
	for _, q := range quotes {
		if _, ok := c.subs[q.Symbol]; ok {
			out = append(out, q)
		}
	}
	return out, true
}

func (c *client) apply(req ControlRequest) []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	switch strings.ToLower(req.Op) {
	case "subscribe":
		for _, s := range req.Symbols {
			if sym := domain.NormalizeSymbol(s); sym != "" {
				c.subs[sym] = struct{}{}
			}
		}
	case "unsubscribe":
		for _, s := range req.Symbols {
			delete(c.subs, domain.NormalizeSymbol(s))
		}
	case "reset":
		clear(c.subs)
	}
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// readPump consumes control requests until the connection fails.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Feed read error", slog.String("client", c.id), slog.Any("error", err))
			}
			return
		}

		var req ControlRequest
		if err := json.Unmarshal(message, &req); err != nil {
			slog.Debug("Feed invalid message", slog.String("client", c.id), slog.Any("error", err))
			continue
		}
		symbols := c.apply(req)
		ack, _ := json.Marshal(ControlAck{Type: strings.ToLower(req.Op), Symbols: symbols})

		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			select {
			case c.send <- ack:
			default:
			}
		}
		c.hub.mu.RUnlock()
	}
}

// writePump drains the send buffer and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
