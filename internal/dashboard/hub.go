// Package dashboard serves the live signal feed to browsers: a WebSocket
// stream of pipeline updates plus a few JSON endpoints.
//
// Every pipeline update kind maps to one channel ("price", "indicators",
// "evaluation", "chart", "liquidity"). Messages use the envelope
//
//	{"channel":"...","data":{...},"ts":"...","seq":N,"channel_seq":M}
//
// and a new client first receives the latest message of every channel.
package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"signalengine/internal/model"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	replayPerChannel = 256
)

// StateSource exposes the pipeline state served over REST.
type StateSource interface {
	ChartSeries(maxBars int) []model.AggregatedBar
	LatestEvaluation() *model.Evaluation
}

// Hub manages WebSocket clients and fans pipeline updates out to them.
type Hub struct {
	Symbol string
	state  StateSource

	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	// Update-to-broadcast delay
	Latency *LatencyTracker

	// Optional metrics hooks
	OnClients func(n int)
	OnDrop    func()
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

var _ model.Sink = (*Hub)(nil)

// NewHub creates a Hub serving symbol. state may be nil when no REST
// state is needed.
func NewHub(symbol string, state StateSource) *Hub {
	return &Hub{
		Symbol:      symbol,
		state:       state,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(4096),
	}
}

// OnUpdate implements model.Sink.
func (h *Hub) OnUpdate(u model.Update) {
	var payload any
	switch u.Kind {
	case model.UpdatePrice:
		payload = map[string]string{"symbol": u.Symbol, "price": u.Price}
	case model.UpdateIndicators:
		payload = u.Indicators
	case model.UpdateEvaluation:
		payload = u.Evaluation
	case model.UpdateChart:
		payload = u.Chart
	case model.UpdateLiquidity:
		payload = u.Liquidity
	default:
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[dashboard] marshal %s: %v", u.Kind, err)
		return
	}
	h.broadcast(string(u.Kind), data, u.TS)
}

// Register adds an upgraded connection and starts its pumps. Messages newer
// than lastTS (RFC3339Nano, optional) are replayed as initial state.
func (h *Hub) Register(conn *websocket.Conn, lastTS string) *Client {
	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	// queue initial state before any broadcast can reach the client
	client.queueInitialState(lastTS)
	h.mu.Unlock()

	log.Printf("[dashboard] ws client connected (%d total)", count)
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// LatestAll returns the latest payload of every channel.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Missed returns buffered envelopes of channel with channel_seq > afterSeq.
func (h *Hub) Missed(channel string, afterSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Since(afterSeq)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
