// Package ws provides the live MarketDataSource: a Binance combined-stream
// WebSocket client delivering closed klines and partial order-book depth.
//
// Subscribed streams (symbol lower-cased):
//
//	<symbol>@kline_<interval>
//	<symbol>@depth<levels>@100ms
//
// Messages arrive wrapped as {"stream":"...","data":{...}}.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signalengine/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the stream ingest.
type Config struct {
	// URL of the stream endpoint, e.g. "wss://stream.binance.com:9443"
	URL      string
	Symbol   string
	Interval string // kline interval, e.g. "1m"

	// DepthLevels is 5, 10 or 20; 0 disables the depth stream.
	DepthLevels int

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest streams klines and depth into its handlers. Handlers are called
// from the read goroutine, one message at a time.
type Ingest struct {
	cfg Config

	OnBar  model.BarHandler  // closed klines only
	OnBook model.BookHandler // depth snapshots

	// Optional hooks
	OnPrice     func(price float64, ts time.Time) // every kline payload, closed or not
	OnReconnect func()
	OnConnected func(up bool)
}

var _ model.MarketDataSource = (*Ingest)(nil)

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, errors.New("ws ingest: symbol and interval are required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("ws ingest: parse url: %w", err)
	}
	return &Ingest{cfg: cfg}, nil
}

// StreamURL returns the combined-stream URL for the configured symbol.
func (ing *Ingest) StreamURL() string {
	sym := strings.ToLower(ing.cfg.Symbol)
	streams := sym + "@kline_" + ing.cfg.Interval
	if ing.cfg.DepthLevels > 0 {
		streams += "/" + sym + "@depth" + strconv.Itoa(ing.cfg.DepthLevels) + "@100ms"
	}
	return strings.TrimRight(ing.cfg.URL, "/") + "/stream?streams=" + streams
}

// Start connects and streams until ctx is cancelled. Reconnects
// automatically with exponential backoff, reset after a healthy session.
func (ing *Ingest) Start(ctx context.Context) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		received, err := ing.runOnce(ctx)
		if err == nil {
			return nil
		}
		if ing.OnConnected != nil {
			ing.OnConnected(false)
		}
		if received {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[ws] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel. received reports whether any message arrived.
func (ing *Ingest) runOnce(ctx context.Context) (received bool, err error) {
	target := ing.StreamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[ws] connected to %s", target)
	if ing.OnConnected != nil {
		ing.OnConnected(true)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return received, nil
			default:
			}
			return received, err
		}
		received = true
		ing.handleMessage(raw)
	}
}

func (ing *Ingest) handleMessage(raw []byte) {
	var wrapper struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		log.Printf("[ws] parse error: %v", err)
		return
	}

	switch {
	case strings.Contains(wrapper.Stream, "@kline"):
		bar, closed, err := parseKline(wrapper.Data)
		if err != nil {
			log.Printf("[ws] kline parse error: %v", err)
			return
		}
		if ing.OnPrice != nil {
			ing.OnPrice(bar.Close, time.Now().UTC())
		}
		if closed && ing.OnBar != nil {
			ing.OnBar(bar)
		}

	case strings.Contains(wrapper.Stream, "@depth"):
		ob, err := parseDepth(wrapper.Data)
		if err != nil {
			log.Printf("[ws] depth parse error: %v", err)
			return
		}
		ob.Symbol = ing.cfg.Symbol
		if ing.OnBook != nil {
			ing.OnBook(ob)
		}

	default:
		if wrapper.Stream != "" {
			log.Printf("[ws] unknown stream: %s", wrapper.Stream)
		}
	}
}

// parseKline decodes a kline event. closed is the payload's "x" flag.
func parseKline(data []byte) (bar model.RawBar, closed bool, err error) {
	var ev struct {
		Kline struct {
			StartTime int64  `json:"t"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			IsFinal   bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.RawBar{}, false, err
	}
	k := ev.Kline
	if k.StartTime == 0 {
		return model.RawBar{}, false, errors.New("missing kline open time")
	}

	bar.OpenTime = k.StartTime
	fields := []struct {
		name string
		src  string
		dst  *float64
	}{
		{"o", k.Open, &bar.Open},
		{"h", k.High, &bar.High},
		{"l", k.Low, &bar.Low},
		{"c", k.Close, &bar.Close},
		{"v", k.Volume, &bar.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return model.RawBar{}, false, fmt.Errorf("field %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return bar, k.IsFinal, nil
}

// parseDepth decodes a partial book depth payload.
func parseDepth(data []byte) (*model.OrderBook, error) {
	var ev struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	bids, err := parseLevels(ev.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(ev.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return &model.OrderBook{Bids: bids, Asks: asks, Received: time.Now().UTC()}, nil
}

func parseLevels(rows [][]string) ([]model.BookLevel, error) {
	levels := make([]model.BookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("expected [price, qty], got %v", row)
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, err
		}
		levels = append(levels, model.BookLevel{Price: price, Qty: qty})
	}
	return levels, nil
}
