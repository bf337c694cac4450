package model

import (
	"context"
)

// ── Collaborator Ports ──
// These interfaces decouple the signal pipeline from concrete storage and
// exchange implementations (SQLite, Binance REST/WebSocket, replay).

// KlineStore caches base-interval klines per (symbol, interval).
type KlineStore interface {
	// Get returns cached bars with OpenTime >= fromMs, ascending.
	Get(ctx context.Context, symbol, interval string, fromMs int64) ([]RawBar, error)

	// Put upserts bars keyed by (symbol, interval, OpenTime).
	Put(ctx context.Context, symbol, interval string, bars []RawBar) error

	// LastOpenTime returns the newest cached OpenTime, or 0 when empty.
	LastOpenTime(ctx context.Context, symbol, interval string) (int64, error)
}

// HistoricalFetcher loads a historical range of base-interval bars.
type HistoricalFetcher interface {
	// Fetch returns bars with OpenTime >= fromMs, ascending and de-duplicated.
	Fetch(ctx context.Context, symbol, interval string, fromMs int64) ([]RawBar, error)
}

// MarketDataSource delivers raw bars and order book snapshots via callbacks.
type MarketDataSource interface {
	// Start blocks, delivering data until ctx is cancelled.
	// Reconnects are handled internally.
	Start(ctx context.Context) error
}

// BarHandler receives base-interval bars.
type BarHandler func(RawBar)

// BookHandler receives order book snapshots.
type BookHandler func(*OrderBook)
