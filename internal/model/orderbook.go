package model

import "time"

// BookLevel is one (price, quantity) entry of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook is a bid/ask snapshot. Bids are best-first (descending price),
// asks best-first (ascending price).
type OrderBook struct {
	Symbol   string      `json:"symbol"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
	Received time.Time   `json:"received"`
}

// BestBid returns the top bid, or false if the side is empty.
func (ob *OrderBook) BestBid() (BookLevel, bool) {
	if ob == nil || len(ob.Bids) == 0 {
		return BookLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask, or false if the side is empty.
func (ob *OrderBook) BestAsk() (BookLevel, bool) {
	if ob == nil || len(ob.Asks) == 0 {
		return BookLevel{}, false
	}
	return ob.Asks[0], true
}

// LiquiditySummary is the dashboard view of an order book snapshot.
type LiquiditySummary struct {
	Symbol          string      `json:"symbol"`
	BestBid         float64     `json:"best_bid"`
	BestAsk         float64     `json:"best_ask"`
	Spread          float64     `json:"spread"`
	SignificantBids []BookLevel `json:"significant_bids"`
	SignificantAsks []BookLevel `json:"significant_asks"`
	TS              time.Time   `json:"ts"`
}
