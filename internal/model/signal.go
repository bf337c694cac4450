package model

import (
	"encoding/json"
	"time"
)

// Direction is the side of a trade signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// TradeSignal is a concrete entry with exits, created fresh per completed bar.
type TradeSignal struct {
	ID         string        `json:"id"`
	Symbol     string        `json:"symbol"`
	Direction  Direction     `json:"direction"`
	Entry      float64       `json:"entry"`
	TakeProfit float64       `json:"take_profit"`
	StopLoss   float64       `json:"stop_loss"`
	RewardRisk float64       `json:"reward_risk"`
	States     AssessedState `json:"states"`
	TS         time.Time     `json:"ts"`
}

// ConsolidationInfo is the long/short confluence reading when no trade fires.
type ConsolidationInfo struct {
	LongPercent  float64       `json:"long_percent"`
	ShortPercent float64       `json:"short_percent"`
	Ready        bool          `json:"ready"`
	States       AssessedState `json:"states"`
}

// Evaluation is the outcome of one completed-bar evaluation: exactly one of
// Signal or Consolidation is set.
type Evaluation struct {
	Symbol        string             `json:"symbol"`
	TF            int64              `json:"tf"`
	BarTS         time.Time          `json:"bar_ts"`
	Close         float64            `json:"close"`
	Signal        *TradeSignal       `json:"signal,omitempty"`
	Consolidation *ConsolidationInfo `json:"consolidation,omitempty"`
	TraceID       string             `json:"trace_id,omitempty"`
}

// HasSignal reports whether the evaluation produced a trade.
func (e *Evaluation) HasSignal() bool {
	return e != nil && e.Signal != nil
}

// JSON returns the JSON-encoded evaluation.
func (e *Evaluation) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
