package model

import "time"

// UpdateKind identifies which view an Update refreshes.
type UpdateKind string

const (
	UpdatePrice      UpdateKind = "price"
	UpdateIndicators UpdateKind = "indicators"
	UpdateEvaluation UpdateKind = "evaluation"
	UpdateChart      UpdateKind = "chart"
	UpdateLiquidity  UpdateKind = "liquidity"
)

// Update is one typed event pushed from the pipeline to its sinks.
// Only the field matching Kind is populated.
type Update struct {
	Kind   UpdateKind `json:"kind"`
	Symbol string     `json:"symbol"`
	TS     time.Time  `json:"ts"`
	// Final marks the single update of each kind emitted when backfill ends.
	Final bool `json:"final,omitempty"`

	Price      string             `json:"price,omitempty"`
	Indicators *IndicatorSnapshot `json:"indicators,omitempty"`
	Evaluation *Evaluation        `json:"evaluation,omitempty"`
	Bar        *AggregatedBar     `json:"bar,omitempty"` // completed bar behind Evaluation
	Chart      []AggregatedBar    `json:"chart,omitempty"`
	Liquidity  *LiquiditySummary  `json:"liquidity,omitempty"`
}

// Sink receives pipeline updates. OnUpdate is called outside the pipeline
// lock and must not block for long.
type Sink interface {
	OnUpdate(u Update)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(u Update)

// OnUpdate calls f(u).
func (f SinkFunc) OnUpdate(u Update) { f(u) }
