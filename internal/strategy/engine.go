// Package strategy turns indicator snapshots into trading decisions.
//
// The Assessor maps a snapshot to one label per category, the Consolidator
// combines the labels into a trade or a long/short confluence reading, and
// the RiskGate prices and vets exits. The Engine chains the three for one
// completed bar. Nothing here keeps state between bars.
package strategy

import (
	"time"

	"signalengine/internal/model"
)

// Labeler assigns category labels to a snapshot.
type Labeler interface {
	Assess(snap model.IndicatorSnapshot) model.AssessedState
}

// Engine evaluates completed-bar snapshots for one symbol and timeframe.
type Engine struct {
	symbol       string
	tf           int64
	labeler      Labeler
	consolidator *Consolidator
}

// NewEngine creates an engine. labeler is usually an *Assessor; tests may
// substitute a fixed labeler.
func NewEngine(symbol string, tfSec int64, labeler Labeler, c *Consolidator) *Engine {
	return &Engine{symbol: symbol, tf: tfSec, labeler: labeler, consolidator: c}
}

// Evaluate assesses snap and consolidates the result. Exactly one of
// Signal or Consolidation is set on the returned evaluation.
func (e *Engine) Evaluate(snap model.IndicatorSnapshot) *model.Evaluation {
	state := model.NotReadyState()
	if snap.Ready {
		state = e.labeler.Assess(snap)
	}
	sig, info := e.consolidator.Evaluate(e.symbol, snap, state)
	ts := snap.TS
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &model.Evaluation{
		Symbol:        e.symbol,
		TF:            e.tf,
		BarTS:         ts,
		Close:         snap.Close,
		Signal:        sig,
		Consolidation: info,
	}
}

// Consolidator returns the engine's consolidator.
func (e *Engine) Consolidator() *Consolidator { return e.consolidator }
