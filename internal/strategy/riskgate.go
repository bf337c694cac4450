package strategy

import (
	"errors"
	"fmt"
	"math"

	"signalengine/internal/model"
)

var (
	ErrZeroRisk     = errors.New("riskgate: zero risk")
	ErrWrongSide    = errors.New("riskgate: exit on wrong side of entry")
	ErrRewardRisk   = errors.New("riskgate: reward/risk below minimum")
	ErrInvalidEntry = errors.New("riskgate: invalid entry price")
)

// RiskParams configures exit placement and the reward/risk floor.
type RiskParams struct {
	ATRTPMult     float64
	ATRSLMult     float64
	SLBarBuffer   float64 // ATR multiple beyond the bar's low/high
	MinTPPct      float64
	MinSLPct      float64
	FallbackTPPct float64 // used when ATR is unavailable
	FallbackSLPct float64
	MinRewardRisk float64
}

// DefaultRiskParams returns the standard exit configuration.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		ATRTPMult:     2.0,
		ATRSLMult:     1.5,
		SLBarBuffer:   0.1,
		MinTPPct:      0.005,
		MinSLPct:      0.005,
		FallbackTPPct: 0.01,
		FallbackSLPct: 0.01,
		MinRewardRisk: 1.2,
	}
}

// Levels is a priced trade candidate.
type Levels struct {
	Direction  model.Direction
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	RewardRisk float64
}

// RiskGate prices exits for trade candidates and rejects the unacceptable ones.
type RiskGate struct {
	p RiskParams
}

// NewRiskGate creates a gate with the given parameters.
func NewRiskGate(p RiskParams) *RiskGate {
	return &RiskGate{p: p}
}

// Propose computes take-profit and stop-loss for a trade at entry and
// validates the result.
func (g *RiskGate) Propose(dir model.Direction, entry float64, snap model.IndicatorSnapshot) (Levels, error) {
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		return Levels{}, ErrInvalidEntry
	}
	p := g.p
	lv := Levels{Direction: dir, Entry: entry}

	if snap.HasATR && snap.ATR > 0 {
		atr := snap.ATR
		if dir == model.Long {
			lv.StopLoss = math.Min(entry-atr*p.ATRSLMult, snap.Low-atr*p.SLBarBuffer)
			lv.TakeProfit = entry + atr*p.ATRTPMult
			if snap.HasPivots && snap.Pivots.R1 > lv.TakeProfit {
				lv.TakeProfit = snap.Pivots.R1
			}
		} else {
			lv.StopLoss = math.Max(entry+atr*p.ATRSLMult, snap.High+atr*p.SLBarBuffer)
			lv.TakeProfit = entry - atr*p.ATRTPMult
			if snap.HasPivots && snap.Pivots.S1 > 0 && snap.Pivots.S1 < lv.TakeProfit {
				lv.TakeProfit = snap.Pivots.S1
			}
		}
	} else {
		if dir == model.Long {
			lv.StopLoss = entry * (1 - p.FallbackSLPct)
			lv.TakeProfit = entry * (1 + p.FallbackTPPct)
		} else {
			lv.StopLoss = entry * (1 + p.FallbackSLPct)
			lv.TakeProfit = entry * (1 - p.FallbackTPPct)
		}
	}

	// minimum distances
	minTP, minSL := entry*p.MinTPPct, entry*p.MinSLPct
	if dir == model.Long {
		lv.TakeProfit = math.Max(lv.TakeProfit, entry+minTP)
		lv.StopLoss = math.Min(lv.StopLoss, entry-minSL)
	} else {
		lv.TakeProfit = math.Min(lv.TakeProfit, entry-minTP)
		lv.StopLoss = math.Max(lv.StopLoss, entry+minSL)
	}

	return g.Validate(lv)
}

// Validate checks a priced candidate and fills in its reward/risk ratio.
func (g *RiskGate) Validate(lv Levels) (Levels, error) {
	risk := math.Abs(lv.Entry - lv.StopLoss)
	if risk == 0 {
		return lv, ErrZeroRisk
	}
	switch lv.Direction {
	case model.Long:
		if lv.TakeProfit <= lv.Entry || lv.StopLoss >= lv.Entry {
			return lv, ErrWrongSide
		}
	case model.Short:
		if lv.TakeProfit >= lv.Entry || lv.StopLoss <= lv.Entry {
			return lv, ErrWrongSide
		}
	default:
		return lv, fmt.Errorf("riskgate: unknown direction %q", lv.Direction)
	}
	lv.RewardRisk = math.Abs(lv.TakeProfit-lv.Entry) / risk
	if lv.RewardRisk < g.p.MinRewardRisk {
		return lv, fmt.Errorf("%w: %.2f < %.2f", ErrRewardRisk, lv.RewardRisk, g.p.MinRewardRisk)
	}
	return lv, nil
}
