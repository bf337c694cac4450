package strategy

import (
	"signalengine/internal/model"
)

// barView is the part of the evaluated bar the level checks need.
type barView struct {
	open, high, low, close float64
}

// AssessSupportResistance checks the configured level sources in order and
// returns the first interaction found, or Neutral.
func AssessSupportResistance(snap model.IndicatorSnapshot, th Thresholds) model.Label {
	b := barView{open: snap.Open, high: snap.High, low: snap.Low, close: snap.Close}
	for _, src := range th.SROrder {
		var l model.Label
		switch src {
		case SourcePivot:
			if snap.HasPivots {
				l = pivotInteraction(snap.Pivots, b, th.Proximity)
			}
		case SourceFibonacci:
			if snap.HasFib {
				prices := make([]float64, len(snap.Fib.Levels))
				for i, f := range snap.Fib.Levels {
					prices[i] = f.Price
				}
				l = touch(prices, b, th.Proximity)
			}
		case SourceLiquidity:
			zones := snap.Liquidity
			if th.LiquidityTopN > 0 && len(zones) > th.LiquidityTopN {
				zones = zones[:th.LiquidityTopN]
			}
			prices := make([]float64, len(zones))
			for i, z := range zones {
				prices[i] = z.Price
			}
			l = touch(prices, b, th.Proximity)
		}
		if l != "" && l != model.Neutral {
			return l
		}
	}
	return model.Neutral
}

// pivotInteraction checks breakouts through R levels and breakdowns through
// S levels before bounces and rejections. P counts on both sides.
func pivotInteraction(p model.PivotLevels, b barView, proximity float64) model.Label {
	resist := append([]float64{p.P}, p.Resistances()...)
	support := append([]float64{p.P}, p.Supports()...)

	for _, r := range resist {
		if b.open <= r && b.close > r+r*proximity {
			return model.BreakoutResistance
		}
	}
	for _, s := range support {
		if b.open >= s && b.close < s-s*proximity {
			return model.BreakdownSupport
		}
	}
	for _, s := range support {
		if bounced(s, b, proximity) {
			return model.BounceSupport
		}
	}
	for _, r := range resist {
		if rejected(r, b, proximity) {
			return model.RejectionResistance
		}
	}
	return model.Neutral
}

// touch checks each level, first match wins: a bar opening above a level that
// dips to it and closes above bounced; the mirror case was rejected.
func touch(levels []float64, b barView, proximity float64) model.Label {
	for _, lv := range levels {
		if lv <= 0 {
			continue
		}
		if bounced(lv, b, proximity) {
			return model.BounceSupport
		}
		if rejected(lv, b, proximity) {
			return model.RejectionResistance
		}
	}
	return model.Neutral
}

// bounced: the low stays within proximity of the level on either side and
// the bar opens and closes above it. A deeper wick is not a bounce off level.
func bounced(level float64, b barView, proximity float64) bool {
	return b.open > level && b.close > level && near(b.low, level, proximity)
}

func rejected(level float64, b barView, proximity float64) bool {
	return b.open < level && b.close < level && near(b.high, level, proximity)
}

func near(price, level, proximity float64) bool {
	tol := level * proximity
	return price >= level-tol && price <= level+tol
}
