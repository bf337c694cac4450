package indicator

import (
	"math"

	"signalengine/internal/model"
)

// trueRange returns the true range series; the first bar's range is high−low.
func trueRange(high, low, close []float64) []float64 {
	tr := make([]float64, len(close))
	for i := range close {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// ATRSeries returns Wilder's average true range for every bar. Values before
// index period-1 are warm-up and should not be used. Needs at least period bars.
func ATRSeries(high, low, close []float64, period int) ([]float64, bool) {
	if period < 1 || len(close) < period || len(high) != len(close) || len(low) != len(close) {
		return nil, false
	}
	return wilder(trueRange(high, low, close), period), true
}

// ATR returns the latest average true range.
func ATR(high, low, close []float64, period int) (float64, bool) {
	s, ok := ATRSeries(high, low, close, period)
	if !ok {
		return 0, false
	}
	return s[len(s)-1], true
}

// Supertrend follows price with an ATR band around the bar midpoint. In an
// uptrend the lower band ratchets up and never falls; a close below it flips
// the trend down, and symmetrically for downtrends.
func Supertrend(high, low, close []float64, period int, mult float64) (model.SupertrendResult, bool) {
	if len(close) < period+1 {
		return model.SupertrendResult{}, false
	}
	atr, ok := ATRSeries(high, low, close, period)
	if !ok {
		return model.SupertrendResult{}, false
	}

	first := period - 1
	upper := func(i int) float64 { return (high[i]+low[i])/2 + mult*atr[i] }
	lower := func(i int) float64 { return (high[i]+low[i])/2 - mult*atr[i] }

	var st float64
	var dir int
	if close[first] <= upper(first) {
		st, dir = upper(first), -1
	} else {
		st, dir = lower(first), 1
	}

	for i := first + 1; i < len(close); i++ {
		if dir == 1 {
			band := math.Max(lower(i), st)
			if close[i] < band {
				st, dir = upper(i), -1
			} else {
				st = band
			}
			continue
		}
		band := math.Min(upper(i), st)
		if close[i] > band {
			st, dir = lower(i), 1
		} else {
			st = band
		}
	}
	return model.SupertrendResult{Value: st, Direction: dir}, true
}
