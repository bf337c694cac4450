package indicator

import (
	"math"
	"slices"
	"time"

	"signalengine/internal/model"
)

// FibRatios are the retracement ratios reported for a swing.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

// StandardPivots returns floor-trader pivots from one period's high, low and close.
func StandardPivots(high, low, close float64) model.PivotLevels {
	p := (high + low + close) / 3
	return model.PivotLevels{
		P:  p,
		R1: 2*p - low,
		S1: 2*p - high,
		R2: p + (high - low),
		S2: p - (high - low),
		R3: high + 2*(p-low),
		S3: low - 2*(high-p),
	}
}

// DailyPivots derives pivots from the previous UTC day present in bars.
// Without a previous day in range it falls back to the high/low/close of every
// bar before the latest one. Needs at least two bars.
func DailyPivots(bars []model.AggregatedBar) (model.PivotLevels, bool) {
	if len(bars) < 2 {
		return model.PivotLevels{}, false
	}
	latest := bars[len(bars)-1].BucketStart.UTC()
	dayStart := time.Date(latest.Year(), latest.Month(), latest.Day(), 0, 0, 0, 0, time.UTC)
	prevStart := dayStart.Add(-24 * time.Hour)

	var window []model.AggregatedBar
	for _, b := range bars {
		ts := b.BucketStart.UTC()
		if !ts.Before(prevStart) && ts.Before(dayStart) {
			window = append(window, b)
		}
	}
	if len(window) == 0 {
		window = bars[:len(bars)-1]
	}

	high, low := window[0].High, window[0].Low
	for _, b := range window[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return StandardPivots(high, low, window[len(window)-1].Close), true
}

// swing is a local extremum at index idx.
type swing struct {
	idx   int
	price float64
	high  bool
}

// findSwings returns swing highs of high and swing lows of low: a point no
// lower (no higher) than order bars on each side.
func findSwings(high, low []float64, order int) []swing {
	var out []swing
	for i := order; i < len(high)-order; i++ {
		isHigh, isLow := true, true
		for j := 1; j <= order; j++ {
			if high[i] < high[i-j] || high[i] < high[i+j] {
				isHigh = false
			}
			if low[i] > low[i-j] || low[i] > low[i+j] {
				isLow = false
			}
		}
		if isHigh {
			out = append(out, swing{idx: i, price: high[i], high: true})
		}
		if isLow {
			out = append(out, swing{idx: i, price: low[i]})
		}
	}
	slices.SortStableFunc(out, func(a, b swing) int { return a.idx - b.idx })
	return out
}

// alternate collapses consecutive swings of the same kind into the most
// extreme one so highs and lows alternate.
func alternate(swings []swing) []swing {
	if len(swings) == 0 {
		return nil
	}
	out := []swing{swings[0]}
	for _, s := range swings[1:] {
		last := &out[len(out)-1]
		if s.high != last.high {
			out = append(out, s)
			continue
		}
		if (s.high && s.price > last.price) || (!s.high && s.price < last.price) {
			*last = s
		}
	}
	return out
}

// FibonacciRetracement finds the latest alternating swing pair A→B and returns
// the retracement levels A + (B−A)·ratio. Needs at least minBars bars.
func FibonacciRetracement(high, low []float64, order, minBars int) (model.FibLevels, bool) {
	if len(high) < minBars || len(high) < 2*order+1 || len(high) != len(low) {
		return model.FibLevels{}, false
	}
	swings := alternate(findSwings(high, low, order))
	if len(swings) < 2 {
		return model.FibLevels{}, false
	}
	a, b := swings[len(swings)-2], swings[len(swings)-1]
	if a.high == b.high {
		return model.FibLevels{}, false
	}
	levels := make([]model.FibLevel, len(FibRatios))
	for i, r := range FibRatios {
		levels[i] = model.FibLevel{Ratio: r, Price: a.price + (b.price-a.price)*r}
	}
	return model.FibLevels{SwingA: a.price, SwingB: b.price, Levels: levels}, true
}
