package indicator

import (
	"math"
	"slices"

	"signalengine/internal/model"
)

// SignificantLevels returns the book levels with quantity at least minQty,
// largest first. Ties keep book order.
func SignificantLevels(levels []model.BookLevel, minQty float64) []model.BookLevel {
	var out []model.BookLevel
	for _, l := range levels {
		if l.Qty >= minQty {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b model.BookLevel) int {
		switch {
		case a.Qty > b.Qty:
			return -1
		case a.Qty < b.Qty:
			return 1
		}
		return 0
	})
	return out
}

// BookZones converts the top-N significant bids and asks into liquidity zones.
func BookZones(book *model.OrderBook, minQty float64, topN int) []model.LiquidityZone {
	if book == nil {
		return nil
	}
	var zones []model.LiquidityZone
	for _, l := range head(SignificantLevels(book.Bids, minQty), topN) {
		zones = append(zones, model.LiquidityZone{Price: l.Price, Volume: l.Qty, Side: "bid"})
	}
	for _, l := range head(SignificantLevels(book.Asks, minQty), topN) {
		zones = append(zones, model.LiquidityZone{Price: l.Price, Volume: l.Qty, Side: "ask"})
	}
	return zones
}

func head[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// VolumeProfile buckets bar volume by typical price into bins across the
// history's price range and returns the topN heaviest bins (mid price),
// heaviest first.
func VolumeProfile(bars []model.AggregatedBar, bins, topN int) []model.LiquidityZone {
	if len(bars) == 0 || bins < 1 {
		return nil
	}
	lo, hi := bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	if hi <= lo {
		var vol float64
		for _, b := range bars {
			vol += b.Volume
		}
		return []model.LiquidityZone{{Price: lo, Volume: vol, Side: "profile"}}
	}

	width := (hi - lo) / float64(bins)
	vols := make([]float64, bins)
	for _, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3
		i := int((tp - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		if i < 0 {
			i = 0
		}
		vols[i] += b.Volume
	}

	zones := make([]model.LiquidityZone, 0, bins)
	for i, v := range vols {
		if v <= 0 {
			continue
		}
		zones = append(zones, model.LiquidityZone{
			Price:  lo + width*(float64(i)+0.5),
			Volume: v,
			Side:   "profile",
		})
	}
	slices.SortStableFunc(zones, func(a, b model.LiquidityZone) int {
		switch {
		case a.Volume > b.Volume:
			return -1
		case a.Volume < b.Volume:
			return 1
		}
		return 0
	})
	return head(zones, topN)
}

// AverageVolume is the mean of the period volumes before the latest one.
// Needs at least period+1 values.
func AverageVolume(volumes []float64, period int) (float64, bool) {
	if period < 1 || len(volumes) < period+1 {
		return 0, false
	}
	end := len(volumes) - 1
	var sum float64
	for _, v := range volumes[end-period : end] {
		sum += v
	}
	return sum / float64(period), true
}
