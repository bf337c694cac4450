package indicator

import (
	"math"

	"signalengine/internal/model"
)

// KDJ computes the stochastic K, D and J lines. RSV is the close's position
// in the n-bar high/low range (50 when the range is flat or not yet full).
// K smooths RSV over m1, D smooths K over m2, J = 3K − 2D. K and D are
// clipped to [0, 100]; J is not.
func KDJ(high, low, close []float64, n, m1, m2 int) (model.KDJResult, bool) {
	if n < 1 || len(close) < n || len(high) != len(close) || len(low) != len(close) {
		return model.KDJResult{}, false
	}
	rsv := make([]float64, len(close))
	for i := range close {
		if i < n-1 {
			rsv[i] = 50
			continue
		}
		hh, ll := high[i], low[i]
		for j := i - n + 1; j < i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		if hh == ll {
			rsv[i] = 50
			continue
		}
		rsv[i] = (close[i] - ll) / (hh - ll) * 100
	}

	k := ewm(rsv, smoothAlpha(m1))
	d := ewm(k, smoothAlpha(m2))
	last := len(close) - 1
	j := 3*k[last] - 2*d[last]
	return model.KDJResult{
		K: clamp(k[last], 0, 100),
		D: clamp(d[last], 0, 100),
		J: j,
	}, true
}

// smoothAlpha converts a KDJ smoothing period m to the ewm span 2m−1.
func smoothAlpha(m int) float64 {
	if m <= 1 {
		return 1
	}
	span := float64(2*m - 1)
	return 2 / (span + 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ParabolicSAR computes Wilder's stop-and-reverse starting long at the first
// bar's low. The SAR never enters the prior two bars' range; a bar piercing
// it reverses the trend. Direction is +1 while SAR sits below price, -1 above.
func ParabolicSAR(high, low []float64, initialAF, maxAF, step float64) (model.SARResult, bool) {
	if len(high) < 2 || len(high) != len(low) {
		return model.SARResult{}, false
	}
	sar := low[0]
	long := true
	af := initialAF
	ep := high[0]

	for i := 1; i < len(high); i++ {
		if long {
			cur := sar + af*(ep-sar)
			cur = math.Min(cur, low[i-1])
			if i >= 2 {
				cur = math.Min(cur, low[i-2])
			}
			if low[i] < cur {
				long = false
				cur = ep
				ep = low[i]
				af = initialAF
			} else if high[i] > ep {
				ep = high[i]
				af = math.Min(af+step, maxAF)
			}
			sar = cur
			continue
		}
		cur := sar - af*(sar-ep)
		cur = math.Max(cur, high[i-1])
		if i >= 2 {
			cur = math.Max(cur, high[i-2])
		}
		if high[i] > cur {
			long = true
			cur = ep
			ep = high[i]
			af = initialAF
		} else if low[i] < ep {
			ep = low[i]
			af = math.Min(af+step, maxAF)
		}
		sar = cur
	}

	dir := -1
	if long {
		dir = 1
	}
	return model.SARResult{Value: sar, Direction: dir}, true
}

// Fractals finds the most recent confirmed Williams fractals. A bearish
// fractal is a high strictly above window/2 highs on each side; a bullish
// fractal is a low strictly below window/2 lows on each side.
func Fractals(high, low []float64, window int) (model.FractalResult, bool) {
	if window < 3 || len(high) < window || len(high) != len(low) {
		return model.FractalResult{}, false
	}
	n := window / 2
	var res model.FractalResult
	for i := n; i < len(high)-n; i++ {
		bear, bull := true, true
		for j := 1; j <= n; j++ {
			if !(high[i] > high[i-j] && high[i] > high[i+j]) {
				bear = false
			}
			if !(low[i] < low[i-j] && low[i] < low[i+j]) {
				bull = false
			}
		}
		if bear {
			res.LastBearish, res.HasBearish = high[i], true
		}
		if bull {
			res.LastBullish, res.HasBullish = low[i], true
		}
	}
	return res, true
}
