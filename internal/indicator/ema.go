package indicator

import "signalengine/internal/model"

// EMASeries returns the exponential moving average of values, seeded with
// the first value and smoothed with multiplier 2/(period+1).
func EMASeries(values []float64, period int) []float64 {
	if period < 1 {
		period = 1
	}
	return ewm(values, 2.0/float64(period+1))
}

// ewm applies recursive exponential smoothing: out = alpha*x + (1-alpha)*prev.
func ewm(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// wilder is Wilder's smoothing (SMMA): ewm with alpha 1/period.
func wilder(values []float64, period int) []float64 {
	if period < 1 {
		period = 1
	}
	return ewm(values, 1.0/float64(period))
}

// MACD computes the MACD line (fast EMA − slow EMA), its signal EMA and the
// histogram. Needs at least slow+signal closes.
func MACD(closes []float64, fast, slow, signal int) (model.MACDResult, bool) {
	if len(closes) < slow+signal || fast >= slow {
		return model.MACDResult{}, false
	}
	fastE := EMASeries(closes, fast)
	slowE := EMASeries(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fastE[i] - slowE[i]
	}
	sig := EMASeries(line, signal)
	last := len(closes) - 1
	return model.MACDResult{
		MACD:      line[last],
		Signal:    sig[last],
		Histogram: line[last] - sig[last],
	}, true
}
