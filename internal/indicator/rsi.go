package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing of
// gains and losses. Needs more than period closes. A series without losses
// reads 100.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) <= period {
		return 0, false
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	avgGain := wilder(gains, period)
	avgLoss := wilder(losses, period)

	last := len(closes) - 1
	if avgLoss[last] == 0 {
		return 100.0, true
	}
	rs := avgGain[last] / avgLoss[last]
	return 100.0 - (100.0 / (1.0 + rs)), true
}

// Momentum is the latest close minus the close period bars earlier.
func Momentum(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) <= period {
		return 0, false
	}
	last := len(closes) - 1
	return closes[last] - closes[last-period], true
}
