// Package indicator provides technical indicator calculations over bar series.
//
// Every indicator is a pure function over float64 slices (oldest first) that
// returns an explicit result struct and ok=false when the series is too short.
// SnapshotBuilder runs the whole battery over the rolling history.
package indicator

// Params holds every indicator period and multiplier.
type Params struct {
	RSIPeriod int

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	SupertrendPeriod int
	SupertrendMult   float64

	KDJN  int
	KDJM1 int
	KDJM2 int

	SARInitialAF float64
	SARMaxAF     float64
	SARStep      float64

	FractalWindow  int
	MomentumPeriod int
	ATRPeriod      int
	VolumePeriod   int

	FibOrder   int
	FibMinBars int

	VolumeProfileBins int
	LiquidityMinQty   float64
	LiquidityTopN     int
}

// DefaultParams returns the conventional settings (RSI 14, MACD 12/26/9, ...).
func DefaultParams() Params {
	return Params{
		RSIPeriod:         14,
		MACDFast:          12,
		MACDSlow:          26,
		MACDSignal:        9,
		SupertrendPeriod:  10,
		SupertrendMult:    3.0,
		KDJN:              9,
		KDJM1:             3,
		KDJM2:             3,
		SARInitialAF:      0.02,
		SARMaxAF:          0.2,
		SARStep:           0.02,
		FractalWindow:     5,
		MomentumPeriod:    10,
		ATRPeriod:         14,
		VolumePeriod:      20,
		FibOrder:          3,
		FibMinBars:        15,
		VolumeProfileBins: 24,
		LiquidityMinQty:   10,
		LiquidityTopN:     3,
	}
}

// Lookback returns the longest series any configured indicator needs.
func (p Params) Lookback() int {
	n := p.MACDSlow + p.MACDSignal
	for _, v := range []int{
		p.RSIPeriod + 1,
		p.SupertrendPeriod + 1,
		p.KDJN,
		p.FractalWindow,
		p.MomentumPeriod + 1,
		p.ATRPeriod,
		p.VolumePeriod + 1,
		p.FibMinBars,
		2*p.FibOrder + 1,
	} {
		if v > n {
			n = v
		}
	}
	return n
}
