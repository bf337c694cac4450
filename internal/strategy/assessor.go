package strategy

import (
	"signalengine/internal/model"
)

// SRSource names a support/resistance level source.
type SRSource string

const (
	SourcePivot     SRSource = "pivot"
	SourceFibonacci SRSource = "fibonacci"
	SourceLiquidity SRSource = "liquidity"
)

// Thresholds configures the label boundaries used by the Assessor.
type Thresholds struct {
	RSIOverbought float64
	RSIOversold   float64
	RSIBullish    float64 // bias confirm, inside the extremes
	RSIBearish    float64

	// MACDStrengthPct marks a histogram at least this fraction of close as strong.
	MACDStrengthPct float64

	KDJOverbought float64 // J line
	KDJOversold   float64

	VolumeHigh float64 // multiples of the trailing average
	VolumeLow  float64

	// Proximity is the level tolerance as a fraction of the level price.
	Proximity     float64
	SROrder       []SRSource
	LiquidityTopN int
}

// DefaultThresholds returns the conventional label boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOverbought:   70,
		RSIOversold:     30,
		RSIBullish:      55,
		RSIBearish:      45,
		MACDStrengthPct: 0.0005,
		KDJOverbought:   100,
		KDJOversold:     0,
		VolumeHigh:      1.5,
		VolumeLow:       0.5,
		Proximity:       0.002,
		SROrder:         []SRSource{SourcePivot, SourceFibonacci, SourceLiquidity},
		LiquidityTopN:   3,
	}
}

// Assessor labels indicator snapshots.
type Assessor struct {
	th Thresholds
}

// NewAssessor creates an assessor with the given thresholds.
func NewAssessor(th Thresholds) *Assessor {
	return &Assessor{th: th}
}

// Assess returns one label per category. A not-ready snapshot yields
// NotReady everywhere.
func (a *Assessor) Assess(snap model.IndicatorSnapshot) model.AssessedState {
	if !snap.Ready {
		return model.NotReadyState()
	}
	return model.AssessedState{
		model.CatTrend:   AssessTrend(snap.Supertrend, snap.SAR, snap.Close),
		model.CatMACD:    AssessMACD(snap.MACD, snap.Close, a.th.MACDStrengthPct),
		model.CatRSI:     AssessRSI(snap.RSI, a.th),
		model.CatKDJ:     AssessKDJ(snap.KDJ, a.th),
		model.CatFractal: AssessFractal(snap.Fractals, snap.High, snap.Low, snap.Close),
		model.CatSR:      AssessSupportResistance(snap, a.th),
		model.CatVolume:  AssessVolume(snap.Volume, snap.AvgVolume, snap.HasAvgVolume, a.th),
	}
}

// AssessTrend combines Supertrend direction with the SAR side. When the two
// disagree the Supertrend label wins.
func AssessTrend(st model.SupertrendResult, sar model.SARResult, close float64) model.Label {
	sarBull := sar.Value > 0 && sar.Value < close
	sarBear := sar.Value > close
	switch {
	case st.Direction == 1 && sarBull:
		return model.StrongBullishTrend
	case st.Direction == -1 && sarBear:
		return model.StrongBearishTrend
	case st.Direction == 1:
		return model.BullishTrendST
	case st.Direction == -1:
		return model.BearishTrendST
	case sarBull:
		return model.BullishTrendSAR
	case sarBear:
		return model.BearishTrendSAR
	}
	return model.NeutralTrend
}

// AssessMACD grades the histogram sign, the MACD line side of zero and the
// histogram size relative to price.
func AssessMACD(m model.MACDResult, close, strengthPct float64) model.Label {
	strong := close > 0 && abs(m.Histogram) >= strengthPct*close
	switch {
	case m.Histogram > 0 && m.MACD > 0 && strong:
		return model.StrongBullish
	case m.Histogram > 0 && m.MACD > 0:
		return model.Bullish
	case m.Histogram > 0:
		return model.WeakBullish
	case m.Histogram < 0 && m.MACD < 0 && strong:
		return model.StrongBearish
	case m.Histogram < 0 && m.MACD < 0:
		return model.Bearish
	case m.Histogram < 0:
		return model.WeakBearish
	}
	return model.Neutral
}

// AssessRSI checks the extremes first, then the tighter bias thresholds.
func AssessRSI(rsi float64, th Thresholds) model.Label {
	switch {
	case rsi >= th.RSIOverbought:
		return model.Overbought
	case rsi <= th.RSIOversold:
		return model.Oversold
	case rsi >= th.RSIBullish:
		return model.Bullish
	case rsi <= th.RSIBearish:
		return model.Bearish
	}
	return model.Neutral
}

// AssessKDJ uses J for extremes and the K/D cross otherwise.
func AssessKDJ(k model.KDJResult, th Thresholds) model.Label {
	switch {
	case k.J >= th.KDJOverbought:
		return model.Overbought
	case k.J <= th.KDJOversold:
		return model.Oversold
	case k.K > k.D:
		return model.Bullish
	case k.K < k.D:
		return model.Bearish
	}
	return model.Neutral
}

// AssessFractal detects the bar breaking the last confirmed fractal.
// If both sides break, the close decides.
func AssessFractal(f model.FractalResult, high, low, close float64) model.Label {
	up := f.HasBearish && high > f.LastBearish
	down := f.HasBullish && low < f.LastBullish
	switch {
	case up && down:
		if close > f.LastBearish {
			return model.BrokeResistance
		}
		if close < f.LastBullish {
			return model.BrokeSupport
		}
		return model.Neutral
	case up:
		return model.BrokeResistance
	case down:
		return model.BrokeSupport
	}
	return model.Neutral
}

// AssessVolume compares the bar volume with its trailing average.
func AssessVolume(volume, avg float64, hasAvg bool, th Thresholds) model.Label {
	if !hasAvg || avg <= 0 {
		return model.Neutral
	}
	switch {
	case volume >= th.VolumeHigh*avg:
		return model.HighVolume
	case volume <= th.VolumeLow*avg:
		return model.LowVolume
	}
	return model.AverageVolume
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
