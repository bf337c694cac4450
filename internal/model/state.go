package model

// Category names one dimension of the assessed market state.
type Category string

const (
	CatTrend   Category = "trend"
	CatMACD    Category = "macd"
	CatRSI     Category = "rsi"
	CatKDJ     Category = "kdj"
	CatFractal Category = "fractal"
	CatSR      Category = "support_resistance"
	CatVolume  Category = "volume"
)

// Categories lists every category in display order.
var Categories = []Category{CatTrend, CatMACD, CatRSI, CatKDJ, CatFractal, CatSR, CatVolume}

// Label is a symbolic state within one category.
type Label string

// NotReady is assigned to every category while the history is warming up.
const NotReady Label = "NOT_READY"

// Trend labels.
const (
	StrongBullishTrend Label = "STRONG_BULLISH_TREND"
	BullishTrendST     Label = "BULLISH_TREND_ST"
	BullishTrendSAR    Label = "BULLISH_TREND_SAR"
	NeutralTrend       Label = "NEUTRAL_TREND"
	BearishTrendST     Label = "BEARISH_TREND_ST"
	BearishTrendSAR    Label = "BEARISH_TREND_SAR"
	StrongBearishTrend Label = "STRONG_BEARISH_TREND"
)

// Directional labels shared by the MACD, RSI and KDJ categories.
const (
	StrongBullish Label = "STRONG_BULLISH"
	Bullish       Label = "BULLISH"
	WeakBullish   Label = "WEAK_BULLISH"
	Neutral       Label = "NEUTRAL"
	WeakBearish   Label = "WEAK_BEARISH"
	Bearish       Label = "BEARISH"
	StrongBearish Label = "STRONG_BEARISH"
	Overbought    Label = "OVERBOUGHT"
	Oversold      Label = "OVERSOLD"
)

// Fractal labels.
const (
	BrokeResistance Label = "BROKE_RESISTANCE"
	BrokeSupport    Label = "BROKE_SUPPORT"
)

// Support/resistance labels.
const (
	BounceSupport       Label = "BOUNCE_SUPPORT"
	RejectionResistance Label = "REJECTION_RESISTANCE"
	BreakoutResistance  Label = "BREAKOUT_RESISTANCE"
	BreakdownSupport    Label = "BREAKDOWN_SUPPORT"
)

// Volume labels.
const (
	HighVolume    Label = "HIGH_VOLUME"
	AverageVolume Label = "AVERAGE_VOLUME"
	LowVolume     Label = "LOW_VOLUME"
)

// AssessedState maps every category to exactly one label.
type AssessedState map[Category]Label

// NotReadyState returns a state with every category set to NotReady.
func NotReadyState() AssessedState {
	s := make(AssessedState, len(Categories))
	for _, c := range Categories {
		s[c] = NotReady
	}
	return s
}

// Ready reports whether the state was assessed from a ready snapshot.
func (s AssessedState) Ready() bool {
	if len(s) == 0 {
		return false
	}
	for _, l := range s {
		if l == NotReady {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s AssessedState) Clone() AssessedState {
	out := make(AssessedState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
