package model

import "time"

// MACDResult is the latest MACD line, its signal line and their difference.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// SupertrendResult holds the active band and trend direction (+1 up, -1 down).
type SupertrendResult struct {
	Value     float64 `json:"value"`
	Direction int     `json:"direction"`
}

// KDJResult is the latest stochastic K, D and J lines.
type KDJResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
	J float64 `json:"j"`
}

// SARResult is the latest parabolic SAR value and its side (+1 below price, -1 above).
type SARResult struct {
	Value     float64 `json:"value"`
	Direction int     `json:"direction"`
}

// FractalResult holds the most recent confirmed Williams fractals.
// LastBullish is a fractal low (support), LastBearish a fractal high (resistance).
type FractalResult struct {
	LastBullish float64 `json:"last_bullish"`
	LastBearish float64 `json:"last_bearish"`
	HasBullish  bool    `json:"has_bullish"`
	HasBearish  bool    `json:"has_bearish"`
}

// PivotLevels are classic floor-trader pivots.
type PivotLevels struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

// Supports returns S1..S3.
func (p PivotLevels) Supports() []float64 { return []float64{p.S1, p.S2, p.S3} }

// Resistances returns R1..R3.
func (p PivotLevels) Resistances() []float64 { return []float64{p.R1, p.R2, p.R3} }

// FibLevel is one retracement level of a swing.
type FibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

// FibLevels are retracement levels from swing A to swing B.
// Levels are ordered by ratio, 0 at A and 1 at B.
type FibLevels struct {
	SwingA float64    `json:"swing_a"`
	SwingB float64    `json:"swing_b"`
	Levels []FibLevel `json:"levels"`
}

// Uptrend reports whether the swing runs from a low to a high.
func (f FibLevels) Uptrend() bool { return f.SwingB > f.SwingA }

// LiquidityZone is a price level carrying significant size, either from the
// order book or from a volume profile bin.
type LiquidityZone struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Side   string  `json:"side"` // "bid", "ask" or "profile"
}

// IndicatorSnapshot is every indicator value computed over the rolling history
// at one bar. Ready=false marks the insufficient-data sentinel: all other
// fields are zero and must not be read.
type IndicatorSnapshot struct {
	Ready       bool      `json:"ready"`
	Provisional bool      `json:"provisional"`
	TS          time.Time `json:"ts"`
	Bars        int       `json:"bars"`

	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`

	RSI        float64          `json:"rsi"`
	MACD       MACDResult       `json:"macd"`
	Supertrend SupertrendResult `json:"supertrend"`
	KDJ        KDJResult        `json:"kdj"`
	SAR        SARResult        `json:"sar"`
	Fractals   FractalResult    `json:"fractals"`
	Momentum   float64          `json:"momentum"`
	ATR        float64          `json:"atr"`
	HasATR     bool             `json:"has_atr"`

	AvgVolume    float64 `json:"avg_volume"`
	HasAvgVolume bool    `json:"has_avg_volume"`

	Pivots    PivotLevels `json:"pivots"`
	HasPivots bool        `json:"has_pivots"`
	Fib       FibLevels   `json:"fib"`
	HasFib    bool        `json:"has_fib"`

	Liquidity []LiquidityZone `json:"liquidity"`
}
