package indicator

import (
	"log/slog"

	"signalengine/internal/model"
)

// SnapshotBuilder runs every configured indicator over the rolling history.
type SnapshotBuilder struct {
	params  Params
	minBars int
}

// NewSnapshotBuilder creates a builder that refuses to compute with fewer than
// minBars bars. minBars below the indicators' own lookback is raised to it.
func NewSnapshotBuilder(params Params, minBars int) *SnapshotBuilder {
	if lb := params.Lookback(); minBars < lb {
		minBars = lb
	}
	return &SnapshotBuilder{params: params, minBars: minBars}
}

// MinBars returns the history length required for a ready snapshot.
func (sb *SnapshotBuilder) MinBars() int { return sb.minBars }

// Params returns the indicator parameters.
func (sb *SnapshotBuilder) Params() Params { return sb.params }

// Build computes a snapshot over completed bars. With fewer than MinBars bars
// it returns the not-ready sentinel without touching any indicator.
func (sb *SnapshotBuilder) Build(history []model.AggregatedBar, book *model.OrderBook) model.IndicatorSnapshot {
	return sb.build(history, book, false)
}

// Preview computes a snapshot over history plus the forming bar. The result
// is flagged Provisional and is for display only.
func (sb *SnapshotBuilder) Preview(history []model.AggregatedBar, provisional model.AggregatedBar, book *model.OrderBook) model.IndicatorSnapshot {
	bars := make([]model.AggregatedBar, 0, len(history)+1)
	bars = append(bars, history...)
	bars = append(bars, provisional)
	return sb.build(bars, book, true)
}

func (sb *SnapshotBuilder) build(bars []model.AggregatedBar, book *model.OrderBook, provisional bool) model.IndicatorSnapshot {
	snap := model.IndicatorSnapshot{
		Provisional: provisional,
		Bars:        len(bars),
	}
	if len(bars) > 0 {
		snap.TS = bars[len(bars)-1].BucketStart
	}
	if len(bars) < sb.minBars {
		return snap
	}

	p := sb.params
	s := model.SeriesOf(bars)
	last := bars[len(bars)-1]
	snap.Open, snap.Close, snap.High, snap.Low, snap.Volume = last.Open, last.Close, last.High, last.Low, last.Volume

	var ok [5]bool
	snap.RSI, ok[0] = RSI(s.Close, p.RSIPeriod)
	snap.MACD, ok[1] = MACD(s.Close, p.MACDFast, p.MACDSlow, p.MACDSignal)
	snap.Supertrend, ok[2] = Supertrend(s.High, s.Low, s.Close, p.SupertrendPeriod, p.SupertrendMult)
	snap.KDJ, ok[3] = KDJ(s.High, s.Low, s.Close, p.KDJN, p.KDJM1, p.KDJM2)
	snap.SAR, ok[4] = ParabolicSAR(s.High, s.Low, p.SARInitialAF, p.SARMaxAF, p.SARStep)
	for i, v := range ok {
		if !v {
			slog.Warn("indicator: core indicator unavailable with full history", "index", i, "bars", len(bars))
			return model.IndicatorSnapshot{Provisional: provisional, Bars: len(bars), TS: snap.TS}
		}
	}

	snap.Fractals, _ = Fractals(s.High, s.Low, p.FractalWindow)
	snap.Momentum, _ = Momentum(s.Close, p.MomentumPeriod)
	snap.ATR, snap.HasATR = ATR(s.High, s.Low, s.Close, p.ATRPeriod)
	snap.AvgVolume, snap.HasAvgVolume = AverageVolume(s.Volume, p.VolumePeriod)
	snap.Pivots, snap.HasPivots = DailyPivots(bars)
	snap.Fib, snap.HasFib = FibonacciRetracement(s.High, s.Low, p.FibOrder, p.FibMinBars)

	snap.Liquidity = BookZones(book, p.LiquidityMinQty, p.LiquidityTopN)
	if len(snap.Liquidity) == 0 {
		snap.Liquidity = VolumeProfile(bars, p.VolumeProfileBins, p.LiquidityTopN)
	}

	snap.Ready = true
	return snap
}
