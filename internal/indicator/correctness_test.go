package indicator

import (
	"math"
	"testing"
	"time"

	"signalengine/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ramp returns n values start, start+step, ...
func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func offset(values []float64, d float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v + d
	}
	return out
}

// ────────────────────────────────────────────────────────────
// EMA / MACD
// ────────────────────────────────────────────────────────────

func TestEMASeries_Correctness(t *testing.T) {
	// alpha = 2/(3+1) = 0.5, seeded with the first value:
	// 10 → 0.5*20 + 0.5*10 = 15 → 0.5*30 + 0.5*15 = 22.5
	got := EMASeries([]float64{10, 20, 30}, 3)
	want := []float64{10, 15, 22.5}
	for i := range want {
		assertClose(t, "EMA", got[i], want[i], 1e-9)
	}

	if len(EMASeries(nil, 3)) != 0 {
		t.Error("expected empty EMA for empty input")
	}
}

func TestMACD_Flat(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	m, ok := MACD(closes, 12, 26, 9)
	if !ok {
		t.Fatal("expected MACD ready with 40 closes")
	}
	assertClose(t, "MACD flat line", m.MACD, 0, 1e-12)
	assertClose(t, "MACD flat hist", m.Histogram, 0, 1e-12)
}

func TestMACD_Uptrend(t *testing.T) {
	m, ok := MACD(ramp(60, 100, 1), 12, 26, 9)
	if !ok {
		t.Fatal("expected MACD ready")
	}
	if m.MACD <= 0 {
		t.Errorf("expected positive MACD in uptrend, got %f", m.MACD)
	}
	assertClose(t, "MACD histogram identity", m.Histogram, m.MACD-m.Signal, 1e-12)
}

func TestMACD_InsufficientData(t *testing.T) {
	if _, ok := MACD(ramp(34, 1, 1), 12, 26, 9); ok {
		t.Error("expected not ready with fewer than slow+signal closes")
	}
}

// ────────────────────────────────────────────────────────────
// RSI / Momentum
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period2(t *testing.T) {
	// closes 1, 2, 1 → gains 0,1,0 losses 0,0,1
	// Wilder alpha 0.5: avgGain 0,0.5,0.25 avgLoss 0,0,0.5
	// RS = 0.5 → RSI = 100 − 100/1.5 = 33.3333
	got, ok := RSI([]float64{1, 2, 1}, 2)
	if !ok {
		t.Fatal("expected RSI ready")
	}
	assertClose(t, "RSI(2)", got, 100.0/3.0, 1e-9)
}

func TestRSI_Extremes(t *testing.T) {
	up, ok := RSI(ramp(20, 10, 1), 14)
	if !ok {
		t.Fatal("expected RSI ready")
	}
	assertClose(t, "RSI all gains", up, 100, 1e-9)

	down, _ := RSI(ramp(20, 30, -1), 14)
	assertClose(t, "RSI all losses", down, 0, 1e-9)

	if _, ok := RSI(ramp(14, 10, 1), 14); ok {
		t.Error("expected not ready with exactly period closes")
	}
}

func TestMomentum(t *testing.T) {
	got, ok := Momentum(ramp(11, 1, 1), 10)
	if !ok {
		t.Fatal("expected momentum ready with period+1 closes")
	}
	assertClose(t, "Momentum", got, 10, 1e-12)

	if _, ok := Momentum(ramp(10, 1, 1), 10); ok {
		t.Error("expected not ready with period closes")
	}
}

// ────────────────────────────────────────────────────────────
// ATR / Supertrend
// ────────────────────────────────────────────────────────────

func TestATR_Correctness(t *testing.T) {
	// TR0 = 10−8 = 2; TR1 = max(12−9, |12−9|, |9−9|) = 3
	// Wilder(2): 2 → 0.5*3 + 0.5*2 = 2.5
	got, ok := ATR([]float64{10, 12}, []float64{8, 9}, []float64{9, 11}, 2)
	if !ok {
		t.Fatal("expected ATR ready")
	}
	assertClose(t, "ATR(2)", got, 2.5, 1e-12)

	if _, ok := ATR([]float64{10}, []float64{8}, []float64{9}, 2); ok {
		t.Error("expected not ready with fewer than period bars")
	}
}

func TestSupertrend_FlipsUpInUptrend(t *testing.T) {
	mid := ramp(30, 0, 1)
	high, low, close := offset(mid, 1), offset(mid, -1), offset(mid, 0.5)

	st, ok := Supertrend(high, low, close, 10, 3)
	if !ok {
		t.Fatal("expected Supertrend ready")
	}
	if st.Direction != 1 {
		t.Fatalf("expected uptrend, got direction %d", st.Direction)
	}
	// ATR settles at 2, so the lower band trails the midpoint by 6.
	assertClose(t, "Supertrend band", st.Value, 23, 1e-9)
}

func TestSupertrend_Downtrend(t *testing.T) {
	mid := ramp(30, 100, -1)
	st, ok := Supertrend(offset(mid, 1), offset(mid, -1), offset(mid, -0.5), 10, 3)
	if !ok {
		t.Fatal("expected Supertrend ready")
	}
	if st.Direction != -1 {
		t.Errorf("expected downtrend, got direction %d", st.Direction)
	}
	if st.Value <= mid[len(mid)-1] {
		t.Errorf("expected band above price, got %f", st.Value)
	}
}

// ────────────────────────────────────────────────────────────
// KDJ / SAR / Fractals
// ────────────────────────────────────────────────────────────

func TestKDJ_FlatRange(t *testing.T) {
	flat := make([]float64, 12)
	for i := range flat {
		flat[i] = 50
	}
	k, ok := KDJ(flat, flat, flat, 9, 3, 3)
	if !ok {
		t.Fatal("expected KDJ ready")
	}
	assertClose(t, "K", k.K, 50, 1e-9)
	assertClose(t, "D", k.D, 50, 1e-9)
	assertClose(t, "J", k.J, 50, 1e-9)
}

func TestKDJ_Uptrend(t *testing.T) {
	mid := ramp(30, 100, 1)
	k, ok := KDJ(offset(mid, 1), offset(mid, -1), offset(mid, 1), 9, 3, 3)
	if !ok {
		t.Fatal("expected KDJ ready")
	}
	if k.K <= k.D {
		t.Errorf("expected K > D in uptrend, got K=%f D=%f", k.K, k.D)
	}
	if k.K > 100 || k.D > 100 || k.K < 0 || k.D < 0 {
		t.Errorf("K/D must stay within [0,100], got K=%f D=%f", k.K, k.D)
	}

	if _, ok := KDJ(mid[:8], mid[:8], mid[:8], 9, 3, 3); ok {
		t.Error("expected not ready with fewer than n bars")
	}
}

func TestParabolicSAR_Trends(t *testing.T) {
	up := ramp(20, 100, 1)
	sar, ok := ParabolicSAR(offset(up, 1), offset(up, -1), 0.02, 0.2, 0.02)
	if !ok {
		t.Fatal("expected SAR ready")
	}
	if sar.Direction != 1 || sar.Value >= up[len(up)-1]-1 {
		t.Errorf("expected SAR below price in uptrend, got %+v", sar)
	}

	down := ramp(20, 100, -1)
	sar, _ = ParabolicSAR(offset(down, 1), offset(down, -1), 0.02, 0.2, 0.02)
	if sar.Direction != -1 || sar.Value <= down[len(down)-1]+1 {
		t.Errorf("expected SAR above price in downtrend, got %+v", sar)
	}

	if _, ok := ParabolicSAR([]float64{1}, []float64{1}, 0.02, 0.2, 0.02); ok {
		t.Error("expected not ready with a single bar")
	}
}

func TestFractals_Specific(t *testing.T) {
	high := []float64{10, 11, 15, 12, 11, 13, 14, 16, 13, 12}
	low := []float64{15, 12, 10, 11, 14, 9, 12, 10, 13, 15}

	f, ok := Fractals(high, low, 5)
	if !ok {
		t.Fatal("expected fractals computed")
	}
	if !f.HasBearish || f.LastBearish != 16 {
		t.Errorf("expected last bearish fractal 16, got %+v", f)
	}
	if !f.HasBullish || f.LastBullish != 9 {
		t.Errorf("expected last bullish fractal 9, got %+v", f)
	}
}

// ────────────────────────────────────────────────────────────
// Pivots / Fibonacci / Liquidity
// ────────────────────────────────────────────────────────────

func bar(ts time.Time, h, l, c, v float64) model.AggregatedBar {
	return model.AggregatedBar{BucketStart: ts, Open: c, High: h, Low: l, Close: c, Volume: v}
}

func TestStandardPivots(t *testing.T) {
	p := StandardPivots(118, 88, 110)
	assertClose(t, "P", p.P, 105.3333, 1e-3)
	assertClose(t, "R1", p.R1, 122.6667, 1e-3)
	assertClose(t, "S1", p.S1, 92.6667, 1e-3)
	assertClose(t, "R2", p.R2, 135.3333, 1e-3)
	assertClose(t, "S2", p.S2, 75.3333, 1e-3)
	assertClose(t, "R3", p.R3, 152.6667, 1e-3)
	assertClose(t, "S3", p.S3, 62.6667, 1e-3)
}

func TestDailyPivots_PreviousDay(t *testing.T) {
	d := func(day, h, m int) time.Time { return time.Date(2023, 1, day, h, m, 0, 0, time.UTC) }
	bars := []model.AggregatedBar{
		bar(d(1, 1, 0), 110, 90, 105, 10),
		bar(d(1, 12, 0), 118, 102, 115, 12),
		bar(d(1, 23, 59), 117, 88, 110, 15),
		bar(d(2, 0, 30), 112, 108, 111, 8),
		bar(d(2, 1, 0), 120, 109, 118, 15),
	}
	p, ok := DailyPivots(bars)
	if !ok {
		t.Fatal("expected pivots")
	}
	assertClose(t, "P", p.P, 105.3333, 1e-3)
	assertClose(t, "R1", p.R1, 122.6667, 1e-3)
	assertClose(t, "S1", p.S1, 92.6667, 1e-3)
}

func TestDailyPivots_FallbackWindow(t *testing.T) {
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []model.AggregatedBar{
		bar(base, 110, 90, 100, 1),
		bar(base.Add(time.Hour), 120, 95, 105, 1),
		bar(base.Add(2*time.Hour), 500, 1, 300, 1), // current bar excluded
	}
	p, ok := DailyPivots(bars)
	if !ok {
		t.Fatal("expected fallback pivots")
	}
	want := StandardPivots(120, 90, 105)
	if p != want {
		t.Errorf("expected %+v, got %+v", want, p)
	}

	if _, ok := DailyPivots(bars[:1]); ok {
		t.Error("expected no pivots from a single bar")
	}
}

func TestFibonacciRetracement(t *testing.T) {
	low := []float64{105, 104, 103, 102, 100, 102, 104, 106, 108, 110, 112, 114, 116, 115, 114, 113, 112}
	high := offset(low, 2)

	f, ok := FibonacciRetracement(high, low, 3, 15)
	if !ok {
		t.Fatal("expected a swing pair")
	}
	if f.SwingA != 100 || f.SwingB != 118 {
		t.Fatalf("expected swing 100 → 118, got %v → %v", f.SwingA, f.SwingB)
	}
	if !f.Uptrend() {
		t.Error("expected uptrend swing")
	}
	if len(f.Levels) != len(FibRatios) {
		t.Fatalf("expected %d levels, got %d", len(FibRatios), len(f.Levels))
	}
	assertClose(t, "fib 0", f.Levels[0].Price, 100, 1e-9)
	assertClose(t, "fib 0.5", f.Levels[3].Price, 109, 1e-9)
	assertClose(t, "fib 0.618", f.Levels[4].Price, 111.124, 1e-9)
	assertClose(t, "fib 1", f.Levels[6].Price, 118, 1e-9)

	if _, ok := FibonacciRetracement(high[:10], low[:10], 3, 15); ok {
		t.Error("expected not ready below minBars")
	}
}

func TestSignificantLevels(t *testing.T) {
	levels := []model.BookLevel{{Price: 1, Qty: 5}, {Price: 2, Qty: 20}, {Price: 3, Qty: 12}, {Price: 4, Qty: 20}}
	got := SignificantLevels(levels, 10)
	want := []float64{2, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d levels, got %d", len(want), len(got))
	}
	for i, p := range want {
		if got[i].Price != p {
			t.Errorf("at %d: expected price %v, got %v", i, p, got[i].Price)
		}
	}
}

func TestBookZones_TopN(t *testing.T) {
	book := &model.OrderBook{
		Bids: []model.BookLevel{{Price: 99, Qty: 11}, {Price: 98, Qty: 30}, {Price: 97, Qty: 15}},
		Asks: []model.BookLevel{{Price: 101, Qty: 1}, {Price: 102, Qty: 50}},
	}
	zones := BookZones(book, 10, 2)
	if len(zones) != 3 {
		t.Fatalf("expected 2 bids + 1 ask, got %d", len(zones))
	}
	if zones[0].Price != 98 || zones[0].Side != "bid" {
		t.Errorf("expected heaviest bid first, got %+v", zones[0])
	}
	if zones[2].Price != 102 || zones[2].Side != "ask" {
		t.Errorf("expected ask zone last, got %+v", zones[2])
	}
	if BookZones(nil, 10, 2) != nil {
		t.Error("expected nil zones for nil book")
	}
}

func TestVolumeProfile(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	bars := []model.AggregatedBar{
		bar(ts, 101, 99, 100, 10),
		bar(ts, 101, 99, 100, 30),
		bar(ts, 111, 109, 110, 5),
	}
	zones := VolumeProfile(bars, 2, 1)
	if len(zones) != 1 {
		t.Fatalf("expected 1 zone, got %d", len(zones))
	}
	if zones[0].Volume != 40 {
		t.Errorf("expected heaviest bin volume 40, got %v", zones[0].Volume)
	}
	assertClose(t, "profile bin mid", zones[0].Price, 102, 1e-9)
}

func TestAverageVolume(t *testing.T) {
	got, ok := AverageVolume([]float64{1, 2, 3, 100}, 3)
	if !ok {
		t.Fatal("expected average")
	}
	assertClose(t, "avg excludes current", got, 2, 1e-12)

	if _, ok := AverageVolume([]float64{1, 2, 3}, 3); ok {
		t.Error("expected not ready with period values")
	}
}

func TestParams_Lookback(t *testing.T) {
	if got := DefaultParams().Lookback(); got != 35 {
		t.Errorf("expected default lookback 35 (MACD 26+9), got %d", got)
	}
}
