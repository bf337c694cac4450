package strategy

import (
	"errors"
	"testing"

	"signalengine/internal/model"
)

var labelsByCategory = map[model.Category][]model.Label{
	model.CatTrend: {model.StrongBullishTrend, model.BullishTrendST, model.BullishTrendSAR, model.NeutralTrend,
		model.BearishTrendST, model.BearishTrendSAR, model.StrongBearishTrend},
	model.CatMACD: {model.StrongBullish, model.Bullish, model.WeakBullish, model.Neutral,
		model.WeakBearish, model.Bearish, model.StrongBearish},
	model.CatRSI:     {model.Overbought, model.Bullish, model.Neutral, model.Bearish, model.Oversold},
	model.CatKDJ:     {model.Overbought, model.Bullish, model.Neutral, model.Bearish, model.Oversold},
	model.CatFractal: {model.BrokeResistance, model.Neutral, model.BrokeSupport},
	model.CatSR: {model.BounceSupport, model.RejectionResistance, model.BreakoutResistance,
		model.BreakdownSupport, model.Neutral},
	model.CatVolume: {model.HighVolume, model.AverageVolume, model.LowVolume, model.Neutral},
}

// eachState calls fn for every combination of category labels.
func eachState(fn func(model.AssessedState)) {
	state := model.AssessedState{}
	var walk func(i int)
	walk = func(i int) {
		if i == len(model.Categories) {
			fn(state)
			return
		}
		c := model.Categories[i]
		for _, l := range labelsByCategory[c] {
			state[c] = l
			walk(i + 1)
		}
	}
	walk(0)
}

func bullishState() model.AssessedState {
	return model.AssessedState{
		model.CatTrend:   model.StrongBullishTrend,
		model.CatMACD:    model.StrongBullish,
		model.CatRSI:     model.Bullish,
		model.CatKDJ:     model.Bullish,
		model.CatFractal: model.Neutral,
		model.CatSR:      model.BounceSupport,
		model.CatVolume:  model.HighVolume,
	}
}

func TestScore_Bounds(t *testing.T) {
	w := DefaultWeights()
	n := 0
	eachState(func(s model.AssessedState) {
		n++
		long, short := Score(s, model.Long, w), Score(s, model.Short, w)
		if long < 0 || long > 100 || short < 0 || short > 100 {
			t.Fatalf("out of bounds: long=%v short=%v for %v", long, short, s)
		}
	})
	if n != 7*7*5*5*3*5*4 {
		t.Errorf("expected every combination visited, got %d", n)
	}
}

func TestScore_Values(t *testing.T) {
	w := DefaultWeights()
	if w.Total() != 11 {
		t.Fatalf("expected default total 11, got %v", w.Total())
	}

	s := bullishState()
	s[model.CatFractal] = model.BrokeResistance
	if got := Score(s, model.Long, w); got != 100 {
		t.Errorf("expected 100%% long, got %v", got)
	}
	if got := Score(s, model.Short, w); got != 0 {
		t.Errorf("expected 0%% short, got %v", got)
	}

	// volume does not count without a constructive trend
	s[model.CatTrend] = model.NeutralTrend
	assertClose(t, "long without trend", Score(s, model.Long, w), 100*7.0/11, 1e-9)

	if got := Score(model.NotReadyState(), model.Long, w); got != 0 {
		t.Errorf("expected 0 for not-ready state, got %v", got)
	}
}

func TestQualifies(t *testing.T) {
	tests := []struct {
		name   string
		modify func(model.AssessedState)
		want   bool
	}{
		{"full confluence", func(model.AssessedState) {}, true},
		{"average volume", func(s model.AssessedState) { s[model.CatVolume] = model.AverageVolume }, true},
		{"low volume", func(s model.AssessedState) { s[model.CatVolume] = model.LowVolume }, false},
		{"rsi overbought", func(s model.AssessedState) { s[model.CatRSI] = model.Overbought }, false},
		{"kdj oversold", func(s model.AssessedState) { s[model.CatKDJ] = model.Oversold }, true},
		{"weak macd", func(s model.AssessedState) { s[model.CatMACD] = model.WeakBullish }, false},
		{"neutral trend", func(s model.AssessedState) { s[model.CatTrend] = model.NeutralTrend }, false},
		{"breakout", func(s model.AssessedState) { s[model.CatSR] = model.BreakoutResistance }, true},
		{"fractal branch", func(s model.AssessedState) {
			s[model.CatSR] = model.Neutral
			s[model.CatFractal] = model.BrokeResistance
		}, true},
		{"sr neutral no fractal", func(s model.AssessedState) { s[model.CatSR] = model.Neutral }, false},
		{"fractal with rejection", func(s model.AssessedState) {
			s[model.CatSR] = model.RejectionResistance
			s[model.CatFractal] = model.BrokeResistance
		}, false},
	}
	for _, tt := range tests {
		s := bullishState()
		tt.modify(s)
		if got := Qualifies(s, model.Long); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
		if Qualifies(s, model.Short) {
			t.Errorf("%s: bullish state must not qualify short", tt.name)
		}
	}
}

func TestQualifies_ShortMirror(t *testing.T) {
	s := model.AssessedState{
		model.CatTrend:   model.BearishTrendSAR,
		model.CatMACD:    model.Bearish,
		model.CatRSI:     model.Bearish,
		model.CatKDJ:     model.Overbought,
		model.CatFractal: model.BrokeSupport,
		model.CatSR:      model.Neutral,
		model.CatVolume:  model.AverageVolume,
	}
	if !Qualifies(s, model.Short) {
		t.Error("expected bearish confluence to qualify short")
	}
}

func tradeSnap() model.IndicatorSnapshot {
	return model.IndicatorSnapshot{Ready: true, Close: 100, High: 100.5, Low: 99.5, ATR: 0.5, HasATR: true}
}

func TestConsolidator_LongSignal(t *testing.T) {
	c := NewConsolidator(DefaultWeights(), NewRiskGate(DefaultRiskParams()))
	sig, info := c.Evaluate("BTCUSDT", tradeSnap(), bullishState())
	if info != nil {
		t.Fatalf("expected a trade, got consolidation %+v", info)
	}
	if sig.Direction != model.Long {
		t.Errorf("expected LONG, got %s", sig.Direction)
	}
	if !(sig.TakeProfit > sig.Entry && sig.Entry > sig.StopLoss) {
		t.Errorf("expected tp > entry > sl, got %v/%v/%v", sig.TakeProfit, sig.Entry, sig.StopLoss)
	}
	if sig.RewardRisk < DefaultRiskParams().MinRewardRisk {
		t.Errorf("expected rr >= minimum, got %v", sig.RewardRisk)
	}
	if sig.ID == "" || sig.Symbol != "BTCUSDT" {
		t.Errorf("expected id and symbol, got %q %q", sig.ID, sig.Symbol)
	}
	if sig.States[model.CatSR] != model.BounceSupport {
		t.Errorf("expected states attached, got %v", sig.States)
	}
}

func TestConsolidator_LowVolumeConsolidates(t *testing.T) {
	c := NewConsolidator(DefaultWeights(), NewRiskGate(DefaultRiskParams()))
	s := bullishState()
	s[model.CatVolume] = model.LowVolume

	sig, info := c.Evaluate("BTCUSDT", tradeSnap(), s)
	if sig != nil {
		t.Fatalf("expected no trade, got %+v", sig)
	}
	if !info.Ready {
		t.Error("expected ready consolidation")
	}
	assertClose(t, "long", info.LongPercent, 100*8.0/11, 1e-9)
	if info.ShortPercent != 0 {
		t.Errorf("expected 0%% short, got %v", info.ShortPercent)
	}
}

func TestConsolidator_NotReady(t *testing.T) {
	c := NewConsolidator(DefaultWeights(), NewRiskGate(DefaultRiskParams()))
	sig, info := c.Evaluate("BTCUSDT", model.IndicatorSnapshot{Bars: 3}, model.NotReadyState())
	if sig != nil {
		t.Fatal("expected no trade while warming up")
	}
	if info.Ready || info.LongPercent != 0 || info.ShortPercent != 0 {
		t.Errorf("expected not-ready 0/0, got %+v", info)
	}
}

func TestConsolidator_RejectionFallsThrough(t *testing.T) {
	c := NewConsolidator(DefaultWeights(), NewRiskGate(DefaultRiskParams()))
	var rejected error
	c.OnRejected = func(_ string, dir model.Direction, err error) {
		if dir != model.Long {
			t.Errorf("expected LONG rejection, got %s", dir)
		}
		rejected = err
	}
	// without ATR the 1%/1% fallback exits give rr 1, under the 1.2 minimum
	snap := model.IndicatorSnapshot{Ready: true, Close: 100, High: 100.5, Low: 99.5}

	sig, info := c.Evaluate("BTCUSDT", snap, bullishState())
	if sig != nil {
		t.Fatalf("expected rejection, got %+v", sig)
	}
	if !errors.Is(rejected, ErrRewardRisk) {
		t.Errorf("expected ErrRewardRisk, got %v", rejected)
	}
	if info == nil {
		t.Fatal("expected consolidation after rejection")
	}
	// fractal is neutral: 10 of 11 points
	assertClose(t, "long", info.LongPercent, 100*10.0/11, 1e-9)
}

type fixedLabeler struct{ state model.AssessedState }

func (f fixedLabeler) Assess(model.IndicatorSnapshot) model.AssessedState { return f.state.Clone() }

func TestEngine_Evaluate(t *testing.T) {
	c := NewConsolidator(DefaultWeights(), NewRiskGate(DefaultRiskParams()))
	e := NewEngine("ETHUSDT", 3600, fixedLabeler{bullishState()}, c)

	ev := e.Evaluate(tradeSnap())
	if !ev.HasSignal() || ev.Consolidation != nil {
		t.Fatalf("expected signal only, got %+v", ev)
	}
	if ev.Symbol != "ETHUSDT" || ev.TF != 3600 || ev.Close != 100 {
		t.Errorf("unexpected evaluation header %+v", ev)
	}

	ev = e.Evaluate(model.IndicatorSnapshot{Bars: 5})
	if ev.HasSignal() || ev.Consolidation == nil || ev.Consolidation.Ready {
		t.Errorf("expected not-ready consolidation, got %+v", ev)
	}
}
