package strategy

import (
	"log/slog"

	"github.com/google/uuid"

	"signalengine/internal/model"
)

// Weights are the points each category contributes toward a direction.
type Weights struct {
	Trend   float64
	MACD    float64
	RSI     float64
	KDJ     float64
	SR      float64
	Fractal float64
	Volume  float64
}

// DefaultWeights returns the standard weighting, 11 points per direction.
func DefaultWeights() Weights {
	return Weights{Trend: 2, MACD: 2, RSI: 1, KDJ: 1, SR: 2, Fractal: 1, Volume: 2}
}

// Total returns the maximum attainable points for one direction.
func (w Weights) Total() float64 {
	return w.Trend + w.MACD + w.RSI + w.KDJ + w.SR + w.Fractal + w.Volume
}

func (w Weights) of(c model.Category) float64 {
	switch c {
	case model.CatTrend:
		return w.Trend
	case model.CatMACD:
		return w.MACD
	case model.CatRSI:
		return w.RSI
	case model.CatKDJ:
		return w.KDJ
	case model.CatSR:
		return w.SR
	case model.CatFractal:
		return w.Fractal
	case model.CatVolume:
		return w.Volume
	}
	return 0
}

type labelSet map[model.Label]bool

func setOf(ls ...model.Label) labelSet {
	s := make(labelSet, len(ls))
	for _, l := range ls {
		s[l] = true
	}
	return s
}

// constructive lists, per direction and category, the labels that count
// toward that direction.
var constructive = map[model.Direction]map[model.Category]labelSet{
	model.Long: {
		model.CatTrend:   setOf(model.StrongBullishTrend, model.BullishTrendST, model.BullishTrendSAR),
		model.CatMACD:    setOf(model.StrongBullish, model.Bullish),
		model.CatRSI:     setOf(model.Bullish, model.Oversold),
		model.CatKDJ:     setOf(model.Bullish, model.Oversold),
		model.CatSR:      setOf(model.BounceSupport, model.BreakoutResistance),
		model.CatFractal: setOf(model.BrokeResistance),
		model.CatVolume:  setOf(model.HighVolume, model.AverageVolume),
	},
	model.Short: {
		model.CatTrend:   setOf(model.StrongBearishTrend, model.BearishTrendST, model.BearishTrendSAR),
		model.CatMACD:    setOf(model.StrongBearish, model.Bearish),
		model.CatRSI:     setOf(model.Bearish, model.Overbought),
		model.CatKDJ:     setOf(model.Bearish, model.Overbought),
		model.CatSR:      setOf(model.RejectionResistance, model.BreakdownSupport),
		model.CatFractal: setOf(model.BrokeSupport),
		model.CatVolume:  setOf(model.HighVolume, model.AverageVolume),
	},
}

// Score returns the percentage of weighted categories constructive for dir.
// Volume only counts when the trend is constructive for the same direction.
func Score(state model.AssessedState, dir model.Direction, w Weights) float64 {
	total := w.Total()
	if total <= 0 || !state.Ready() {
		return 0
	}
	sets := constructive[dir]
	trendOK := sets[model.CatTrend][state[model.CatTrend]]

	var awarded float64
	for _, c := range model.Categories {
		if !sets[c][state[c]] {
			continue
		}
		if c == model.CatVolume && !trendOK {
			continue
		}
		if pts := w.of(c); pts > 0 {
			awarded += pts
		}
	}
	pct := 100 * awarded / total
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Qualifies reports whether state meets every trade condition for dir.
func Qualifies(state model.AssessedState, dir model.Direction) bool {
	if !state.Ready() {
		return false
	}
	sets := constructive[dir]
	rsiBias := model.Bullish
	if dir == model.Short {
		rsiBias = model.Bearish
	}

	if !sets[model.CatTrend][state[model.CatTrend]] ||
		!sets[model.CatMACD][state[model.CatMACD]] ||
		state[model.CatRSI] != rsiBias ||
		!sets[model.CatKDJ][state[model.CatKDJ]] {
		return false
	}
	if !sets[model.CatVolume][state[model.CatVolume]] {
		return false
	}
	if sets[model.CatSR][state[model.CatSR]] {
		return true
	}
	return state[model.CatSR] == model.Neutral && sets[model.CatFractal][state[model.CatFractal]]
}

// Consolidator turns an assessed state into a trade or a confluence reading.
type Consolidator struct {
	weights Weights
	gate    *RiskGate

	// OnRejected is called when a qualifying direction fails the RiskGate.
	OnRejected func(symbol string, dir model.Direction, err error)
}

// NewConsolidator creates a consolidator using gate for exit pricing.
func NewConsolidator(w Weights, gate *RiskGate) *Consolidator {
	return &Consolidator{weights: w, gate: gate}
}

// Weights returns the configured category weights.
func (c *Consolidator) Weights() Weights { return c.weights }

// Evaluate returns a TradeSignal when a direction qualifies and the RiskGate
// approves it. Otherwise it returns the long/short consolidation percentages.
// A not-ready state yields a not-ready 0%/0% reading.
func (c *Consolidator) Evaluate(symbol string, snap model.IndicatorSnapshot, state model.AssessedState) (*model.TradeSignal, *model.ConsolidationInfo) {
	if !snap.Ready || !state.Ready() {
		return nil, &model.ConsolidationInfo{Ready: false, States: state.Clone()}
	}

	for _, dir := range []model.Direction{model.Long, model.Short} {
		if !Qualifies(state, dir) {
			continue
		}
		lv, err := c.gate.Propose(dir, snap.Close, snap)
		if err != nil {
			slog.Debug("strategy: trade rejected by risk gate",
				"symbol", symbol, "direction", dir, "entry", snap.Close, "err", err)
			if c.OnRejected != nil {
				c.OnRejected(symbol, dir, err)
			}
			continue
		}
		return &model.TradeSignal{
			ID:         uuid.NewString(),
			Symbol:     symbol,
			Direction:  dir,
			Entry:      lv.Entry,
			TakeProfit: lv.TakeProfit,
			StopLoss:   lv.StopLoss,
			RewardRisk: lv.RewardRisk,
			States:     state.Clone(),
			TS:         snap.TS,
		}, nil
	}

	return nil, &model.ConsolidationInfo{
		LongPercent:  Score(state, model.Long, c.weights),
		ShortPercent: Score(state, model.Short, c.weights),
		Ready:        true,
		States:       state.Clone(),
	}
}
