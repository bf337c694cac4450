// Package pipeline is the signal engine core for one (symbol, timeframe).
//
// Raw bars and order-book snapshots enter through OnRawBar and OnOrderBook.
// Completed buckets are evaluated synchronously (snapshot, assessment,
// consolidation) and the results are pushed to registered sinks. Mutable
// state sits behind a single mutex; the latest order book is an atomic
// pointer so book updates never wait on evaluation.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"signalengine/internal/indicator"
	"signalengine/internal/logger"
	"signalengine/internal/marketdata/tfbuilder"
	"signalengine/internal/metrics"
	"signalengine/internal/model"
)

// Evaluator turns a completed-bar snapshot into an evaluation.
type Evaluator interface {
	Evaluate(snap model.IndicatorSnapshot) *model.Evaluation
}

// Config holds the per-pipeline settings.
type Config struct {
	Symbol      string
	TF          int64 // seconds
	Capacity    int   // rolling history length
	ChartBars   int   // bars per chart update
	LivePreview bool  // preview indicators on the forming bar

	LiquidityMinQty float64
	LiquidityTopN   int
}

// Stats are counters for health and diagnostics.
type Stats struct {
	RawBars     uint64 `json:"raw_bars"`
	Malformed   uint64 `json:"malformed"`
	Late        uint64 `json:"late"`
	Completed   uint64 `json:"completed"`
	Evaluations uint64 `json:"evaluations"`
	Signals     uint64 `json:"signals"`
	OrderBooks  uint64 `json:"order_books"`
	HistoryLen  int    `json:"history_len"`
	Backfilling bool   `json:"backfilling"`
}

// Pipeline is the mutex-guarded aggregator plus evaluation for one symbol.
type Pipeline struct {
	cfg   Config
	snaps *indicator.SnapshotBuilder
	eval  Evaluator
	prom  *metrics.Metrics

	mu         sync.Mutex
	builder    *tfbuilder.Builder
	latest     *model.Evaluation
	latestSnap model.IndicatorSnapshot
	stats      Stats

	book  atomic.Pointer[model.OrderBook]
	quiet atomic.Bool
	obs   atomic.Uint64

	sinksMu sync.RWMutex
	sinks   []model.Sink
}

// New creates a pipeline. prom may be nil.
func New(cfg Config, snaps *indicator.SnapshotBuilder, eval Evaluator, prom *metrics.Metrics) *Pipeline {
	if cfg.ChartBars <= 0 {
		cfg.ChartBars = cfg.Capacity
	}
	p := &Pipeline{
		cfg:     cfg,
		snaps:   snaps,
		eval:    eval,
		prom:    prom,
		builder: tfbuilder.New(cfg.Symbol, cfg.TF, cfg.Capacity),
	}
	p.builder.OnLateBar = func(model.RawBar) {
		p.stats.Late++
		if p.prom != nil {
			p.prom.LateBars.Inc()
		}
	}
	p.builder.OnMalformedBar = func(model.RawBar, error) {
		p.stats.Malformed++
		if p.prom != nil {
			p.prom.MalformedBars.Inc()
		}
	}
	return p
}

// AddSink registers a sink. Sinks are called in registration order.
func (p *Pipeline) AddSink(s model.Sink) {
	p.sinksMu.Lock()
	p.sinks = append(p.sinks, s)
	p.sinksMu.Unlock()
}

// OnRawBar feeds one base-interval bar. Both the live and the backfill path
// use it.
func (p *Pipeline) OnRawBar(r model.RawBar) {
	quiet := p.quiet.Load()

	p.mu.Lock()
	p.stats.RawBars++
	if p.prom != nil {
		p.prom.RawBarsTotal.Inc()
	}
	done, completed := p.builder.Ingest(r)

	var out []model.Update
	now := time.Now().UTC()
	if completed {
		out = p.onCompleted(done, quiet)
	} else if p.cfg.LivePreview && !quiet {
		if prov, ok := p.builder.Provisional(); ok {
			snap := p.snaps.Preview(p.builder.History(), prov, p.book.Load())
			out = append(out, model.Update{Kind: model.UpdateIndicators, Symbol: p.cfg.Symbol, TS: now, Indicators: &snap})
		}
	}
	if !quiet {
		if c, ok := p.builder.LastClose(); ok {
			out = append(out, model.Update{Kind: model.UpdatePrice, Symbol: p.cfg.Symbol, TS: now, Price: formatPrice(c)})
		}
		out = append(out, model.Update{Kind: model.UpdateChart, Symbol: p.cfg.Symbol, TS: now,
			Chart: p.builder.ChartSeries(p.cfg.ChartBars)})
	}
	p.mu.Unlock()

	p.emit(out)
}

// onCompleted evaluates a finished bucket. Caller holds p.mu.
func (p *Pipeline) onCompleted(bar model.AggregatedBar, quiet bool) []model.Update {
	start := time.Now()
	p.stats.Completed++

	ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(p.cfg.Symbol, bar.BucketStart))

	snap := p.snaps.Build(p.builder.History(), p.book.Load())
	ev := p.eval.Evaluate(snap)
	ev.TraceID = logger.TraceID(ctx)
	p.stats.Evaluations++
	p.latest = ev
	p.latestSnap = snap

	if ev.HasSignal() {
		p.stats.Signals++
		sig := ev.Signal
		logger.FromContext(ctx).Info("pipeline: trade signal",
			"symbol", sig.Symbol,
			"direction", sig.Direction,
			"entry", sig.Entry,
			"take_profit", sig.TakeProfit,
			"stop_loss", sig.StopLoss,
			"reward_risk", sig.RewardRisk)
	}

	if p.prom != nil {
		tf := strconv.FormatInt(p.cfg.TF, 10)
		p.prom.CompletedBars.WithLabelValues(tf).Inc()
		p.prom.EvaluationDur.Observe(time.Since(start).Seconds())
		bucketEnd := bar.BucketStart.Add(time.Duration(p.cfg.TF) * time.Second)
		p.prom.BarLag.Set(time.Since(bucketEnd).Seconds())
		if !snap.Ready {
			p.prom.NotReadyEvals.Inc()
		}
		if ev.HasSignal() {
			p.prom.TradeSignals.WithLabelValues(string(ev.Signal.Direction)).Inc()
		}
	}

	if quiet {
		return nil
	}
	now := time.Now().UTC()
	return []model.Update{
		{Kind: model.UpdateIndicators, Symbol: p.cfg.Symbol, TS: now, Indicators: &snap},
		{Kind: model.UpdateEvaluation, Symbol: p.cfg.Symbol, TS: now, Evaluation: ev, Bar: &bar},
	}
}

// OnOrderBook stores the latest order-book snapshot and pushes a liquidity
// summary. It does not take the pipeline lock.
func (p *Pipeline) OnOrderBook(ob *model.OrderBook) {
	if ob == nil {
		return
	}
	p.book.Store(ob)
	p.obs.Add(1)
	if p.prom != nil {
		p.prom.OrderBookTotal.Inc()
	}
	if p.quiet.Load() {
		return
	}
	sum := p.summarize(ob)
	p.emit([]model.Update{{Kind: model.UpdateLiquidity, Symbol: p.cfg.Symbol, TS: sum.TS, Liquidity: sum}})
}

func (p *Pipeline) summarize(ob *model.OrderBook) *model.LiquiditySummary {
	sum := &model.LiquiditySummary{
		Symbol:          p.cfg.Symbol,
		SignificantBids: top(indicator.SignificantLevels(ob.Bids, p.cfg.LiquidityMinQty), p.cfg.LiquidityTopN),
		SignificantAsks: top(indicator.SignificantLevels(ob.Asks, p.cfg.LiquidityMinQty), p.cfg.LiquidityTopN),
		TS:              ob.Received,
	}
	if sum.TS.IsZero() {
		sum.TS = time.Now().UTC()
	}
	bid, okB := ob.BestBid()
	ask, okA := ob.BestAsk()
	if okB {
		sum.BestBid = bid.Price
	}
	if okA {
		sum.BestAsk = ask.Price
	}
	if okB && okA {
		sum.Spread = ask.Price - bid.Price
	}
	return sum
}

// BeginBackfill enters quiet mode: state and evaluations still update but
// no sink is notified.
func (p *Pipeline) BeginBackfill() {
	p.quiet.Store(true)
	slog.Info("pipeline: backfill started", "symbol", p.cfg.Symbol)
}

// EndBackfill leaves quiet mode and emits one Final update of each kind that
// has data.
func (p *Pipeline) EndBackfill() {
	p.quiet.Store(false)
	now := time.Now().UTC()

	p.mu.Lock()
	var out []model.Update
	if c, ok := p.builder.LastClose(); ok {
		out = append(out, model.Update{Kind: model.UpdatePrice, Symbol: p.cfg.Symbol, TS: now, Final: true, Price: formatPrice(c)})
	}
	if p.latest != nil {
		snap := p.latestSnap
		out = append(out,
			model.Update{Kind: model.UpdateIndicators, Symbol: p.cfg.Symbol, TS: now, Final: true, Indicators: &snap},
			model.Update{Kind: model.UpdateEvaluation, Symbol: p.cfg.Symbol, TS: now, Final: true, Evaluation: p.latest})
	}
	out = append(out, model.Update{Kind: model.UpdateChart, Symbol: p.cfg.Symbol, TS: now, Final: true,
		Chart: p.builder.ChartSeries(p.cfg.ChartBars)})
	hist := p.builder.HistoryLen()
	p.mu.Unlock()

	if ob := p.book.Load(); ob != nil {
		out = append(out, model.Update{Kind: model.UpdateLiquidity, Symbol: p.cfg.Symbol, TS: now, Final: true, Liquidity: p.summarize(ob)})
	}

	slog.Info("pipeline: backfill complete", "symbol", p.cfg.Symbol, "history", hist, "min_bars", p.snaps.MinBars())
	p.emit(out)
}

// Backfilling reports whether quiet mode is on.
func (p *Pipeline) Backfilling() bool { return p.quiet.Load() }

// ChartSeries returns up to maxBars recent bars including the forming one.
func (p *Pipeline) ChartSeries(maxBars int) []model.AggregatedBar {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder.ChartSeries(maxBars)
}

// History returns a copy of the completed bars, oldest first.
func (p *Pipeline) History() []model.AggregatedBar {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder.History()
}

// Provisional returns the forming bar.
func (p *Pipeline) Provisional() (model.AggregatedBar, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builder.Provisional()
}

// LatestEvaluation returns the most recent completed-bar evaluation, or nil.
func (p *Pipeline) LatestEvaluation() *model.Evaluation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Stats returns a copy of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	s := p.stats
	s.HistoryLen = p.builder.HistoryLen()
	p.mu.Unlock()
	s.OrderBooks = p.obs.Load()
	s.Backfilling = p.quiet.Load()
	return s
}

// MinBars returns the history length needed before evaluations are ready.
func (p *Pipeline) MinBars() int { return p.snaps.MinBars() }

func (p *Pipeline) emit(us []model.Update) {
	if len(us) == 0 {
		return
	}
	p.sinksMu.RLock()
	sinks := p.sinks
	p.sinksMu.RUnlock()
	for _, u := range us {
		for _, s := range sinks {
			s.OnUpdate(u)
		}
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func top(levels []model.BookLevel, n int) []model.BookLevel {
	if n > 0 && len(levels) > n {
		return levels[:n]
	}
	return levels
}
