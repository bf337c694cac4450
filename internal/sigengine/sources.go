package sigengine

import (
	"context"
	"log"
	"time"

	"signalengine/internal/marketdata/history"
	"signalengine/internal/marketdata/replay"
	"signalengine/internal/marketdata/ws"
	"signalengine/internal/model"
)

// startLive connects the exchange stream. Closed klines go onto the bar
// queue, depth goes straight to the pipeline.
func (svc *Service) startLive(ctx context.Context) error {
	cfg := svc.cfg
	ing, err := ws.New(ws.Config{
		URL:         cfg.Market.StreamURL,
		Symbol:      cfg.Symbol,
		Interval:    svc.interval,
		DepthLevels: cfg.Market.DepthLevels,
	})
	if err != nil {
		return err
	}

	ing.OnBar = func(r model.RawBar) { svc.enqueue(ctx, r) }
	ing.OnBook = svc.pipe.OnOrderBook
	ing.OnPrice = func(price float64, ts time.Time) {
		if svc.pipe.Backfilling() {
			return
		}
		svc.hub.OnUpdate(model.Update{Kind: model.UpdatePrice, Symbol: cfg.Symbol, TS: ts, Price: formatPrice(price)})
	}
	ing.OnReconnect = func() {
		if svc.prom != nil {
			svc.prom.WSReconnects.Inc()
		}
	}
	ing.OnConnected = svc.health.SetStreamConnected

	log.Printf("[sigengine] streaming %s", ing.StreamURL())
	svc.goRun(func() { ing.Start(ctx) })
	return nil
}

// backfill warms the pipeline with historical bars in quiet mode.
func (svc *Service) backfill(ctx context.Context) {
	cfg := svc.cfg
	fetcher := history.New(history.Config{BaseURL: cfg.Market.RESTURL}, svc.klines)
	fetcher.OnFetched = func(n int) {
		log.Printf("[sigengine] fetched %d bars from REST", n)
	}

	fromMs := cfg.BackfillFromMs(time.Now())
	start := time.Now()
	bars, err := fetcher.Fetch(ctx, cfg.Symbol, svc.interval, fromMs)
	if err != nil {
		log.Printf("[sigengine] WARNING: backfill failed: %v (starting cold)", err)
	}

	svc.pipe.BeginBackfill()
	for _, r := range bars {
		svc.pipe.OnRawBar(r)
	}
	if svc.prom != nil {
		svc.prom.BackfillBars.Add(float64(len(bars)))
	}
	svc.pipe.EndBackfill()

	svc.health.SetWarmup(svc.pipe.Stats().HistoryLen, svc.pipe.MinBars())
	if n := len(bars); n > 0 {
		svc.health.SetLastBarTime(time.UnixMilli(bars[n-1].OpenTime).UTC())
	}
	log.Printf("[sigengine] backfilled %d bars in %s", len(bars), time.Since(start).Round(time.Millisecond))
}

// startReplay streams cached bars through the bar queue.
func (svc *Service) startReplay(ctx context.Context) {
	cfg := svc.cfg
	r := replay.New(svc.klines)
	svc.health.SetStreamConnected(true)

	svc.goRun(func() {
		err := r.Run(ctx, cfg.Symbol, svc.interval, cfg.Market.ReplayFromMs, cfg.Market.ReplaySpeed, func(b model.RawBar) {
			svc.enqueue(ctx, b)
		})
		if err != nil {
			log.Printf("[sigengine] replay stopped: %v", err)
			return
		}
		log.Println("[sigengine] replay complete")
	})
}

func (svc *Service) enqueue(ctx context.Context, r model.RawBar) {
	select {
	case svc.barIn <- r:
	case <-ctx.Done():
	}
}
