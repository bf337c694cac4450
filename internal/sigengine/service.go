// Package sigengine wires the signal engine process: kline cache, market
// data source, pipeline, sinks and the HTTP surfaces.
package sigengine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"signalengine/config"
	"signalengine/internal/dashboard"
	"signalengine/internal/indicator"
	"signalengine/internal/marketdata/bus"
	"signalengine/internal/metrics"
	"signalengine/internal/model"
	"signalengine/internal/notification"
	"signalengine/internal/pipeline"
	redisstore "signalengine/internal/store/redis"
	sqlitestore "signalengine/internal/store/sqlite"
	"signalengine/internal/strategy"

	goredis "github.com/go-redis/redis/v8"
)

const (
	barQueueSize     = 1024
	subscriberBuffer = 4096
	livenessInterval = 10 * time.Second
	shutdownTimeout  = 5 * time.Second

	breakerMaxFailures = 5
	breakerReset       = 10 * time.Second
)

// Service is the top-level orchestrator for one (symbol, timeframe).
type Service struct {
	cfg      *config.Config
	interval string // exchange kline interval
	prom     *metrics.Metrics
	health   *metrics.HealthStatus

	klines    *sqlitestore.Store
	redis     *redisstore.Writer // nil when disabled or unreachable
	publisher *redisstore.Publisher
	notifier  *notification.SignalNotifier

	pipe *pipeline.Pipeline
	hub  *dashboard.Hub
	bus  *bus.FanOut

	barIn chan model.RawBar
	wg    sync.WaitGroup
}

// New builds the service. It opens the kline cache (required) and Redis
// (optional, logged and skipped on failure). prom may be nil.
func New(cfg *config.Config, prom *metrics.Metrics) (*Service, error) {
	interval, err := cfg.BinanceInterval()
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:      cfg,
		interval: interval,
		prom:     prom,
		health:   metrics.NewHealthStatus(cfg.Symbol),
		barIn:    make(chan model.RawBar, barQueueSize),
	}

	// ── Kline cache ──
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sigengine: create data dir: %w", err)
		}
	}
	svc.klines, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:     cfg.Storage.SQLitePath,
		BatchSize:  cfg.Storage.BatchSize,
		FlushDelay: cfg.Storage.FlushInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("sigengine: %w", err)
	}
	svc.klines.OnCommit = func(n int, d time.Duration) {
		if prom != nil {
			prom.SQLiteCommitDur.Observe(d.Seconds())
		}
	}
	svc.health.SetSQLiteOK(true)

	// ── Core ──
	tf := cfg.TimeframeSec()
	snaps := indicator.NewSnapshotBuilder(cfg.IndicatorParams(), cfg.MinBars())
	consolidator := strategy.NewConsolidator(cfg.StrategyWeights(), strategy.NewRiskGate(cfg.RiskParams()))
	consolidator.OnRejected = func(symbol string, dir model.Direction, err error) {
		if prom != nil {
			prom.RiskGateRejections.WithLabelValues(string(dir)).Inc()
		}
	}
	engine := strategy.NewEngine(cfg.Symbol, tf, strategy.NewAssessor(cfg.StrategyThresholds()), consolidator)

	svc.pipe = pipeline.New(pipeline.Config{
		Symbol:          cfg.Symbol,
		TF:              tf,
		Capacity:        cfg.HistoryCapacity(),
		ChartBars:       cfg.History.ChartBars,
		LivePreview:     cfg.Thresholds.LivePreview,
		LiquidityMinQty: cfg.Thresholds.LiquidityMinQty,
		LiquidityTopN:   cfg.Thresholds.LiquidityTopN,
	}, snaps, engine, prom)

	// ── Sinks ──
	svc.pipe.AddSink(pipeline.LogSink{})
	svc.pipe.AddSink(model.SinkFunc(svc.trackWarmup))

	svc.hub = dashboard.NewHub(cfg.Symbol, svc.pipe)
	svc.hub.OnClients = func(n int) {
		if prom != nil {
			prom.DashboardClients.Set(float64(n))
		}
	}
	svc.hub.OnDrop = func() {
		if prom != nil {
			prom.DashboardDrops.Inc()
		}
	}
	svc.pipe.AddSink(svc.hub)

	svc.notifier = notification.NewSignalNotifier(buildNotifier(cfg))
	svc.notifier.OnSent = func(alert notification.Alert, err error) {
		if prom == nil {
			return
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		prom.Alerts.WithLabelValues(result).Inc()
	}
	svc.pipe.AddSink(svc.notifier)

	if cfg.Storage.RedisEnabled {
		svc.health.SetRedisEnabled(true)
		if err := svc.connectRedis(); err != nil {
			log.Printf("[sigengine] WARNING: redis unavailable: %v (continuing without redis)", err)
		}
	}

	// ── Fan-out ──
	svc.bus = bus.New(subscriberBuffer)
	svc.bus.OnDrop = func(subscriber string) {
		if prom != nil {
			prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
		}
	}

	return svc, nil
}

func (svc *Service) connectRedis() error {
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:         svc.cfg.Storage.RedisAddr,
		Password:     svc.cfg.Storage.RedisPassword,
		DB:           svc.cfg.Storage.RedisDB,
		StreamMaxLen: svc.cfg.Storage.StreamMaxLen,
	})
	if err != nil {
		return err
	}
	svc.redis = w

	prom := svc.prom
	cb := redisstore.NewCircuitBreaker(breakerMaxFailures, breakerReset)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[sigengine] redis circuit breaker %s -> %s", from, to)
		if prom == nil {
			return
		}
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
	}

	svc.publisher = redisstore.NewPublisher(w, cb, 0)
	svc.publisher.OnBuffer = func() {
		if prom != nil {
			prom.RedisBufferedWrites.Inc()
		}
	}
	svc.publisher.OnWrite = func(d time.Duration) {
		if prom != nil {
			prom.RedisWriteDur.Observe(d.Seconds())
		}
	}
	svc.publisher.OnFlush = func(n int) {
		log.Printf("[sigengine] replayed %d buffered redis writes", n)
	}
	svc.pipe.AddSink(svc.publisher)
	return nil
}

// buildNotifier assembles the configured alert backends.
func buildNotifier(cfg *config.Config) notification.Notifier {
	var multi notification.Multi
	if cfg.Notify.LogAlerts {
		multi = append(multi, notification.NewLogNotifier())
	}
	if cfg.Notify.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(cfg.Notify.WebhookURL))
	}
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	return multi
}

// trackWarmup keeps the health warm-up state in step with evaluations.
func (svc *Service) trackWarmup(u model.Update) {
	if u.Kind != model.UpdateEvaluation {
		return
	}
	svc.health.SetWarmup(svc.pipe.Stats().HistoryLen, svc.pipe.MinBars())
}

// Pipeline returns the service pipeline.
func (svc *Service) Pipeline() *pipeline.Pipeline { return svc.pipe }

// Hub returns the dashboard hub.
func (svc *Service) Hub() *dashboard.Hub { return svc.hub }

// Health returns the health status served on /healthz.
func (svc *Service) Health() *metrics.HealthStatus { return svc.health }

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Printf("[sigengine] starting %s tf=%s source=%s", cfg.Symbol, cfg.Market.Timeframe, cfg.Market.Source)

	metricsSrv := metrics.NewServer(cfg.HTTP.MetricsAddr, svc.health)
	metricsSrv.Start()
	dashSrv := dashboard.NewServer(cfg.HTTP.DashboardAddr, svc.hub)
	dashSrv.Start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.klines.DB(), livenessInterval)

	// background writers
	svc.goRun(func() { svc.notifier.Run(ctx) })
	if svc.publisher != nil {
		svc.goRun(func() { svc.publisher.Run(ctx) })
	}

	pipeCh := svc.bus.Subscribe("pipeline")
	if cfg.Market.Source == "live" {
		cacheCh := svc.bus.Subscribe("kline_cache")
		svc.goRun(func() { svc.klines.Run(ctx, cfg.Symbol, svc.interval, cacheCh) })
	}
	svc.goRun(func() { svc.bus.Run(ctx, svc.barIn) })

	var err error
	switch cfg.Market.Source {
	case "replay":
		svc.startReplay(ctx)
	default:
		// the stream starts first so bars closing during backfill queue up
		// on the pipeline subscription instead of being lost
		if err = svc.startLive(ctx); err != nil {
			break
		}
		svc.backfill(ctx)
	}

	if err == nil {
		svc.goRun(func() { svc.consume(ctx, pipeCh) })
		log.Printf("[sigengine] running: dashboard %s, metrics %s", cfg.HTTP.DashboardAddr, cfg.HTTP.MetricsAddr)
		<-ctx.Done()
	}

	cancel()
	svc.shutdown(metricsSrv, dashSrv)
	return err
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redis == nil {
		return nil
	}
	return svc.redis.Client()
}

// consume feeds bars from the fan-out into the pipeline.
func (svc *Service) consume(ctx context.Context, barCh <-chan model.RawBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-barCh:
			if !ok {
				return
			}
			svc.pipe.OnRawBar(r)
			svc.health.SetLastBarTime(time.UnixMilli(r.OpenTime).UTC())
		}
	}
}

func (svc *Service) goRun(fn func()) {
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		fn()
	}()
}

// shutdown stops the servers, waits for the writers to drain and closes
// the stores.
func (svc *Service) shutdown(metricsSrv *metrics.Server, dashSrv *dashboard.Server) {
	log.Println("[sigengine] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	dashSrv.Stop(ctx)
	metricsSrv.Stop(ctx)

	svc.wg.Wait()

	if svc.publisher != nil {
		if n := svc.publisher.PendingCount(); n > 0 {
			log.Printf("[sigengine] %d redis writes still buffered at shutdown", n)
		}
	}
	if svc.redis != nil {
		svc.redis.Close()
	}
	svc.klines.Close()

	stats := svc.pipe.Stats()
	log.Printf("[sigengine] shutdown complete: raw=%d completed=%d signals=%d malformed=%d late=%d",
		stats.RawBars, stats.Completed, stats.Signals, stats.Malformed, stats.Late)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
