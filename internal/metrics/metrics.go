package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	RawBarsTotal   prometheus.Counter
	MalformedBars  prometheus.Counter
	LateBars       prometheus.Counter
	CompletedBars  *prometheus.CounterVec // labels: tf
	BarLag         prometheus.Gauge
	OrderBookTotal prometheus.Counter
	WSReconnects   prometheus.Counter

	// Evaluation
	EvaluationDur      prometheus.Histogram
	TradeSignals       *prometheus.CounterVec // labels: direction
	RiskGateRejections *prometheus.CounterVec // labels: direction
	NotReadyEvals      prometheus.Counter

	// Storage
	SQLiteCommitDur prometheus.Histogram
	BackfillBars    prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
	RedisWriteDur            prometheus.Histogram

	// Fan-out / dashboard
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	DashboardClients prometheus.Gauge
	DashboardDrops   prometheus.Counter

	Alerts *prometheus.CounterVec // labels: result
}

// NewMetrics registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RawBarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_raw_bars_total",
			Help: "Total base-interval bars received",
		}),
		MalformedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_malformed_bars_total",
			Help: "Bars dropped for malformed fields",
		}),
		LateBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_late_bars_total",
			Help: "Bars arriving behind the current bucket",
		}),
		CompletedBars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_completed_bars_total",
			Help: "Aggregated bars completed (by timeframe)",
		}, []string{"tf"}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_bar_lag_seconds",
			Help: "Lag between bucket end and completion time",
		}),
		OrderBookTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_orderbook_snapshots_total",
			Help: "Order book snapshots received",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),

		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_evaluation_duration_seconds",
			Help:    "Indicator, assessment and consolidation latency per completed bar",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		TradeSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_trade_signals_total",
			Help: "Trade signals emitted (by direction)",
		}, []string{"direction"}),
		RiskGateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_riskgate_rejections_total",
			Help: "Qualifying setups rejected by the risk gate (by direction)",
		}, []string{"direction"}),
		NotReadyEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_not_ready_evaluations_total",
			Help: "Evaluations skipped for insufficient history",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_sqlite_commit_duration_seconds",
			Help:    "Kline cache batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		BackfillBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_backfill_bars_total",
			Help: "Historical bars replayed into the pipeline",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_redis_buffered_writes_total",
			Help: "Publishes buffered locally while the circuit breaker is open",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigengine_redis_write_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_fanout_drops_total",
			Help: "Bars dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		DashboardClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigengine_dashboard_clients",
			Help: "Connected dashboard WebSocket clients",
		}),
		DashboardDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigengine_dashboard_drops_total",
			Help: "Dashboard messages dropped for slow clients",
		}),

		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigengine_alerts_total",
			Help: "Trade-signal alert deliveries (by result)",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RawBarsTotal,
		m.MalformedBars,
		m.LateBars,
		m.CompletedBars,
		m.BarLag,
		m.OrderBookTotal,
		m.WSReconnects,
		m.EvaluationDur,
		m.TradeSignals,
		m.RiskGateRejections,
		m.NotReadyEvals,
		m.SQLiteCommitDur,
		m.BackfillBars,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.RedisWriteDur,
		m.FanoutDropsTotal,
		m.DashboardClients,
		m.DashboardDrops,
		m.Alerts,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	Symbol       string    `json:"symbol"`
	StreamOK     bool      `json:"stream_connected"`
	LastBarTime  time.Time `json:"last_bar_time"`
	Warm         bool      `json:"warm"`
	HistoryLen   int       `json:"history_len"`
	MinBars      int       `json:"min_bars"`
	RedisEnabled bool      `json:"redis_enabled"`

	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(symbol string) *HealthStatus {
	return &HealthStatus{
		Symbol:    symbol,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

// SetWarmup records history fill against the minimum required.
func (h *HealthStatus) SetWarmup(historyLen, minBars int) {
	h.mu.Lock()
	h.HistoryLen = historyLen
	h.MinBars = minBars
	h.Warm = historyLen >= minBars
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the kline cache and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	if !h.StreamOK || !h.SQLiteOK || redisDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.StreamOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Symbol          string  `json:"symbol"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		Warm            bool    `json:"warm"`
		HistoryLen      int     `json:"history_len"`
		MinBars         int     `json:"min_bars"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Symbol:          h.Symbol,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamOK,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		Warm:            h.Warm,
		HistoryLen:      h.HistoryLen,
		MinBars:         h.MinBars,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
