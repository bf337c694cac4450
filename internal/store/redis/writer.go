package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"signalengine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	StreamMaxLen int64 // approximate MAXLEN for XADD
}

// Writer writes completed bars and evaluations to Redis.
type Writer struct {
	client *goredis.Client
	maxLen int64
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, maxLen: maxLen}, nil
}

// ── Key layout ──

// BarLatestKey is the key holding the newest completed bar.
func BarLatestKey(symbol string, tf int64) string {
	return "bar:" + strconv.FormatInt(tf, 10) + "s:latest:" + symbol
}

// SignalStreamKey is the stream of evaluations: "signal:{tf}s:{symbol}".
func SignalStreamKey(symbol string, tf int64) string {
	return "signal:" + strconv.FormatInt(tf, 10) + "s:" + symbol
}

// SignalLatestKey is the key holding the newest evaluation.
func SignalLatestKey(symbol string, tf int64) string {
	return "signal:" + strconv.FormatInt(tf, 10) + "s:latest:" + symbol
}

// SignalChannel is the pubsub channel for evaluations.
func SignalChannel(symbol string, tf int64) string {
	return "pub:signal:" + strconv.FormatInt(tf, 10) + "s:" + symbol
}

// WriteBar appends a completed bar to its stream and sets the latest key.
func (w *Writer) WriteBar(ctx context.Context, bar *model.AggregatedBar) error {
	jsonData := string(bar.JSON())

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: bar.StreamKey(),
		MaxLen: w.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, BarLatestKey(bar.Symbol, bar.TF), jsonData, defaultLatestTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis bar pipeline %s: %w", bar.StreamKey(), err)
	}
	return nil
}

// WriteEvaluation appends an evaluation to the signal stream, sets the latest
// key and publishes it for real-time subscribers.
func (w *Writer) WriteEvaluation(ctx context.Context, ev *model.Evaluation) error {
	jsonData := string(ev.JSON())
	values := map[string]interface{}{"data": jsonData}
	if ev.Signal != nil {
		values["id"] = ev.Signal.ID
		values["direction"] = string(ev.Signal.Direction)
	}

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: SignalStreamKey(ev.Symbol, ev.TF),
		MaxLen: w.maxLen,
		Approx: true,
		Values: values,
	})
	pipe.Set(ctx, SignalLatestKey(ev.Symbol, ev.TF), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, SignalChannel(ev.Symbol, ev.TF), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis evaluation pipeline %s: %w", SignalStreamKey(ev.Symbol, ev.TF), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
