// Package replay streams cached klines back through the pipeline at a
// configurable speed, for offline and staging runs.
package replay

import (
	"context"
	"log"
	"time"

	"signalengine/internal/model"
)

const maxSleep = 5 * time.Second

// Replayer reads historical bars from a KlineStore and replays them.
type Replayer struct {
	store model.KlineStore
}

// New creates a Replayer backed by a kline cache.
func New(store model.KlineStore) *Replayer {
	return &Replayer{store: store}
}

// Run replays cached bars for (symbol, interval) with OpenTime >= fromMs into fn.
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
func (r *Replayer) Run(ctx context.Context, symbol, interval string, fromMs int64, speed float64, fn model.BarHandler) error {
	bars, err := r.store.Get(ctx, symbol, interval, fromMs)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		log.Printf("[replay] no cached bars for %s %s", symbol, interval)
		return nil
	}

	log.Printf("[replay] loaded %d bars for %s %s, speed=%.1fx", len(bars), symbol, interval, speed)

	var prev int64
	emitted := 0
	for _, b := range bars {
		if err := ctx.Err(); err != nil {
			log.Printf("[replay] cancelled after %d bars", emitted)
			return err
		}

		if speed > 0 && prev != 0 {
			if gap := time.Duration(b.OpenTime-prev) * time.Millisecond; gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > maxSleep {
					scaled = maxSleep
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prev = b.OpenTime

		fn(b)
		emitted++
	}

	log.Printf("[replay] completed: %d bars replayed", emitted)
	return nil
}
