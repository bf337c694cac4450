// Package tfbuilder provides the bar aggregator: it time-buckets a stream of
// base-interval raw bars into fixed-timeframe OHLCV bars, keeps the forming
// (provisional) bar for live display and feeds completed bars into a bounded
// rolling history.
package tfbuilder

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"signalengine/internal/model"
	"signalengine/internal/ringbuf"
)

// ErrMalformedBar is returned by Validate for bars that cannot be aggregated.
var ErrMalformedBar = errors.New("malformed bar")

// BucketStart floors an open time (ms) to the timeframe boundary (seconds).
func BucketStart(openTimeMs, tfSec int64) int64 {
	tfMs := tfSec * 1000
	return openTimeMs - (openTimeMs % tfMs)
}

// Validate checks a raw bar for values the aggregator cannot use.
func Validate(r model.RawBar) error {
	switch {
	case r.OpenTime <= 0:
		return fmt.Errorf("%w: open_time %d", ErrMalformedBar, r.OpenTime)
	case !r.Finite():
		return fmt.Errorf("%w: non-finite value", ErrMalformedBar)
	case r.Open < 0 || r.High < 0 || r.Low < 0 || r.Close < 0 || r.Volume < 0:
		return fmt.Errorf("%w: negative value", ErrMalformedBar)
	case r.High < r.Low:
		return fmt.Errorf("%w: high %.8g < low %.8g", ErrMalformedBar, r.High, r.Low)
	}
	return nil
}

// Builder aggregates raw bars for one (symbol, timeframe) pair.
// Not goroutine-safe: the owner serializes calls.
type Builder struct {
	symbol string
	tf     int64 // timeframe in seconds

	bucket  int64 // current bucket start (ms)
	started bool
	buffer  []model.RawBar

	history *ringbuf.Ring[model.AggregatedBar]

	// Hooks (optional). Called synchronously from Ingest.
	OnBarCompleted func(b model.AggregatedBar)
	OnLateBar      func(r model.RawBar)
	OnMalformedBar func(r model.RawBar, err error)
}

// New creates a builder keeping at most capacity completed bars.
func New(symbol string, tfSec int64, capacity int) *Builder {
	if tfSec <= 0 {
		tfSec = 60
	}
	return &Builder{
		symbol:  symbol,
		tf:      tfSec,
		history: ringbuf.New[model.AggregatedBar](capacity),
	}
}

// Ingest folds one raw bar into the aggregator. When the bar opens a later
// bucket, the current bucket is finalized, appended to history and returned
// with true. Malformed bars are dropped; late bars are buffered but never
// reopen a completed bucket.
func (b *Builder) Ingest(r model.RawBar) (model.AggregatedBar, bool) {
	if err := Validate(r); err != nil {
		slog.Warn("tfbuilder: dropping bar", "symbol", b.symbol, "open_time", r.OpenTime, "error", err)
		if b.OnMalformedBar != nil {
			b.OnMalformedBar(r, err)
		}
		return model.AggregatedBar{}, false
	}

	bucket := BucketStart(r.OpenTime, b.tf)

	if !b.started {
		b.started = true
		b.bucket = bucket
		b.buffer = append(b.buffer[:0], r)
		return model.AggregatedBar{}, false
	}

	switch {
	case bucket == b.bucket:
		b.upsert(r)
		return model.AggregatedBar{}, false

	case bucket < b.bucket:
		slog.Warn("tfbuilder: late bar",
			"symbol", b.symbol,
			"open_time", r.OpenTime,
			"bar_bucket", time.UnixMilli(bucket).UTC(),
			"current_bucket", time.UnixMilli(b.bucket).UTC())
		b.buffer = append(b.buffer, r)
		if b.OnLateBar != nil {
			b.OnLateBar(r)
		}
		return model.AggregatedBar{}, false
	}

	// New bucket: finalize the current one from its own bars only.
	done := b.aggregate(b.bucket)
	done.Forming = false
	b.history.Push(done)

	kept := b.buffer[:0]
	for _, x := range b.buffer {
		if BucketStart(x.OpenTime, b.tf) >= bucket {
			kept = append(kept, x)
		}
	}
	b.buffer = append(kept, r)
	b.bucket = bucket

	if b.OnBarCompleted != nil {
		b.OnBarCompleted(done)
	}
	return done, true
}

// upsert appends r to the buffer, replacing an earlier bar with the same open time.
func (b *Builder) upsert(r model.RawBar) {
	for i := len(b.buffer) - 1; i >= 0; i-- {
		if b.buffer[i].OpenTime == r.OpenTime {
			b.buffer[i] = r
			return
		}
	}
	b.buffer = append(b.buffer, r)
}

// aggregate builds the bar for one bucket from the buffered raw bars in
// arrival order.
func (b *Builder) aggregate(bucket int64) model.AggregatedBar {
	agg := model.AggregatedBar{
		Symbol:      b.symbol,
		TF:          b.tf,
		BucketStart: time.UnixMilli(bucket).UTC(),
		Forming:     true,
	}
	for _, x := range b.buffer {
		if BucketStart(x.OpenTime, b.tf) == bucket {
			agg.Merge(x)
		}
	}
	return agg
}

// Provisional returns the forming bar for the current bucket, or false
// before the first bar.
func (b *Builder) Provisional() (model.AggregatedBar, bool) {
	if !b.started {
		return model.AggregatedBar{}, false
	}
	agg := b.aggregate(b.bucket)
	if agg.Count == 0 {
		return model.AggregatedBar{}, false
	}
	return agg, true
}

// History returns a copy of the completed bars, oldest first.
func (b *Builder) History() []model.AggregatedBar {
	return b.history.Slice()
}

// HistoryLen returns the number of completed bars held.
func (b *Builder) HistoryLen() int {
	return b.history.Len()
}

// Capacity returns the maximum number of completed bars kept.
func (b *Builder) Capacity() int {
	return b.history.Cap()
}

// ChartSeries returns the newest maxBars bars, the provisional bar included
// as the last element when one is forming.
func (b *Builder) ChartSeries(maxBars int) []model.AggregatedBar {
	if maxBars <= 0 {
		return nil
	}
	prov, ok := b.Provisional()
	if !ok {
		return b.history.Tail(maxBars)
	}
	out := append(b.history.Tail(maxBars-1), prov)
	return out
}

// LastClose returns the most recent close, preferring the forming bar.
func (b *Builder) LastClose() (float64, bool) {
	if prov, ok := b.Provisional(); ok {
		return prov.Close, true
	}
	if last, ok := b.history.Last(); ok {
		return last.Close, true
	}
	return math.NaN(), false
}

// Symbol returns the symbol this builder aggregates.
func (b *Builder) Symbol() string { return b.symbol }

// TF returns the timeframe in seconds.
func (b *Builder) TF() int64 { return b.tf }
