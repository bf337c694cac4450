package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// RawBar is one base-interval kline as delivered by the market data source.
// OpenTime is the bar open in epoch milliseconds.
type RawBar struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Time returns the bar open as a UTC time.
func (b RawBar) Time() time.Time {
	return time.UnixMilli(b.OpenTime).UTC()
}

// Finite reports whether every price and volume field is a finite number.
func (b RawBar) Finite() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AggregatedBar is an OHLCV bar at the strategy timeframe.
// BucketStart is floored to the timeframe boundary.
type AggregatedBar struct {
	Symbol      string    `json:"symbol"`
	TF          int64     `json:"tf"` // timeframe in seconds
	BucketStart time.Time `json:"ts"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	Count       int       `json:"count"` // raw bars merged into this bar
	Forming     bool      `json:"forming"`
}

// Merge folds a raw bar belonging to the same bucket into b.
func (b *AggregatedBar) Merge(r RawBar) {
	if b.Count == 0 {
		b.Open, b.High, b.Low = r.Open, r.High, r.Low
	}
	if r.High > b.High {
		b.High = r.High
	}
	if r.Low < b.Low {
		b.Low = r.Low
	}
	b.Close = r.Close
	b.Volume += r.Volume
	b.Count++
}

// StreamKey returns the Redis stream key for completed bars: "bar:{TF}s:{symbol}".
func (b *AggregatedBar) StreamKey() string {
	return "bar:" + strconv.FormatInt(b.TF, 10) + "s:" + b.Symbol
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *AggregatedBar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// Series splits bars into aligned open/high/low/close/volume slices.
type Series struct {
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// SeriesOf builds a Series from bars in order.
func SeriesOf(bars []AggregatedBar) Series {
	s := Series{
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Open[i] = b.Open
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Close[i] = b.Close
		s.Volume[i] = b.Volume
	}
	return s
}
