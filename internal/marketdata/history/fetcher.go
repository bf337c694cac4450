// Package history loads the historical kline range used to warm the pipeline:
// the local cache first, then only the missing tail from the Binance REST API.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"signalengine/internal/model"
)

const (
	defaultBaseURL   = "https://api.binance.com"
	defaultPageLimit = 1000
	defaultTimeout   = 10 * time.Second
)

// Config configures the REST fetcher.
type Config struct {
	BaseURL    string // e.g. "https://api.binance.com"
	PageLimit  int    // klines per request, max 1000
	HTTPClient *http.Client
}

// Fetcher implements model.HistoricalFetcher on top of a kline cache.
type Fetcher struct {
	baseURL string
	limit   int
	client  *http.Client
	store   model.KlineStore // may be nil
	now     func() time.Time

	// OnFetched is called with the number of bars loaded from REST (optional).
	OnFetched func(n int)
}

var _ model.HistoricalFetcher = (*Fetcher)(nil)

// New creates a Fetcher. store may be nil to skip caching.
func New(cfg Config, store model.KlineStore) *Fetcher {
	f := &Fetcher{
		baseURL: cfg.BaseURL,
		limit:   cfg.PageLimit,
		client:  cfg.HTTPClient,
		store:   store,
		now:     time.Now,
	}
	if f.baseURL == "" {
		f.baseURL = defaultBaseURL
	}
	if f.limit <= 0 || f.limit > defaultPageLimit {
		f.limit = defaultPageLimit
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: defaultTimeout}
	}
	return f
}

// Fetch returns closed bars with OpenTime >= fromMs, ascending and unique by
// OpenTime. Cached bars are reused; only bars after the newest cached one are
// requested. A REST failure falls back to the cache when it has data.
func (f *Fetcher) Fetch(ctx context.Context, symbol, interval string, fromMs int64) ([]model.RawBar, error) {
	var cached []model.RawBar
	if f.store != nil {
		var err error
		cached, err = f.store.Get(ctx, symbol, interval, fromMs)
		if err != nil {
			log.Printf("[history] cache read failed for %s %s: %v", symbol, interval, err)
			cached = nil
		}
	}

	start := fromMs
	if n := len(cached); n > 0 {
		start = cached[n-1].OpenTime + 1
	}

	fetched, err := f.fetchFrom(ctx, symbol, interval, start)
	if err != nil {
		if len(cached) > 0 {
			log.Printf("[history] REST fetch failed, using %d cached bars: %v", len(cached), err)
			return cached, nil
		}
		return nil, err
	}
	if f.OnFetched != nil {
		f.OnFetched(len(fetched))
	}

	if f.store != nil && len(fetched) > 0 {
		if err := f.store.Put(ctx, symbol, interval, fetched); err != nil {
			log.Printf("[history] cache write failed for %s %s: %v", symbol, interval, err)
		}
	}

	log.Printf("[history] %s %s: %d cached + %d fetched bars", symbol, interval, len(cached), len(fetched))
	return merge(cached, fetched, fromMs), nil
}

// fetchFrom pages through /api/v3/klines from startMs, keeping closed klines only.
func (f *Fetcher) fetchFrom(ctx context.Context, symbol, interval string, startMs int64) ([]model.RawBar, error) {
	nowMs := f.now().UnixMilli()
	var out []model.RawBar
	for {
		page, rows, err := f.fetchPage(ctx, symbol, interval, startMs)
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if k.closeTime < nowMs {
				out = append(out, k.bar)
			}
		}
		if rows < f.limit || len(page) == 0 {
			return out, nil
		}
		startMs = page[len(page)-1].bar.OpenTime + 1
	}
}

type restKline struct {
	bar       model.RawBar
	closeTime int64
}

// fetchPage returns the parseable klines of one page and the number of rows
// the API sent. Malformed rows are logged and skipped.
func (f *Fetcher) fetchPage(ctx context.Context, symbol, interval string, startMs int64) ([]restKline, int, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("startTime", strconv.FormatInt(startMs, 10))
	params.Set("limit", strconv.Itoa(f.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/v3/klines?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build klines request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read klines response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("klines API error: status %d: %s", resp.StatusCode, body)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, fmt.Errorf("parse klines: %w", err)
	}

	page := make([]restKline, 0, len(raw))
	for i, row := range raw {
		k, err := parseKline(row)
		if err != nil {
			log.Printf("[history] WARNING: dropping kline %d of %s %s page: %v", i, symbol, interval, err)
			continue
		}
		page = append(page, k)
	}
	return page, len(raw), nil
}

// parseKline decodes one REST row: [openTime, "o", "h", "l", "c", "v", closeTime, ...].
func parseKline(row []interface{}) (restKline, error) {
	if len(row) < 7 {
		return restKline{}, fmt.Errorf("expected at least 7 fields, got %d", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return restKline{}, fmt.Errorf("open time: unexpected %T", row[0])
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return restKline{}, fmt.Errorf("close time: unexpected %T", row[6])
	}

	var vals [5]float64
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return restKline{}, fmt.Errorf("field %d: unexpected %T", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return restKline{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return restKline{
		bar: model.RawBar{
			OpenTime: int64(openTime),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		},
		closeTime: int64(closeTime),
	}, nil
}

// merge combines cached and fetched bars; fetched rows replace cached ones
// with the same OpenTime.
func merge(cached, fetched []model.RawBar, fromMs int64) []model.RawBar {
	byOpen := make(map[int64]model.RawBar, len(cached)+len(fetched))
	for _, b := range cached {
		byOpen[b.OpenTime] = b
	}
	for _, b := range fetched {
		byOpen[b.OpenTime] = b
	}

	out := make([]model.RawBar, 0, len(byOpen))
	for _, b := range byOpen {
		if b.OpenTime >= fromMs {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.RawBar) int {
		switch {
		case a.OpenTime < b.OpenTime:
			return -1
		case a.OpenTime > b.OpenTime:
			return 1
		}
		return 0
	})
	return out
}
