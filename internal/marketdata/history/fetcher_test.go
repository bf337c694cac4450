package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"signalengine/internal/model"
)

const (
	t0     = int64(1709251200000) // 2024-03-01T00:00:00Z
	minute = int64(60_000)
)

type memStore struct {
	mu   sync.Mutex
	bars map[int64]model.RawBar
	puts int
}

func newMemStore(bars ...model.RawBar) *memStore {
	m := &memStore{bars: map[int64]model.RawBar{}}
	for _, b := range bars {
		m.bars[b.OpenTime] = b
	}
	return m
}

func (m *memStore) Get(_ context.Context, _, _ string, fromMs int64) ([]model.RawBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return merge(nil, mapValues(m.bars), fromMs), nil
}

func (m *memStore) Put(_ context.Context, _, _ string, bars []model.RawBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts += len(bars)
	for _, b := range bars {
		m.bars[b.OpenTime] = b
	}
	return nil
}

func (m *memStore) LastOpenTime(context.Context, string, string) (int64, error) { return 0, nil }

func mapValues(in map[int64]model.RawBar) []model.RawBar {
	out := make([]model.RawBar, 0, len(in))
	for _, b := range in {
		out = append(out, b)
	}
	return out
}

// klineServer serves n one-minute klines starting at t0 with close = 100+i.
func klineServer(t *testing.T, n int, starts *[]int64) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		mu.Lock()
		*starts = append(*starts, start)
		mu.Unlock()

		rows := [][]interface{}{}
		for i := 0; i < n && len(rows) < limit; i++ {
			open := t0 + int64(i)*minute
			if open < start {
				continue
			}
			c := strconv.FormatFloat(100+float64(i), 'f', -1, 64)
			rows = append(rows, []interface{}{open, c, c, c, c, "1.5", open + minute - 1, "0", 10, "0", "0", "0"})
		}
		json.NewEncoder(w).Encode(rows)
	}))
}

func newFetcher(url string, store model.KlineStore) *Fetcher {
	f := New(Config{BaseURL: url, PageLimit: 2}, store)
	f.now = func() time.Time { return time.UnixMilli(t0 + 24*60*minute) }
	return f
}

func TestFetch_PaginatesAndCaches(t *testing.T) {
	var starts []int64
	srv := klineServer(t, 5, &starts)
	defer srv.Close()

	store := newMemStore()
	bars, err := newFetcher(srv.URL, store).Fetch(context.Background(), "BTCUSDT", "1m", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 5 {
		t.Fatalf("expected 5 bars, got %d", len(bars))
	}
	for i, b := range bars {
		if b.OpenTime != t0+int64(i)*minute || b.Close != 100+float64(i) {
			t.Errorf("bar %d: unexpected %+v", i, b)
		}
	}
	if len(starts) != 3 {
		t.Errorf("expected 3 pages, got %d", len(starts))
	}
	if store.puts != 5 {
		t.Errorf("expected 5 bars persisted, got %d", store.puts)
	}
}

func TestFetch_OnlyRequestsMissingTail(t *testing.T) {
	var starts []int64
	srv := klineServer(t, 5, &starts)
	defer srv.Close()

	store := newMemStore(
		model.RawBar{OpenTime: t0, Close: 100},
		model.RawBar{OpenTime: t0 + minute, Close: 101},
		model.RawBar{OpenTime: t0 + 2*minute, Close: 102},
	)
	bars, err := newFetcher(srv.URL, store).Fetch(context.Background(), "BTCUSDT", "1m", t0+minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 4 || bars[0].OpenTime != t0+minute || bars[3].OpenTime != t0+4*minute {
		t.Errorf("expected bars 1..4, got %+v", bars)
	}
	if len(starts) == 0 || starts[0] != t0+2*minute+1 {
		t.Errorf("expected first request after newest cached bar, got %v", starts)
	}
	if store.puts != 2 {
		t.Errorf("expected 2 new bars persisted, got %d", store.puts)
	}
}

func TestFetch_SkipsFormingKline(t *testing.T) {
	var starts []int64
	srv := klineServer(t, 3, &starts)
	defer srv.Close()

	f := newFetcher(srv.URL, nil)
	// inside the third minute: its kline has not closed yet
	f.now = func() time.Time { return time.UnixMilli(t0 + 2*minute + 30_000) }
	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1m", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("expected 2 closed bars, got %d", len(bars))
	}
}

func TestFetch_RESTFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1003,"msg":"Too many requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	store := newMemStore(model.RawBar{OpenTime: t0, Close: 100})
	bars, err := newFetcher(srv.URL, store).Fetch(context.Background(), "BTCUSDT", "1m", t0)
	if err != nil || len(bars) != 1 {
		t.Errorf("expected cached fallback, got %d bars (%v)", len(bars), err)
	}

	if _, err := newFetcher(srv.URL, newMemStore()).Fetch(context.Background(), "BTCUSDT", "1m", t0); err == nil {
		t.Error("expected error with an empty cache")
	}
}

func TestFetch_DropsMalformedRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := [][]interface{}{
			{t0, "100", "101", "99", "100.5", "2", t0 + minute - 1},
			{t0 + minute, "x", "101", "99", "100.5", "2", t0 + 2*minute - 1},
			{t0 + 2*minute, "101", "102", "100", "101.5", "3", t0 + 3*minute - 1},
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	store := newMemStore()
	f := New(Config{BaseURL: srv.URL}, store)
	f.now = func() time.Time { return time.UnixMilli(t0 + 24*60*minute) }
	bars, err := f.Fetch(context.Background(), "BTCUSDT", "1m", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].OpenTime != t0 || bars[1].OpenTime != t0+2*minute || bars[1].Close != 101.5 {
		t.Errorf("expected the rows around the bad one, got %+v", bars)
	}
	if store.puts != 2 {
		t.Errorf("expected 2 bars persisted, got %d", store.puts)
	}
}

func TestParseKline_Rejects(t *testing.T) {
	tests := []struct {
		name string
		row  []interface{}
	}{
		{"short row", []interface{}{float64(t0), "1", "1"}},
		{"numeric price", []interface{}{float64(t0), 1.0, "1", "1", "1", "1", float64(t0)}},
		{"bad float", []interface{}{float64(t0), "x", "1", "1", "1", "1", float64(t0)}},
		{"string open time", []interface{}{"t0", "1", "1", "1", "1", "1", float64(t0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseKline(tt.row); err == nil {
				t.Error("expected error")
			}
		})
	}
}
