package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"signalengine/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "klines.db"), BatchSize: 3, FlushDelay: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func bar(openTime int64, close float64) model.RawBar {
	return model.RawBar{OpenTime: openTime, Open: close - 1, High: close + 1, Low: close - 2, Close: close, Volume: 5}
}

func TestStore_PutGetUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "BTCUSDT", "1m", []model.RawBar{bar(180_000, 3), bar(60_000, 1), bar(120_000, 2)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	// replace the middle bar and add one for another interval
	if err := s.Put(ctx, "BTCUSDT", "1m", []model.RawBar{bar(120_000, 20)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "BTCUSDT", "1s", []model.RawBar{bar(120_000, 99)}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "BTCUSDT", "1m", 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got))
	}
	for i, want := range []int64{60_000, 120_000, 180_000} {
		if got[i].OpenTime != want {
			t.Errorf("bar %d: expected open time %d, got %d", i, want, got[i].OpenTime)
		}
	}
	if got[1].Close != 20 {
		t.Errorf("expected upserted close 20, got %v", got[1].Close)
	}

	from, err := s.Get(ctx, "BTCUSDT", "1m", 120_000)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(from) != 2 || from[0].OpenTime != 120_000 {
		t.Errorf("expected bars from 120000 inclusive, got %+v", from)
	}
}

func TestStore_LastOpenTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	last, err := s.LastOpenTime(ctx, "ETHUSDT", "1m")
	if err != nil || last != 0 {
		t.Fatalf("expected 0 on empty cache, got %d (%v)", last, err)
	}
	s.Put(ctx, "ETHUSDT", "1m", []model.RawBar{bar(60_000, 1), bar(240_000, 4)})
	last, err = s.LastOpenTime(ctx, "ETHUSDT", "1m")
	if err != nil || last != 240_000 {
		t.Errorf("expected 240000, got %d (%v)", last, err)
	}
}

func TestStore_RunBatches(t *testing.T) {
	s := openTestStore(t)
	commits := make(chan int, 10)
	s.OnCommit = func(n int, _ time.Duration) { commits <- n }

	ch := make(chan model.RawBar)
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), "BTCUSDT", "1m", ch)
		close(done)
	}()

	for i := int64(1); i <= 4; i++ {
		ch <- bar(i*60_000, float64(i))
	}
	close(ch)
	<-done

	var total int
	close(commits)
	for n := range commits {
		total += n
	}
	if total != 4 {
		t.Errorf("expected 4 bars committed, got %d", total)
	}
	n, err := s.Count(context.Background(), "BTCUSDT", "1m")
	if err != nil || n != 4 {
		t.Errorf("expected 4 cached bars, got %d (%v)", n, err)
	}
}
