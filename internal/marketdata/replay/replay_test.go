package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalengine/internal/model"
)

type memStore struct {
	bars []model.RawBar
	err  error
}

func (m *memStore) Get(_ context.Context, _, _ string, fromMs int64) ([]model.RawBar, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []model.RawBar
	for _, b := range m.bars {
		if b.OpenTime >= fromMs {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) Put(context.Context, string, string, []model.RawBar) error { return nil }

func (m *memStore) LastOpenTime(context.Context, string, string) (int64, error) { return 0, nil }

func TestReplayer_EmitsInOrderFromOffset(t *testing.T) {
	store := &memStore{bars: []model.RawBar{{OpenTime: 1000}, {OpenTime: 2000}, {OpenTime: 3000}}}
	var got []int64
	err := New(store).Run(context.Background(), "BTCUSDT", "1s", 2000, 0, func(b model.RawBar) {
		got = append(got, b.OpenTime)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != 2000 || got[1] != 3000 {
		t.Errorf("expected [2000 3000], got %v", got)
	}
}

func TestReplayer_ScalesGaps(t *testing.T) {
	store := &memStore{bars: []model.RawBar{{OpenTime: 1}, {OpenTime: 1001}, {OpenTime: 2001}}}
	start := time.Now()
	// 1s gaps at 20x: about 100ms in total
	if err := New(store).Run(context.Background(), "BTCUSDT", "1s", 0, 20, func(model.RawBar) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := time.Since(start); d < 90*time.Millisecond {
		t.Errorf("expected scaled sleeps of about 100ms, took %s", d)
	}
}

func TestReplayer_CancelAndStoreError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memStore{bars: []model.RawBar{{OpenTime: 1}}}
	if err := New(store).Run(ctx, "BTCUSDT", "1s", 0, 0, func(model.RawBar) {}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	boom := errors.New("disk full")
	if err := New(&memStore{err: boom}).Run(context.Background(), "BTCUSDT", "1s", 0, 0, func(model.RawBar) {}); !errors.Is(err, boom) {
		t.Errorf("expected store error, got %v", err)
	}
}
