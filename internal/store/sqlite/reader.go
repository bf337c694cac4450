package sqlite

import (
	"context"
	"fmt"

	"signalengine/internal/model"
)

// Get returns cached bars for symbol and interval with open time >= fromMs.
// Results are ordered by open time ascending for correct replay order.
func (s *Store) Get(ctx context.Context, symbol, interval string, fromMs int64) ([]model.RawBar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume
		FROM klines
		WHERE symbol = ? AND interval = ? AND open_time >= ?
		ORDER BY open_time ASC
	`, symbol, interval, fromMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query klines: %w", err)
	}
	defer rows.Close()

	var bars []model.RawBar
	for rows.Next() {
		var b model.RawBar
		if err := rows.Scan(&b.OpenTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan klines: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Count returns the number of cached bars for symbol and interval.
func (s *Store) Count(ctx context.Context, symbol, interval string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM klines WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count klines: %w", err)
	}
	return n, nil
}
