package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signalengine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the kline cache.
type WriterConfig struct {
	DBPath     string // path to SQLite database file, e.g. "data/klines.db"
	BatchSize  int
	FlushDelay time.Duration
}

// Store is the SQLite kline cache. Writes go through a single connection
// with transaction batching.
type Store struct {
	db         *sql.DB
	batchSize  int
	flushDelay time.Duration

	// OnCommit is called after every live batch commit (optional).
	OnCommit func(n int, d time.Duration)
}

var _ model.KlineStore = (*Store)(nil)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &Store{db: db, batchSize: cfg.BatchSize, flushDelay: cfg.FlushDelay}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.flushDelay <= 0 {
		s.flushDelay = defaultFlushDelay
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS klines (
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			open_time  INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL    NOT NULL,
			PRIMARY KEY (symbol, interval, open_time)
		);
	`)
	return err
}

// Put upserts bars keyed by (symbol, interval, open_time) in one transaction.
func (s *Store) Put(ctx context.Context, symbol, interval string, bars []model.RawBar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO klines (symbol, interval, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, interval, b.OpenTime, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert kline %d: %w", b.OpenTime, err)
		}
	}

	return tx.Commit()
}

// Run reads closed bars from barCh and appends them in batched transactions.
// Flushes every batch size bars OR every flush delay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (s *Store) Run(ctx context.Context, symbol, interval string, barCh <-chan model.RawBar) {
	batch := make([]model.RawBar, 0, s.batchSize)
	timer := time.NewTimer(s.flushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// ctx may already be cancelled on the final flush
		if err := s.Put(context.Background(), symbol, interval, batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if s.OnCommit != nil {
			s.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= s.batchSize {
				flush()
				timer.Reset(s.flushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(s.flushDelay)
		}
	}
}

// LastOpenTime returns the newest cached open time, or 0 when none exist.
func (s *Store) LastOpenTime(ctx context.Context, symbol, interval string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(open_time) FROM klines WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("sqlite last open time: %w", err)
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
