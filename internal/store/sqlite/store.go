// Package sqlite persists bars, bus events, and admitted signals. Bars feed
// the backtest replay; events and signals form the audit journal. Writes go
// through a single connection with WAL mode and batched transactions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mss-enginev1/internal/gatebus"
	"mss-enginev1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	DBPath string // e.g. "data/mss.db"
}

// Store is a single-writer SQLite store.
type Store struct {
	db *sql.DB

	mu         sync.Mutex
	eventBatch []gatebus.Event
}

var _ gatebus.Sink = (*Store)(nil)

// New opens (or creates) the store with WAL mode and the schema applied.
func New(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			tf     INTEGER NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			type       TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			data       TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);

		CREATE TABLE IF NOT EXISTS signals (
			id          TEXT PRIMARY KEY,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			entry       REAL NOT NULL,
			stop_loss   REAL NOT NULL,
			take_profit REAL NOT NULL,
			label       TEXT,
			score       REAL,
			issued_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Append implements gatebus.Sink: events accumulate in memory and are
// committed in one transaction per batch.
func (s *Store) Append(ev gatebus.Event) {
	s.mu.Lock()
	s.eventBatch = append(s.eventBatch, ev)
	n := len(s.eventBatch)
	s.mu.Unlock()

	if n >= defaultBatchSize {
		s.FlushEvents()
	}
}

// FlushEvents commits the pending event batch. Called on a timer by Run and
// on shutdown.
func (s *Store) FlushEvents() {
	s.mu.Lock()
	batch := s.eventBatch
	s.eventBatch = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[sqlite] begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO events (type, ts, data) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		log.Printf("[sqlite] prepare: %v", err)
		return
	}
	for _, ev := range batch {
		data, _ := json.Marshal(ev.Data)
		if _, err := stmt.Exec(ev.Type, ev.TS.Unix(), string(data)); err != nil {
			log.Printf("[sqlite] insert event: %v", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		log.Printf("[sqlite] commit events: %v", err)
	}
}

// Run flushes buffered events periodically until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	timer := time.NewTicker(defaultFlushDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.FlushEvents()
			return
		case <-timer.C:
			s.FlushEvents()
		}
	}
}

// SaveSignal journals one admitted trade signal.
func (s *Store) SaveSignal(sig *model.TradeSignal) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO signals (id, symbol, side, entry, stop_loss, take_profit, label, score, issued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.Symbol, string(sig.Side), sig.EntryPrice, sig.StopLoss,
		sig.TakeProfit, sig.Label, sig.Score, sig.IssuedAt.Unix(),
	)
	return err
}

// SaveBars inserts a batch of bars in one transaction. Duplicate
// (symbol, tf, ts) rows are ignored, so replays are idempotent.
func (s *Store) SaveBars(bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO bars (symbol, tf, ts, open, high, low, close)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.Exec(b.Symbol, int(b.TF), b.TS.Unix(),
			b.Open, b.High, b.Low, b.Close); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadBars reads stored bars for one symbol and timeframe, oldest first,
// within [from, to). Used by the backtest replay.
func (s *Store) LoadBars(symbol string, tf model.Timeframe, from, to time.Time) ([]model.Bar, error) {
	rows, err := s.db.Query(
		`SELECT ts, open, high, low, close FROM bars
		 WHERE symbol = ? AND tf = ? AND ts >= ? AND ts < ?
		 ORDER BY ts ASC`,
		symbol, int(tf), from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var ts int64
		b := model.Bar{Symbol: symbol, TF: tf}
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, err
		}
		b.TS = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close flushes pending events and closes the database.
func (s *Store) Close() error {
	s.FlushEvents()
	return s.db.Close()
}
