package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists simulated fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the trade journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id   TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		entry       REAL NOT NULL,
		stop_loss   REAL NOT NULL,
		take_profit REAL NOT NULL,
		label       TEXT,
		score       REAL,
		opened_at   DATETIME NOT NULL,
		exit        REAL,
		won         INTEGER,
		pnl_pips    REAL,
		closed_at   DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordOpen persists the opening of a position.
func (j *Journal) RecordOpen(p *Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (signal_id, symbol, side, entry, stop_loss, take_profit, label, score, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Symbol, string(p.Side), p.EntryPrice, p.StopLoss, p.TakeProfit,
		p.Label, p.Score, p.OpenedAt.Format(time.RFC3339),
	)
	return err
}

// RecordClose updates the journaled position with its exit.
func (j *Journal) RecordClose(ct ClosedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	won := 0
	if ct.Won {
		won = 1
	}
	_, err := j.db.Exec(
		`UPDATE trades SET exit = ?, won = ?, pnl_pips = ?, closed_at = ?
		 WHERE signal_id = ?`,
		ct.ExitPrice, won, ct.PnLPips, ct.ClosedAt.Format(time.RFC3339), ct.ID,
	)
	return err
}

// TradeRecord is one row of the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	SignalID string  `json:"signal_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Entry    float64 `json:"entry"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	OpenedAt string  `json:"opened_at"`
	PnLPips  float64 `json:"pnl_pips"`
}

// Trades returns the last N journaled trades, newest first.
func (j *Journal) Trades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, signal_id, symbol, side, entry, COALESCE(label, ''), COALESCE(score, 0),
		        opened_at, COALESCE(pnl_pips, 0)
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.SignalID, &t.Symbol, &t.Side, &t.Entry,
			&t.Label, &t.Score, &t.OpenedAt, &t.PnLPips); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
