// Package journal persists closed trades and risk events to SQLite so a
// session's history survives restarts and feeds post-hoc review.
package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	apperrors "okx-perp-trader/internal/errors"
	"okx-perp-trader/internal/models"
)

// Trade is one completed round trip.
type Trade struct {
	ID         int64
	Symbol     string
	Side       models.Direction
	Size       float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Reason     string // exit reason, e.g. "stop_loss", "trailing_stop", "signal"
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// RiskEvent is a recorded risk-state transition.
type RiskEvent struct {
	ID        int64
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Journal is the SQLite-backed trade log.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	size REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	pnl REAL NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	opened_at DATETIME NOT NULL,
	closed_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades(closed_at);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS risk_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
`

// Open opens (creating if needed) the journal database at path.
func Open(path string, logger zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.Wrap(err, "creating journal directory")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.Wrap(err, "opening journal database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, "initializing journal schema")
	}

	return &Journal{
		db:     db,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordTrade persists a completed trade.
func (j *Journal) RecordTrade(t Trade) error {
	_, err := j.db.Exec(
		`INSERT INTO trades (symbol, side, size, entry_price, exit_price, pnl, reason, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.Side), t.Size, t.EntryPrice, t.ExitPrice, t.PnL, t.Reason,
		t.OpenedAt.UTC(), t.ClosedAt.UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "recording trade")
	}
	return nil
}

// RecordRiskEvent persists a risk-state transition.
func (j *Journal) RecordRiskEvent(kind, detail string) error {
	_, err := j.db.Exec(
		`INSERT INTO risk_events (kind, detail, created_at) VALUES (?, ?, ?)`,
		kind, detail, time.Now().UTC(),
	)
	if err != nil {
		return apperrors.Wrap(err, "recording risk event")
	}
	return nil
}

// RecentTrades returns the most recent n trades, newest first.
func (j *Journal) RecentTrades(n int) ([]Trade, error) {
	rows, err := j.db.Query(
		`SELECT id, symbol, side, size, entry_price, exit_price, pnl, reason, opened_at, closed_at
		 FROM trades ORDER BY closed_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, apperrors.Wrap(err, "querying trades")
	}
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		var t Trade
		var side string
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Size, &t.EntryPrice, &t.ExitPrice,
			&t.PnL, &t.Reason, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, apperrors.Wrap(err, "scanning trade")
		}
		t.Side = models.Direction(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// DailyPnL returns the summed realized PnL of trades closed on the
// given UTC date.
func (j *Journal) DailyPnL(day time.Time) (float64, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var pnl sql.NullFloat64
	err := j.db.QueryRow(
		`SELECT SUM(pnl) FROM trades WHERE closed_at >= ? AND closed_at < ?`,
		start, end,
	).Scan(&pnl)
	if err != nil {
		return 0, apperrors.Wrap(err, "querying daily pnl")
	}
	return pnl.Float64, nil
}

// Stats summarizes the journal for reporting.
type Stats struct {
	Trades   int
	Wins     int
	TotalPnL float64
}

// Summary aggregates all recorded trades.
func (j *Journal) Summary() (Stats, error) {
	var s Stats
	err := j.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0), COALESCE(SUM(pnl), 0)
		 FROM trades`,
	).Scan(&s.Trades, &s.Wins, &s.TotalPnL)
	if err != nil {
		return Stats{}, apperrors.Wrap(err, "querying summary")
	}
	return s, nil
}
