package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"backtester/internal/errors"
	"backtester/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.NewStoreError("open", "", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewStoreError("init schema", "", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily OHLCV bars
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		prev_close REAL NOT NULL,
		suspended INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, date)
	);

	-- Benchmark index closes
	CREATE TABLE IF NOT EXISTS benchmark (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		date DATETIME NOT NULL,
		close REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, date)
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_date ON bars(symbol, date);
	CREATE INDEX IF NOT EXISTS idx_benchmark_symbol_date ON benchmark(symbol, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBars upserts bars for a symbol in a single transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("save bars", symbol, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, date, open, high, low, close, volume, prev_close, suspended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewStoreError("save bars", symbol, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		suspended := 0
		if b.Suspended {
			suspended = 1
		}
		_, err := stmt.ExecContext(ctx, symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.PrevClose, suspended)
		if err != nil {
			return errors.NewStoreError("save bars", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("save bars", symbol, err)
	}
	return nil
}

// GetBars retrieves bars for a symbol ordered by date. Zero from/to
// bounds are open-ended.
func (s *SQLiteStore) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	if to.IsZero() {
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume, prev_close, suspended
		FROM bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from, to)
	if err != nil {
		return nil, errors.NewStoreError("get bars", symbol, err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var suspended int
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.PrevClose, &suspended); err != nil {
			return nil, errors.NewStoreError("scan bar", symbol, err)
		}
		b.Suspended = suspended != 0
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("get bars", symbol, err)
	}
	return bars, nil
}

// GetBarsFreshness returns the date of the most recent bar for a symbol.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, symbol string) (time.Time, error) {
	// MAX(date) strips the column's DATETIME decltype, so the driver hands
	// back a string the sql package cannot scan into a time. Selecting the
	// column directly keeps the type information.
	var ts time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT date FROM bars WHERE symbol = ? ORDER BY date DESC LIMIT 1
	`, symbol).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.NewStoreError("bars freshness", symbol, err)
	}
	return ts, nil
}

// ListSymbols returns the distinct symbols with stored bars.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, errors.NewStoreError("list symbols", "", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, errors.NewStoreError("list symbols", "", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// SaveBenchmark upserts benchmark closes for an index symbol.
func (s *SQLiteStore) SaveBenchmark(ctx context.Context, symbol string, points []models.BenchmarkPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("save benchmark", symbol, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO benchmark (symbol, date, close) VALUES (?, ?, ?)
	`)
	if err != nil {
		return errors.NewStoreError("save benchmark", symbol, err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, symbol, p.Date, p.Close); err != nil {
			return errors.NewStoreError("save benchmark", symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("save benchmark", symbol, err)
	}
	return nil
}

// GetBenchmark retrieves benchmark closes ordered by date.
func (s *SQLiteStore) GetBenchmark(ctx context.Context, symbol string, from, to time.Time) ([]models.BenchmarkPoint, error) {
	if to.IsZero() {
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, close FROM benchmark
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from, to)
	if err != nil {
		return nil, errors.NewStoreError("get benchmark", symbol, err)
	}
	defer rows.Close()

	var points []models.BenchmarkPoint
	for rows.Next() {
		var p models.BenchmarkPoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, errors.NewStoreError("scan benchmark", symbol, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
