// Package data hosts the market-data and user-data streamers that feed the
// event bus, plus the local candle/order persistence layer.
package data

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// DB wraps the sqlx database connection used for candle history and the
// order/trade/position audit trail. The live position and order state the
// engine acts on lives in execution.PositionCache; this store exists so that
// trade history survives a restart and can be queried by the API.
type DB struct {
	*sqlx.DB
}

// NewDB opens (creating if necessary) a SQLite database at databasePath and
// runs its migrations.
func NewDB(databasePath string) (*DB, error) {
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite", databasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Str("path", databasePath).Msg("connected to database")

	wrapper := &DB{db}
	if err := wrapper.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return wrapper, nil
}

// Migrate creates the schema if it does not already exist. Decimal columns
// are stored as TEXT: shopspring/decimal round-trips through database/sql's
// Scanner/Valuer as a string, which avoids float64 precision loss on
// quantities and prices.
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		open_time DATETIME NOT NULL,
		close_time DATETIME NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		volume TEXT NOT NULL,
		is_closed BOOLEAN NOT NULL,
		UNIQUE(symbol, interval, open_time)
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_interval ON candles(symbol, interval);
	CREATE INDEX IF NOT EXISTS idx_candles_open_time ON candles(open_time);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		stop_price TEXT NOT NULL DEFAULT '0',
		reduce_only BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		filled_quantity TEXT NOT NULL DEFAULT '0',
		average_price TEXT NOT NULL DEFAULT '0',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id)
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		side TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		unrealized_pnl TEXT NOT NULL DEFAULT '0',
		liquidation_price TEXT NOT NULL DEFAULT '0',
		entry_time DATETIME,
		updated_at DATETIME NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Info().Msg("database migrations complete")
	return nil
}

// SaveCandles upserts a batch of candles in one transaction, keyed on
// (symbol, interval, open_time). Used to persist historical backfills and
// closed-candle ticks for replay/backtesting.
func (db *DB) SaveCandles(candles []models.Candle) error {
	query := `
		INSERT INTO candles (symbol, interval, open_time, close_time, open, high, low, close, volume, is_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			is_closed = excluded.is_closed
	`

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, c := range candles {
		if _, err := tx.Exec(query, c.Symbol, c.Interval, c.OpenTime, c.CloseTime,
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(), c.IsClosed); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	return tx.Commit()
}

// GetCandles retrieves closed candles for symbol/interval within [start, end],
// ordered oldest first.
func (db *DB) GetCandles(symbol, interval string, start, end time.Time) ([]models.Candle, error) {
	var rows []candleRow
	query := `
		SELECT symbol, interval, open_time, close_time, open, high, low, close, volume, is_closed
		FROM candles
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC
	`
	if err := db.Select(&rows, query, symbol, interval, start, end); err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}

	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := r.toCandle()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// candleRow mirrors the candles table layout for sqlx scanning; decimal
// fields are scanned as strings and parsed explicitly rather than relying on
// decimal.Decimal's driver.Valuer/Scanner, since sqlite stores them as plain
// TEXT columns without a decimal-aware type affinity.
type candleRow struct {
	Symbol    string    `db:"symbol"`
	Interval  string    `db:"interval"`
	OpenTime  time.Time `db:"open_time"`
	CloseTime time.Time `db:"close_time"`
	Open      string    `db:"open"`
	High      string    `db:"high"`
	Low       string    `db:"low"`
	Close     string    `db:"close"`
	Volume    string    `db:"volume"`
	IsClosed  bool      `db:"is_closed"`
}

func (r candleRow) toCandle() (models.Candle, error) {
	open, err := decimalFromString(r.Open)
	if err != nil {
		return models.Candle{}, err
	}
	high, err := decimalFromString(r.High)
	if err != nil {
		return models.Candle{}, err
	}
	low, err := decimalFromString(r.Low)
	if err != nil {
		return models.Candle{}, err
	}
	cls, err := decimalFromString(r.Close)
	if err != nil {
		return models.Candle{}, err
	}
	vol, err := decimalFromString(r.Volume)
	if err != nil {
		return models.Candle{}, err
	}
	return models.Candle{
		Symbol: r.Symbol, Interval: r.Interval,
		OpenTime: r.OpenTime, CloseTime: r.CloseTime,
		Open: open, High: high, Low: low, Close: cls, Volume: vol,
		IsClosed: r.IsClosed,
	}, nil
}
