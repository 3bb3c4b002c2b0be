package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func TestNewDB(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	assert.NotNil(t, db)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "path", "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestDB_Migrate(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('candles', 'orders', 'trades', 'positions')")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func sampleCandle(symbol string, openTime time.Time, close string) models.Candle {
	return models.Candle{
		Symbol: symbol, Interval: "5m",
		OpenTime: openTime, CloseTime: openTime.Add(5 * time.Minute),
		Open: mustDecimal("150"), High: mustDecimal("155"), Low: mustDecimal("149"), Close: mustDecimal(close), Volume: mustDecimal("1000000"),
		IsClosed: true,
	}
}

func TestDB_SaveCandles(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	candles := []models.Candle{
		sampleCandle("BTCUSDT", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "154"),
		sampleCandle("BTCUSDT", time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), "157"),
	}

	require.NoError(t, db.SaveCandles(candles))

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM candles WHERE symbol = 'BTCUSDT'")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDB_SaveCandles_Upsert(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	openTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveCandles([]models.Candle{sampleCandle("BTCUSDT", openTime, "150")}))
	require.NoError(t, db.SaveCandles([]models.Candle{sampleCandle("BTCUSDT", openTime, "160")}))

	var count int
	_ = db.Get(&count, "SELECT COUNT(*) FROM candles WHERE symbol = 'BTCUSDT'")
	assert.Equal(t, 1, count)

	got, err := db.GetCandles("BTCUSDT", "5m", openTime, openTime)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Close.Equal(mustDecimal("160")))
}

func TestDB_GetCandles_RangeAndOrder(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	day1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	candles := []models.Candle{
		sampleCandle("BTCUSDT", day3, "160"),
		sampleCandle("BTCUSDT", day1, "150"),
		sampleCandle("BTCUSDT", day2, "155"),
		sampleCandle("ETHUSDT", day1, "140"),
	}
	require.NoError(t, db.SaveCandles(candles))

	got, err := db.GetCandles("BTCUSDT", "5m", day1, day2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Close.Equal(mustDecimal("150")))
	assert.True(t, got[1].Close.Equal(mustDecimal("155")))
}

func TestDB_GetCandles_Empty(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	got, err := db.GetCandles("NONEXISTENT", "5m", start, end)
	require.NoError(t, err)
	assert.Empty(t, got)
}
