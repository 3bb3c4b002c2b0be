package data

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/models"
)

func newTestStore(t *testing.T) *SQLOrderStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOrderStore(db)
}

func TestOrderStore_SaveOrder(t *testing.T) {
	store := newTestStore(t)

	order := models.Order{
		ID:             "order-123",
		Symbol:         "BTCUSDT",
		Side:           models.OrderSideBuy,
		Type:           models.OrderTypeMarket,
		Quantity:       mustDecimal("0.5"),
		Price:          mustDecimal("50000"),
		Status:         models.OrderStatusFilled,
		FilledQuantity: mustDecimal("0.5"),
		AveragePrice:   mustDecimal("50100"),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	require.NoError(t, store.SaveOrder(order))

	retrieved, err := store.GetOrder("order-123")
	require.NoError(t, err)
	assert.Equal(t, order.ID, retrieved.ID)
	assert.Equal(t, order.Symbol, retrieved.Symbol)
	assert.Equal(t, order.Side, retrieved.Side)
	assert.True(t, order.Quantity.Equal(retrieved.Quantity))
}

func TestOrderStore_SaveOrder_Update(t *testing.T) {
	store := newTestStore(t)

	order := models.Order{
		ID:        "order-123",
		Symbol:    "BTCUSDT",
		Side:      models.OrderSideBuy,
		Type:      models.OrderTypeMarket,
		Quantity:  mustDecimal("0.5"),
		Status:    models.OrderStatusNew,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SaveOrder(order))

	order.Status = models.OrderStatusFilled
	order.FilledQuantity = mustDecimal("0.5")
	order.AveragePrice = mustDecimal("50000")
	order.UpdatedAt = time.Now()
	require.NoError(t, store.SaveOrder(order))

	retrieved, err := store.GetOrder("order-123")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, retrieved.Status)
	assert.True(t, mustDecimal("0.5").Equal(retrieved.FilledQuantity))
}

func TestOrderStore_GetOrder_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetOrder("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStore_GetAllOrders(t *testing.T) {
	store := newTestStore(t)

	orders := []models.Order{
		{ID: "order-1", Symbol: "BTCUSDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket,
			Quantity: mustDecimal("0.5"), Status: models.OrderStatusFilled,
			CreatedAt: time.Now().Add(-2 * time.Hour), UpdatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "order-2", Symbol: "ETHUSDT", Side: models.OrderSideSell, Type: models.OrderTypeLimit,
			Quantity: mustDecimal("1.0"), Price: mustDecimal("3000"), Status: models.OrderStatusNew,
			CreatedAt: time.Now().Add(-1 * time.Hour), UpdatedAt: time.Now().Add(-1 * time.Hour)},
		{ID: "order-3", Symbol: "BTCUSDT", Side: models.OrderSideSell, Type: models.OrderTypeMarket,
			Quantity: mustDecimal("0.25"), Status: models.OrderStatusFilled,
			CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}
	for _, order := range orders {
		require.NoError(t, store.SaveOrder(order))
	}

	retrieved, err := store.GetAllOrders()
	require.NoError(t, err)
	require.Len(t, retrieved, 3)
	assert.Equal(t, "order-3", retrieved[0].ID)
	assert.Equal(t, "order-2", retrieved[1].ID)
	assert.Equal(t, "order-1", retrieved[2].ID)
}

func TestOrderStore_DeleteOrder(t *testing.T) {
	store := newTestStore(t)

	order := models.Order{
		ID: "order-123", Symbol: "BTCUSDT", Side: models.OrderSideBuy, Type: models.OrderTypeMarket,
		Quantity: mustDecimal("0.5"), Status: models.OrderStatusFilled,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SaveOrder(order))
	require.NoError(t, store.DeleteOrder("order-123"))

	_, err := store.GetOrder("order-123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStore_SavePosition(t *testing.T) {
	store := newTestStore(t)

	position := models.Position{
		Symbol:     "BTCUSDT",
		Side:       models.PositionLong,
		Quantity:   mustDecimal("0.5"),
		EntryPrice: mustDecimal("50000"),
		Leverage:   10,
		UpdatedAt:  time.Now(),
	}

	require.NoError(t, store.SavePosition(position))

	retrieved, err := store.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, position.Symbol, retrieved.Symbol)
	assert.True(t, position.Quantity.Equal(retrieved.Quantity))
	assert.True(t, position.EntryPrice.Equal(retrieved.EntryPrice))
	assert.Equal(t, position.Leverage, retrieved.Leverage)
}

func TestOrderStore_SavePosition_Update(t *testing.T) {
	store := newTestStore(t)

	position := models.Position{
		Symbol: "BTCUSDT", Side: models.PositionLong,
		Quantity: mustDecimal("0.5"), EntryPrice: mustDecimal("50000"), Leverage: 10, UpdatedAt: time.Now(),
	}
	require.NoError(t, store.SavePosition(position))

	position.Quantity = mustDecimal("1.0")
	position.EntryPrice = mustDecimal("51000")
	position.UpdatedAt = time.Now()
	require.NoError(t, store.SavePosition(position))

	retrieved, err := store.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, mustDecimal("1.0").Equal(retrieved.Quantity))
	assert.True(t, mustDecimal("51000").Equal(retrieved.EntryPrice))
}

func TestOrderStore_GetAllPositions(t *testing.T) {
	store := newTestStore(t)

	positions := []models.Position{
		{Symbol: "BTCUSDT", Side: models.PositionLong, Quantity: mustDecimal("0.5"), EntryPrice: mustDecimal("50000"), UpdatedAt: time.Now()},
		{Symbol: "ETHUSDT", Side: models.PositionShort, Quantity: mustDecimal("2.0"), EntryPrice: mustDecimal("3000"), UpdatedAt: time.Now()},
		{Symbol: "AAVEUSDT", Side: models.PositionLong, Quantity: mustDecimal("10.0"), EntryPrice: mustDecimal("150"), UpdatedAt: time.Now()},
	}
	for _, pos := range positions {
		require.NoError(t, store.SavePosition(pos))
	}

	retrieved, err := store.GetAllPositions()
	require.NoError(t, err)
	require.Len(t, retrieved, 3)
	assert.Equal(t, "AAVEUSDT", retrieved[0].Symbol)
	assert.Equal(t, "BTCUSDT", retrieved[1].Symbol)
	assert.Equal(t, "ETHUSDT", retrieved[2].Symbol)
}

func TestOrderStore_SaveTrade(t *testing.T) {
	store := newTestStore(t)

	trade := models.Trade{
		ID: "trade-123", OrderID: "order-123", Symbol: "BTCUSDT", Side: models.OrderSideBuy,
		Quantity: mustDecimal("0.5"), Price: mustDecimal("50000"), ExecutedAt: time.Now(),
	}

	require.NoError(t, store.SaveTrade(trade))

	var count int
	require.NoError(t, store.db.Get(&count, "SELECT COUNT(*) FROM trades WHERE id = ?", "trade-123"))
	assert.Equal(t, 1, count)
}

func TestOrderStore_EmptyDatabase(t *testing.T) {
	store := newTestStore(t)

	orders, err := store.GetAllOrders()
	require.NoError(t, err)
	assert.Empty(t, orders)

	positions, err := store.GetAllPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}
