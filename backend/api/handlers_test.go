package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/data"
	"github.com/ocho011/ict-2025-sub000/backend/engine"
	"github.com/ocho011/ict-2025-sub000/backend/models"
)

type fakeOrderStore struct {
	orders    []models.Order
	positions []models.Position
	err       error
}

func (s *fakeOrderStore) SaveOrder(order models.Order) error           { return nil }
func (s *fakeOrderStore) GetOrder(id string) (*models.Order, error)    { return nil, data.ErrNotFound }
func (s *fakeOrderStore) GetAllOrders() ([]models.Order, error)        { return s.orders, s.err }
func (s *fakeOrderStore) DeleteOrder(id string) error                  { return nil }
func (s *fakeOrderStore) SavePosition(p models.Position) error         { return nil }
func (s *fakeOrderStore) GetPosition(symbol string) (*models.Position, error) {
	return nil, data.ErrNotFound
}
func (s *fakeOrderStore) GetAllPositions() ([]models.Position, error) { return s.positions, s.err }
func (s *fakeOrderStore) SaveTrade(t models.Trade) error               { return nil }

func testHandler(t *testing.T, store *fakeOrderStore) *Handler {
	t.Helper()
	cfg := &config.Config{ShutdownTimeout: time.Second}
	eng := engine.NewTradingEngine(cfg, nil, nil, nil, nil, nil, nil)
	return NewHandler(cfg, eng, store)
}

func TestHealthHandler_AlwaysOK(t *testing.T) {
	h := testHandler(t, &fakeOrderStore{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.HealthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyHandler_NotReadyBeforeRunning(t *testing.T) {
	h := testHandler(t, &fakeOrderStore{})
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	h.ReadyHandler(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPositionsHandler_ReturnsStorePositions(t *testing.T) {
	store := &fakeOrderStore{positions: []models.Position{{Symbol: "BTCUSDT"}}}
	h := testHandler(t, store)
	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	rec := httptest.NewRecorder()

	h.PositionsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BTCUSDT")
}

func TestOrdersHandler_ReturnsStoreOrders(t *testing.T) {
	store := &fakeOrderStore{orders: []models.Order{{ID: "order-1"}}}
	h := testHandler(t, store)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	h.OrdersHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order-1")
}

func TestOrdersHandler_StoreErrorReturns500(t *testing.T) {
	store := &fakeOrderStore{err: assert.AnError}
	h := testHandler(t, store)
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	h.OrdersHandler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsHandler_ReportsUptimeAndState(t *testing.T) {
	h := testHandler(t, &fakeOrderStore{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	h.MetricsHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine_state")
}

func TestShutdownHandler_WrongStateReturns500(t *testing.T) {
	h := testHandler(t, &fakeOrderStore{})
	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	req = req.WithContext(context.Background())
	rec := httptest.NewRecorder()

	h.ShutdownHandler(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
