// Package api exposes the minimal HTTP operator surface over the trading
// engine: health/readiness probes, a read-only view of positions and
// orders, process metrics, and a shutdown trigger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/data"
	"github.com/ocho011/ict-2025-sub000/backend/engine"
)

// APIError is the JSON body returned for any non-2xx response.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handler holds the dependencies the operator routes read from. It carries
// no business logic of its own: every route reads through to the engine or
// the order store.
type Handler struct {
	cfg       *config.Config
	engine    *engine.TradingEngine
	store     data.OrderStore
	startTime time.Time
}

// NewHandler constructs a Handler. store may be nil in tests that don't
// exercise the positions/orders routes.
func NewHandler(cfg *config.Config, eng *engine.TradingEngine, store data.OrderStore) *Handler {
	return &Handler{cfg: cfg, engine: eng, store: store, startTime: time.Now()}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string, code ...string) {
	errCode := "UNKNOWN_ERROR"
	if len(code) > 0 {
		errCode = code[0]
	} else {
		switch status {
		case http.StatusBadRequest:
			errCode = "BAD_REQUEST"
		case http.StatusUnauthorized:
			errCode = "UNAUTHORIZED"
		case http.StatusForbidden:
			errCode = "FORBIDDEN"
		case http.StatusNotFound:
			errCode = "NOT_FOUND"
		case http.StatusServiceUnavailable:
			errCode = "SERVICE_UNAVAILABLE"
		case http.StatusInternalServerError:
			errCode = "INTERNAL_ERROR"
		}
	}
	writeJSON(w, status, APIError{Error: message, Code: errCode})
}

// HealthHandler reports process liveness. It never inspects engine state —
// a process that can answer HTTP is, by definition, alive.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports whether the engine is in a state where it is
// actually trading, not merely running as a process.
func (h *Handler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	state := h.engine.State()
	if state != engine.StateRunning {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"state":  state.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": state.String()})
}

// PositionsHandler returns every position on record.
func (h *Handler) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.GetAllPositions()
	if err != nil {
		log.Error().Err(err).Msg("failed to load positions")
		writeError(w, http.StatusInternalServerError, "failed to load positions")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// OrdersHandler returns the order history on record.
func (h *Handler) OrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.GetAllOrders()
	if err != nil {
		log.Error().Err(err).Msg("failed to load orders")
		writeError(w, http.StatusInternalServerError, "failed to load orders")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// MetricsHandler reports process-level runtime metrics plus uptime and
// current engine state, for a dashboard or scrape, not for alerting.
func (h *Handler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"engine_state":   h.engine.State().String(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc":     mem.HeapAlloc,
		"heap_objects":   mem.HeapObjects,
		"num_gc":         mem.NumGC,
	})
}

// ShutdownHandler drives the engine through its Shutdown transition. The
// HTTP server itself is stopped by main's signal handler once this returns
// — this route only triggers the engine side of a graceful stop.
func (h *Handler) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ShutdownTimeout)
	defer cancel()

	if err := h.engine.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown request failed")
		writeError(w, http.StatusInternalServerError, "shutdown failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting_down"})
}
