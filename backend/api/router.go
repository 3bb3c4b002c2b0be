package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ocho011/ict-2025-sub000/backend/config"
	"github.com/ocho011/ict-2025-sub000/backend/data"
	"github.com/ocho011/ict-2025-sub000/backend/engine"
	"github.com/ocho011/ict-2025-sub000/backend/realtime"
)

func zerologMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("key_id", AuditKeyIDFromCtx(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// NewRouter wires the operator HTTP surface: health/readiness probes, a
// read-only view of positions and orders, process metrics, a shutdown
// trigger, and the operator-dashboard WebSocket broadcast channel. The
// surface is deliberately small — a handful of routes don't justify a
// router library's middleware stack, rate limiter, or CORS layer.
func NewRouter(cfg *config.Config, eng *engine.TradingEngine, store data.OrderStore, wsManager *realtime.WebSocketManager) http.Handler {
	h := NewHandler(cfg, eng, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.HealthHandler)
	mux.HandleFunc("/readyz", h.ReadyHandler)
	mux.HandleFunc("/metrics", h.MetricsHandler)
	mux.HandleFunc("/ws", wsManager.HandleWebSocket)

	auth := AuthMiddleware(cfg)
	mux.Handle("/positions", auth(http.HandlerFunc(h.PositionsHandler)))
	mux.Handle("/orders", auth(http.HandlerFunc(h.OrdersHandler)))
	mux.Handle("/shutdown", auth(http.HandlerFunc(h.ShutdownHandler)))

	return AuditMiddleware(zerologMiddleware(mux))
}
