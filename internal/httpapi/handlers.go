// Package httpapi exposes the dashboard's command interface over HTTP for
// the presentation layer: weather views, explicit refresh/retry, location
// selection, plus health and metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mbeverdam/weatherdash/internal/dashboard"
	"github.com/mbeverdam/weatherdash/internal/observability"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dash      *dashboard.Dashboard
	logger    *zap.Logger
	startTime time.Time
	// CachePing, when set, is called to check the storage backend during
	// health checks (used with the memcached store backend).
	cachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(dash *dashboard.Dashboard, logger *zap.Logger, cachePing func() error) *Handler {
	return &Handler{
		dash:      dash,
		logger:    logger,
		startTime: time.Now(),
		cachePing: cachePing,
	}
}

// GetWeather handles GET /api/weather. The first call runs the cold-start
// refresh decision; later calls return the current view.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	view := h.dash.Init(r.Context())
	writeJSON(w, http.StatusOK, view)
}

// PostRefresh handles POST /api/refresh: a user-triggered refresh that
// always bypasses freshness.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	view := h.dash.Refresh(r.Context())
	writeJSON(w, http.StatusOK, view)
}

// PostRetry handles POST /api/retry, the presentation layer's retry
// affordance after its own request failures.
func (h *Handler) PostRetry(w http.ResponseWriter, r *http.Request) {
	view := h.dash.RetryLoad(r.Context())
	writeJSON(w, http.StatusOK, view)
}

// PostLocation handles POST /api/location/{id}: switches the active location
// and refreshes.
func (h *Handler) PostLocation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", "location id is required")
		return
	}
	if err := h.dash.SelectLocation(id); err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_LOCATION", err.Error())
		return
	}
	view := h.dash.Refresh(r.Context())
	writeJSON(w, http.StatusOK, view)
}

// GetHealth handles GET /health. Data loading has no hard-failure state, so
// health reflects only process liveness and storage reachability.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := map[string]string{"store": "healthy"}
	if h.cachePing != nil {
		if err := h.cachePing(); err != nil {
			checks["store"] = "unhealthy"
			status = "degraded"
			h.logger.Warn("store health check failed", zap.Error(err))
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":  status,
		"uptime":  time.Since(h.startTime).String(),
		"checks":  checks,
		"version": "1",
	})
}

// NewRouter wires routes and middleware. gateway may be nil when disabled.
func NewRouter(h *Handler, gateway http.Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/weather", h.GetWeather).Methods("GET")
	api.HandleFunc("/refresh", h.PostRefresh).Methods("POST")
	api.HandleFunc("/retry", h.PostRetry).Methods("POST")
	api.HandleFunc("/location/{id}", h.PostLocation).Methods("POST")

	if gateway != nil {
		router.PathPrefix("/gw").Handler(http.StripPrefix("/gw", gateway))
	}
	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID, _ = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
