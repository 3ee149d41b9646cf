package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/metrics"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// Advisor is the set of commands served over HTTP.
type Advisor interface {
	RegisterTenant(ctx context.Context, p models.TenantProfile) (string, error)
	LookupTenant(ctx context.Context, org, secret string) (*models.TenantProfile, error)
	UpdateTenant(ctx context.Context, org, secret string, u models.TenantUpdate) (*models.TenantProfile, error)
	SyncNow(ctx context.Context, org, secret string) (models.SyncResult, error)
	RequestPrediction(ctx context.Context, org, secret, pumpID string, horizon int) (*models.Prediction, error)
	SubmitPrice(ctx context.Context, org, secret string, date time.Time, price float64) error
	RecordUsage(ctx context.Context, org, secret, pumpID string, amount float64) (models.LedgerEvent, error)
	RecordRestock(ctx context.Context, org, secret, pumpID string, amount float64) (models.LedgerEvent, error)
	Stock(ctx context.Context, org, secret, pumpID string) (models.StockProjection, error)
	ResetAll(ctx context.Context, adminToken string) error
}

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Advisor Advisor
	DB      StatusDB
	Feed    FeedStatusSource
	Metrics *metrics.Metrics
	// MetricsHandler serves /metrics.
	MetricsHandler http.Handler
	Logger         zerolog.Logger
}

// NewRouter builds the chi router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With().Str("component", "http").Logger()
	h := &handlers{advisor: cfg.Advisor, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger, cfg.Metrics))

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	r.Handle("/status", NewStatusHandler(cfg.DB, cfg.Feed))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Post("/tenants", h.registerTenant)
	r.Route("/tenants/{org}", func(r chi.Router) {
		r.Get("/", h.getTenant)
		r.Patch("/", h.updateTenant)
		r.Post("/sync", h.syncTenant)
		r.Get("/prediction", h.prediction)
		r.Post("/prices", h.submitPrice)
		r.Route("/pumps/{pump}", func(r chi.Router) {
			r.Post("/usage", h.recordUsage)
			r.Post("/restock", h.recordRestock)
			r.Get("/stock", h.stock)
		})
	})
	r.Post("/admin/reset", h.reset)

	return r
}

// accessLog logs one line per request and records request metrics.
func accessLog(logger zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			duration := time.Since(start)
			m.RecordHTTPRequest(r.Method, route, status, duration)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", status).
				Dur("duration", duration).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request served")
		})
	}
}
