package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// StatusDB is the database view needed by the status endpoint.
type StatusDB interface {
	Ping() error
	GetTenantsCount(ctx context.Context) (int64, error)
	GetLedgerEventsCount(ctx context.Context) (int64, error)
	GetPricePointsCount(ctx context.Context) (int64, error)
}

// FeedStatusSource reports the request history of the price feed client.
type FeedStatusSource interface {
	Status() models.FeedStatus
}

// StatusHandler handles the /status endpoint.
type StatusHandler struct {
	db        StatusDB
	feed      FeedStatusSource
	startTime time.Time
}

// NewStatusHandler creates a new StatusHandler. Either source may be nil.
func NewStatusHandler(db StatusDB, feed FeedStatusSource) *StatusHandler {
	return &StatusHandler{
		db:        db,
		feed:      feed,
		startTime: time.Now(),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := models.StatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Database:      h.getDatabaseStatus(r.Context()),
	}
	if h.feed != nil {
		response.Feed = h.feed.Status()
	}
	if !response.Database.Connected {
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (h *StatusHandler) getDatabaseStatus(ctx context.Context) models.DatabaseStatus {
	status := models.DatabaseStatus{
		Connected: false,
	}

	if h.db == nil {
		return status
	}

	// Check database connection
	if err := h.db.Ping(); err != nil {
		return status
	}
	status.Connected = true

	if count, err := h.db.GetTenantsCount(ctx); err == nil {
		status.TenantsStored = count
	}
	if count, err := h.db.GetLedgerEventsCount(ctx); err == nil {
		status.LedgerEventsTotal = count
	}
	if count, err := h.db.GetPricePointsCount(ctx); err == nil {
		status.PricePointsStored = count
	}

	return status
}
