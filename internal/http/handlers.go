package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

const adminTokenHeader = "X-Admin-Token"

type handlers struct {
	advisor Advisor
	logger  zerolog.Logger
}

type registerRequest struct {
	Org         string `json:"org"`
	URL         string `json:"url"`
	Bucket      string `json:"bucket"`
	Measurement string `json:"measurement"`
	Field       string `json:"field"`
}

type registerResponse struct {
	Org    string `json:"org"`
	Secret string `json:"secret"`
}

type priceRequest struct {
	Date  string   `json:"date"`
	Price *float64 `json:"price"`
}

type priceResponse struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

type amountRequest struct {
	Amount *float64 `json:"amount"`
}

func (h *handlers) registerTenant(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	secret, err := h.advisor.RegisterTenant(r.Context(), models.TenantProfile{
		Org:         req.Org,
		URL:         req.URL,
		Bucket:      req.Bucket,
		Measurement: req.Measurement,
		Field:       req.Field,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{Org: strings.TrimSpace(req.Org), Secret: secret})
}

func (h *handlers) getTenant(w http.ResponseWriter, r *http.Request) {
	p, err := h.advisor.LookupTenant(r.Context(), chi.URLParam(r, "org"), bearer(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) updateTenant(w http.ResponseWriter, r *http.Request) {
	var u models.TenantUpdate
	if err := decode(r, &u); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.advisor.UpdateTenant(r.Context(), chi.URLParam(r, "org"), bearer(r), u)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) syncTenant(w http.ResponseWriter, r *http.Request) {
	result, err := h.advisor.SyncNow(r.Context(), chi.URLParam(r, "org"), bearer(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) prediction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	horizon := 0
	if raw := q.Get("horizon"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, h.logger, errs.Validation("horizon %q is not a number", raw))
			return
		}
		horizon = n
	}

	p, err := h.advisor.RequestPrediction(r.Context(), chi.URLParam(r, "org"), bearer(r), q.Get("pump"), horizon)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) submitPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Date == "" || req.Price == nil {
		writeError(w, h.logger, errs.Validation("date and price are required"))
		return
	}
	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		writeError(w, h.logger, errs.Validation("date %q must use YYYY-MM-DD", req.Date))
		return
	}

	if err := h.advisor.SubmitPrice(r.Context(), chi.URLParam(r, "org"), bearer(r), date, *req.Price); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{Date: req.Date, Price: *req.Price})
}

func (h *handlers) recordUsage(w http.ResponseWriter, r *http.Request) {
	h.recordEvent(w, r, h.advisor.RecordUsage)
}

func (h *handlers) recordRestock(w http.ResponseWriter, r *http.Request) {
	h.recordEvent(w, r, h.advisor.RecordRestock)
}

type recordFunc func(ctx context.Context, org, secret, pumpID string, amount float64) (models.LedgerEvent, error)

func (h *handlers) recordEvent(w http.ResponseWriter, r *http.Request, record recordFunc) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Amount == nil {
		writeError(w, h.logger, errs.Validation("amount is required"))
		return
	}

	e, err := record(r.Context(), chi.URLParam(r, "org"), bearer(r), chi.URLParam(r, "pump"), *req.Amount)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *handlers) stock(w http.ResponseWriter, r *http.Request) {
	p, err := h.advisor.Stock(r.Context(), chi.URLParam(r, "org"), bearer(r), chi.URLParam(r, "pump"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.advisor.ResetAll(r.Context(), r.Header.Get(adminTokenHeader)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Warn().Msg("all tenants and ledger state reset")
	w.WriteHeader(http.StatusNoContent)
}

// bearer extracts the tenant secret from the Authorization header.
func bearer(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Validation("invalid request body: %v", err)
	}
	return nil
}
