package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func statusFor(code string) int {
	switch code {
	case "validation":
		return http.StatusBadRequest
	case "not_found", "no_data":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "no_forecast_for_date":
		return http.StatusUnprocessableEntity
	case "upstream", "malformed_upstream":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	code := errs.Code(err)
	status := statusFor(code)

	message := err.Error()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway:
		logger.Error().Err(err).Msg("request failed")
		message = "internal error"
	case code == "not_found":
		// Unknown org and wrong secret must look the same to the caller.
		message = "not found"
	default:
		logger.Warn().Err(err).Str("code", code).Msg("request rejected")
	}

	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
