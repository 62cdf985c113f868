package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bher20/powerdash/internal/billing"
	"github.com/bher20/powerdash/internal/tariff"
	"github.com/bher20/powerdash/internal/telemetry"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tariff.ErrUnknownSchedule):
		return http.StatusNotFound
	case errors.Is(err, tariff.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrNoUsableReading),
		errors.Is(err, telemetry.ErrUpstream),
		errors.Is(err, telemetry.ErrNoSample):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// floatParam reads a required numeric query parameter.
func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing query parameter %q", tariff.ErrInvalidInput, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: query parameter %q is not a number", tariff.ErrInvalidInput, name)
	}
	return v, nil
}
