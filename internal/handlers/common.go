// Package handlers exposes the HTTP surface. Handlers decode and trim input,
// delegate to the domain services, and map domain error kinds onto statuses:
// validation 400 (not-found lookups 404), conflict 409, policy 422,
// unavailable 503.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fbmeirelles/horamarcada/internal/booking"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := booking.CodeOf(err)
	status := http.StatusInternalServerError
	switch booking.KindOf(err) {
	case booking.KindValidation:
		status = http.StatusBadRequest
		if code == booking.CodeAppointmentNotFound || code == booking.CodePaymentIntentNotFound {
			status = http.StatusNotFound
		}
	case booking.KindConflict:
		status = http.StatusConflict
	case booking.KindPolicy:
		status = http.StatusUnprocessableEntity
	case booking.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status >= 500 {
		logger.Error("request failed", "error", err)
		msg = "internal error"
		if booking.KindOf(err) == booking.KindUnavailable {
			msg = "service temporarily unavailable"
		}
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
