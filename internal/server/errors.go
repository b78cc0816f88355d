package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spherical/scan2docx/internal/domain"
	"github.com/spherical/scan2docx/internal/jobs"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error to its HTTP status and reported kind.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, string(domain.ErrorTypeValidation)
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, jobs.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, jobs.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, jobs.ErrShuttingDown):
		return http.StatusServiceUnavailable, "unavailable"
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest, string(kind)
	case domain.ErrorTypeRender:
		return http.StatusUnprocessableEntity, string(kind)
	case domain.ErrorTypeOCR:
		return http.StatusBadGateway, string(kind)
	case domain.ErrorTypeConfig:
		return http.StatusServiceUnavailable, string(kind)
	case domain.ErrorTypeCancelled:
		return http.StatusRequestTimeout, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)

	msg := err.Error()
	var de *domain.DomainError
	if errors.As(err, &de) {
		msg = domain.UserMessage(err)
	}

	evt := h.logger.WithContext(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		evt = h.logger.WithContext(r.Context()).Error()
	}
	evt.Err(err).Int("status", status).Str("kind", kind).Msg("Request failed")

	writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
