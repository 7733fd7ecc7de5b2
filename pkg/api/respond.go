package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aerosuite/platform/pkg/apperr"
	"github.com/aerosuite/platform/pkg/log"
)

// errorEnvelope is the uniform failure response body.
type errorEnvelope struct {
	Status    string         `json:"status"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Details   map[string]any `json:"details,omitempty"`
}

// pageEnvelope is the uniform list response body.
type pageEnvelope struct {
	Data       any `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writePage(w http.ResponseWriter, data any, total int, p pagination) {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	writeJSON(w, http.StatusOK, pageEnvelope{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: totalPages,
	})
}

// writeError maps the error kind to an HTTP status and renders the
// envelope. Internal errors are logged with the request id and returned
// with an opaque message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := RequestIDFrom(r.Context())
	status := apperr.HTTPStatus(err)

	env := errorEnvelope{
		Status:    "error",
		Code:      string(apperr.KindOf(err)),
		Message:   err.Error(),
		RequestID: requestID,
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		env.Details = ae.Details
		env.Message = ae.Message
	}
	if status >= http.StatusInternalServerError {
		log.WithRequestID(requestID).Error().Err(err).Msg("request failed")
		if env.Code == string(apperr.KindInternal) {
			env.Message = "internal error"
		}
	}
	writeJSON(w, status, env)
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid request body")
	}
	return nil
}
