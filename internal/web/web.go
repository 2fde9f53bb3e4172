// Package web holds the JSON request/response helpers shared by handlers.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"go-messenger/internal/apperr"
	"go-messenger/internal/logging"
	"go-messenger/internal/validation"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Decode reads a JSON body into v and validates it.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return validation.Struct(v)
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("failed to encode response")
	}
}

// Error writes err with the status of its kind. Persistence failures are
// logged with their cause; the client only sees a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	JSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: apperr.PublicMessage(err)}})
}

// Message is the body of responses that only carry a confirmation.
type Message struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// IDParam parses a positive numeric chi URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(name + " must be a positive integer")
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer")
	}
	return n, nil
}

// QueryTime reads an optional RFC 3339 timestamp query parameter.
func QueryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperr.Validation(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Page reads the limit and before query parameters used by message history
// endpoints. A zero before means "from the newest message".
func Page(r *http.Request) (before time.Time, limit int, err error) {
	limit, err = QueryInt(r, "limit", defaultPageSize)
	if err != nil {
		return time.Time{}, 0, err
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	before, err = QueryTime(r, "before")
	return before, limit, err
}
