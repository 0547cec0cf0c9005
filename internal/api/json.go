package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"prospector/internal/accountstate"
	"prospector/internal/auth"
	"prospector/internal/forecast"
	"prospector/internal/route"
	"prospector/internal/store"
	"prospector/internal/upstream"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// errBadRequest marks request validation failures raised by the handlers themselves.
var errBadRequest = errors.New("bad request")

// errMapsNotConfigured is returned when no maps provider key is set.
var errMapsNotConfigured = errors.New("maps provider is not configured")

var validationErrors = []error{
	errBadRequest,
	store.ErrInvalid,
	upstream.ErrBadKey,
	upstream.ErrEmptyQuery,
	accountstate.ErrEmptyNote,
	accountstate.ErrUnknownActivity,
	accountstate.ErrUnknownFlag,
	forecast.ErrUnknownVenue,
	route.ErrTooFewWaypoints,
	route.ErrBadCoordinate,
}

// classify maps a handler error to its HTTP status, title and detail.
func classify(err error) (int, string, string) {
	var se *upstream.StatusError
	switch {
	case errors.As(err, &se):
		return http.StatusBadGateway, "Upstream error", se.Status
	case errors.Is(err, route.ErrBadPermutation),
		errors.Is(err, upstream.ErrBadWaypointOrder):
		return http.StatusBadGateway, "Upstream error", err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not Found", err.Error()
	case errors.Is(err, accountstate.ErrConflict):
		return http.StatusConflict, "Conflict", err.Error()
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized", err.Error()
	case errors.Is(err, errMapsNotConfigured),
		errors.Is(err, errRecordsNotConfigured),
		errors.Is(err, upstream.ErrIntelNotConfigured),
		errors.Is(err, upstream.ErrSheetNotConfigured):
		return http.StatusServiceUnavailable, "Not configured", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timeout", err.Error()
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusBadRequest, "Invalid request", err.Error()
		}
	}
	return http.StatusInternalServerError, "Internal error", err.Error()
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title, detail := classify(err)
	if status >= http.StatusInternalServerError {
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeProblem(w, status, title, detail, r.URL.Path)
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}
