package server

import (
	"errors"
	"net/http"

	"github.com/hyperjump/kinji/internal/identity"
	"github.com/hyperjump/kinji/internal/keyword"
	"github.com/hyperjump/kinji/internal/resource"
	"github.com/hyperjump/kinji/internal/search"
	"github.com/hyperjump/kinji/internal/session"
	"github.com/hyperjump/kinji/internal/vector"
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps an error to an HTTP status and a stable kind string.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrUnknownIdentity):
		return http.StatusNotFound, "unknown_identity"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, search.ErrNoEmbedding):
		return http.StatusServiceUnavailable, "no_embedding"
	case errors.Is(err, vector.ErrEmptyIndex):
		return http.StatusServiceUnavailable, "empty_index"
	case errors.Is(err, resource.ErrRecordCountMismatch):
		return http.StatusServiceUnavailable, "record_count_mismatch"
	case errors.Is(err, vector.ErrMetricMismatch):
		return http.StatusServiceUnavailable, "metric_mismatch"
	case errors.Is(err, vector.ErrDimensionMismatch):
		return http.StatusServiceUnavailable, "dimension_mismatch"
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, vector.ErrInvalidK), errors.Is(err, keyword.ErrEmptyText):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
