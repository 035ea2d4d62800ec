// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api implements the HTTP control plane of spec.md §6.1: a thin
// ManageMessage adapter that authorizes publishers, allocates sessions, and
// forwards teardown/pause/resume/state requests to the node that owns the
// session's cookie, grounded on the teacher's internal/api package
// (chi routing, the APIError envelope, go-chi/httprate rate limiting).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/spooncast/echo/internal/log"
)

// APIError is the structured error envelope every non-2xx response uses,
// mirroring the teacher's internal/api/errors.go.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func (e *APIError) Error() string { return e.Message }

// Sentinel errors for the publish/teardown/state endpoints (spec.md §7
// "Authorization" and "Session lifecycle" taxonomies).
var (
	errUnauthorized = &APIError{Code: "UNAUTHORIZED", Message: "authentication required"}
	errExpiredToken = &APIError{Code: "EXPIRED_TOKEN", Message: "stream key expired"}
	errKeyMismatch  = &APIError{Code: "KEY_MISMATCH", Message: "stream key mismatch"}
	errDuplicate    = &APIError{Code: "DUPLICATED_CREATION", Message: "session already exists"}
	errNoPort       = &APIError{Code: "NO_PORT_AVAILABLE", Message: "no available port"}
	errBadRequest   = &APIError{Code: "BAD_REQUEST", Message: "invalid request body"}
	errNotFound     = &APIError{Code: "SESSION_NOT_FOUND", Message: "session not found"}
	errInternal     = &APIError{Code: "INTERNAL_ERROR", Message: "internal error"}
)

// respondJSON writes v as a 200 JSON body.
func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().Err(err).Msg("api: failed to encode response body")
	}
}

// respondError writes apiErr as statusCode, stamping the request ID from
// context the way the teacher's RespondError does.
func respondError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError) {
	resp := &APIError{Code: apiErr.Code, Message: apiErr.Message, RequestID: log.RequestIDFromContext(r.Context())}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.L().Error().Err(err).Msg("api: failed to encode error response")
	}
}
