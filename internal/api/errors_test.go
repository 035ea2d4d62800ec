// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorWritesStatusAndBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	respondError(rec, req, http.StatusUnauthorized, errUnauthorized)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "UNAUTHORIZED", got.Code)
	require.Equal(t, "authentication required", got.Message)
}

func TestRespondJSONEncodesValue(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, map[string]string{"ok": "true"})

	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"ok":"true"}`, rec.Body.String())
}

func TestAPIErrorImplementsError(t *testing.T) {
	var err error = errNotFound
	require.Equal(t, "session not found", err.Error())
}
