// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spooncast/echo/internal/types"
)

func TestCookieSignAndReadRoundTrip(t *testing.T) {
	key := []byte("test-signing-key")
	want := sessionCookie{SessionID: types.SessionId(7), Name: types.AppName("radio1"), ServerAddr: "10.0.0.1:8080"}

	rec := httptest.NewRecorder()
	require.NoError(t, signCookie(rec, key, want))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	got, err := readCookie(req, key)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCookieReadRejectsTamperedSignature(t *testing.T) {
	key := []byte("test-signing-key")
	rec := httptest.NewRecorder()
	require.NoError(t, signCookie(rec, key, sessionCookie{SessionID: types.SessionId(1)}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		c.Value = c.Value + "tampered"
		req.AddCookie(c)
	}

	_, err := readCookie(req, key)
	require.Error(t, err)
}

func TestCookieReadRejectsWrongKey(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, signCookie(rec, []byte("key-a"), sessionCookie{SessionID: types.SessionId(1)}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	_, err := readCookie(req, []byte("key-b"))
	require.ErrorIs(t, err, errBadCookieSignature)
}

func TestCookieReadMissingCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := readCookie(req, []byte("key"))
	require.Error(t, err)
}
