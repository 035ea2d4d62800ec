// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/srt"
	"github.com/spooncast/echo/internal/stat"
)

func newTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	cfg := config.Defaults()
	cfg.PrivKey = []byte("test-signing-key")
	cfg.Addr = "127.0.0.1:9999"

	manager := session.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)
	require.NoError(t, runDefaultAuthPolicy(ctx, manager))

	pool := srt.NewPortPool(cfg.SRTMinPort, cfg.SRTMaxPort)
	stats := stat.NewStore()
	require.NoError(t, stats.Run(ctx, manager))

	return NewServer(cfg, manager, pool, stats), cancel
}

func TestHandleOptions(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/echo/option", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got optionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, []int{3, 4}, got.Versions)
}

func TestHandlePublishRTMPSetsCookieAndTransport(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/echo/4/publish/radio1", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())

	var resp publishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "radio1", string(resp.Publish.Name))
	require.Len(t, resp.Publish.Transports, 1)
	require.Equal(t, "rtmp", resp.Publish.Transports[0].Protocol)
}

func TestHandlePublishRejectsMissingAuthorization(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/echo/4/publish/radio1", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlePublishRejectsEmptyName(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/echo/4/publish/", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStateMissingCookieUnauthorized(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/echo/4/state", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleStateUnknownSessionNotFound(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	stateReq := httptest.NewRequest(http.MethodGet, "/echo/4/state", nil)
	signRec := httptest.NewRecorder()
	require.NoError(t, signCookie(signRec, s.cfg.PrivKey, sessionCookie{Name: "radio1", ServerAddr: s.cfg.Addr}))
	for _, c := range signRec.Result().Cookies() {
		stateReq.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, stateReq)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTeardownForwardsToForeignNode(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer foreign.Close()

	req := httptest.NewRequest(http.MethodPut, "/echo/4/teardown", nil)
	signRec := httptest.NewRecorder()
	require.NoError(t, signCookie(signRec, s.cfg.PrivKey, sessionCookie{Name: "radio1", ServerAddr: foreign.Listener.Addr().String()}))
	for _, c := range signRec.Result().Cookies() {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)
}
