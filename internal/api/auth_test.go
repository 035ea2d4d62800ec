// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAuthorizationBearer(t *testing.T) {
	auth, ok := parseAuthorization("Bearer abc123")
	require.True(t, ok)
	require.True(t, auth.IsBearer())
	require.Equal(t, "abc123", auth.Token())
}

func TestParseAuthorizationBearerEmptyTokenRejected(t *testing.T) {
	_, ok := parseAuthorization("Bearer ")
	require.False(t, ok)
}

func TestParseAuthorizationBasic(t *testing.T) {
	// base64("alice:secret")
	auth, ok := parseAuthorization("Basic YWxpY2U6c2VjcmV0")
	require.True(t, ok)
	require.False(t, auth.IsBearer())
	user, pass := auth.Basic()
	require.Equal(t, "alice", user)
	require.Equal(t, "secret", pass)
}

func TestParseAuthorizationBasicMalformed(t *testing.T) {
	_, ok := parseAuthorization("Basic not-base64!!")
	require.False(t, ok)
}

func TestParseAuthorizationBasicMissingColonRejected(t *testing.T) {
	// base64("nocolonhere")
	_, ok := parseAuthorization("Basic bm9jb2xvbmhlcmU=")
	require.False(t, ok)
}

func TestParseAuthorizationUnsupportedSchemeRejected(t *testing.T) {
	_, ok := parseAuthorization("Digest foo")
	require.False(t, ok)
}

func TestBearerOrBasicFromRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer xyz")

	auth, ok := bearerOrBasicFromRequest(req)
	require.True(t, ok)
	require.Equal(t, "xyz", auth.Token())
}
