// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spooncast/echo/internal/types"
)

// cookieName is the fixed cookie name spec.md §6.1 names.
const cookieName = "echo"

// sessionCookie binds a publish response to the session it created
// (spec.md §6.1 "Sets a signed cookie binding (session_id, name,
// server_addr)"), so a later teardown/pause/resume/state call can find its
// way back to the owning node and session.
type sessionCookie struct {
	SessionID  types.SessionId `json:"sid"`
	Name       types.AppName   `json:"name"`
	ServerAddr string          `json:"addr"`
}

var errBadCookieSignature = errors.New("api: cookie signature mismatch")

// signCookie encodes c as base64(payload).base64(hmac) and sets it on w.
func signCookie(w http.ResponseWriter, key []byte, c sessionCookie) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("api: marshal cookie payload: %w", err)
	}
	sig := sign(key, payload)
	value := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig)
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// readCookie extracts and verifies the session cookie from r.
func readCookie(r *http.Request, key []byte) (sessionCookie, error) {
	var out sessionCookie
	c, err := r.Cookie(cookieName)
	if err != nil {
		return out, fmt.Errorf("api: read cookie: %w", err)
	}

	payloadPart, sigPart, ok := splitOnce(c.Value, '.')
	if !ok {
		return out, errBadCookieSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return out, fmt.Errorf("api: decode cookie payload: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return out, fmt.Errorf("api: decode cookie signature: %w", err)
	}
	if !hmac.Equal(sig, sign(key, payload)) {
		return out, errBadCookieSignature
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("api: unmarshal cookie payload: %w", err)
	}
	return out, nil
}

func sign(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func splitOnce(s string, sep byte) (before, after string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
