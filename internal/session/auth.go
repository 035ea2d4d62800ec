// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "errors"

// Authorization is the credential a publisher/player presents when creating
// or re-authorizing a session, mirroring the original implementation's
// Authorization enum (Bearer token or HTTP Basic username/password).
type Authorization struct {
	kind     authKind
	token    string
	username string
	password string
}

type authKind uint8

const (
	authKindBearer authKind = iota
	authKindBasic
)

// NewBearerAuthorization builds a Bearer-token Authorization.
func NewBearerAuthorization(token string) Authorization {
	return Authorization{kind: authKindBearer, token: token}
}

// NewBasicAuthorization builds a username/password Authorization.
func NewBasicAuthorization(username, password string) Authorization {
	return Authorization{kind: authKindBasic, username: username, password: password}
}

// IsBearer reports whether this Authorization carries a bearer token.
func (a Authorization) IsBearer() bool { return a.kind == authKindBearer }

// Token returns the bearer token, or "" if this is a Basic Authorization.
func (a Authorization) Token() string { return a.token }

// Basic returns the username/password pair, or "", "" if this is a Bearer
// Authorization.
func (a Authorization) Basic() (string, string) { return a.username, a.password }

// Sentinel auth errors, mirroring the original implementation's AuthError enum.
var (
	ErrExpiredToken = errors.New("session: token expired")
	ErrUnauthorized = errors.New("session: unauthorized")
)
