// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "errors"

// Sentinel session errors, mirroring the original implementation's
// session::Error enum.
var (
	// ErrDuplicatedCreation is returned when CreateSession is called with a
	// SessionId already present in the registry.
	ErrDuplicatedCreation = errors.New("session: duplicated creation")
	// ErrKeyMismatch is returned when CreateSession's stream key does not
	// match the key AuthorizeSession most recently issued for the AppName,
	// or that key has expired.
	ErrKeyMismatch = errors.New("session: key mismatch")
	// ErrSessionNotFound is returned by operations addressed at a SessionId
	// the manager has no record of.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrManagerClosed is returned when a caller reaches a Manager whose
	// run loop has already exited.
	ErrManagerClosed = errors.New("session: manager closed")
)
