// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/spooncast/echo/internal/types"
)

// signedKey is what AuthorizeSession stores for an AppName: the stream key
// handed back to the caller plus its absolute expiry.
type signedKey struct {
	key string
	exp time.Time
}

// keyStore holds the per-AppName stream key and session props LRUs, both
// with a TTL of ttlMax + ttlMax/60 (spec.md §4.5 "Stream key expiry"): the
// extra 1/60th gives a just-expired key a short grace window for a publisher
// reconnect before CreateSession starts failing KeyMismatch.
type keyStore struct {
	keys  *expirable.LRU[types.AppName, signedKey]
	props *expirable.LRU[types.AppName, types.SessionProps]
}

const keyStoreMaxEntries = 8192

func newKeyStore(ttlMax time.Duration) *keyStore {
	ttl := ttlMax + ttlMax/60
	return &keyStore{
		keys:  expirable.NewLRU[types.AppName, signedKey](keyStoreMaxEntries, nil, ttl),
		props: expirable.NewLRU[types.AppName, types.SessionProps](keyStoreMaxEntries, nil, ttl),
	}
}

func (s *keyStore) putKey(name types.AppName, key string, exp time.Time) {
	s.keys.Add(name, signedKey{key: key, exp: exp})
}

func (s *keyStore) peekKey(name types.AppName) (signedKey, bool) {
	return s.keys.Peek(name)
}

func (s *keyStore) putProps(name types.AppName, props types.SessionProps) {
	s.props.Add(name, props)
}

func (s *keyStore) peekProps(name types.AppName) (types.SessionProps, bool) {
	return s.props.Peek(name)
}
