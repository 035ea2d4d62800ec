// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stat is a lightweight in-process stats session per SessionId,
// accumulating InputQualityReport counters and the session's lifecycle
// state for readout by the control plane's GET /echo/4/state (SPEC_FULL.md
// §12 "echo-stat", grounded on original_source/echo-stat/src/session.rs).
package stat

import (
	"context"
	"sync"

	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// Snapshot is the read-only view GET /echo/4/state returns.
type Snapshot struct {
	SessionID types.SessionId
	Name      types.AppName
	Protocol  types.Protocol
	State     string
	Quality   types.InputQuality
}

// Store holds the latest Snapshot per live SessionId. Safe for concurrent
// use; Run is the only writer, Get is the only reader.
type Store struct {
	mu   sync.RWMutex
	byID map[types.SessionId]*Snapshot
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[types.SessionId]*Snapshot)}
}

// Get returns the current snapshot for id, if the session is still live.
func (s *Store) Get(id types.SessionId) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[id]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// Run registers for every session lifecycle event relevant to quality and
// state tracking and updates the store until ctx is canceled.
func (s *Store) Run(ctx context.Context, manager *session.Manager) error {
	kinds := []session.EventKind{
		session.EventCreateSession0,
		session.EventPauseSession,
		session.EventResumeSession,
		session.EventReleaseSession,
		session.EventInputQualityReport,
	}
	triggers := make(map[session.EventKind]session.EventTrigger, len(kinds))
	for _, k := range kinds {
		t := session.NewEventTrigger()
		if err := manager.RegisterTrigger(ctx, k, t); err != nil {
			return err
		}
		triggers[k] = t
	}

	go s.loop(ctx, triggers)
	return nil
}

func (s *Store) loop(ctx context.Context, triggers map[session.EventKind]session.EventTrigger) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-triggers[session.EventCreateSession0]:
			s.upsert(env.Name, env.Message.SessionID, func(snap *Snapshot) {
				snap.Protocol = env.Message.Protocol
				snap.State = "publishing"
			})
		case env := <-triggers[session.EventPauseSession]:
			s.upsert(env.Name, env.Message.SessionID, func(snap *Snapshot) { snap.State = "paused" })
		case env := <-triggers[session.EventResumeSession]:
			s.upsert(env.Name, env.Message.SessionID, func(snap *Snapshot) { snap.State = "publishing" })
		case env := <-triggers[session.EventReleaseSession]:
			s.remove(env.Message.SessionID)
		case env := <-triggers[session.EventInputQualityReport]:
			s.upsert(env.Name, env.Message.SessionID, func(snap *Snapshot) { snap.Quality = env.Message.Quality })
		}
	}
}

func (s *Store) upsert(name types.AppName, id types.SessionId, mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.byID[id]
	if !ok {
		snap = &Snapshot{SessionID: id, Name: name}
		s.byID[id] = snap
	}
	mutate(snap)
}

func (s *Store) remove(id types.SessionId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}
