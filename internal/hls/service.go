// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// Service registers for session lifecycle events and spawns one Writer per
// live session (spec.md §4.6 "For each CreateSession trigger, spawn a
// writer bound to app_name and id").
type Service struct {
	manager        *session.Manager
	cleaner        *Cleaner
	rootDir        string
	targetDuration time.Duration
	preroll        []Segment

	mu         sync.Mutex
	lastSeqFor map[types.AppName]int64
}

// NewService builds a Service from cfg. If cfg.HLSPreroleDir is set, its
// prelude is loaded once here; a missing or unparsable prelude is logged
// and treated as "no prelude" rather than failing startup.
func NewService(cfg config.Config, manager *session.Manager) *Service {
	s := &Service{
		manager:        manager,
		cleaner:        NewCleaner(),
		rootDir:        cfg.HLSRootDir,
		targetDuration: ClampTargetDuration(cfg.HLSTargetDuration),
		lastSeqFor:     make(map[types.AppName]int64),
	}
	if cfg.HLSPreroleDir != "" {
		segs, err := LoadPreroll(cfg.HLSPreroleDir)
		if err != nil {
			log.L().Warn().Err(err).Str("dir", cfg.HLSPreroleDir).Msg("hls: no pre-roll prelude loaded")
		} else {
			s.preroll = segs
			log.L().Info().Int("segments", len(segs)).Msg("hls: pre-roll prelude loaded")
		}
	}
	return s
}

// PurgeRoot removes every subdirectory and loose file under rootDir
// (spec.md §6.3 "HLS root is purged ... at startup"). Call once before
// Run.
func PurgeRoot(rootDir string) error {
	entries, err := os.ReadDir(rootDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(rootDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Run registers this Service's triggers with the manager and blocks,
// spawning a Writer per session, until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	createTrigger := session.NewEventTrigger()
	if err := s.manager.RegisterTrigger(ctx, session.EventCreateSession, createTrigger); err != nil {
		return err
	}

	log.L().Info().Str("root", s.rootDir).Msg("hls: service started")

	for {
		select {
		case <-ctx.Done():
			s.cleaner.Close()
			return nil
		case env := <-createTrigger:
			s.spawnWriter(ctx, env)
		}
	}
}

func (s *Service) spawnWriter(ctx context.Context, env session.EventEnvelope) {
	if env.Message.Bus == nil {
		return
	}

	s.mu.Lock()
	mediaSeqStart := s.lastSeqFor[env.Name]
	s.mu.Unlock()

	w, err := NewWriter(s.manager, s.cleaner, s.rootDir, s.targetDuration, env.Name, env.Message.SessionID, mediaSeqStart, s.preroll)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldAppName, string(env.Name)).Msg("hls: failed to create writer")
		return
	}

	sub := env.Message.Bus.Subscribe()
	go func() {
		w.Run(ctx, sub)
		// The next session with the same name continues numbering from
		// here. The stored value has no expiry: it applies to any later
		// session for this AppName, however long after this one ended.
		s.mu.Lock()
		s.lastSeqFor[env.Name] = w.seq + 100000
		s.mu.Unlock()
	}()
}
