// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"context"
	"net"

	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// Listener accepts RTMP publishers on a single fixed port (spec.md §4.1
// "RTMP ingest"), handing each accepted connection to its own Peer.
type Listener struct {
	cfg     config.Config
	manager *session.Manager
}

// NewListener builds a Listener bound to cfg.RTMPAddr.
func NewListener(cfg config.Config, manager *session.Manager) *Listener {
	return &Listener{cfg: cfg, manager: manager}
}

// Serve listens until ctx is canceled.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.RTMPAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	log.L().Info().Str(log.FieldProtocol, "rtmp").Str("addr", l.cfg.RTMPAddr).Msg("rtmp: listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.L().Error().Err(err).Msg("rtmp: accept failed")
				return err
			}
		}
		go NewPeer(conn, l.cfg.RTMPConnectionTimeout, l.resolvePublish).Serve(ctx)
	}
}

func (l *Listener) resolvePublish(ctx context.Context, name types.AppName, key *string) (session.SessionHandle, func(), error) {
	id := l.manager.IDGenerator().Next()
	handle, _, _, err := l.manager.CreateSession(ctx, name, id, types.ProtocolRTMP, key, types.ReasonUnknown())
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		_ = l.manager.ReleaseSession(context.Background(), name, id, types.ReasonUnknown())
	}
	return handle, release, nil
}
