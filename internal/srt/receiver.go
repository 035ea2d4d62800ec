// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package srt

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/spooncast/echo/internal/adts"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// exitReason identifies why receiver.run returned, so the owning ingest
// session (listener.go) can decide whether the connection's end is a
// reconnect-eligible drop or session termination (spec.md §4.3, §4.4).
type exitReason int

const (
	// exitEOF means the sender closed the connection; treated as the
	// "inbound Closed" termination trigger (spec.md §4.3 item 5).
	exitEOF exitReason = iota
	// exitReadTimeout means no data arrived for readTimeout; spec.md §4.4
	// is explicit this is "a dropped connection, not session termination".
	exitReadTimeout
	// exitError is an unrecoverable read error other than EOF/timeout.
	exitError
	// exitPreempted means a newer connection signaled this receiver to stop
	// so it can take over the session's handle (spec.md §4.3 item 2).
	exitPreempted
	// exitSessionDead means forwarding a sample to the session handle would
	// have blocked: the consumer is gone and this connection cannot be
	// salvaged (spec.md §4.4 "Backpressure").
	exitSessionDead
	// exitCanceled means ctx was canceled (process shutdown).
	exitCanceled
)

// receiver reads one SRT publisher connection's bytes, demuxes ADTS frames,
// and feeds resulting samples into the owning session's handle. It enforces
// readTimeout: if no data (and no successful read) arrives for that long,
// the connection is torn down (spec.md §4.1 "Read timeout / reconnection").
type receiver struct {
	appName     string
	conn        net.Conn
	readTimeout time.Duration
	handle      session.SessionHandle
	demuxer     *adts.Demuxer
}

// newReceiver builds a receiver for one physical connection within an
// ingest session. sid is the monotone per-connection identifier the owning
// ingest session assigns (spec.md §4.3 item 1); it is stamped onto every
// sample this receiver emits so subscribers can dedupe stale reconnect
// traffic (spec.md §4.3 item 2, §8).
func newReceiver(appName string, conn net.Conn, readTimeout time.Duration, handle session.SessionHandle, sid uint32) *receiver {
	return &receiver{
		appName:     appName,
		conn:        conn,
		readTimeout: readTimeout,
		handle:      handle,
		demuxer:     adts.New(appName, sid),
	}
}

// run reads until the connection ends, ctx is canceled, or closeSignal
// fires (a reconnect preempting this receiver). It never closes handle: that
// channel is shared across reconnects and is owned by the ingest session,
// not any one receiver.
func (r *receiver) run(ctx context.Context, closeSignal <-chan struct{}) (exitReason, types.InputQuality) {
	log.L().Info().Str(log.FieldAppName, r.appName).Msg("srt: sender connected")

	buf := make([]byte, 64*1024)
	var starvingSince time.Time

	defer func() {
		_ = r.conn.Close()
		log.L().Info().Str(log.FieldAppName, r.appName).Msg("srt: sender disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			return exitCanceled, r.demuxer.Quality()
		case <-closeSignal:
			return exitPreempted, r.demuxer.Quality()
		default:
		}

		_ = r.conn.SetReadDeadline(time.Now().Add(maxReadInterval))
		n, err := r.conn.Read(buf)

		if err != nil {
			if errors.Is(err, io.EOF) {
				return exitEOF, r.demuxer.Quality()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if starvingSince.IsZero() {
					starvingSince = time.Now()
				} else if time.Since(starvingSince) > r.readTimeout {
					log.L().Warn().Str(log.FieldAppName, r.appName).Msg("srt: read timeout")
					return exitReadTimeout, r.demuxer.Quality()
				}
				if !r.emit(r.demuxer.HandleBytes(nil)) {
					return exitSessionDead, r.demuxer.Quality()
				}
				continue
			}
			log.L().Error().Str(log.FieldAppName, r.appName).Err(err).Msg("srt: read error")
			return exitError, r.demuxer.Quality()
		}

		starvingSince = time.Time{}
		if !r.emit(r.demuxer.HandleBytes(buf[:n])) {
			return exitSessionDead, r.demuxer.Quality()
		}
	}
}

// emit forwards samples to the session handle without blocking (spec.md
// §4.4 "Backpressure"): a full handle means the session's consumer has
// fallen fatally behind or is gone, and this receiver aborts rather than
// stall the SRT read loop.
func (r *receiver) emit(samples []types.MediaSample) bool {
	for _, s := range samples {
		select {
		case r.handle <- session.MediaMessage{Sample: s}:
		default:
			log.L().Warn().Str(log.FieldAppName, r.appName).Msg("srt: session handle full, dropping connection")
			return false
		}
	}
	return true
}
