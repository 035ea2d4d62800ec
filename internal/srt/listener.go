// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package srt implements the SRT ingest listener of spec.md §4.1: one
// multiplexed listener bound across a configured port range, each port
// running an ingest-session state machine (spec.md §4.3) that keeps one
// logical publish alive across reconnects and dispatches parsed samples
// into the session manager's per-session handle.
package srt

import (
	"context"
	"fmt"
	"net"
	"time"

	srt "github.com/datarhei/gosrt"

	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// streamIDParser extracts the publish AppName and optional stream key from
// an SRT connection's streamid, formatted "name[?key=KEY]" (spec.md §4.1
// "SRT streamid convention").
type streamIDParser func(streamID string) (name types.AppName, key *string, err error)

// Listener multiplexes SRT ingest across a contiguous pool of ports,
// accepting one publisher per port at a time.
type Listener struct {
	cfg     config.Config
	manager *session.Manager
	parse   streamIDParser

	listeners []*srt.Listener
}

// NewListener builds a Listener for the ports in
// [cfg.SRTMinPort, cfg.SRTMaxPort]. It binds nothing itself; Serve binds each
// port to a gosrt listener configured with the connection timeout and
// latency from cfg.
func NewListener(cfg config.Config, manager *session.Manager, parse streamIDParser) *Listener {
	return &Listener{cfg: cfg, manager: manager, parse: parse}
}

// Serve listens on every configured port until ctx is canceled. Each port
// runs its own ingest-session state machine (runPort). Once ctx is canceled,
// Serve closes the bound listeners and returns; it does not wait for the
// port controllers to exit.
func (l *Listener) Serve(ctx context.Context) error {
	srtConfig := srt.DefaultConfig()
	srtConfig.ConnectionTimeout = l.cfg.SRTConnectionTimeout
	srtConfig.Latency = l.cfg.SRTLatency

	for port := l.cfg.SRTMinPort; port <= l.cfg.SRTMaxPort; port++ {
		addr := net.JoinHostPort(l.cfg.SRTPrivIP.String(), fmt.Sprintf("%d", port))
		ln, err := srt.Listen("srt", addr, srtConfig)
		if err != nil {
			log.L().Error().Str(log.FieldStreamPort, fmt.Sprint(port)).Err(err).Msg("srt: failed to bind port")
			continue
		}
		l.listeners = append(l.listeners, ln)
		go l.runPort(ctx, ln, port)
	}

	if len(l.listeners) == 0 {
		return fmt.Errorf("srt: no ports in range [%d,%d] could be bound", l.cfg.SRTMinPort, l.cfg.SRTMaxPort)
	}

	<-ctx.Done()
	for _, ln := range l.listeners {
		_ = ln.Close()
	}
	return nil
}

// acceptConns runs gosrt's blocking Accept in a loop, forwarding accepted
// PUBLISH connections to connCh. It is the "SRT accept future" runPort's
// control loop polls alongside its other event sources (spec.md §4.3).
func (l *Listener) acceptConns(ctx context.Context, ln *srt.Listener, port int, connCh chan<- srt.Conn) {
	for {
		conn, connType, err := ln.Accept(func(req srt.ConnRequest) srt.ConnType {
			return srt.PUBLISH
		})
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.L().Error().Int(log.FieldStreamPort, port).Err(err).Msg("srt: accept failed")
			return
		}
		if connType != srt.PUBLISH {
			_ = conn.Close()
			continue
		}

		select {
		case connCh <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

// receiverResult is what a receiver goroutine reports back to runPort when
// it exits, tagged with the sid it was processing so a result from a
// just-preempted receiver can't be mistaken for the one that replaced it.
type receiverResult struct {
	sid     uint32
	reason  exitReason
	quality types.InputQuality
}

// ingestSession is the stable, reconnect-spanning state one port's publish
// occupies: the core session handle/bus live for as long as this struct
// does, regardless of how many physical SRT connections come and go
// underneath it (spec.md §4.3 "SRT ingest session").
type ingestSession struct {
	name   types.AppName
	id     types.SessionId
	handle session.SessionHandle

	done chan receiverResult

	sidCounter uint32
	quality    types.InputQuality

	paused     bool
	pausedAt   time.Time
	activeSid  uint32
	activeStop chan struct{} // non-nil while a receiver is running; closing it preempts
}

// controlPollInterval is how often runPort re-checks idle-pause expiry,
// mirroring the original implementation's 500 ms try_recv cadence (spec.md
// §4.3, §5 "poll ... every 500 ms").
const controlPollInterval = 500 * time.Millisecond

// runPort owns one bound port's ingest-session state machine: Init (no
// session yet) -> Publishing <-> Paused -> Terminated -> back to Init,
// repeating for as long as the port is bound (spec.md §4.3 items 2-5).
func (l *Listener) runPort(ctx context.Context, ln *srt.Listener, port int) {
	connCh := make(chan srt.Conn)
	go l.acceptConns(ctx, ln, port, connCh)

	// releaseTrigger is this port's control-plane Shutdown path: a
	// HTTP-initiated teardown (internal/api.handleTeardown) calls
	// Manager.ReleaseSession directly, bypassing this goroutine entirely, so
	// the only way to learn about it is the same EventReleaseSession trigger
	// internal/stat and internal/hls already subscribe to.
	releaseTrigger := session.NewEventTrigger()
	if err := l.manager.RegisterTrigger(ctx, session.EventReleaseSession, releaseTrigger); err != nil {
		log.L().Error().Err(err).Int(log.FieldStreamPort, port).Msg("srt: failed to register release trigger")
	}

	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()

	var sess *ingestSession

	for {
		var doneCh <-chan receiverResult
		if sess != nil {
			doneCh = sess.done
		}

		select {
		case <-ctx.Done():
			if sess != nil {
				l.terminate(ctx, sess, types.ReasonUnknown())
			}
			return

		case conn := <-connCh:
			sess = l.admitConn(ctx, sess, conn, port)

		case res := <-doneCh:
			l.handleReceiverDone(ctx, &sess, res)

		case env := <-releaseTrigger:
			l.handleControlRelease(ctx, &sess, env)

		case <-ticker.C:
			if sess != nil && sess.paused && time.Since(sess.pausedAt) > l.cfg.SRTConnectionTimeout {
				log.L().Info().Str(log.FieldAppName, string(sess.name)).Msg("srt: connection_timeout elapsed while paused, terminating ingest session")
				l.terminate(ctx, sess, types.NewStateReason(50001, "connection_timeout"))
				sess = nil
			}
		}
	}
}

// handleControlRelease reacts to an EventReleaseSession fired by the HTTP
// control plane (spec.md §6.1 teardown) for this port's current ingest
// session. The release already happened in the manager's registry, so this
// only needs to stop the active receiver and unblock the session instance's
// bus, not call ReleaseSession again.
func (l *Listener) handleControlRelease(_ context.Context, sessPtr **ingestSession, env session.EventEnvelope) {
	sess := *sessPtr
	if sess == nil || sess.id != env.Message.SessionID {
		return
	}
	log.L().Info().Str(log.FieldAppName, string(sess.name)).Msg("srt: control plane released ingest session")
	if sess.activeStop != nil {
		close(sess.activeStop)
		sess.activeStop = nil
	}
	select {
	case sess.handle <- session.MediaMessage{EndOfSample: true}:
	default:
		log.L().Warn().Str(log.FieldAppName, string(sess.name)).Msg("srt: session handle full, dropping end-of-sample marker")
	}
	*sessPtr = nil
}

// admitConn handles one accepted connection: minting a fresh ingest session
// on the first connection, resuming a paused one, or preempting the
// currently active receiver on a reconnect (spec.md §4.3 items 1-4).
func (l *Listener) admitConn(ctx context.Context, sess *ingestSession, conn srt.Conn, port int) *ingestSession {
	streamID := conn.StreamId()
	name, key, err := l.parse(streamID)
	if err != nil {
		log.L().Error().Str(log.FieldStreamKey, streamID).Err(err).Msg("srt: rejecting connection, bad streamid")
		_ = conn.Close()
		return sess
	}

	if sess == nil {
		id := l.manager.IDGenerator().Next()
		handle, _, _, err := l.manager.CreateSession(ctx, name, id, types.ProtocolSRT, key, types.ReasonUnknown())
		if err != nil {
			log.L().Error().Str(log.FieldAppName, string(name)).Err(err).Msg("srt: create session rejected")
			_ = conn.Close()
			return nil
		}
		sess = &ingestSession{name: name, id: id, handle: handle, done: make(chan receiverResult, 4)}
	} else if sess.activeStop != nil {
		// A newer connection preempts whatever receiver is currently
		// running; the old one exits on its own and reports exitPreempted.
		close(sess.activeStop)
	} else if sess.paused {
		_ = l.manager.ResumeSession(ctx, sess.name, sess.id, types.ReasonUnknown())
		sess.paused = false
		log.L().Info().Str(log.FieldAppName, string(sess.name)).Msg("srt: publisher reconnected, resuming ingest session")
	}

	sess.sidCounter++
	sid := sess.sidCounter
	sess.activeSid = sid
	stop := make(chan struct{})
	sess.activeStop = stop

	rcv := newReceiver(string(sess.name), conn, l.cfg.SRTReadTimeout, sess.handle, sid)
	done := sess.done
	go func() {
		reason, quality := rcv.run(ctx, stop)
		done <- receiverResult{sid: sid, reason: reason, quality: quality}
	}()

	return sess
}

// handleReceiverDone processes one receiver's exit. A stale result from a
// receiver a reconnect already preempted only contributes its quality
// counters; only the currently active receiver's exit drives a state
// transition (spec.md §4.3 item 6 "sum InputQuality across reconnects").
func (l *Listener) handleReceiverDone(ctx context.Context, sessPtr **ingestSession, res receiverResult) {
	sess := *sessPtr
	if sess == nil {
		return
	}
	sess.quality = sess.quality.Add(res.quality)

	if res.sid != sess.activeSid {
		return
	}
	sess.activeStop = nil

	switch res.reason {
	case exitPreempted:
		// The new receiver already took over in admitConn; nothing to do.
	case exitReadTimeout:
		// spec.md §4.4: a read timeout is a dropped connection, not session
		// termination. Pause and wait for a reconnect within
		// connection_timeout (spec.md §4.3 item 4).
		_ = l.manager.PauseSession(ctx, sess.name, sess.id, types.ReasonUnknown())
		sess.paused = true
		sess.pausedAt = time.Now()
		log.L().Info().Str(log.FieldAppName, string(sess.name)).Msg("srt: receiver dropped on read timeout, ingest session paused")
	case exitCanceled:
		// Process shutdown; Serve's own ctx.Done branch already tears down.
	default:
		// exitEOF, exitError, exitSessionDead: the connection is
		// conclusively gone (spec.md §4.3 item 5 "inbound Closed").
		l.terminate(ctx, sess, types.ReasonUnknown())
		*sessPtr = nil
	}
}

// terminate tears an ingest session down: reports final quality, releases
// it from the manager's registry, and signals the session instance to end
// so its bus (and every subscriber) closes (spec.md §4.3 item 5).
// handleControlRelease handles the control-plane teardown path separately,
// since the manager has already released that session by the time it
// notifies this goroutine.
func (l *Listener) terminate(ctx context.Context, sess *ingestSession, reason types.StateReason) {
	if sess.activeStop != nil {
		close(sess.activeStop)
		sess.activeStop = nil
	}
	_ = l.manager.InputQualityReport(ctx, sess.name, sess.id, sess.quality)
	_ = l.manager.ReleaseSession(ctx, sess.name, sess.id, reason)
	select {
	case sess.handle <- session.MediaMessage{EndOfSample: true}:
	default:
		log.L().Warn().Str(log.FieldAppName, string(sess.name)).Msg("srt: session handle full, dropping end-of-sample marker")
	}
}

// maxReadInterval bounds how long one read attempt waits before the
// receiver re-checks for cancellation and paces out any queued samples,
// mirroring the original implementation's MAX_READ_INTERVAL (spec.md §5).
const maxReadInterval = 500 * time.Millisecond
