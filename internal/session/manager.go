// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session implements the session manager and per-session instance
// tasks of spec.md §4: a single goroutine owns the session registry, the
// stream-key/props LRUs, and the trigger table, and every external request
// to read or mutate that state is a message sent to it (spec.md §4.1
// "Single-owner session registry").
package session

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"sync/atomic"
	"time"

	"github.com/spooncast/echo/internal/bus"
	"github.com/spooncast/echo/internal/config"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/metrics"
	"github.com/spooncast/echo/internal/types"
)

// incomingBacklog bounds the manager's inbox. The original implementation
// uses an unbounded mpsc channel; Go has no unbounded channel primitive, so
// this is sized generously and is not expected to ever fill under normal
// ingest/control-plane load.
const incomingBacklog = 4096

type manageKind int

const (
	mkUpdateSessionProps manageKind = iota
	mkAuthorizeSession
	mkCreateSession
	mkPauseSession
	mkResumeSession
	mkReleaseSession
	mkReadyHlsSession
	mkReleaseHlsSession
	mkStartRecord
	mkCompleteRecord
	mkInputQualityReport
	mkRegisterTrigger
)

type authResult struct {
	key string
	err error
}

type createResult struct {
	handle SessionHandle
	bus    *bus.Bus
	exp    *time.Time
	err    error
}

type manageMessage struct {
	kind manageKind

	name   types.AppName
	id     types.SessionId
	proto  types.Protocol
	key    *string
	reason types.StateReason
	props  types.SessionProps
	path   string
	dur    uint64
	qual   types.InputQuality

	auth Authorization

	eventKind EventKind
	trigger   EventTrigger

	authResp   chan authResult
	createResp chan createResult
}

type sessionEntry struct {
	handle SessionHandle
	bus    *bus.Bus
}

// IDGenerator mints strictly increasing, never-reused SessionIds for a
// process lifetime (spec.md §3 "SessionId").
type IDGenerator struct {
	value atomic.Uint64
}

// NewIDGenerator creates an IDGenerator starting at 0.
func NewIDGenerator() *IDGenerator { return &IDGenerator{} }

// Next returns the next SessionId.
func (g *IDGenerator) Next() types.SessionId {
	return types.SessionId(g.value.Add(1) - 1)
}

// Manager owns the session registry, stream-key/props LRUs, and trigger
// table. All mutation happens on the goroutine running Run; every exported
// method sends a message and, where a reply is needed, waits for it.
type Manager struct {
	idGen    *IDGenerator
	incoming chan manageMessage

	sessions map[types.SessionId]sessionEntry
	keys     *keyStore
	triggers map[EventKind][]EventTrigger

	sessionTTL time.Duration

	done chan struct{}
}

// New builds a Manager from cfg but does not start its run loop; call Run
// in its own goroutine.
func New(cfg config.Config) *Manager {
	ttlMax := cfg.TTLMaxDuration
	return &Manager{
		idGen:      NewIDGenerator(),
		incoming:   make(chan manageMessage, incomingBacklog),
		sessions:   make(map[types.SessionId]sessionEntry),
		keys:       newKeyStore(ttlMax),
		triggers:   make(map[EventKind][]EventTrigger),
		sessionTTL: ttlMax + ttlMax/60,
		done:       make(chan struct{}),
	}
}

// IDGenerator exposes the Manager's id generator so ingest components can
// mint a SessionId before calling CreateSession.
func (m *Manager) IDGenerator() *IDGenerator { return m.idGen }

// Run drains the manager's inbox until ctx is canceled. It must run on
// exactly one goroutine for the lifetime of the Manager.
func (m *Manager) Run(ctx context.Context) {
	log.L().Info().Msg("session manager started")
	defer close(m.done)
	defer log.L().Info().Msg("session manager stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.incoming:
			m.process(msg)
		}
	}
}

func (m *Manager) send(ctx context.Context, msg manageMessage) error {
	select {
	case m.incoming <- msg:
		return nil
	case <-m.done:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateSessionProps attaches or replaces the opaque props bag for name.
func (m *Manager) UpdateSessionProps(ctx context.Context, name types.AppName, props types.SessionProps) error {
	return m.send(ctx, manageMessage{kind: mkUpdateSessionProps, name: name, props: props})
}

// AuthorizeSession runs every registered AuthorizeSession trigger in order,
// stopping at the first rejection, and on success mints and stores a fresh
// stream key for name.
func (m *Manager) AuthorizeSession(ctx context.Context, name types.AppName, auth Authorization) (string, error) {
	resp := make(chan authResult, 1)
	if err := m.send(ctx, manageMessage{kind: mkAuthorizeSession, name: name, auth: auth, authResp: resp}); err != nil {
		return "", err
	}
	select {
	case r := <-resp:
		return r.key, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CreateSession registers a new live session for (name, id) over proto. If
// key is non-nil it must match the most recently issued AuthorizeSession
// key for name and not yet be expired. Returns the handle ingest feeds
// samples into, the session's sample bus, and the key's expiry if a key
// check occurred.
func (m *Manager) CreateSession(ctx context.Context, name types.AppName, id types.SessionId, proto types.Protocol, key *string, reason types.StateReason) (SessionHandle, *bus.Bus, *time.Time, error) {
	resp := make(chan createResult, 1)
	msg := manageMessage{kind: mkCreateSession, name: name, id: id, proto: proto, key: key, reason: reason, createResp: resp}
	if err := m.send(ctx, msg); err != nil {
		return nil, nil, nil, err
	}
	select {
	case r := <-resp:
		return r.handle, r.bus, r.exp, r.err
	case <-ctx.Done():
		return nil, nil, nil, ctx.Err()
	}
}

// PauseSession notifies PauseSession triggers; it does not alter the
// registry (spec.md §13: pause/resume are observational for HLS).
func (m *Manager) PauseSession(ctx context.Context, name types.AppName, id types.SessionId, reason types.StateReason) error {
	return m.send(ctx, manageMessage{kind: mkPauseSession, name: name, id: id, reason: reason})
}

// ResumeSession notifies ResumeSession triggers.
func (m *Manager) ResumeSession(ctx context.Context, name types.AppName, id types.SessionId, reason types.StateReason) error {
	return m.send(ctx, manageMessage{kind: mkResumeSession, name: name, id: id, reason: reason})
}

// ReleaseSession removes (name, id) from the registry and notifies
// ReleaseSession triggers.
func (m *Manager) ReleaseSession(ctx context.Context, name types.AppName, id types.SessionId, reason types.StateReason) error {
	return m.send(ctx, manageMessage{kind: mkReleaseSession, name: name, id: id, reason: reason})
}

// ReadyHlsSession notifies ReadyHlsSession triggers that a session's HLS
// playlist reached path and its minimum ready duration.
func (m *Manager) ReadyHlsSession(ctx context.Context, name types.AppName, id types.SessionId, path string) error {
	return m.send(ctx, manageMessage{kind: mkReadyHlsSession, name: name, id: id, path: path})
}

// ReleaseHlsSession notifies ReleaseHlsSession triggers.
func (m *Manager) ReleaseHlsSession(ctx context.Context, name types.AppName, id types.SessionId) error {
	return m.send(ctx, manageMessage{kind: mkReleaseHlsSession, name: name, id: id})
}

// StartRecord notifies StartRecord triggers.
func (m *Manager) StartRecord(ctx context.Context, name types.AppName, id types.SessionId) error {
	return m.send(ctx, manageMessage{kind: mkStartRecord, name: name, id: id})
}

// CompleteRecord notifies CompleteRecord triggers that path was finalized
// after durationMs milliseconds.
func (m *Manager) CompleteRecord(ctx context.Context, name types.AppName, id types.SessionId, path string, durationMs uint64) error {
	return m.send(ctx, manageMessage{kind: mkCompleteRecord, name: name, id: id, path: path, dur: durationMs})
}

// InputQualityReport notifies InputQualityReport triggers of the latest
// aggregated quality counters for (name, id).
func (m *Manager) InputQualityReport(ctx context.Context, name types.AppName, id types.SessionId, quality types.InputQuality) error {
	return m.send(ctx, manageMessage{kind: mkInputQualityReport, name: name, id: id, qual: quality})
}

// RegisterTrigger subscribes trigger to every event of kind. Triggers must
// be drained promptly: Send on a full trigger channel blocks the manager's
// single goroutine.
func (m *Manager) RegisterTrigger(ctx context.Context, kind EventKind, trigger EventTrigger) error {
	return m.send(ctx, manageMessage{kind: mkRegisterTrigger, eventKind: kind, trigger: trigger})
}

func (m *Manager) process(msg manageMessage) {
	switch msg.kind {
	case mkUpdateSessionProps:
		m.keys.putProps(msg.name, msg.props)

	case mkAuthorizeSession:
		m.processAuthorizeSession(msg)

	case mkCreateSession:
		m.processCreateSession(msg)

	case mkPauseSession:
		m.notify(EventPauseSession, msg.name, EventMessage{Kind: EventPauseSession, SessionID: msg.id, Reason: msg.reason})

	case mkResumeSession:
		m.notify(EventResumeSession, msg.name, EventMessage{Kind: EventResumeSession, SessionID: msg.id, Reason: msg.reason})

	case mkReleaseSession:
		delete(m.sessions, msg.id)
		m.notify(EventReleaseSession, msg.name, EventMessage{Kind: EventReleaseSession, SessionID: msg.id, Reason: msg.reason})

	case mkReadyHlsSession:
		metrics.PlaylistReadyTotal.WithLabelValues(string(msg.name)).Inc()
		m.notify(EventReadyHlsSession, msg.name, EventMessage{Kind: EventReadyHlsSession, SessionID: msg.id, PlaylistPath: msg.path})

	case mkReleaseHlsSession:
		m.notify(EventReleaseHlsSession, msg.name, EventMessage{Kind: EventReleaseHlsSession, SessionID: msg.id})

	case mkStartRecord:
		m.notify(EventStartRecord, msg.name, EventMessage{Kind: EventStartRecord, SessionID: msg.id})

	case mkCompleteRecord:
		m.notify(EventCompleteRecord, msg.name, EventMessage{Kind: EventCompleteRecord, SessionID: msg.id, RecordPath: msg.path, RecordDuration: msg.dur})

	case mkInputQualityReport:
		m.notify(EventInputQualityReport, msg.name, EventMessage{Kind: EventInputQualityReport, SessionID: msg.id, Quality: msg.qual})

	case mkRegisterTrigger:
		log.L().Debug().Str(log.FieldEvent, string(msg.eventKind)).Msg("registering session trigger")
		m.triggers[msg.eventKind] = append(m.triggers[msg.eventKind], msg.trigger)
	}
}

func (m *Manager) processAuthorizeSession(msg manageMessage) {
	props, _ := m.keys.peekProps(msg.name)

	var authErr error
	if triggers, ok := m.triggers[EventAuthorizeSession]; ok {
		for _, trig := range triggers {
			responder := make(chan error, 1)
			envelope := EventEnvelope{
				Name: msg.name,
				Message: EventMessage{
					Kind:          EventAuthorizeSession,
					Authorization: msg.auth,
					Props:         props,
					HasProps:      props != nil,
					AuthResponder: responder,
				},
			}
			trig <- envelope
			if err := <-responder; err != nil {
				authErr = err
				break
			}
		}
	}

	if authErr != nil {
		metrics.AuthOutcomeTotal.WithLabelValues("rejected").Inc()
		msg.authResp <- authResult{err: authErr}
		return
	}

	key := randomKey(8)
	exp := time.Now().Add(m.sessionTTL)
	log.L().Info().
		Str(log.FieldAppName, string(msg.name)).
		Time("expires_at", exp).
		Msg("issued stream key")
	m.keys.putKey(msg.name, key, exp)
	metrics.AuthOutcomeTotal.WithLabelValues("ok").Inc()
	msg.authResp <- authResult{key: key}
}

func (m *Manager) processCreateSession(msg manageMessage) {
	if _, exists := m.sessions[msg.id]; exists {
		msg.createResp <- createResult{err: ErrDuplicatedCreation}
		return
	}

	var exp *time.Time
	if msg.key != nil {
		stored, ok := m.keys.peekKey(msg.name)
		switch {
		case !ok:
			log.L().Error().Str(log.FieldAppName, string(msg.name)).Msg("create session: key not found")
			msg.createResp <- createResult{err: ErrKeyMismatch}
			return
		case stored.key != *msg.key:
			log.L().Error().Str(log.FieldAppName, string(msg.name)).Msg("create session: key mismatch")
			msg.createResp <- createResult{err: ErrKeyMismatch}
			return
		case !stored.exp.After(time.Now()):
			log.L().Error().Str(log.FieldAppName, string(msg.name)).Msg("create session: key expired")
			msg.createResp <- createResult{err: ErrKeyMismatch}
			return
		default:
			e := stored.exp
			exp = &e
		}
	}

	handle := make(SessionHandle, bus.Capacity)
	b := bus.New(msg.name)
	m.sessions[msg.id] = sessionEntry{handle: handle, bus: b}

	props, hasProps := m.keys.peekProps(msg.name)

	m.notify(EventCreateSession, msg.name, EventMessage{Kind: EventCreateSession, SessionID: msg.id, Bus: b})
	m.notify(EventCreateSession0, msg.name, EventMessage{
		Kind:      EventCreateSession0,
		SessionID: msg.id,
		Protocol:  msg.proto,
		Reason:    msg.reason,
		Props:     props,
		HasProps:  hasProps,
	})

	inst := newInstance(msg.name, handle, b)
	go inst.run()

	msg.createResp <- createResult{handle: handle, bus: b, exp: exp}
}

// notify delivers an EventMessage to every trigger registered for kind,
// stamping Props/HasProps from the current props LRU when the caller did
// not already populate them.
func (m *Manager) notify(kind EventKind, name types.AppName, em EventMessage) {
	triggers, ok := m.triggers[kind]
	if !ok || len(triggers) == 0 {
		return
	}
	if !em.HasProps {
		if props, found := m.keys.peekProps(name); found {
			em.Props = props
			em.HasProps = true
		}
	}
	for _, trig := range triggers {
		trig <- EventEnvelope{Name: name, Message: em}
	}
}

const randomKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomKey mints an n-character alphanumeric stream key. Uses crypto/rand
// rather than the original implementation's thread_rng since the key guards
// real publish access.
func randomKey(n int) string {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failures are effectively unrecoverable on any real
		// platform; fall back to a base32 timestamp so the process keeps
		// running rather than panicking mid-stream-create.
		return base32.StdEncoding.EncodeToString([]byte(time.Now().String()))[:n]
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = randomKeyAlphabet[int(b)%len(randomKeyAlphabet)]
	}
	return string(out)
}
