// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"github.com/spooncast/echo/internal/bus"
	"github.com/spooncast/echo/internal/types"
)

// EventKind identifies the kind of session lifecycle event a trigger can
// subscribe to (spec.md §4.5 "Triggers").
type EventKind string

const (
	EventAuthorizeSession   EventKind = "authorize_session"
	EventCreateSession      EventKind = "create_session"
	EventCreateSession0     EventKind = "create_session_0"
	EventReadyHlsSession    EventKind = "ready_hls_session"
	EventPauseSession       EventKind = "pause_session"
	EventResumeSession      EventKind = "resume_session"
	EventReleaseSession     EventKind = "release_session"
	EventReleaseHlsSession  EventKind = "release_hls_session"
	EventStartRecord        EventKind = "start_record"
	EventCompleteRecord     EventKind = "complete_record"
	EventInputQualityReport EventKind = "input_quality_report"
)

// EventMessage is the payload delivered to a registered trigger. Exactly one
// group of fields is populated, selected by Kind; unused fields are zero.
type EventMessage struct {
	Kind EventKind

	SessionID types.SessionId
	Protocol  types.Protocol
	Reason    types.StateReason
	Props     types.SessionProps
	HasProps  bool

	// AuthorizeSession
	Authorization Authorization
	AuthResponder chan error

	// CreateSession: the subscribable sample bus for the new session.
	Bus *bus.Bus

	// ReadyHlsSession
	PlaylistPath string

	// CompleteRecord
	RecordPath     string
	RecordDuration uint64

	// InputQualityReport
	Quality types.InputQuality
}

// EventEnvelope pairs an EventMessage with the AppName it concerns.
type EventEnvelope struct {
	Name    types.AppName
	Message EventMessage
}

// EventTrigger is the channel a subscriber registers via RegisterTrigger.
// Buffered generously to approximate the unbounded delivery of the original
// implementation's mpsc channel; a trigger consumer that falls badly behind
// will still see Send block, which is deliberate backpressure onto whatever
// goroutine is slow to drain it.
type EventTrigger chan EventEnvelope

// NewEventTrigger allocates a trigger channel.
func NewEventTrigger() EventTrigger {
	return make(EventTrigger, 256)
}

// MediaMessage is what ingest feeds into a live session's instance goroutine.
type MediaMessage struct {
	EndOfSample bool
	Sample      types.MediaSample
}

// SessionHandle is the per-session instance's inbound channel.
type SessionHandle chan MediaMessage
