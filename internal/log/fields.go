// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID  = "session_id"
	FieldRequestID  = "request_id"
	FieldAppName    = "app_name"
	FieldStreamKey  = "stream_key"
	FieldSubSession = "sid"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media / stream fields
	FieldSampleRate = "sample_rate"
	FieldChannels   = "channels"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPlaylistPath = "playlist_path"
	FieldSegmentPath  = "segment_path"

	// Network fields
	FieldStreamPort = "stream_port"
	FieldProtocol   = "protocol"
)
