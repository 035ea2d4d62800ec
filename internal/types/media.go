// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package types holds the wire- and process-level data model shared across
// ingest, the session manager, and every sample-bus subscriber.
package types

// Protocol identifies the wire protocol a session was published over.
type Protocol string

const (
	ProtocolSRT  Protocol = "srt"
	ProtocolRTMP Protocol = "rtmp"
)

// SampleType identifies the codec framing of a MediaSample's payload.
type SampleType string

// SampleTypeAAC is presently the only supported sample type.
const SampleTypeAAC SampleType = "aac"

// MediaType is a tagged union over the kinds of media a MediaSample can
// carry. Only the Audio variant is populated today; Kind exists so future
// variants (e.g. Video) can be added without breaking existing switches.
type MediaType struct {
	Kind       MediaKind
	SampleRate uint32
	Channels   uint8
}

// MediaKind discriminates MediaType's tagged variants.
type MediaKind uint8

const (
	MediaKindAudio MediaKind = iota
)

// NewAudioMediaType builds the Audio{sample_rate, channels} variant.
func NewAudioMediaType(sampleRate uint32, channels uint8) MediaType {
	return MediaType{Kind: MediaKindAudio, SampleRate: sampleRate, Channels: channels}
}

// MediaSample is the tuple that flows from ingest through the sample bus to
// every sink. sid is the per-ingest-connection subsession counter used to
// discard stale packets after an SRT reconnect (spec.md §3, §4.3).
type MediaSample struct {
	Sid        uint32
	MediaType  MediaType
	SampleType SampleType
	// Timestamp is nil only for the synthetic audio-sequence-header sample
	// routed to newly subscribed sinks (see internal/bus Bus.Subscribe and
	// SPEC_FULL.md §13's resolution of the audio sequence header open question).
	Timestamp *Timestamp
	Data      []byte
}

// NewAACAudioSample builds a MediaSample carrying an ADTS-framed AAC frame.
func NewAACAudioSample(sid uint32, sampleRate uint32, channels uint8, ts Timestamp, data []byte) MediaSample {
	t := ts
	return MediaSample{
		Sid:        sid,
		MediaType:  NewAudioMediaType(sampleRate, channels),
		SampleType: SampleTypeAAC,
		Timestamp:  &t,
		Data:       data,
	}
}
