// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"context"
	"fmt"
	"io"

	"github.com/asticode/go-astits"
)

// MPEG-TS layout constants, spec.md §4.6/§6.2.
const (
	pmtPID   uint16 = 0x1000
	audioPID uint16 = 0x101

	pcrHz = 90000

	audioStreamID = 0xc0 // PES stream_id, "AUDIO_MIN" per spec.md §4.6
)

// segmentSink is a swappable io.Writer target: the same Muxer instance (and
// its continuity counters) is reused across an entire session's lifetime,
// but the bytes it emits need to land in one buffer per HLS segment.
type segmentSink struct {
	w io.Writer
}

func (s *segmentSink) Write(p []byte) (int, error) { return s.w.Write(p) }

// tsMuxer wraps astits.Muxer to build the PAT/PID-0->program-1/PMT/audio-PES
// structure spec.md §4.6 describes, instead of hand-rolling TS packet
// framing; the continuity-counter and adaptation-field bookkeeping the spec
// calls out is exactly what the muxer already does (SPEC_FULL.md §11.3).
type tsMuxer struct {
	sink  *segmentSink
	muxer *astits.Muxer
}

// newTSMuxer builds a muxer with one AAC-ADTS elementary stream at audioPID,
// PCR carried on the same PID (no video).
func newTSMuxer() (*tsMuxer, error) {
	sink := &segmentSink{}
	m := astits.NewMuxer(context.Background(), sink)
	if err := m.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: audioPID,
		StreamType:    astits.StreamTypeAACAudio,
	}); err != nil {
		return nil, fmt.Errorf("hls: add elementary stream: %w", err)
	}
	m.SetPCRPID(audioPID)
	return &tsMuxer{sink: sink, muxer: m}, nil
}

// retarget points subsequent writes at w (a fresh per-segment buffer).
func (t *tsMuxer) retarget(w io.Writer) { t.sink.w = w }

// writeTables emits a fresh PAT+PMT, called at the start of every segment so
// each .ts file is independently playable from a random access point.
func (t *tsMuxer) writeTables() error {
	if _, err := t.muxer.WriteTables(); err != nil {
		return fmt.Errorf("hls: write PAT/PMT: %w", err)
	}
	return nil
}

// ptsFromMillis computes PTS = (ms * 90000 / 1000) mod 2^33 (spec.md §4.6).
func ptsFromMillis(ms uint64) int64 {
	const pts33Bit = 1 << 33
	return int64((ms * pcrHz / 1000) % pts33Bit)
}

// writeAudio packetizes one ADTS-framed AAC access unit as a PES packet
// carrying pts, optionally opening the segment's random access point.
func (t *tsMuxer) writeAudio(pts int64, firstOfSegment bool, payload []byte) error {
	data := &astits.MuxerData{
		PID: audioPID,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				StreamID: audioStreamID,
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      0x2,
					PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
					PTS:             &astits.ClockReference{Base: pts},
				},
			},
			Data: payload,
		},
	}
	if firstOfSegment {
		data.AdaptationField = &astits.PacketAdaptationField{
			RandomAccessIndicator: true,
			HasPCR:                true,
			PCR:                   &astits.ClockReference{Base: pts},
		}
	}
	if _, err := t.muxer.WriteData(data); err != nil {
		return fmt.Errorf("hls: write audio PES: %w", err)
	}
	return nil
}
