// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package adts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDemuxer_HandleBytesParsesAndPacesFrames(t *testing.T) {
	d := New("app1", 1)

	// Two consecutive 48kHz stereo silent frames back to back, fed as one
	// buffer the way a single transport read would deliver them.
	frame := append(append([]byte{}, adts48000Stereo...), adts48000Stereo...)
	out := d.HandleBytes(frame)

	// Both frames were parsed into the internal queue. The first (media ts 0)
	// is released as soon as any wall-clock time has elapsed; the second
	// (media ts ~21.3 ms) has not had enough time yet and stays queued.
	require.LessOrEqual(t, len(out), 1)
	require.Len(t, d.queue, 2-len(out))
	require.True(t, d.isValidConfig())
	require.Equal(t, uint64(2), d.frameCount)
}

func TestDemuxer_PacesSamplesOutAfterElapsedTime(t *testing.T) {
	d := New("app1", 1)
	d.HandleBytes(adts48000Stereo)

	time.Sleep(25 * time.Millisecond)

	out := d.HandleBytes(nil)
	require.NotEmpty(t, out)
}

func TestDemuxer_BadSyncWordIncrementsBadCount(t *testing.T) {
	d := New("app1", 1)
	d.HandleBytes([]byte{0x00, 0x00, 0x00, 0x00})
	require.Equal(t, uint32(1), d.Quality().BadCount)
}
