// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package record

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spooncast/echo/internal/bus"
	"github.com/spooncast/echo/internal/types"
)

func adtsFrame(payload []byte) []byte {
	return append(make([]byte, 7), payload...)
}

func TestAdtsPayloadStripsFixedHeader(t *testing.T) {
	frame := adtsFrame([]byte{1, 2, 3})
	require.Equal(t, []byte{1, 2, 3}, adtsPayload(frame))
}

func TestAdtsPayloadTooShortReturnsNil(t *testing.T) {
	require.Nil(t, adtsPayload([]byte{1, 2, 3}))
}

func TestRecorderFinalizesValidMP4OnBusClose(t *testing.T) {
	dir := t.TempDir()
	b := bus.New(types.AppName("radio1"))
	sub := b.Subscribe()

	rec := newRecorder(dir, types.AppName("radio1"), types.SessionId(7))

	done := make(chan error, 1)
	go func() { done <- rec.run(context.Background(), sub) }()

	for i := 0; i < 3; i++ {
		ts := types.NewTimestampFromMillis(uint64(i) * 21)
		s := types.NewAACAudioSample(1, 48000, 2, ts, adtsFrame([]byte{0xAA, 0xBB}))
		b.Publish(s)
	}
	sub.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not finalize in time")
	}

	finalPath := filepath.Join(dir, "radio1", "7.mp4")
	data, err := os.ReadFile(finalPath)
	require.NoError(t, err)
	require.True(t, len(data) > 8)
	require.Equal(t, "ftyp", string(data[4:8]))

	_, err = os.Stat(finalPath + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestRecorderFinalizeSkipsEmptyRecording(t *testing.T) {
	r := newRecorder(t.TempDir(), types.AppName("radio1"), types.SessionId(1))
	require.NoError(t, r.finalize())
	_, err := os.Stat(r.finalPath())
	require.True(t, os.IsNotExist(err))
}
