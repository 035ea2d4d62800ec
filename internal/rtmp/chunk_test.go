// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkWriteReadRoundTripSingleChunk(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkWriter(&buf)
	msg := Message{Timestamp: 42, TypeID: 0x14, StreamID: 1, Payload: []byte("hello")}
	require.NoError(t, w.WriteMessage(3, msg))

	r := NewChunkReader(&buf)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestChunkReadSplitsAcrossMultipleChunks(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkWriter(&buf)
	w.chunkSize = 4
	payload := []byte("abcdefghij")
	msg := Message{Timestamp: 0, TypeID: 0x08, StreamID: 1, Payload: payload}
	require.NoError(t, w.WriteMessage(4, msg))

	r := NewChunkReader(&buf)
	r.SetChunkSize(4)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, payload, got.Payload)
	require.Equal(t, msg.TypeID, got.TypeID)
	require.Equal(t, msg.StreamID, got.StreamID)
}

func TestChunkReaderBasicHeaderExtended(t *testing.T) {
	var buf bytes.Buffer
	w := NewChunkWriter(&buf)
	msg := Message{Timestamp: 7, TypeID: 0x09, StreamID: 2, Payload: []byte{1, 2, 3}}
	require.NoError(t, w.WriteMessage(64, msg))

	r := NewChunkReader(&buf)
	got, err := r.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestChunkReaderErrorsOnTruncatedStream(t *testing.T) {
	r := NewChunkReader(bytes.NewReader([]byte{0xC0}))
	_, err := r.ReadMessage()
	require.Error(t, err)
}
