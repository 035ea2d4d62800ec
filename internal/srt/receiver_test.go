// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package srt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spooncast/echo/internal/session"
)

func TestReceiver_ExitsAfterConnectionClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	handle := make(session.SessionHandle, 16)
	rcv := newReceiver("app1", server, 2*time.Second, handle, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	closeSignal := make(chan struct{})

	done := make(chan struct{})
	go func() {
		rcv.run(ctx, closeSignal)
		close(done)
	}()

	silentFrame := []byte{0xff, 0xf1, 0x4c, 0x80, 0x01, 0xbf, 0xfc, 0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c}
	_, err := client.Write(silentFrame)
	require.NoError(t, err)

	_ = client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not exit after connection close")
	}
}
