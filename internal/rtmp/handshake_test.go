// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerHandshakeSucceedsAgainstConformingClient(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- ServerHandshake(server) }()

	c1 := make([]byte, packetSize)
	_, err := client.Write(append([]byte{version}, c1...))
	require.NoError(t, err)

	s0s1s2 := make([]byte, 1+packetSize+packetSize)
	_, err = io.ReadFull(client, s0s1s2)
	require.NoError(t, err)
	require.Equal(t, version, s0s1s2[0])
	// S2 must echo C1 byte for byte.
	require.Equal(t, c1, s0s1s2[1+packetSize:])

	c2 := make([]byte, packetSize)
	_, err = client.Write(c2)
	require.NoError(t, err)

	require.NoError(t, <-errCh)
}

func TestServerHandshakeRejectsBadVersion(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- ServerHandshake(server) }()

	bad := make([]byte, 1+packetSize)
	bad[0] = 0x06
	_, err := client.Write(bad)
	require.NoError(t, err)

	require.Error(t, <-errCh)
}
