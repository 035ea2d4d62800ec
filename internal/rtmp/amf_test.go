// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAMFRoundTripScalars(t *testing.T) {
	encoded, err := amfEncodeAll("connect", float64(1), true, nil)
	require.NoError(t, err)

	values, err := amfDecodeAll(encoded)
	require.NoError(t, err)
	require.Equal(t, []any{"connect", float64(1), true, nil}, values)
}

func TestAMFRoundTripObject(t *testing.T) {
	obj := map[string]any{"app": "radio1", "tcUrl": "rtmp://localhost/radio1"}
	encoded, err := amfEncodeAll(obj)
	require.NoError(t, err)

	values, err := amfDecodeAll(encoded)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Equal(t, obj, values[0])
}

func TestAMFDecodeObjectRejectsMismatchedEnd(t *testing.T) {
	// An object-end marker must only ever follow an empty key.
	var buf []byte
	buf = append(buf, amfMarkerObject)
	buf = append(buf, 0x00, 0x03)
	buf = append(buf, 'f', 'o', 'o')
	buf = append(buf, amfObjectEnd)

	_, err := amfDecodeAll(buf)
	require.Error(t, err)
}

func TestAMFDecodeUnsupportedMarker(t *testing.T) {
	_, err := amfDecodeAll([]byte{0xFF})
	require.Error(t, err)
}

func TestAMFEncodeUnsupportedType(t *testing.T) {
	_, err := amfEncodeAll(struct{}{})
	require.Error(t, err)
}
