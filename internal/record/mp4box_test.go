// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoxBytesIncludesSizeAndType(t *testing.T) {
	b := newBox("test")
	b.u32(0xDEADBEEF)

	out := b.Bytes()
	require.Len(t, out, 12)
	require.Equal(t, []byte{0, 0, 0, 12}, out[0:4])
	require.Equal(t, "test", string(out[4:8]))
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, out[8:12])
}

func TestBoxChildNesting(t *testing.T) {
	inner := newBox("innr")
	inner.u8(1)

	outer := newBox("outr")
	outer.child(inner)

	got := outer.Bytes()
	// outer header (8) + inner box (8 header + 1 body = 9) = 17
	require.Len(t, got, 17)
	require.Equal(t, "outr", string(got[4:8]))
	require.Equal(t, "innr", string(got[12:16]))
}

func TestU24EncodesThreeBytesBigEndian(t *testing.T) {
	b := newBox("u24t")
	b.u24(0x010203)
	out := b.Bytes()
	require.Equal(t, []byte{0x01, 0x02, 0x03}, out[8:11])
}

func TestAudioSpecificConfigKnownRate(t *testing.T) {
	asc := audioSpecificConfig(48000, 2)
	require.Len(t, asc, 2)
	// object type AAC-LC (2) in the top 5 bits of byte 0.
	require.Equal(t, uint8(2), asc[0]>>3)
}

func TestAudioSpecificConfigUnknownRateFallsBackToReservedIndex(t *testing.T) {
	asc := audioSpecificConfig(1234, 1)
	freqIdx := (asc[0]&0x07)<<1 | asc[1]>>7
	require.Equal(t, uint8(15), freqIdx)
}
