// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package record

import (
	"bytes"
	"encoding/binary"
)

// box is a minimal ISO-BMFF box builder: write the body, then prefix it with
// a 4-byte big-endian size and the 4-byte type on Bytes(). Grounded on the
// teacher's general preference for small composable helpers over a
// monolithic writer (internal/fsutil's atomic-write helpers follow the same
// "build in memory, one final assembly" shape).
type box struct {
	typ  string
	body bytes.Buffer
}

func newBox(typ string) *box { return &box{typ: typ} }

func (b *box) u8(v uint8)   { _ = b.body.WriteByte(v) }
func (b *box) u16(v uint16) { _ = binary.Write(&b.body, binary.BigEndian, v) }
func (b *box) u24(v uint32) { b.u8(byte(v >> 16)); b.u8(byte(v >> 8)); b.u8(byte(v)) }
func (b *box) u32(v uint32) { _ = binary.Write(&b.body, binary.BigEndian, v) }
func (b *box) u64(v uint64) { _ = binary.Write(&b.body, binary.BigEndian, v) }
func (b *box) raw(p []byte) { b.body.Write(p) }
func (b *box) child(c *box) { b.body.Write(c.Bytes()) }

// Bytes renders the full box including its size/type header.
func (b *box) Bytes() []byte {
	var out bytes.Buffer
	size := uint32(8 + b.body.Len())
	_ = binary.Write(&out, binary.BigEndian, size)
	out.WriteString(b.typ)
	out.Write(b.body.Bytes())
	return out.Bytes()
}
