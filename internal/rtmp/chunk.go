// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	defaultChunkSize = 128
	extendedTSMarker = 0xFFFFFF
)

// Message is one fully reassembled RTMP message: a command, a control
// message, or an audio/video tag.
type Message struct {
	Timestamp uint32
	TypeID    uint8
	StreamID  uint32
	Payload   []byte
}

// chunkStreamState tracks the most recently seen header per chunk stream ID,
// needed to interpret FMT 1/2/3 headers that omit fields.
type chunkStreamState struct {
	timestamp   uint32
	length      uint32
	typeID      uint8
	streamID    uint32
	isDelta     bool
	partial     []byte
	partialWant uint32
}

// ChunkReader demultiplexes an RTMP chunk stream into complete Messages.
// Not safe for concurrent use.
type ChunkReader struct {
	r         io.Reader
	chunkSize uint32
	states    map[uint32]*chunkStreamState
}

// NewChunkReader wraps r, starting at the protocol default chunk size of
// 128 bytes until a Set Chunk Size control message changes it.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: r, chunkSize: defaultChunkSize, states: make(map[uint32]*chunkStreamState)}
}

// SetChunkSize applies a peer's Set Chunk Size control message.
func (c *ChunkReader) SetChunkSize(n uint32) {
	if n > 0 {
		c.chunkSize = n
	}
}

// ReadMessage blocks until one complete message has been reassembled from
// one or more chunks.
func (c *ChunkReader) ReadMessage() (Message, error) {
	for {
		csid, fmtVal, err := c.readBasicHeader()
		if err != nil {
			return Message{}, err
		}

		st, ok := c.states[csid]
		if !ok {
			st = &chunkStreamState{}
			c.states[csid] = st
		}

		if err := c.readMessageHeader(fmtVal, st); err != nil {
			return Message{}, err
		}

		if st.partial == nil {
			st.partial = make([]byte, 0, st.length)
			st.partialWant = st.length
		}

		remaining := st.partialWant - uint32(len(st.partial))
		readNow := remaining
		if readNow > c.chunkSize {
			readNow = c.chunkSize
		}
		buf := make([]byte, readNow)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return Message{}, fmt.Errorf("rtmp: read chunk payload: %w", err)
		}
		st.partial = append(st.partial, buf...)

		if uint32(len(st.partial)) == st.partialWant {
			msg := Message{Timestamp: st.timestamp, TypeID: st.typeID, StreamID: st.streamID, Payload: st.partial}
			st.partial = nil
			return msg, nil
		}
	}
}

func (c *ChunkReader) readBasicHeader() (csid uint32, fmtVal uint8, err error) {
	var b [1]byte
	if _, err = io.ReadFull(c.r, b[:]); err != nil {
		return 0, 0, fmt.Errorf("rtmp: read basic header: %w", err)
	}
	fmtVal = b[0] >> 6
	raw := b[0] & 0x3F
	switch raw {
	case 0:
		var b1 [1]byte
		if _, err = io.ReadFull(c.r, b1[:]); err != nil {
			return 0, 0, fmt.Errorf("rtmp: read basic header ext1: %w", err)
		}
		csid = uint32(b1[0]) + 64
	case 1:
		var b2 [2]byte
		if _, err = io.ReadFull(c.r, b2[:]); err != nil {
			return 0, 0, fmt.Errorf("rtmp: read basic header ext2: %w", err)
		}
		csid = uint32(b2[0]) + 64 + uint32(b2[1])<<8
	default:
		csid = uint32(raw)
	}
	return csid, fmtVal, nil
}

func readUint24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }

func (c *ChunkReader) readMessageHeader(fmtVal uint8, st *chunkStreamState) error {
	switch fmtVal {
	case 0:
		var mh [11]byte
		if _, err := io.ReadFull(c.r, mh[:]); err != nil {
			return fmt.Errorf("rtmp: read message header fmt0: %w", err)
		}
		ts := readUint24(mh[0:3])
		st.length = readUint24(mh[3:6])
		st.typeID = mh[6]
		st.streamID = binary.LittleEndian.Uint32(mh[7:11])
		st.isDelta = false
		if ts == extendedTSMarker {
			ext, err := c.readExtendedTimestamp()
			if err != nil {
				return err
			}
			ts = ext
		}
		st.timestamp = ts
	case 1:
		var mh [7]byte
		if _, err := io.ReadFull(c.r, mh[:]); err != nil {
			return fmt.Errorf("rtmp: read message header fmt1: %w", err)
		}
		delta := readUint24(mh[0:3])
		st.length = readUint24(mh[3:6])
		st.typeID = mh[6]
		st.isDelta = true
		if delta == extendedTSMarker {
			ext, err := c.readExtendedTimestamp()
			if err != nil {
				return err
			}
			delta = ext
		}
		st.timestamp += delta
	case 2:
		var mh [3]byte
		if _, err := io.ReadFull(c.r, mh[:]); err != nil {
			return fmt.Errorf("rtmp: read message header fmt2: %w", err)
		}
		delta := readUint24(mh[0:3])
		st.isDelta = true
		if delta == extendedTSMarker {
			ext, err := c.readExtendedTimestamp()
			if err != nil {
				return err
			}
			delta = ext
		}
		st.timestamp += delta
	case 3:
		// Inherits everything from st; no bytes on the wire beyond the
		// basic header already consumed, unless the prior message in this
		// stream used an extended timestamp, which FMT3 must repeat.
	default:
		return fmt.Errorf("rtmp: unsupported chunk fmt %d", fmtVal)
	}
	return nil
}

func (c *ChunkReader) readExtendedTimestamp() (uint32, error) {
	var ext [4]byte
	if _, err := io.ReadFull(c.r, ext[:]); err != nil {
		return 0, fmt.Errorf("rtmp: read extended timestamp: %w", err)
	}
	return binary.BigEndian.Uint32(ext[:]), nil
}

// ChunkWriter serializes Messages back onto the wire with an FMT0 header on
// each message's first chunk and FMT3 headers on its continuation chunks
// (sufficient for the handful of reply messages echo sends: the connect
// result and stream-begin control messages).
type ChunkWriter struct {
	w         io.Writer
	chunkSize uint32
}

// NewChunkWriter wraps w at the protocol default chunk size.
func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: w, chunkSize: defaultChunkSize}
}

// WriteMessage splits payload into chunkSize-sized chunks on csid, using
// FMT0 for the first chunk and FMT3 for continuations.
func (c *ChunkWriter) WriteMessage(csid uint32, msg Message) error {
	basicHeader := func(fmtVal byte) []byte {
		switch {
		case csid < 64:
			return []byte{fmtVal<<6 | byte(csid)}
		case csid < 320:
			return []byte{fmtVal << 6, byte(csid - 64)}
		default:
			return []byte{fmtVal<<6 | 1, byte(csid - 64), byte((csid - 64) >> 8)}
		}
	}
	header := make([]byte, 0, 14)
	header = append(header, basicHeader(0)...)
	var mh [11]byte
	mh[0], mh[1], mh[2] = byte(msg.Timestamp>>16), byte(msg.Timestamp>>8), byte(msg.Timestamp)
	length := uint32(len(msg.Payload))
	mh[3], mh[4], mh[5] = byte(length>>16), byte(length>>8), byte(length)
	mh[6] = msg.TypeID
	binary.LittleEndian.PutUint32(mh[7:11], msg.StreamID)
	header = append(header, mh[:]...)
	if _, err := c.w.Write(header); err != nil {
		return fmt.Errorf("rtmp: write chunk header: %w", err)
	}

	for off := 0; off < len(msg.Payload); off += int(c.chunkSize) {
		end := off + int(c.chunkSize)
		if end > len(msg.Payload) {
			end = len(msg.Payload)
		}
		if off > 0 {
			if _, err := c.w.Write(basicHeader(3)); err != nil {
				return fmt.Errorf("rtmp: write continuation header: %w", err)
			}
		}
		if _, err := c.w.Write(msg.Payload[off:end]); err != nil {
			return fmt.Errorf("rtmp: write chunk payload: %w", err)
		}
	}
	return nil
}
