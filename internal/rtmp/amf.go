// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// AMF0 type markers, restricted to what connect/publish/createStream need.
const (
	amfMarkerNumber  byte = 0x00
	amfMarkerBoolean byte = 0x01
	amfMarkerString  byte = 0x02
	amfMarkerObject  byte = 0x03
	amfMarkerNull    byte = 0x05
	amfObjectEnd     byte = 0x09
)

// amfDecodeAll decodes a concatenated sequence of AMF0 values, e.g. a
// command message's ["connect", 1, {...}] payload.
func amfDecodeAll(data []byte) ([]any, error) {
	r := bytes.NewReader(data)
	var out []any
	for r.Len() > 0 {
		v, err := amfDecodeValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func amfDecodeValue(r *bytes.Reader) (any, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("amf: read marker: %w", err)
	}
	switch marker {
	case amfMarkerNumber:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("amf: read number: %w", err)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
	case amfMarkerBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("amf: read boolean: %w", err)
		}
		return b != 0, nil
	case amfMarkerString:
		return amfDecodeString(r)
	case amfMarkerNull:
		return nil, nil
	case amfMarkerObject:
		return amfDecodeObject(r)
	default:
		return nil, fmt.Errorf("amf: unsupported marker 0x%02x", marker)
	}
}

func amfDecodeString(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("amf: read string length: %w", err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("amf: read string body: %w", err)
	}
	return string(buf), nil
}

func amfDecodeObject(r *bytes.Reader) (map[string]any, error) {
	out := make(map[string]any)
	for {
		key, err := amfDecodeString(r)
		if err != nil {
			return nil, err
		}
		marker, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("amf: read object value marker: %w", err)
		}
		if marker == amfObjectEnd {
			if key != "" {
				return nil, fmt.Errorf("amf: object-end marker with nonempty key %q", key)
			}
			return out, nil
		}
		if err := r.UnreadByte(); err != nil {
			return nil, err
		}
		val, err := amfDecodeValue(r)
		if err != nil {
			return nil, err
		}
		out[key] = val
	}
}

// amfEncodeAll encodes values in order, concatenated, for building a
// command message reply payload (e.g. ["_result", 1, {...}]).
func amfEncodeAll(values ...any) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := amfEncodeValue(&buf, v); err != nil {
			return nil, fmt.Errorf("amf: encode value %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func amfEncodeValue(w *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		w.WriteByte(amfMarkerNull)
	case float64:
		w.WriteByte(amfMarkerNumber)
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(t))
		w.Write(buf[:])
	case bool:
		w.WriteByte(amfMarkerBoolean)
		if t {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
	case string:
		w.WriteByte(amfMarkerString)
		amfEncodeStringBody(w, t)
	case map[string]any:
		w.WriteByte(amfMarkerObject)
		for k, val := range t {
			amfEncodeStringBody(w, k)
			if err := amfEncodeValue(w, val); err != nil {
				return err
			}
		}
		amfEncodeStringBody(w, "")
		w.WriteByte(amfObjectEnd)
	default:
		return fmt.Errorf("amf: unsupported Go type %T", v)
	}
	return nil
}

func amfEncodeStringBody(w *bytes.Buffer, s string) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	w.Write(lenBuf[:])
	w.WriteString(s)
}
