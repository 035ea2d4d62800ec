// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package rtmp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

const (
	msgTypeAudio           = 8
	msgTypeCommandAMF0     = 20
	msgTypeSetChunkSize    = 1
	aacPacketTypeSeqHeader = 0
	aacPacketTypeRaw       = 1
	csidCommand  uint32 = 3
	csidAudio    uint32 = 6
)

// publishResolver creates the session a publisher is attaching to, given
// the app/stream name it announced via connect+publish. release is called
// once, when the connection ends, to tear the session down in the manager.
type publishResolver func(ctx context.Context, name types.AppName, key *string) (handle session.SessionHandle, release func(), err error)

// Peer handles one accepted RTMP connection end to end: handshake, the
// connect/createStream/publish command sequence, and streaming audio
// thereafter.
type Peer struct {
	conn     net.Conn
	resolve  publishResolver
	connTO   time.Duration
	appName  types.AppName
	handle   session.SessionHandle

	sampleRate uint32
	channels   uint8
	haveConfig bool

	release func()
}

// NewPeer builds a Peer for an accepted connection.
func NewPeer(conn net.Conn, connTimeout time.Duration, resolve publishResolver) *Peer {
	return &Peer{conn: conn, connTO: connTimeout, resolve: resolve}
}

// Serve drives the connection until ctx is canceled, the peer disconnects,
// or a protocol error occurs. It always closes conn on return.
func (p *Peer) Serve(ctx context.Context) {
	defer p.conn.Close()

	if err := ServerHandshake(p.conn); err != nil {
		log.L().Error().Err(err).Msg("rtmp: handshake failed")
		return
	}

	_ = p.conn.SetReadDeadline(time.Now().Add(p.connTO))
	chunkR := NewChunkReader(p.conn)
	chunkW := NewChunkWriter(p.conn)

	for {
		select {
		case <-ctx.Done():
			p.closeSession()
			return
		default:
		}

		msg, err := chunkR.ReadMessage()
		if err != nil {
			log.L().Info().Str(log.FieldAppName, string(p.appName)).Err(err).Msg("rtmp: connection ended")
			p.closeSession()
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(p.connTO))

		switch msg.TypeID {
		case msgTypeSetChunkSize:
			if len(msg.Payload) >= 4 {
				chunkR.SetChunkSize(be32(msg.Payload))
			}
		case msgTypeCommandAMF0:
			if err := p.handleCommand(ctx, msg, chunkW); err != nil {
				log.L().Error().Err(err).Msg("rtmp: command handling failed")
				p.closeSession()
				return
			}
		case msgTypeAudio:
			p.handleAudio(msg)
		}
	}
}

func (p *Peer) closeSession() {
	if p.handle != nil {
		close(p.handle)
		p.handle = nil
	}
	if p.release != nil {
		p.release()
		p.release = nil
	}
}

func (p *Peer) handleCommand(ctx context.Context, msg Message, w *ChunkWriter) error {
	values, err := amfDecodeAll(msg.Payload)
	if err != nil || len(values) == 0 {
		return fmt.Errorf("rtmp: decode command: %w", err)
	}
	name, _ := values[0].(string)

	switch name {
	case "connect":
		return p.replyConnectAccepted(w, msg.StreamID)
	case "createStream":
		txID, _ := values[1].(float64)
		return p.replyCreateStream(w, msg.StreamID, txID)
	case "publish":
		return p.handlePublish(ctx, values)
	case "FCPublish", "releaseStream":
		return nil
	default:
		return nil
	}
}

func (p *Peer) replyConnectAccepted(w *ChunkWriter, streamID uint32) error {
	payload, err := amfEncodeAll("_result", float64(1), map[string]any{
		"fmsVer":       "FMS/3,0,1,123",
		"capabilities": float64(31),
	}, map[string]any{
		"level":          "status",
		"code":           "NetConnection.Connect.Success",
		"description":    "Connection succeeded.",
	})
	if err != nil {
		return err
	}
	return w.WriteMessage(csidCommand, Message{TypeID: msgTypeCommandAMF0, StreamID: streamID, Payload: payload})
}

func (p *Peer) replyCreateStream(w *ChunkWriter, streamID uint32, txID float64) error {
	payload, err := amfEncodeAll("_result", txID, nil, float64(1))
	if err != nil {
		return err
	}
	return w.WriteMessage(csidCommand, Message{TypeID: msgTypeCommandAMF0, StreamID: streamID, Payload: payload})
}

func (p *Peer) handlePublish(ctx context.Context, values []any) error {
	if len(values) < 4 {
		return fmt.Errorf("rtmp: publish command missing stream name")
	}
	publishName, _ := values[3].(string)
	name, key := parsePublishName(publishName)

	handle, release, err := p.resolve(ctx, name, key)
	if err != nil {
		return fmt.Errorf("rtmp: publish rejected for %q: %w", name, err)
	}
	p.appName = name
	p.handle = handle
	p.release = release
	log.L().Info().Str(log.FieldAppName, string(name)).Msg("rtmp: publisher accepted")
	return nil
}

// parsePublishName splits "name?key=KEY" the same way SRT streamids are
// parsed, so both ingest paths share one stream-key convention.
func parsePublishName(raw string) (types.AppName, *string) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '?' {
			name := raw[:i]
			query := raw[i+1:]
			const prefix = "key="
			if len(query) > len(prefix) && query[:len(prefix)] == prefix {
				key := query[len(prefix):]
				return types.AppName(name), &key
			}
			return types.AppName(name), nil
		}
	}
	return types.AppName(raw), nil
}

// handleAudio unwraps an FLV AAC audio tag and, once the sequence header has
// established sampleRate/channels, re-frames the raw access unit as ADTS so
// downstream consumers (bus, HLS, recorder) see one uniform AAC
// representation regardless of ingest protocol.
func (p *Peer) handleAudio(msg Message) {
	if p.handle == nil || len(msg.Payload) < 2 {
		return
	}
	soundFormat := msg.Payload[0] >> 4
	if soundFormat != 10 { // AAC
		return
	}
	packetType := msg.Payload[1]
	au := msg.Payload[2:]

	if packetType == aacPacketTypeSeqHeader {
		var cfg mpeg4audio.Config
		if err := cfg.Unmarshal(au); err != nil {
			log.L().Error().Str(log.FieldAppName, string(p.appName)).Err(err).Msg("rtmp: bad AAC sequence header")
			return
		}
		p.sampleRate = uint32(cfg.SampleRate)
		p.channels = uint8(cfg.ChannelCount)
		p.haveConfig = true
		return
	}
	if packetType != aacPacketTypeRaw || !p.haveConfig {
		return
	}

	framed, err := mpeg4audio.ADTSPackets{{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   int(p.sampleRate),
		ChannelCount: int(p.channels),
		AU:           au,
	}}.Marshal()
	if err != nil {
		log.L().Error().Str(log.FieldAppName, string(p.appName)).Err(err).Msg("rtmp: failed to frame ADTS")
		return
	}

	ts := types.NewTimestampFromMillis(uint64(msg.Timestamp))
	sample := types.NewAACAudioSample(0, p.sampleRate, p.channels, ts, framed)
	p.handle <- session.MediaMessage{Sample: sample}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
