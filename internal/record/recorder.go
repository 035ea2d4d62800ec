// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package record consumes a session's sample bus and writes it out as a
// single-track AAC MP4 file (spec.md §1 "C7 MP4 recorder"), grounded on
// internal/hls's writer shape: subscribe, accumulate, finalize on release.
package record

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/spooncast/echo/internal/bus"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// Service subscribes every newly created session to a Recorder and finalizes
// it when the session ends, mirroring hls.Service's trigger-driven fan-out.
type Service struct {
	manager *session.Manager
	rootDir string
}

// NewService builds a Service writing MP4 files under rootDir.
func NewService(rootDir string, manager *session.Manager) *Service {
	return &Service{manager: manager, rootDir: rootDir}
}

// Run registers for CreateSession events and spawns a Recorder per session
// until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	trigger := session.NewEventTrigger()
	if err := s.manager.RegisterTrigger(ctx, session.EventCreateSession, trigger); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-trigger:
			s.spawn(ctx, env)
		}
	}
}

func (s *Service) spawn(ctx context.Context, env session.EventEnvelope) {
	if env.Message.Bus == nil {
		return
	}
	sub := env.Message.Bus.Subscribe()
	rec := newRecorder(s.rootDir, env.Name, env.Message.SessionID)
	go func() {
		if err := rec.run(ctx, sub); err != nil {
			log.L().Error().Err(err).Str(log.FieldAppName, string(env.Name)).Msg("record: session recording failed")
			return
		}
		if err := s.manager.CompleteRecord(ctx, env.Name, env.Message.SessionID, rec.finalPath(), rec.durationMs()); err != nil {
			log.L().Error().Err(err).Msg("record: failed to notify complete_record")
		}
	}()
	if err := s.manager.StartRecord(ctx, env.Name, env.Message.SessionID); err != nil {
		log.L().Error().Err(err).Msg("record: failed to notify start_record")
	}
}

// recorder buffers one session's AAC frames and writes a non-fragmented MP4
// (ftyp/mdat/moov) on finalize.
type recorder struct {
	dir  string
	name types.AppName
	id   types.SessionId

	sampleRate uint32
	channels   uint8
	haveConfig bool

	mdat       bytes.Buffer
	sampleSize []uint32
	startTS    *types.Timestamp
	lastTS     types.Timestamp

	haveSid bool
	sidHigh uint32
}

func newRecorder(rootDir string, name types.AppName, id types.SessionId) *recorder {
	return &recorder{dir: filepath.Join(rootDir, string(name)), name: name, id: id}
}

func (r *recorder) finalPath() string {
	return filepath.Join(r.dir, fmt.Sprintf("%d.mp4", uint64(r.id)))
}

func (r *recorder) durationMs() uint64 {
	if r.startTS == nil {
		return 0
	}
	return r.lastTS.Sub(*r.startTS).AsMillis()
}

// run drains sub until the bus closes, then finalizes the MP4.
func (r *recorder) run(ctx context.Context, sub *bus.Subscription) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("record: mkdir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return r.finalize()
		case sample, ok := <-sub.C:
			if !ok {
				return r.finalize()
			}
			if sample.Timestamp == nil {
				continue
			}
			if r.haveSid && sample.Sid < r.sidHigh {
				// Stale packet left over from a receiver a reconnect already
				// superseded (spec.md §4.3/§8 sid watermark dedup).
				continue
			}
			r.haveSid = true
			r.sidHigh = sample.Sid
			r.consume(sample)
		}
	}
}

func (r *recorder) consume(sample types.MediaSample) {
	if !r.haveConfig {
		r.sampleRate = sample.MediaType.SampleRate
		r.channels = sample.MediaType.Channels
		r.haveConfig = true
	}
	if r.startTS == nil {
		ts := *sample.Timestamp
		r.startTS = &ts
	}
	r.lastTS = *sample.Timestamp

	au := adtsPayload(sample.Data)
	r.mdat.Write(au)
	r.sampleSize = append(r.sampleSize, uint32(len(au)))
}

// adtsPayload strips the 7-byte fixed ADTS header (no CRC), leaving the raw
// AAC access unit MP4 stores in its mdat.
func adtsPayload(frame []byte) []byte {
	if len(frame) <= 7 {
		return nil
	}
	return frame[7:]
}

func (r *recorder) finalize() error {
	if len(r.sampleSize) == 0 {
		return nil
	}

	f, err := renameio.NewPendingFile(r.finalPath(), renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("record: create pending file: %w", err)
	}
	defer func() { _ = f.Cleanup() }()

	if _, err := f.Write(ftypBox()); err != nil {
		return fmt.Errorf("record: write ftyp: %w", err)
	}

	mdatBox := newBox("mdat")
	mdatBox.raw(r.mdat.Bytes())
	mdatBytes := mdatBox.Bytes()
	if _, err := f.Write(mdatBytes); err != nil {
		return fmt.Errorf("record: write mdat: %w", err)
	}

	moov := r.moovBox(len(ftypBox()) + len(mdatBytes) - len(mdatBox.body.Bytes()))
	if _, err := f.Write(moov); err != nil {
		return fmt.Errorf("record: write moov: %w", err)
	}

	if err := f.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("record: rename into place: %w", err)
	}
	return nil
}

func ftypBox() []byte {
	b := newBox("ftyp")
	b.raw([]byte("isom"))
	b.u32(0x200)
	b.raw([]byte("isomiso2mp41"))
	return b.Bytes()
}

const frameSamples = 1024

// moovBox builds the single-audio-track movie box. mdatOffset is the
// absolute file offset of the first sample byte (ftyp size + mdat header).
func (r *recorder) moovBox(mdatOffset int) []byte {
	timescale := r.sampleRate
	if timescale == 0 {
		timescale = 48000
	}
	durationTicks := uint32(uint64(len(r.sampleSize)) * frameSamples)

	mvhd := newBox("mvhd")
	mvhd.u8(0)
	mvhd.u24(0)
	mvhd.u32(0)
	mvhd.u32(0)
	mvhd.u32(timescale)
	mvhd.u32(durationTicks)
	mvhd.u32(0x00010000)
	mvhd.u16(0x0100)
	mvhd.u16(0)
	mvhd.u32(0)
	mvhd.u32(0)
	for _, v := range [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000} {
		mvhd.u32(v)
	}
	for i := 0; i < 6; i++ {
		mvhd.u32(0)
	}
	mvhd.u32(2)

	tkhd := newBox("tkhd")
	tkhd.u8(0)
	tkhd.u24(7)
	tkhd.u32(0)
	tkhd.u32(0)
	tkhd.u32(1)
	tkhd.u32(0)
	tkhd.u32(durationTicks)
	tkhd.u32(0)
	tkhd.u32(0)
	tkhd.u16(0)
	tkhd.u16(0)
	tkhd.u16(0x0100)
	tkhd.u16(0)
	for _, v := range [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000} {
		tkhd.u32(v)
	}
	tkhd.u32(0)
	tkhd.u32(0)

	mdhd := newBox("mdhd")
	mdhd.u8(0)
	mdhd.u24(0)
	mdhd.u32(0)
	mdhd.u32(0)
	mdhd.u32(timescale)
	mdhd.u32(durationTicks)
	mdhd.u16(0x55c4)
	mdhd.u16(0)

	hdlr := newBox("hdlr")
	hdlr.u8(0)
	hdlr.u24(0)
	hdlr.u32(0)
	hdlr.raw([]byte("soun"))
	hdlr.u32(0)
	hdlr.u32(0)
	hdlr.u32(0)
	hdlr.raw([]byte("SoundHandler\x00"))

	smhd := newBox("smhd")
	smhd.u8(0)
	smhd.u24(0)
	smhd.u16(0)
	smhd.u16(0)

	dref := newBox("dref")
	dref.u8(0)
	dref.u24(0)
	dref.u32(1)
	urlBox := newBox("url ")
	urlBox.u8(0)
	urlBox.u24(1)
	dref.child(urlBox)

	dinf := newBox("dinf")
	dinf.child(dref)

	esds := r.esdsBox()

	mp4a := newBox("mp4a")
	mp4a.raw(make([]byte, 6))
	mp4a.u16(1)
	mp4a.u16(0)
	mp4a.u16(0)
	mp4a.u32(0)
	mp4a.u16(uint16(r.channels))
	mp4a.u16(16)
	mp4a.u16(0)
	mp4a.u16(0)
	mp4a.u32(uint32(timescale) << 16)
	mp4a.child(esds)

	stsd := newBox("stsd")
	stsd.u8(0)
	stsd.u24(0)
	stsd.u32(1)
	stsd.child(mp4a)

	stts := newBox("stts")
	stts.u8(0)
	stts.u24(0)
	stts.u32(1)
	stts.u32(uint32(len(r.sampleSize)))
	stts.u32(frameSamples)

	stsc := newBox("stsc")
	stsc.u8(0)
	stsc.u24(0)
	stsc.u32(1)
	stsc.u32(1)
	stsc.u32(uint32(len(r.sampleSize)))
	stsc.u32(1)

	stsz := newBox("stsz")
	stsz.u8(0)
	stsz.u24(0)
	stsz.u32(0)
	stsz.u32(uint32(len(r.sampleSize)))
	for _, sz := range r.sampleSize {
		stsz.u32(sz)
	}

	stco := newBox("stco")
	stco.u8(0)
	stco.u24(0)
	stco.u32(1)
	stco.u32(uint32(mdatOffset))

	stbl := newBox("stbl")
	stbl.child(stsd)
	stbl.child(stts)
	stbl.child(stsc)
	stbl.child(stsz)
	stbl.child(stco)

	minf := newBox("minf")
	minf.child(smhd)
	minf.child(dinf)
	minf.child(stbl)

	mdia := newBox("mdia")
	mdia.child(mdhd)
	mdia.child(hdlr)
	mdia.child(minf)

	trak := newBox("trak")
	trak.child(tkhd)
	trak.child(mdia)

	moov := newBox("moov")
	moov.child(mvhd)
	moov.child(trak)
	return moov.Bytes()
}

// esdsBox builds a minimal MPEG-4 ES descriptor wrapping an AAC-LC
// AudioSpecificConfig for r's sample rate/channel count.
func (r *recorder) esdsBox() *box {
	asc := audioSpecificConfig(r.sampleRate, r.channels)

	decSpecificInfo := newDescriptor(0x05, asc)
	decConfig := newDescriptor(0x04, concatBytes(
		[]byte{0x40, 0x15, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		decSpecificInfo,
	))
	slConfig := newDescriptor(0x06, []byte{0x02})
	esDescr := newDescriptor(0x03, concatBytes([]byte{0, 0, 0}, decConfig, slConfig))

	esds := newBox("esds")
	esds.u8(0)
	esds.u24(0)
	esds.raw(esDescr)
	return esds
}

// newDescriptor encodes an MPEG-4 descriptor tag with its variable-length
// size prefix (one byte suffices for every descriptor this recorder emits).
func newDescriptor(tag byte, payload []byte) []byte {
	return concatBytes([]byte{tag, byte(len(payload))}, payload)
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var aacSampleRates = []uint32{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

func audioSpecificConfig(sampleRate uint32, channels uint8) []byte {
	freqIdx := uint8(15)
	for i, rate := range aacSampleRates {
		if rate == sampleRate {
			freqIdx = uint8(i)
			break
		}
	}
	const objectTypeAACLC = 2
	b0 := (objectTypeAACLC << 3) | (freqIdx >> 1)
	b1 := (freqIdx << 7) | (channels << 3)
	return []byte{b0, b1}
}
