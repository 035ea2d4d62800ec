// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package adts turns a raw ADTS byte stream from SRT/RTMP ingest into a
// paced sequence of timestamped MediaSamples, inserting filler frames when
// the producer stalls so a downstream HLS segmenter never sees the media
// clock run ahead of wall-clock time (spec.md §4.4 "ADTS demux").
package adts

import (
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/metrics"
	"github.com/spooncast/echo/internal/types"
)

// frameSamples is the AAC-LC frame size in samples, fixed for this pipeline.
const frameSamples = 1024

// fillerThreshold is how many frame periods the media clock is allowed to
// lag behind wall-clock time before filler frames are inserted, and how
// many are inserted per catch-up burst.
const fillerThreshold = 20

// Demuxer parses ADTS frames out of a byte stream for one ingest
// connection, pacing emission against wall-clock time. Not safe for
// concurrent use.
type Demuxer struct {
	appName string
	sid     uint32

	currentConfig [3]byte
	haveConfig    bool

	startedAt  time.Time
	mediaTS    types.Timestamp
	frameDur   types.Duration
	frameCount uint64

	sampleRate uint32
	channels   uint8

	queue   []types.MediaSample
	quality types.InputQuality
}

// New creates a Demuxer for one ingest connection identified by sid, used
// in log lines and error messages as appName.
func New(appName string, sid uint32) *Demuxer {
	return &Demuxer{
		appName:  appName,
		sid:      sid,
		mediaTS:  types.NewTimestamp(0, 0),
		frameDur: types.NewDuration(frameSamples, 48000),
		queue:    make([]types.MediaSample, 0, 8),
	}
}

// Quality returns the running input-quality counters.
func (d *Demuxer) Quality() types.InputQuality {
	return types.InputQuality{
		TotalCount:  uint32(d.frameCount),
		BadCount:    d.quality.BadCount,
		FillerCount: d.quality.FillerCount,
	}
}

// HandleBytes parses every complete ADTS frame in input, then returns every
// sample whose media timestamp has now elapsed in wall-clock time relative
// to the first frame seen. An empty input signals the producer is starving
// (no data arrived this tick): filler is still paced in but not logged as a
// stall, matching the original implementation's is_starving branch.
func (d *Demuxer) HandleBytes(input []byte) []types.MediaSample {
	isStarving := len(input) == 0
	pos := 0

	for pos < len(input) {
		remaining := input[pos:]
		var pkts mpeg4audio.ADTSPackets
		if err := pkts.Unmarshal(remaining); err != nil || len(pkts) == 0 {
			d.quality.BadCount++
			log.L().Error().Str(log.FieldAppName, d.appName).Err(err).Msg("adts: bad frame")
			break
		}

		pkt := pkts[0]
		frameLen := 7 + len(pkt.AU)
		if pos+frameLen > len(input) {
			d.quality.BadCount++
			log.L().Error().Str(log.FieldAppName, d.appName).Msg("adts: not enough payload data")
			break
		}

		if d.isNewConfig(remaining) {
			d.setConfig(remaining, pkt)
		}

		if d.isValidConfig() {
			if d.startedAt.IsZero() {
				d.startedAt = time.Now()
			}
			d.pushPayload(input[pos : pos+frameLen])
		}

		pos += frameLen
	}

	var out []types.MediaSample
	if d.startedAt.IsZero() {
		return out
	}

	systemTS := uint64(time.Since(d.startedAt).Microseconds())

	if d.isValidConfig() {
		for systemTS > d.mediaTS.AsMicros()+fillerThreshold*d.frameDur.AsMicros() {
			if !isStarving {
				log.L().Warn().Str(log.FieldAppName, d.appName).Msg("adts: inserting filler burst")
				d.quality.FillerCount += fillerThreshold
				metrics.InputFrameTotal.WithLabelValues(d.appName, "filler").Add(fillerThreshold)
			}
			for i := 0; i < fillerThreshold; i++ {
				d.pushEmptyPayload()
			}
		}
	}

	for len(d.queue) > 0 {
		sample := d.queue[0]
		if sample.Timestamp == nil || systemTS <= sample.Timestamp.AsMicros() {
			break
		}
		out = append(out, sample)
		d.queue = d.queue[1:]
	}

	return out
}

func (d *Demuxer) isNewConfig(frame []byte) bool {
	return len(frame) < 3 || d.currentConfig != [3]byte{frame[0], frame[1], frame[2]}
}

func (d *Demuxer) setConfig(frame []byte, pkt *mpeg4audio.ADTSPacket) {
	if len(frame) >= 3 {
		copy(d.currentConfig[:], frame[0:3])
	}
	d.haveConfig = true
	d.sampleRate = uint32(pkt.SampleRate)
	d.channels = uint8(pkt.ChannelCount)
	d.frameDur = types.NewDuration(frameSamples, uint64(d.sampleRate))
}

// isValidConfig restricts ingest to the sample rate/channel combinations the
// HLS segmenter and recorder are provisioned for.
func (d *Demuxer) isValidConfig() bool {
	switch {
	case d.sampleRate == 48000 && (d.channels == 1 || d.channels == 2):
		return true
	case d.sampleRate == 44100 && (d.channels == 1 || d.channels == 2):
		return true
	default:
		return false
	}
}

func (d *Demuxer) pushPayload(payload []byte) {
	ts := types.NewTimestamp(frameSamples*d.frameCount, uint64(d.sampleRate))
	d.mediaTS = ts
	cp := make([]byte, len(payload))
	copy(cp, payload)
	sample := types.NewAACAudioSample(d.sid, d.sampleRate, d.channels, ts, cp)
	d.queue = append(d.queue, sample)
	d.frameCount++
	metrics.InputFrameTotal.WithLabelValues(d.appName, "ok").Inc()
}

func (d *Demuxer) pushEmptyPayload() {
	frame, ok := silentFrameFor(d.sampleRate, d.channels)
	if !ok {
		log.L().Error().
			Str(log.FieldAppName, d.appName).
			Uint32(log.FieldSampleRate, d.sampleRate).
			Uint8(log.FieldChannels, d.channels).
			Msg("adts: unsupported audio configuration for filler")
		return
	}
	d.pushPayload(frame)
}

// silentFrameFor returns the precomputed silent ADTS frame for a supported
// sample rate/channel combination.
func silentFrameFor(sampleRate uint32, channels uint8) ([]byte, bool) {
	switch {
	case sampleRate == 48000 && channels == 2:
		return adts48000Stereo, true
	case sampleRate == 48000 && channels == 1:
		return adts48000Mono, true
	case sampleRate == 44100 && channels == 2:
		return adts44100Stereo, true
	case sampleRate == 44100 && channels == 1:
		return adts44100Mono, true
	default:
		return nil, false
	}
}

// Precomputed silent ADTS-framed AAC-LC frames, one per supported
// sample-rate/channel-count combination.
var (
	adts44100Mono   = []byte{0xff, 0xf1, 0x50, 0x40, 0x01, 0x7f, 0xfc, 0x01, 0x18, 0x20, 0x07}
	adts44100Stereo = []byte{0xff, 0xf1, 0x50, 0x80, 0x01, 0xbf, 0xfc, 0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c}
	adts48000Mono   = []byte{0xff, 0xf1, 0x4c, 0x40, 0x01, 0x7f, 0xfc, 0x01, 0x18, 0x20, 0x07}
	adts48000Stereo = []byte{0xff, 0xf1, 0x4c, 0x80, 0x01, 0xbf, 0xfc, 0x21, 0x10, 0x04, 0x60, 0x8c, 0x1c}
)
