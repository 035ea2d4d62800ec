// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package hls implements the sliding-window MPEG-TS HLS segmenter of
// spec.md §4.6: one playlist/segment writer per live session, a pre-roll
// prelude, atomic playlist updates, and deferred file cleanup.
package hls

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/renameio/v2"
)

// Derived duration bounds, spec.md §4.6.
const (
	playlistDurationFactor    = 12
	playlistMinDurationFactor = 6
	cacheDurationFactor       = 38
)

// ClampTargetDuration clamps target duration to [1000ms, 8000ms] (spec.md §8 "Boundary behaviors").
func ClampTargetDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	if d > 8*time.Second {
		return 8 * time.Second
	}
	return d
}

// Segment is one entry in the live sliding window or the pre-roll prelude.
type Segment struct {
	Seq           int64
	URI           string
	Duration      time.Duration
	Discontinuity bool
	Preroll       bool // never scheduled for cleanup deletion (spec.md §6.3)
}

// Playlist accumulates Segments for one session and renders an EXT-X m3u8.
// Not safe for concurrent use; the owning Writer serializes access.
type Playlist struct {
	targetDuration  time.Duration
	maxDuration     time.Duration
	minDuration     time.Duration
	cacheDuration   time.Duration
	mediaSeqStart   int64
	preroll         []Segment
	live            []Segment
	currentDuration time.Duration
	state           playlistStateLatch
}

type playlistStateLatch uint8

const (
	latchNotReady playlistStateLatch = iota
	latchReady
)

// NewPlaylist builds an empty Playlist for the given (already-clamped)
// target duration. mediaSeqStart sets the first live segment's sequence
// number, letting a later session for the same AppName continue numbering
// instead of restarting at 0 (see Service.spawnWriter).
func NewPlaylist(targetDuration time.Duration, mediaSeqStart int64) *Playlist {
	return &Playlist{
		targetDuration: targetDuration,
		maxDuration:    targetDuration * playlistDurationFactor,
		minDuration:    targetDuration * playlistMinDurationFactor,
		cacheDuration:  targetDuration * cacheDurationFactor,
		mediaSeqStart:  mediaSeqStart,
	}
}

// SetPreroll installs the pre-roll prelude as given; its segments keep the
// sequence numbers LoadPreroll assigned. Render emits them only while the
// live window's own duration does not yet exceed playlist_min_duration
// (spec.md §12 "Pre-roll playlist prelude").
func (p *Playlist) SetPreroll(segs []Segment) {
	p.preroll = segs
}

// CacheDuration is the grace period a dropped segment's file is kept on
// disk before the cleaner deletes it.
func (p *Playlist) CacheDuration() time.Duration { return p.cacheDuration }

// MinDuration is the ready-state threshold (playlist_min_duration).
func (p *Playlist) MinDuration() time.Duration { return p.minDuration }

// CurrentDuration returns the sum of the live segments' durations
// (spec.md §8 "current_duration equals the sum of its live segments").
func (p *Playlist) CurrentDuration() time.Duration { return p.currentDuration }

// Add appends seg to the live window, dropping the oldest segment(s) once
// current_duration reaches playlist_duration. Dropped segments are returned
// so the caller can schedule their files for deferred deletion; pre-roll
// segments are never eligible for drop because they never enter p.live.
func (p *Playlist) Add(seg Segment) (dropped []Segment) {
	p.live = append(p.live, seg)
	p.currentDuration += seg.Duration

	for p.currentDuration >= p.maxDuration && len(p.live) > 1 {
		oldest := p.live[0]
		p.live = p.live[1:]
		p.currentDuration -= oldest.Duration
		dropped = append(dropped, oldest)
	}
	return dropped
}

// ReadinessTransition reports whether Add just crossed playlist_min_duration
// for the first time (Ready), dropped back below it (NotReady), or neither
// (Unchanged) — spec.md §4.6 "PlaylistState".
func (p *Playlist) ReadinessTransition() (state string) {
	crossed := p.currentDuration >= p.minDuration
	switch {
	case crossed && p.state == latchNotReady:
		p.state = latchReady
		return "ready"
	case !crossed && p.state == latchReady:
		// Dropping back below the threshold reports NotReady, but the latch
		// stays set: Ready is reported only the first time.
		return "not_ready"
	case crossed:
		return "unchanged"
	default:
		return "not_ready"
	}
}

// firstLiveSeq is the sequence number of p.live[0], or mediaSeqStart if the
// live window is currently empty.
func (p *Playlist) firstLiveSeq() int64 {
	if len(p.live) == 0 {
		return p.mediaSeqStart
	}
	return p.live[0].Seq
}

// Render serializes the playlist as an EXT-X m3u8 document.
func (p *Playlist) Render() []byte {
	var buf bytes.Buffer
	targetSec := int(p.targetDuration / time.Second)
	if p.targetDuration%time.Second != 0 {
		targetSec++
	}

	fmt.Fprintf(&buf, "#EXTM3U\n")
	fmt.Fprintf(&buf, "#EXT-X-VERSION:3\n")
	fmt.Fprintf(&buf, "#EXT-X-TARGETDURATION:%d\n", targetSec)
	fmt.Fprintf(&buf, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.firstLiveSeq())

	prev := p.preroll
	for i, seg := range prev {
		if p.currentDuration > p.minDuration {
			break
		}
		writeSegment(&buf, seg, i == 0)
	}
	for i, seg := range p.live {
		writeSegment(&buf, seg, i == 0 && len(prev) == 0)
	}
	return buf.Bytes()
}

func writeSegment(buf *bytes.Buffer, seg Segment, isFirst bool) {
	if seg.Discontinuity && !isFirst {
		fmt.Fprintf(buf, "#EXT-X-DISCONTINUITY\n")
	}
	fmt.Fprintf(buf, "#EXTINF:%.3f,\n", seg.Duration.Seconds())
	fmt.Fprintf(buf, "%s\n", seg.URI)
}

// WriteAtomic renders the playlist and writes it to path via a temp file in
// the same directory, fsync'd then renamed into place (spec.md §4.6
// "Write playlist to a temporary file ... fsync, then atomically rename").
func (p *Playlist) WriteAtomic(path string) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("hls: create playlist temp file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(p.Render()); err != nil {
		return fmt.Errorf("hls: write playlist temp file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("hls: rename playlist into place: %w", err)
	}
	return nil
}
