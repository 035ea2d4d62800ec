// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spooncast/echo/internal/bus"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/session"
	"github.com/spooncast/echo/internal/types"
)

// frameFudge is the AAC frame-duration slack subtracted from the segment
// write threshold (spec.md §4.6 "next_write, initially T - 22 ms").
const frameFudge = 22 * time.Millisecond

// Writer consumes one session's sample bus and produces a sliding-window
// MPEG-TS HLS feed: a playlist plus `.ts` segment files under
// rootDir/appName (spec.md §4.6, §6.3).
type Writer struct {
	manager *session.Manager
	cleaner *Cleaner

	appName types.AppName
	id      types.SessionId
	dir     string

	targetDuration time.Duration
	muxer          *tsMuxer
	playlist       *Playlist

	seq                  int64
	segBuf               *bytes.Buffer
	segmentOpen          bool
	segStartMs           uint64
	lastObservedMs       uint64
	nextWriteMs          uint64
	pendingDiscontinuity bool
	readyNotified        bool

	haveSid bool
	sidHigh uint32
}

// NewWriter builds a Writer for a freshly created session. preroll is the
// already-loaded pre-roll prelude (nil if none configured); mediaSeqStart
// lets a later session for the same AppName continue numbering instead of
// restarting the playlist (see Service.spawnWriter).
func NewWriter(manager *session.Manager, cleaner *Cleaner, rootDir string, targetDuration time.Duration, appName types.AppName, id types.SessionId, mediaSeqStart int64, preroll []Segment) (*Writer, error) {
	muxer, err := newTSMuxer()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(rootDir, string(appName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("hls: create session directory: %w", err)
	}

	playlist := NewPlaylist(targetDuration, mediaSeqStart)
	playlist.SetPreroll(preroll)

	return &Writer{
		manager:        manager,
		cleaner:        cleaner,
		appName:        appName,
		id:             id,
		dir:            dir,
		targetDuration: targetDuration,
		muxer:          muxer,
		playlist:       playlist,
		seq:            mediaSeqStart,
		nextWriteMs:    uint64((targetDuration - frameFudge).Milliseconds()),
	}, nil
}

func (w *Writer) playlistPath() string { return filepath.Join(w.dir, "playlist.m3u8") }

// Run drains sub until the bus closes it (session released or ended), then
// schedules the deferred cleanup spec.md §4.6 "Release" describes.
func (w *Writer) Run(ctx context.Context, sub *bus.Subscription) {
	defer sub.Close()

	log.L().Info().Str(log.FieldAppName, string(w.appName)).Msg("hls: writer started")

	for sample := range sub.C {
		if sample.Timestamp == nil {
			// The cached audio-sequence-header sample (SPEC_FULL.md §13):
			// it carries no payload and is skipped.
			continue
		}
		if w.haveSid && sample.Sid < w.sidHigh {
			// Stale packet left over from a receiver a reconnect already
			// superseded (spec.md §4.3/§8 sid watermark dedup).
			continue
		}
		w.haveSid = true
		w.sidHigh = sample.Sid
		if err := w.handleSample(ctx, sample); err != nil {
			log.L().Error().Err(err).Str(log.FieldAppName, string(w.appName)).Msg("hls: failed to handle sample")
		}
	}

	w.onReleased(ctx)
}

func (w *Writer) handleSample(ctx context.Context, sample types.MediaSample) error {
	ms := sample.Timestamp.AsMillis()

	discontinuity := w.segmentOpen && ms < w.lastObservedMs
	if discontinuity {
		if err := w.flush(ctx, ms); err != nil {
			return err
		}
		w.pendingDiscontinuity = true
		w.nextWriteMs = uint64((w.targetDuration - frameFudge).Milliseconds())
	}

	firstOfSegment := !w.segmentOpen
	if firstOfSegment {
		w.openSegment(ms)
	}

	pts := ptsFromMillis(ms)
	if err := w.muxer.writeAudio(pts, firstOfSegment, sample.Data); err != nil {
		return err
	}
	w.lastObservedMs = ms

	if ms >= w.nextWriteMs {
		if err := w.flush(ctx, ms); err != nil {
			return err
		}
		w.nextWriteMs += uint64((w.targetDuration - frameFudge).Milliseconds())
	}
	return nil
}

func (w *Writer) openSegment(ms uint64) {
	w.segBuf = &bytes.Buffer{}
	w.muxer.retarget(w.segBuf)
	if err := w.muxer.writeTables(); err != nil {
		log.L().Error().Err(err).Str(log.FieldAppName, string(w.appName)).Msg("hls: failed to write PAT/PMT")
	}
	w.segStartMs = ms
	w.segmentOpen = true
}

// flush writes the open segment's buffered TS bytes to a file, updates and
// atomically rewrites the playlist, and schedules cleanup for any segment
// the sliding window drops.
func (w *Writer) flush(ctx context.Context, ms uint64) error {
	if !w.segmentOpen {
		return nil
	}
	w.segmentOpen = false

	seq := w.seq
	w.seq++
	uri := fmt.Sprintf("%d-%d.ts", seq, time.Now().Unix())
	segPath := filepath.Join(w.dir, uri)

	if err := os.WriteFile(segPath, w.segBuf.Bytes(), 0o644); err != nil {
		log.L().Error().Err(err).Str(log.FieldSegmentPath, segPath).Msg("hls: segment write failed, skipping")
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	seg := Segment{
		Seq:           seq,
		URI:           uri,
		Duration:      time.Duration(ms-w.segStartMs) * time.Millisecond,
		Discontinuity: w.pendingDiscontinuity,
	}
	w.pendingDiscontinuity = false

	dropped := w.playlist.Add(seg)
	for _, d := range dropped {
		if d.Preroll {
			continue
		}
		deadPath := filepath.Join(w.dir, d.URI)
		w.cleaner.Schedule(w.playlist.CacheDuration(), func() {
			if err := os.Remove(deadPath); err != nil && !os.IsNotExist(err) {
				log.L().Warn().Err(err).Str(log.FieldSegmentPath, deadPath).Msg("hls: deferred segment cleanup failed")
			}
		})
	}

	if err := w.playlist.WriteAtomic(w.playlistPath()); err != nil {
		// spec.md §7: disk failure during playlist update is logged and
		// retried on the next segment, not surfaced to the caller.
		log.L().Error().Err(err).Str(log.FieldPlaylistPath, w.playlistPath()).Msg("hls: playlist write failed, will retry next segment")
	}

	if w.playlist.ReadinessTransition() == "ready" && !w.readyNotified {
		w.readyNotified = true
		relPath := filepath.Join(string(w.appName), "playlist.m3u8")
		if err := w.manager.ReadyHlsSession(ctx, w.appName, w.id, relPath); err != nil {
			log.L().Warn().Err(err).Msg("hls: failed to notify ReadyHlsSession")
		}
	}
	return nil
}

// onReleased enqueues the four deferred cleanup tasks spec.md §4.6
// "Release" describes: segment files, the manifest, the (possibly empty)
// directory, and finally ReleaseHlsSession — each at its own expiry.
func (w *Writer) onReleased(ctx context.Context) {
	cache := w.playlist.CacheDuration()
	minDur := w.playlist.MinDuration()
	dir := w.dir
	plPath := w.playlistPath()

	live := append([]Segment(nil), w.playlist.live...)
	w.cleaner.Schedule(cache, func() {
		for _, seg := range live {
			if seg.Preroll {
				continue
			}
			p := filepath.Join(dir, seg.URI)
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				log.L().Warn().Err(err).Str(log.FieldSegmentPath, p).Msg("hls: release cleanup: segment removal failed")
			}
		}
	})
	w.cleaner.Schedule(cache+minDur, func() {
		if err := os.Remove(plPath); err != nil && !os.IsNotExist(err) {
			log.L().Warn().Err(err).Str(log.FieldPlaylistPath, plPath).Msg("hls: release cleanup: manifest removal failed")
		}
	})
	w.cleaner.Schedule(cache+2*minDur, func() {
		// Non-recursive: if the session restarted the directory is
		// non-empty again and this is allowed to fail (spec.md §4.6).
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			log.L().Debug().Err(err).Str("dir", dir).Msg("hls: release cleanup: directory not empty, skipped")
		}
	})

	current := w.playlist.CurrentDuration()
	finalDelay := cache
	if current < cache {
		finalDelay = current
	}
	appName, id, manager := w.appName, w.id, w.manager
	w.cleaner.Schedule(finalDelay, func() {
		if err := manager.ReleaseHlsSession(ctx, appName, id); err != nil {
			log.L().Warn().Err(err).Msg("hls: failed to notify ReleaseHlsSession")
		}
	})

	log.L().Info().Str(log.FieldAppName, string(w.appName)).Msg("hls: writer released, cleanup scheduled")
}
