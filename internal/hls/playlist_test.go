// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampTargetDuration(t *testing.T) {
	require.Equal(t, time.Second, ClampTargetDuration(100*time.Millisecond))
	require.Equal(t, 8*time.Second, ClampTargetDuration(20*time.Second))
	require.Equal(t, 3*time.Second, ClampTargetDuration(3*time.Second))
}

func TestPlaylist_CurrentDurationEqualsSumOfLiveSegments(t *testing.T) {
	p := NewPlaylist(time.Second, 0)
	for i := 0; i < 5; i++ {
		p.Add(Segment{Seq: int64(i), URI: "seg.ts", Duration: 990 * time.Millisecond})
	}
	var want time.Duration
	for _, seg := range p.live {
		want += seg.Duration
	}
	require.Equal(t, want, p.CurrentDuration())
}

func TestPlaylist_DropsOldestOncePlaylistDurationExceeded(t *testing.T) {
	p := NewPlaylist(time.Second, 0) // maxDuration = 12s
	var allDropped []Segment
	for i := 0; i < 20; i++ {
		dropped := p.Add(Segment{Seq: int64(i), URI: "seg.ts", Duration: time.Second})
		allDropped = append(allDropped, dropped...)
	}
	require.NotEmpty(t, allDropped)
	require.Less(t, p.CurrentDuration(), 13*time.Second)
}

func TestPlaylist_ReadinessLatchesReadyAndNeverReverts(t *testing.T) {
	p := NewPlaylist(time.Second, 0) // minDuration = 6s
	for i := 0; i < 5; i++ {
		require.Equal(t, "not_ready", p.ReadinessTransition())
		p.Add(Segment{Seq: int64(i), Duration: time.Second})
	}
	p.Add(Segment{Seq: 5, Duration: time.Second}) // crosses 6s
	require.Equal(t, "ready", p.ReadinessTransition())
	require.Equal(t, "unchanged", p.ReadinessTransition())
}

func TestPlaylist_RenderIncludesDiscontinuityTag(t *testing.T) {
	p := NewPlaylist(time.Second, 0)
	p.Add(Segment{Seq: 0, URI: "0.ts", Duration: time.Second})
	p.Add(Segment{Seq: 1, URI: "1.ts", Duration: time.Second, Discontinuity: true})

	out := string(p.Render())
	require.Contains(t, out, "#EXT-X-DISCONTINUITY")
	require.Contains(t, out, "1.ts")
}

func TestPlaylist_WriteAtomicProducesReadableFile(t *testing.T) {
	p := NewPlaylist(time.Second, 0)
	p.Add(Segment{Seq: 0, URI: "0.ts", Duration: time.Second})

	dir := t.TempDir()
	path := filepath.Join(dir, "playlist.m3u8")
	require.NoError(t, p.WriteAtomic(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "#EXTM3U"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not remain after atomic rename")
}
