// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPreroll_RewritesURIsAndParsesDurations(t *testing.T) {
	dir := t.TempDir()
	manifest := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:2\n" +
		"#EXTINF:2.000,\n" +
		"seg0.ts\n" +
		"#EXTINF:1.500,\n" +
		"seg1.ts\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "live.m3u8"), []byte(manifest), 0o644))

	segs, err := LoadPreroll(dir)
	require.NoError(t, err)
	require.Len(t, segs, 2)

	require.Equal(t, "/prerole/seg0.ts", segs[0].URI)
	require.True(t, segs[0].Preroll)
	require.Equal(t, int64(0), segs[0].Seq)

	require.Equal(t, "/prerole/seg1.ts", segs[1].URI)
	require.Equal(t, int64(1), segs[1].Seq)
}

func TestLoadPreroll_MissingManifestErrors(t *testing.T) {
	_, err := LoadPreroll(t.TempDir())
	require.Error(t, err)
}
