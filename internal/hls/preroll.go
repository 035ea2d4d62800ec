// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// LoadPreroll parses the configured prelude playlist once at startup
// (spec.md §6.3, §12 "Pre-roll playlist prelude"), grounded on
// echo-hls/src/service.rs's prelude loading. Segment URIs are rewritten as
// "/prerole/{orig}" and returned in order; the caller prepends them ahead
// of every new session's live window via Playlist.SetPreroll.
func LoadPreroll(preroleDir string) ([]Segment, error) {
	manifestPath := path.Join(preroleDir, "live.m3u8")
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("hls: open preroll manifest: %w", err)
	}
	defer f.Close()

	var (
		segs       []Segment
		pendingDur time.Duration
		haveDur    bool
		seq        int64
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#EXTINF:")):
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			dur, err := parseExtinfDuration(line)
			if err != nil {
				return nil, fmt.Errorf("hls: parse preroll %s: %w", manifestPath, err)
			}
			pendingDur = dur
			haveDur = true
		default:
			if !haveDur {
				return nil, fmt.Errorf("hls: preroll %s: segment URI %q with no preceding #EXTINF", manifestPath, line)
			}
			segs = append(segs, Segment{
				Seq:      seq,
				URI:      "/prerole/" + line,
				Duration: pendingDur,
				Preroll:  true,
			})
			seq++
			haveDur = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("hls: scan preroll %s: %w", manifestPath, err)
	}
	return segs, nil
}

func parseExtinfDuration(line string) (time.Duration, error) {
	body := strings.TrimPrefix(line, "#EXTINF:")
	body, _, _ = strings.Cut(body, ",")
	secs, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid #EXTINF duration %q: %w", body, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
