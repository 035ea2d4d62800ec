// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import "errors"

// ErrWriteFailed wraps a segment write failure that the writer logs and
// skips (spec.md §7 "Resource" — disk failure during TS write: log + skip).
// A playlist update failure is only logged, not wrapped in this error; the
// next segment's flush rewrites the playlist.
var ErrWriteFailed = errors.New("hls: write failed")
