// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package srt

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spooncast/echo/internal/types"
)

// ParseStreamID decodes an SRT streamid of the form "name" or
// "name?key=KEY" into an AppName and optional stream key (spec.md §4.1 "SRT
// streamid convention").
func ParseStreamID(streamID string) (types.AppName, *string, error) {
	if streamID == "" {
		return "", nil, fmt.Errorf("srt: empty streamid")
	}

	name, query, hasQuery := strings.Cut(streamID, "?")
	if name == "" {
		return "", nil, fmt.Errorf("srt: streamid missing app name")
	}
	if !hasQuery {
		return types.AppName(name), nil, nil
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return "", nil, fmt.Errorf("srt: invalid streamid query: %w", err)
	}
	key := values.Get("key")
	if key == "" {
		return types.AppName(name), nil, nil
	}
	return types.AppName(name), &key, nil
}
