// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"github.com/spooncast/echo/internal/bus"
	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/types"
)

// instance is a single live session's sample-handling task: it fans every
// sample out over its Bus until an EndOfSample message arrives or its
// inbound channel is closed (spec.md §4.3 "Session instance"). The audio
// sequence header cache that primes late subscribers lives on the Bus
// itself, so it is safe to read from any subscriber's goroutine.
type instance struct {
	name     types.AppName
	incoming <-chan MediaMessage
	bus      *bus.Bus
}

func newInstance(name types.AppName, incoming <-chan MediaMessage, b *bus.Bus) *instance {
	return &instance{name: name, incoming: incoming, bus: b}
}

// run drains incoming until the channel is closed or an EndOfSample message
// arrives, then tears the session's bus down. Intended to be launched with
// `go (*instance).run`.
func (s *instance) run() {
	log.L().Info().Str(log.FieldAppName, string(s.name)).Msg("session instance started")

	closing := false
	for !closing {
		msg, ok := <-s.incoming
		if !ok {
			log.L().Warn().Str(log.FieldAppName, string(s.name)).Msg("session instance input closed")
			break
		}
		if msg.EndOfSample {
			closing = true
			continue
		}
		s.bus.Publish(msg.Sample)
	}

	s.bus.Close()
	log.L().Info().Str(log.FieldAppName, string(s.name)).Msg("session instance destroyed")
}
