// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus implements the per-session sample pub/sub described in
// spec.md §4.2: one bounded broadcast channel per subscriber, sized so a
// momentarily slow sink never blocks the publisher or other sinks.
package bus

import (
	"sync"

	"github.com/spooncast/echo/internal/log"
	"github.com/spooncast/echo/internal/metrics"
	"github.com/spooncast/echo/internal/types"
)

// Capacity is the fixed per-subscriber channel depth (spec.md §4.2).
const Capacity = 64

// Bus fans MediaSamples published for a single AppName out to every current
// subscriber. A lagging subscriber only ever loses its own samples: Publish
// never blocks on a full subscriber channel.
type Bus struct {
	app types.AppName

	mu       sync.RWMutex
	subs     map[uint64]chan types.MediaSample
	next     uint64
	headOnce *types.MediaSample // first audio sample seen, replayed to late subscribers
}

// New creates an empty Bus for app, used for metrics labeling only.
func New(app types.AppName) *Bus {
	return &Bus{app: app, subs: make(map[uint64]chan types.MediaSample)}
}

// Subscription is a single subscriber's receive end plus its unsubscribe hook.
type Subscription struct {
	id uint64
	C  <-chan types.MediaSample
	b  *Bus
}

// Close detaches and drains the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.unsubscribe(s.id)
}

// Subscribe registers a new subscriber and returns its Subscription. If this
// bus has already cached its audio sequence header, it is delivered first so
// a late joiner (an HLS writer attaching mid-stream, a recorder restart)
// knows the stream's MediaType before the next real frame arrives (spec.md
// §13 open-question resolution). The header carries a nil Timestamp so
// sinks can tell it apart from a real frame.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan types.MediaSample, Capacity)

	b.mu.Lock()
	if b.headOnce != nil {
		ch <- *b.headOnce
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	n := len(b.subs)
	b.mu.Unlock()

	metrics.BusSubscribersGauge.WithLabelValues(string(b.app)).Set(float64(n))

	return &Subscription{id: id, C: ch, b: b}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	n := len(b.subs)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
	metrics.BusSubscribersGauge.WithLabelValues(string(b.app)).Set(float64(n))
}

// Publish fans sample out to every current subscriber. A subscriber whose
// channel is full has its oldest buffered sample dropped to make room
// (spec.md §4.7); it never blocks Publish or affects any other subscriber.
func (b *Bus) Publish(sample types.MediaSample) {
	b.mu.Lock()
	if b.headOnce == nil && sample.MediaType.Kind == types.MediaKindAudio {
		header := types.MediaSample{Sid: sample.Sid, MediaType: sample.MediaType, SampleType: sample.SampleType}
		b.headOnce = &header
	}
	chs := make([]chan types.MediaSample, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.Unlock()

	for _, ch := range chs {
		select {
		case ch <- sample:
		default:
			// Lagging subscriber: drop its oldest buffered sample rather than
			// this new one, so it sees a contiguous (if stale) suffix instead
			// of a hole followed by fresher data (spec.md §4.7).
			select {
			case <-ch:
				metrics.IncBusDropped(string(b.app))
			default:
			}
			select {
			case ch <- sample:
			default:
				metrics.IncBusDropped(string(b.app))
				log.L().Warn().
					Str(log.FieldAppName, string(b.app)).
					Msg("bus: dropped sample on full subscriber channel")
			}
		}
	}
}

// SubscriberCount reports the current number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches and closes every current subscriber channel, e.g. when the
// owning session is released.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]chan types.MediaSample)
	b.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
	metrics.BusSubscribersGauge.WithLabelValues(string(b.app)).Set(0)
}
