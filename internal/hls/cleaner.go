// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import (
	"container/heap"
	"sync"
	"time"

	"github.com/spooncast/echo/internal/log"
)

// cleanupItem is one deferred task: run fn once at.
type cleanupItem struct {
	at  time.Time
	fn  func()
	idx int
}

type cleanupQueue []*cleanupItem

func (q cleanupQueue) Len() int            { return len(q) }
func (q cleanupQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q cleanupQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].idx, q[j].idx = i, j }
func (q *cleanupQueue) Push(x any) {
	item := x.(*cleanupItem)
	item.idx = len(*q)
	*q = append(*q, item)
}
func (q *cleanupQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Cleaner is one delay queue per HLS service (spec.md §4.6 "Cleaner"):
// segment deletions, playlist/directory removal, and the final
// ReleaseHlsSession notification are all scheduled here, each with its own
// expiry, and run on a single background goroutine.
type Cleaner struct {
	mu      sync.Mutex
	queue   cleanupQueue
	wake    chan struct{}
	closeCh chan struct{}
}

// NewCleaner starts the cleaner's background goroutine.
func NewCleaner() *Cleaner {
	c := &Cleaner{
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	go c.run()
	return c
}

// Schedule runs fn once, after delay has elapsed.
func (c *Cleaner) Schedule(delay time.Duration, fn func()) {
	c.mu.Lock()
	heap.Push(&c.queue, &cleanupItem{at: time.Now().Add(delay), fn: fn})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close stops the cleaner. Pending items are dropped, not run.
func (c *Cleaner) Close() { close(c.closeCh) }

func (c *Cleaner) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		c.mu.Lock()
		var next time.Duration
		if len(c.queue) == 0 {
			next = time.Hour
		} else {
			next = time.Until(c.queue[0].at)
			if next < 0 {
				next = 0
			}
		}
		c.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)

		select {
		case <-c.closeCh:
			return
		case <-c.wake:
			continue
		case <-timer.C:
			c.runDue()
		}
	}
}

func (c *Cleaner) runDue() {
	now := time.Now()
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].at.After(now) {
			c.mu.Unlock()
			return
		}
		item := heap.Pop(&c.queue).(*cleanupItem)
		c.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					log.L().Error().Interface("panic", r).Msg("hls: cleanup task panicked")
				}
			}()
			item.fn()
		}()
	}
}
