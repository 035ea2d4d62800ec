// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spooncast/echo/internal/types"
)

func sampleAt(ms uint64) types.MediaSample {
	ts := types.NewTimestampFromMillis(ms)
	return types.NewAACAudioSample(1, 48000, 2, ts, []byte{0xFF, 0xF1})
}

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	b := New("app1")
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(sampleAt(0))

	select {
	case got := <-s1.C:
		require.Equal(t, uint64(0), got.Timestamp.AsMillis())
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive sample")
	}
	select {
	case got := <-s2.C:
		require.Equal(t, uint64(0), got.Timestamp.AsMillis())
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive sample")
	}
}

func TestBus_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New("app1")
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Close()
	defer fast.Close()

	for i := 0; i < Capacity+10; i++ {
		b.Publish(sampleAt(uint64(i)))
	}

	drained := 0
	for {
		select {
		case <-fast.C:
			drained++
		default:
			goto done
		}
	}
done:
	require.Greater(t, drained, 0)
	require.LessOrEqual(t, drained, Capacity)
}

func TestBus_LateSubscriberReceivesCachedHeadSampleFirst(t *testing.T) {
	b := New("app1")
	b.Publish(sampleAt(0))

	sub := b.Subscribe()
	defer sub.Close()

	b.Publish(sampleAt(21))

	first := <-sub.C
	require.Nil(t, first.Timestamp)
	require.Equal(t, sampleAt(0).MediaType, first.MediaType)
	second := <-sub.C
	require.Equal(t, uint64(21), second.Timestamp.AsMillis())
}

func TestBus_CloseClosesAllSubscriberChannels(t *testing.T) {
	b := New("app1")
	sub := b.Subscribe()
	b.Close()

	_, ok := <-sub.C
	require.False(t, ok)
	require.Equal(t, 0, b.SubscriberCount())
}
