// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package types

import "testing"

func TestTimestamp_AsMillis(t *testing.T) {
	cases := []struct {
		numer, denom uint64
		want         uint64
	}{
		{0, 48000, 0},
		{1024, 48000, 21},
		{48000, 48000, 1000},
		{1, 3, 333},
	}
	for _, c := range cases {
		got := NewTimestamp(c.numer, c.denom).AsMillis()
		if got != c.want {
			t.Errorf("Timestamp(%d/%d).AsMillis() = %d, want %d", c.numer, c.denom, got, c.want)
		}
	}
}

func TestTimestamp_FramesAreStrictlyIncreasing(t *testing.T) {
	const sampleRate = 48000
	const frameSamples = 1024

	prev := NewTimestamp(0, sampleRate)
	for i := 1; i < 20; i++ {
		cur := NewTimestamp(uint64(i*frameSamples), sampleRate)
		if !prev.Before(cur) {
			t.Fatalf("frame %d: expected strictly increasing timestamps", i)
		}
		prev = cur
	}
}

func TestTimestamp_SubProducesDuration(t *testing.T) {
	a := NewTimestamp(2048, 48000)
	b := NewTimestamp(1024, 48000)
	d := a.Sub(b)
	if got := d.AsMillis(); got != 21 {
		t.Errorf("duration.AsMillis() = %d, want 21", got)
	}
}

func TestDuration_FromMillisRoundTrips(t *testing.T) {
	d := NewDurationFromMillis(1500)
	if got := d.AsMillis(); got != 1500 {
		t.Errorf("AsMillis() = %d, want 1500", got)
	}
	if got := d.AsMicros(); got != 1_500_000 {
		t.Errorf("AsMicros() = %d, want 1500000", got)
	}
}
