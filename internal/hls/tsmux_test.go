// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package hls

import "testing"

func TestPtsFromMillis(t *testing.T) {
	cases := []struct {
		ms   uint64
		want int64
	}{
		{0, 0},
		{1000, 90000},
		{21, 1890},
	}
	for _, c := range cases {
		if got := ptsFromMillis(c.ms); got != c.want {
			t.Errorf("ptsFromMillis(%d) = %d, want %d", c.ms, got, c.want)
		}
	}
}

func TestPtsFromMillis_WrapsAt33Bits(t *testing.T) {
	const msAtWrap = uint64(1) << 32 // chosen so ms*90 is an exact multiple of 2^33
	if got := ptsFromMillis(msAtWrap); got != 0 {
		t.Errorf("ptsFromMillis(%d) = %d, want 0 (wrapped)", msAtWrap, got)
	}
}
