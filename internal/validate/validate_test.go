// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

package validate

import (
	"testing"
	"time"
)

func TestValidator_AccumulatesAllErrors(t *testing.T) {
	v := New()
	v.ExactLength("PrivKey", []byte("short"), 32)
	v.PortRange("MinPort", "MaxPort", 50000, 6970)
	v.NotEmpty("HLSRoot", "")

	if v.IsValid() {
		t.Fatal("expected validator to be invalid")
	}
	err, ok := v.Err().(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", v.Err())
	}
	if len(err.Errors()) < 3 {
		t.Fatalf("expected at least 3 accumulated errors, got %d: %v", len(err.Errors()), err.Errors())
	}
}

func TestValidator_Valid(t *testing.T) {
	v := New()
	v.ExactLength("PrivKey", make([]byte, 32), 32)
	v.PortRange("MinPort", "MaxPort", 30000, 40000)
	v.MinDuration("ConnTimeout", 10*time.Second, 10*time.Second)

	if !v.IsValid() {
		t.Fatalf("expected valid, got errors: %v", v.Err())
	}
	if v.Err() != nil {
		t.Fatalf("expected nil error, got %v", v.Err())
	}
}

func TestClampDuration(t *testing.T) {
	cases := []struct {
		in, min, max, want time.Duration
	}{
		{500 * time.Millisecond, time.Second, 8 * time.Second, time.Second},
		{10 * time.Second, time.Second, 8 * time.Second, 8 * time.Second},
		{3 * time.Second, time.Second, 8 * time.Second, 3 * time.Second},
	}
	for _, c := range cases {
		if got := ClampDuration(c.in, c.min, c.max); got != c.want {
			t.Errorf("ClampDuration(%s, %s, %s) = %s, want %s", c.in, c.min, c.max, got, c.want)
		}
	}
}
