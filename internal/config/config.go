// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads and validates echo's runtime settings (spec.md §6.4)
// from the process environment, following the teacher's env-first,
// accumulating-validator convention.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spooncast/echo/internal/validate"
)

// Config captures every recognized ECHO_* setting.
type Config struct {
	// cookie signing
	PrivKey []byte // 32-byte cookie-signing secret (ECHO_PRIV_KEY)

	// HTTP control plane
	Addr string // ECHO_ADDR, default ":5021"

	// SRT
	SRTPrivIP            net.IP
	SRTPubIP             net.IP // optional
	SRTMinPort           int    // ECHO_SRT_MIN_PORT, default 30000
	SRTMaxPort           int    // ECHO_SRT_MAX_PORT, default 49150
	SRTConnectionTimeout time.Duration
	SRTReadTimeout       time.Duration
	SRTLatency           time.Duration

	// HLS
	HLSEnabled         bool
	HLSRootDir         string
	HLSTargetDuration  time.Duration
	HLSPreroleDir      string
	HLSWebEnabled      bool
	HLSWebAddr         string
	HLSWebPath         string

	// RTMP
	RTMPEnabled           bool
	RTMPAddr              string
	RTMPConnectionTimeout time.Duration

	// Recorder
	RecordEnabled  bool
	RecordRootDir  string

	// Stream-key validity
	TTLMaxDuration time.Duration
}

// Defaults mirror the original implementation's Default impl (§3, §6.4).
func Defaults() Config {
	return Config{
		Addr:                  ":5021",
		SRTPrivIP:             net.IPv4(127, 0, 0, 1),
		SRTMinPort:            30000,
		SRTMaxPort:            49150,
		SRTConnectionTimeout:  1800 * time.Second,
		SRTReadTimeout:        10 * time.Second,
		SRTLatency:            50 * time.Millisecond,
		HLSEnabled:            true,
		HLSRootDir:            ".",
		HLSTargetDuration:     time.Second,
		HLSPreroleDir:         "/var/echo/prerole",
		HLSWebEnabled:         true,
		HLSWebAddr:            ":8080",
		HLSWebPath:            "live",
		RTMPEnabled:           true,
		RTMPAddr:              ":1935",
		RTMPConnectionTimeout: 10 * time.Second,
		RecordEnabled:         true,
		RecordRootDir:         ".",
		TTLMaxDuration:        2 * time.Hour,
	}
}

// Load reads ECHO_* environment variables over the defaults and validates
// the result. It never partially applies a bad setting: Validate is run
// against the fully merged config before Load returns it.
func Load() (Config, error) {
	cfg := Defaults()

	if v, ok := os.LookupEnv("ECHO_PRIV_KEY"); ok {
		cfg.PrivKey = []byte(v)
	}
	if v, ok := os.LookupEnv("ECHO_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("ECHO_SRT_PRIV_IP"); ok {
		cfg.SRTPrivIP = net.ParseIP(v)
	}
	if v, ok := os.LookupEnv("ECHO_SRT_PUB_IP"); ok {
		cfg.SRTPubIP = net.ParseIP(v)
	}
	if v, ok := lookupInt("ECHO_SRT_MIN_PORT"); ok {
		cfg.SRTMinPort = v
	}
	if v, ok := lookupInt("ECHO_SRT_MAX_PORT"); ok {
		cfg.SRTMaxPort = v
	}
	if v, ok := lookupSeconds("ECHO_SRT_CONNECTION_TIMEOUT"); ok {
		cfg.SRTConnectionTimeout = v
	}
	if v, ok := lookupSeconds("ECHO_SRT_READ_TIMEOUT"); ok {
		cfg.SRTReadTimeout = v
	}
	if v, ok := lookupSeconds("ECHO_SRT_LATENCY"); ok {
		cfg.SRTLatency = v
	}
	if v, ok := os.LookupEnv("ECHO_HLS_ROOT_DIR"); ok {
		cfg.HLSRootDir = v
	}
	if v, ok := lookupSeconds("ECHO_HLS_TARGET_DURATION"); ok {
		cfg.HLSTargetDuration = validate.ClampDuration(v, time.Second, 8*time.Second)
	}
	if v, ok := os.LookupEnv("ECHO_HLS_PREROLE_DIR"); ok {
		cfg.HLSPreroleDir = v
	}
	if v, ok := os.LookupEnv("ECHO_HLS_WEB_ADDR"); ok {
		cfg.HLSWebAddr = v
	}
	if v, ok := os.LookupEnv("ECHO_HLS_WEB_PATH"); ok {
		cfg.HLSWebPath = v
	}
	if v, ok := os.LookupEnv("ECHO_RTMP_ADDR"); ok {
		cfg.RTMPAddr = v
	}
	if v, ok := lookupSeconds("ECHO_RTMP_CONNECTION_TIMEOUT"); ok {
		cfg.RTMPConnectionTimeout = v
	}
	if v, ok := os.LookupEnv("ECHO_RECORD_ROOT_DIR"); ok {
		cfg.RecordRootDir = v
	}
	if v, ok := lookupSeconds("ECHO_TTL_MAX_DURATION"); ok {
		cfg.TTLMaxDuration = v
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate runs the boundary checks spec.md §6.4 and §8 require, accumulating
// every failure instead of stopping at the first.
func Validate(cfg Config) error {
	v := validate.New()

	v.ExactLength("ECHO_PRIV_KEY", cfg.PrivKey, 32)
	v.PortRange("ECHO_SRT_MIN_PORT", "ECHO_SRT_MAX_PORT", cfg.SRTMinPort, cfg.SRTMaxPort)
	v.MinDuration("ECHO_SRT_CONNECTION_TIMEOUT", cfg.SRTConnectionTimeout, 10*time.Second)
	v.MinDuration("ECHO_SRT_READ_TIMEOUT", cfg.SRTReadTimeout, 8*time.Second)
	v.NotEmpty("ECHO_HLS_ROOT_DIR", cfg.HLSRootDir)
	v.NotEmpty("ECHO_RECORD_ROOT_DIR", cfg.RecordRootDir)
	v.Addr("ECHO_ADDR", cfg.Addr)
	v.Addr("ECHO_RTMP_ADDR", cfg.RTMPAddr)
	v.Addr("ECHO_HLS_WEB_ADDR", cfg.HLSWebAddr)
	if cfg.SRTPrivIP == nil {
		v.AddError("ECHO_SRT_PRIV_IP", "must be a valid IP", nil)
	}

	return v.Err()
}

func lookupInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupSeconds(key string) (time.Duration, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
