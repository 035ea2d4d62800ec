// Copyright (c) 2026 spooncast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes Prometheus counters and gauges for the sample bus,
// ingest quality, playlist readiness, and authorization outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusDroppedTotal counts samples dropped on a slow or closed subscriber
	// channel, by app_name.
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_bus_dropped_total",
		Help: "Total number of sample bus messages dropped due to a full or closed subscriber channel",
	}, []string{"app_name"})

	// BusSubscribersGauge tracks the current subscriber count per app.
	BusSubscribersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "echo_bus_subscribers",
		Help: "Current number of active sample bus subscribers",
	}, []string{"app_name"})

	// InputFrameTotal counts ADTS frames processed, by app_name and outcome
	// (ok, filler).
	InputFrameTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_input_frame_total",
		Help: "Total ADTS frames processed by outcome",
	}, []string{"app_name", "outcome"})

	// PlaylistReadyTotal counts transitions of a session's HLS playlist into
	// the Ready state.
	PlaylistReadyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_playlist_ready_total",
		Help: "Total number of sessions whose HLS playlist reached the ready state",
	}, []string{"app_name"})

	// AuthOutcomeTotal counts AuthorizeSession results, by outcome
	// (ok, rejected).
	AuthOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_auth_outcome_total",
		Help: "Total authorization attempts by outcome",
	}, []string{"outcome"})

	// SessionsActiveGauge tracks the number of live sessions by state.
	SessionsActiveGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "echo_sessions_active",
		Help: "Current number of sessions by state",
	}, []string{"state"})

	// RecordFlushTotal counts MP4 recorder flush/finalize outcomes.
	RecordFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echo_record_flush_total",
		Help: "Total MP4 recorder flush/finalize operations by outcome",
	}, []string{"outcome"})
)

// IncBusDropped records a dropped bus message for app.
func IncBusDropped(app string) {
	if app == "" {
		app = "unknown"
	}
	BusDroppedTotal.WithLabelValues(app).Inc()
}
