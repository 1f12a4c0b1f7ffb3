// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the query
// pipeline.
//
// # Description
//
// Metrics cover the pipeline at three grains:
//   - Turns: count by entry path and status, latency histogram, and an
//     in-flight gauge.
//   - Stages: per-stage latency histograms (router, analyzer, planner,
//     executor, scripter).
//   - Tools: dispatch counters by tool name and outcome.
//
// # Integration
//
// Metrics are exposed on the /metrics endpoint. Construct once at
// startup and inject; every helper is nil-receiver safe so tests can
// run pipeline components without a registry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "coinscope"

// Subsystem for query pipeline metrics.
const pipelineSubsystem = "querycore"

// Pipeline stages used as the "stage" label.
const (
	StageRouter   = "router"
	StageAnalyzer = "analyzer"
	StagePlanner  = "planner"
	StageExecutor = "executor"
	StageScripter = "scripter"
)

// Metrics holds all Prometheus metrics for the query pipeline.
//
// # Fields
//
//   - TurnsTotal: Counter of completed turns by path and status.
//   - TurnDurationSeconds: Histogram of end-to-end turn latency by path.
//   - ActiveTurns: Gauge of turns currently in flight.
//   - StageDurationSeconds: Histogram of per-stage latency.
//   - ToolCallsTotal: Counter of tool dispatches by tool and status.
//   - SessionsActive: Gauge of live sessions in the session store.
type Metrics struct {
	// TurnsTotal counts completed turns.
	// Labels: path (DIRECT, REUSE_RESULT, ...), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: path
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveTurns tracks turns currently being processed.
	ActiveTurns prometheus.Gauge

	// StageDurationSeconds measures per-stage latency.
	// Labels: stage (router, analyzer, planner, executor, scripter)
	StageDurationSeconds *prometheus.HistogramVec

	// ToolCallsTotal counts tool dispatches, auto-chained ones included.
	// Labels: tool, status (success, error)
	ToolCallsTotal *prometheus.CounterVec

	// SessionsActive tracks sessions currently held by the store.
	SessionsActive prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics against the
// given registerer.
//
// # Inputs
//
//   - reg: Target registry. Pass prometheus.DefaultRegisterer in
//     production; tests pass a fresh prometheus.NewRegistry() to avoid
//     duplicate-registration panics.
//
// # Outputs
//
//   - *Metrics: The registered metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "turns_total",
				Help:      "Total completed turns by entry path and status",
			},
			[]string{"path", "status"},
		),

		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"path"},
		),

		ActiveTurns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_turns",
				Help:      "Number of turns currently in flight",
			},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Per-stage latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "tool_calls_total",
				Help:      "Total tool dispatches by tool name and status",
			},
			[]string{"tool", "status"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "sessions_active",
				Help:      "Sessions currently held by the session store",
			},
		),
	}
}

// statusLabel converts a success flag to the status label value.
func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// =============================================================================
// Helper Methods
// =============================================================================

// TurnStarted increments the in-flight gauge.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.ActiveTurns.Inc()
}

// TurnFinished records one completed turn and decrements the in-flight
// gauge. The path label is the router's chosen path; error turns keep
// the bare path name with status=error rather than the ERROR_ form, so
// dashboards aggregate cleanly.
func (m *Metrics) TurnFinished(path string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveTurns.Dec()
	m.TurnsTotal.WithLabelValues(path, statusLabel(success)).Inc()
	m.TurnDurationSeconds.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordToolCall records one tool dispatch outcome.
func (m *Metrics) RecordToolCall(tool string, success bool) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, statusLabel(success)).Inc()
}

// SetActiveSessions sets the live-session gauge. Stores that can count
// their population report it here from their janitor pass.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}
