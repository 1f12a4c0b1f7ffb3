// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a Metrics instance backed by a fresh registry
// so tests never collide with the global one.
func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

// ============================================================================
// Construction Tests
// ============================================================================

func TestNewMetrics_AllCollectorsInitialized(t *testing.T) {
	m := newTestMetrics(t)

	if m.TurnsTotal == nil {
		t.Error("TurnsTotal should not be nil")
	}
	if m.TurnDurationSeconds == nil {
		t.Error("TurnDurationSeconds should not be nil")
	}
	if m.ActiveTurns == nil {
		t.Error("ActiveTurns should not be nil")
	}
	if m.StageDurationSeconds == nil {
		t.Error("StageDurationSeconds should not be nil")
	}
	if m.ToolCallsTotal == nil {
		t.Error("ToolCallsTotal should not be nil")
	}
	if m.SessionsActive == nil {
		t.Error("SessionsActive should not be nil")
	}
}

// ============================================================================
// Turn Tests
// ============================================================================

func TestMetrics_TurnFinished_Success(t *testing.T) {
	m := newTestMetrics(t)

	m.TurnStarted()
	m.TurnFinished("FULL_PIPELINE", true, 2*time.Second)

	val := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("FULL_PIPELINE", "success"))
	if val != 1 {
		t.Errorf("TurnsTotal[FULL_PIPELINE,success] = %f, want 1", val)
	}

	active := testutil.ToFloat64(m.ActiveTurns)
	if active != 0 {
		t.Errorf("ActiveTurns = %f, want 0 after finish", active)
	}
}

func TestMetrics_TurnFinished_Error(t *testing.T) {
	m := newTestMetrics(t)

	m.TurnStarted()
	m.TurnFinished("DIRECT", false, 500*time.Millisecond)

	val := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("DIRECT", "error"))
	if val != 1 {
		t.Errorf("TurnsTotal[DIRECT,error] = %f, want 1", val)
	}
}

func TestMetrics_TurnStarted_IncrementsGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.TurnStarted()
	m.TurnStarted()

	active := testutil.ToFloat64(m.ActiveTurns)
	if active != 2 {
		t.Errorf("ActiveTurns = %f, want 2", active)
	}
}

// ============================================================================
// Tool Call Tests
// ============================================================================

func TestMetrics_RecordToolCall_MixedOutcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordToolCall("get_coin_price", true)
	m.RecordToolCall("get_coin_price", true)
	m.RecordToolCall("get_coin_price", false)
	m.RecordToolCall("semantic_search", true)

	successVal := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("get_coin_price", "success"))
	if successVal != 2 {
		t.Errorf("ToolCallsTotal[get_coin_price,success] = %f, want 2", successVal)
	}

	errorVal := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("get_coin_price", "error"))
	if errorVal != 1 {
		t.Errorf("ToolCallsTotal[get_coin_price,error] = %f, want 1", errorVal)
	}

	searchVal := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("semantic_search", "success"))
	if searchVal != 1 {
		t.Errorf("ToolCallsTotal[semantic_search,success] = %f, want 1", searchVal)
	}
}

// ============================================================================
// Stage Tests
// ============================================================================

func TestMetrics_ObserveStage_RecordsSamples(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveStage(StageAnalyzer, 100*time.Millisecond)
	m.ObserveStage(StageExecutor, 3*time.Second)

	count := testutil.CollectAndCount(m.StageDurationSeconds)
	if count != 2 {
		t.Errorf("StageDurationSeconds series count = %d, want 2", count)
	}
}

// ============================================================================
// Session Gauge Tests
// ============================================================================

func TestMetrics_SetActiveSessions(t *testing.T) {
	m := newTestMetrics(t)

	m.SetActiveSessions(7)

	val := testutil.ToFloat64(m.SessionsActive)
	if val != 7 {
		t.Errorf("SessionsActive = %f, want 7", val)
	}

	m.SetActiveSessions(3)

	val = testutil.ToFloat64(m.SessionsActive)
	if val != 3 {
		t.Errorf("SessionsActive = %f, want 3", val)
	}
}

// ============================================================================
// Nil Safety Tests
// ============================================================================

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// None of these should panic.
	m.TurnStarted()
	m.TurnFinished("DIRECT", true, time.Second)
	m.ObserveStage(StageRouter, time.Millisecond)
	m.RecordToolCall("get_coin_price", true)
	m.SetActiveSessions(5)
}
