// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"
	"time"
)

func validQuery() NormalizedQuery {
	return NormalizedQuery{
		IntentType: IntentPriceReason,
		Target:     Target{Coin: []string{"BTC"}},
		Event:      Event{Magnitude: MagnitudeBig, Keywords: []string{"급등"}},
		Goal:       Goal{Task: TaskFindReasons, Depth: DepthMedium},
		TimeRange:  TimeRange{PivotTime: "20251015", Relative: Relative1m},
		Filters:    Filters{Sentiment: "any", Category: "unknown"},
	}
}

// =============================================================================
// NormalizedQuery Validation Tests
// =============================================================================

func TestNormalizedQuery_Validate_Success(t *testing.T) {
	q := validQuery()
	if err := q.Validate(); err != nil {
		t.Errorf("expected valid query, got error: %v", err)
	}
}

func TestNormalizedQuery_Validate_InvalidIntent(t *testing.T) {
	q := validQuery()
	q.IntentType = "price_prediction"
	if err := q.Validate(); err == nil {
		t.Error("expected error for invalid intent_type, got nil")
	}
}

func TestNormalizedQuery_Validate_MissingIntent(t *testing.T) {
	q := validQuery()
	q.IntentType = ""
	if err := q.Validate(); err == nil {
		t.Error("expected error for missing intent_type, got nil")
	}
}

func TestNormalizedQuery_Validate_LowercaseCoinRejected(t *testing.T) {
	q := validQuery()
	q.Target.Coin = []string{"btc"}
	if err := q.Validate(); err == nil {
		t.Error("expected error for unsanitized coin symbol, got nil")
	}
}

func TestNormalizedQuery_Validate_InjectionCoinRejected(t *testing.T) {
	q := validQuery()
	q.Target.Coin = []string{`BTC") |> drop()`}
	if err := q.Validate(); err == nil {
		t.Error("expected error for injection-shaped coin symbol, got nil")
	}
}

func TestNormalizedQuery_Validate_EmptyCoinsAllowed(t *testing.T) {
	q := validQuery()
	q.Target.Coin = []string{}
	if err := q.Validate(); err != nil {
		t.Errorf("expected empty coin list to validate, got error: %v", err)
	}
}

func TestNormalizedQuery_Validate_AllSentinel(t *testing.T) {
	q := validQuery()
	q.Target.Coin = []string{CoinAll}
	if err := q.Validate(); err != nil {
		t.Errorf("expected ALL sentinel to validate, got error: %v", err)
	}
}

func TestNormalizedQuery_Validate_InvalidMagnitude(t *testing.T) {
	q := validQuery()
	q.Event.Magnitude = "huge"
	if err := q.Validate(); err == nil {
		t.Error("expected error for invalid magnitude, got nil")
	}
}

func TestNormalizedQuery_Validate_MissingTask(t *testing.T) {
	q := validQuery()
	q.Goal.Task = ""
	if err := q.Validate(); err == nil {
		t.Error("expected error for missing goal.task, got nil")
	}
}

func TestNormalizedQuery_Validate_InvalidDepth(t *testing.T) {
	q := validQuery()
	q.Goal.Depth = "exhaustive"
	if err := q.Validate(); err == nil {
		t.Error("expected error for invalid goal.depth, got nil")
	}
}

func TestNormalizedQuery_Validate_PivotTimeForms(t *testing.T) {
	cases := []struct {
		pivot string
		valid bool
	}{
		{"today", true},
		{"20251015", true},
		{"", true},
		{"2025-10-15", false},
		{"yesterday", false},
		{"2025101", false},
	}
	for _, tc := range cases {
		q := validQuery()
		q.TimeRange.PivotTime = tc.pivot
		err := q.Validate()
		if tc.valid && err != nil {
			t.Errorf("pivot_time %q: expected valid, got error: %v", tc.pivot, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("pivot_time %q: expected error, got nil", tc.pivot)
		}
	}
}

func TestNormalizedQuery_Validate_InvalidRelative(t *testing.T) {
	q := validQuery()
	q.TimeRange.Relative = "48h"
	if err := q.Validate(); err == nil {
		t.Error("expected error for invalid relative range, got nil")
	}
}

// =============================================================================
// EnsureDefaults Tests
// =============================================================================

func TestNormalizedQuery_EnsureDefaults_SanitizesCoins(t *testing.T) {
	q := validQuery()
	q.Target.Coin = []string{" btc ", "eth"}
	q.EnsureDefaults()

	if len(q.Target.Coin) != 2 || q.Target.Coin[0] != "BTC" || q.Target.Coin[1] != "ETH" {
		t.Errorf("expected coins [BTC ETH], got %v", q.Target.Coin)
	}
	if err := q.Validate(); err != nil {
		t.Errorf("expected sanitized query to validate, got error: %v", err)
	}
}

func TestNormalizedQuery_EnsureDefaults_DropsUnsanitizableCoins(t *testing.T) {
	q := validQuery()
	q.Target.Coin = []string{"BTC", `ETH"; DROP TABLE`, ""}
	q.EnsureDefaults()

	if len(q.Target.Coin) != 1 || q.Target.Coin[0] != "BTC" {
		t.Errorf("expected only BTC to survive, got %v", q.Target.Coin)
	}
}

func TestNormalizedQuery_EnsureDefaults_FillsGoalAndFilters(t *testing.T) {
	q := NormalizedQuery{IntentType: IntentNewsSummary}
	q.EnsureDefaults()

	if q.Goal.Task != TaskSummarize {
		t.Errorf("expected default task %q, got %q", TaskSummarize, q.Goal.Task)
	}
	if q.Goal.Depth != DepthMedium {
		t.Errorf("expected default depth %q, got %q", DepthMedium, q.Goal.Depth)
	}
	if q.Filters.Sentiment != "any" {
		t.Errorf("expected default sentiment any, got %q", q.Filters.Sentiment)
	}
	if q.Filters.Category != "unknown" {
		t.Errorf("expected default category unknown, got %q", q.Filters.Category)
	}
	if q.Event.Keywords == nil {
		t.Error("expected keywords to be initialized, got nil")
	}
}

func TestNormalizedQuery_EnsureDefaults_CapsKeywords(t *testing.T) {
	q := validQuery()
	q.Event.Keywords = make([]string, MaxKeywords+5)
	for i := range q.Event.Keywords {
		q.Event.Keywords[i] = "kw"
	}
	q.EnsureDefaults()

	if len(q.Event.Keywords) != MaxKeywords {
		t.Errorf("expected keywords capped at %d, got %d", MaxKeywords, len(q.Event.Keywords))
	}
}

func TestNormalizedQuery_EnsureDefaults_PreservesExistingValues(t *testing.T) {
	q := validQuery()
	q.EnsureDefaults()

	if q.Goal.Task != TaskFindReasons || q.Goal.Depth != DepthMedium {
		t.Errorf("expected goal preserved, got %+v", q.Goal)
	}
	if q.Filters.Sentiment != "any" || q.Filters.Category != "unknown" {
		t.Errorf("expected filters preserved, got %+v", q.Filters)
	}
}

// =============================================================================
// UnknownQuery / Helper Tests
// =============================================================================

func TestUnknownQuery_IsValid(t *testing.T) {
	q := UnknownQuery()
	if err := q.Validate(); err != nil {
		t.Errorf("expected UnknownQuery to validate, got error: %v", err)
	}
	if !q.IsUnknown() {
		t.Error("expected IsUnknown to be true")
	}
}

func TestNormalizedQuery_HasCoin(t *testing.T) {
	q := validQuery()
	if !q.HasCoin("BTC") {
		t.Error("expected HasCoin(BTC) to be true")
	}
	if q.HasCoin("ETH") {
		t.Error("expected HasCoin(ETH) to be false")
	}

	q.Target.Coin = []string{CoinAll}
	if !q.HasCoin("DOGE") {
		t.Error("expected ALL sentinel to match any symbol")
	}
}

// =============================================================================
// ResolvePivot Tests
// =============================================================================

func TestTimeRange_ResolvePivot_Today(t *testing.T) {
	now := time.Date(2025, 10, 20, 15, 30, 45, 0, time.UTC)
	want := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

	for _, pivot := range []string{"", PivotToday} {
		tr := TimeRange{PivotTime: pivot}
		if got := tr.ResolvePivot(now); !got.Equal(want) {
			t.Errorf("pivot %q: expected %v, got %v", pivot, want, got)
		}
	}
}

func TestTimeRange_ResolvePivot_ExplicitDate(t *testing.T) {
	now := time.Date(2025, 10, 20, 15, 30, 45, 0, time.UTC)
	tr := TimeRange{PivotTime: "20251015"}

	want := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	if got := tr.ResolvePivot(now); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTimeRange_ResolvePivot_InvalidFallsBackToToday(t *testing.T) {
	now := time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)
	tr := TimeRange{PivotTime: "20259999"}

	want := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	if got := tr.ResolvePivot(now); !got.Equal(want) {
		t.Errorf("expected fallback to today %v, got %v", want, got)
	}
}

func TestTimeRange_ResolvePivot_NonUTCNow(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	// 01:30 KST on the 21st is still the 20th in UTC.
	now := time.Date(2025, 10, 21, 1, 30, 0, 0, seoul)
	tr := TimeRange{PivotTime: PivotToday}

	want := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)
	if got := tr.ResolvePivot(now); !got.Equal(want) {
		t.Errorf("expected UTC midnight %v, got %v", want, got)
	}
}
