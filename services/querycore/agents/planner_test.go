// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// plannerNow pins the planner clock so "today" pivots are stable.
var plannerNow = time.Date(2025, 10, 20, 14, 30, 0, 0, time.UTC)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	p := NewPlanner(nil, testLogger())
	p.now = func() time.Time { return plannerNow }
	return p
}

func priceReasonQuery() datatypes.NormalizedQuery {
	q := datatypes.NormalizedQuery{
		IntentType: datatypes.IntentPriceReason,
		Target:     datatypes.Target{Coin: []string{"BTC"}},
		Event:      datatypes.Event{Magnitude: datatypes.MagnitudeBig, Keywords: []string{"급등"}},
		Goal:       datatypes.Goal{Task: datatypes.TaskFindReasons, Depth: datatypes.DepthMedium},
		TimeRange:  datatypes.TimeRange{PivotTime: "20251015", Relative: datatypes.Relative1m},
	}
	q.EnsureDefaults()
	return q
}

func TestPlanner_UnknownIntentRefused(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Plan(context.Background(), datatypes.UnknownQuery())
	if !IsKind(err, ErrKindUnknownIntent) {
		t.Fatalf("expected UnknownIntent, got %v", err)
	}
}

func TestPlanner_PriceReasonPlanShape(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan(context.Background(), priceReasonQuery())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if plan.IntentType != datatypes.IntentPriceReason {
		t.Errorf("expected price_reason intent, got %q", plan.IntentType)
	}
	if plan.PivotTime != 1760486400 {
		t.Errorf("expected pivot 1760486400 (2025-10-15 UTC midnight), got %d", plan.PivotTime)
	}

	prices := callsNamed(plan, datatypes.ToolGetCoinPrice)
	queries := callsNamed(plan, datatypes.ToolMakeSemanticQuery)
	if len(prices) != 1 {
		t.Fatalf("expected 1 price call, got %d", len(prices))
	}
	if len(queries) < 4 {
		t.Fatalf("expected at least 4 semantic query calls for price_reason, got %d", len(queries))
	}
	if len(plan.Calls) != len(prices)+len(queries) {
		t.Errorf("expected only price and query calls, got %d total", len(plan.Calls))
	}

	price := prices[0]
	if got := price.StringArg("coin_name"); got != "BTC" {
		t.Errorf("expected BTC price call, got %q", got)
	}
	if got := price.StringArg("range_type"); got != datatypes.RangeMonth {
		t.Errorf("expected month range for relative 1m, got %q", got)
	}
	if got := price.StringArg("direction"); got != datatypes.DirectionBoth {
		t.Errorf("expected both direction for price_reason, got %q", got)
	}
	if got, ok := price.Int64Arg("pivot_date"); !ok || got != plan.PivotTime {
		t.Errorf("expected pivot_date %d, got %d", plan.PivotTime, got)
	}

	// Price calls come first so coin coverage is declared before the
	// news fan-out.
	if plan.Calls[0].ToolName != datatypes.ToolGetCoinPrice {
		t.Errorf("expected the plan to open with get_coin_price, got %s", plan.Calls[0].ToolName)
	}
}

func TestPlanner_SemanticQueryCarriesSearchParams(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan(context.Background(), priceReasonQuery())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for _, call := range callsNamed(plan, datatypes.ToolMakeSemanticQuery) {
		params := datatypes.SearchParamsFrom(call)
		if params.TopK != 15 || params.SimilarityThreshold != 0.0 {
			t.Errorf("expected medium depth params (15, 0.0), got (%d, %v)", params.TopK, params.SimilarityThreshold)
		}
		if params.PivotDate != plan.PivotTime {
			t.Errorf("expected search pivot %d, got %d", plan.PivotTime, params.PivotDate)
		}
		if params.DateRange != datatypes.RangeMonth {
			t.Errorf("expected month search range for relative 1m, got %q", params.DateRange)
		}
		if got := call.StringSliceArg("coin_names"); len(got) != 1 || got[0] != "BTC" {
			t.Errorf("expected coin_names [BTC], got %v", got)
		}
		if call.StringArg("custom_context") == "" {
			t.Error("expected each perspective to carry a custom_context")
		}
	}
}

func TestPlanner_DepthControlsSearchBreadth(t *testing.T) {
	cases := []struct {
		depth     string
		topK      int
		threshold float64
	}{
		{datatypes.DepthShort, 10, 0.1},
		{datatypes.DepthMedium, 15, 0.0},
		{datatypes.DepthDeep, 25, -0.2},
	}
	p := newTestPlanner(t)

	for _, tc := range cases {
		q := priceReasonQuery()
		q.Goal.Depth = tc.depth
		plan, err := p.Plan(context.Background(), q)
		if err != nil {
			t.Fatalf("Plan(%s): %v", tc.depth, err)
		}
		params := datatypes.SearchParamsFrom(callsNamed(plan, datatypes.ToolMakeSemanticQuery)[0])
		if params.TopK != tc.topK || params.SimilarityThreshold != tc.threshold {
			t.Errorf("depth %s: expected (%d, %v), got (%d, %v)",
				tc.depth, tc.topK, tc.threshold, params.TopK, params.SimilarityThreshold)
		}
	}
}

func TestPlanner_KeywordUnionOrderAndDedup(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	// "reason" collides with the first perspective's own keywords.
	q.Event.Keywords = []string{"급등", "reason"}

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	first := callsNamed(plan, datatypes.ToolMakeSemanticQuery)[0]
	keywords := first.StringSliceArg("event_keywords")

	// Event keywords first, then the magnitude keyword, then the
	// perspective's own, duplicates dropped.
	want := []string{"급등", "reason", "surge", "cause"}
	if len(keywords) != len(want) {
		t.Fatalf("expected keywords %v, got %v", want, keywords)
	}
	for i := range want {
		if keywords[i] != want[i] {
			t.Fatalf("expected keywords %v, got %v", want, keywords)
		}
	}
}

func TestPlanner_SmallMagnitudeKeyword(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	q.Event.Magnitude = datatypes.MagnitudeSmall
	q.Event.Keywords = []string{}

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	keywords := callsNamed(plan, datatypes.ToolMakeSemanticQuery)[0].StringSliceArg("event_keywords")
	if len(keywords) == 0 || keywords[0] != "plunge" {
		t.Errorf("expected plunge keyword first for small magnitude, got %v", keywords)
	}
}

func TestPlanner_AllSentinelExpandsToBasket(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	q.IntentType = datatypes.IntentMarketTrend
	q.Target.Coin = []string{datatypes.CoinAll}

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := plan.CoinNames(); len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Errorf("expected ALL expanded to [BTC ETH], got %v", got)
	}
}

func TestPlanner_CustomBasket(t *testing.T) {
	p := NewPlanner([]string{"SOL", "ADA"}, testLogger())
	p.now = func() time.Time { return plannerNow }

	q := priceReasonQuery()
	q.Target.Coin = []string{datatypes.CoinAll, "SOL"}

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := plan.CoinNames(); len(got) != 2 || got[0] != "SOL" || got[1] != "ADA" {
		t.Errorf("expected [SOL ADA] with the duplicate dropped, got %v", got)
	}
}

func TestPlanner_MarketTrendDirectionAndFanOut(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	q.IntentType = datatypes.IntentMarketTrend

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	price := callsNamed(plan, datatypes.ToolGetCoinPrice)[0]
	if got := price.StringArg("direction"); got != datatypes.DirectionBefore {
		t.Errorf("expected before direction for market_trend, got %q", got)
	}
	if got := len(callsNamed(plan, datatypes.ToolMakeSemanticQuery)); got != 2 {
		t.Errorf("expected 2 perspectives for market_trend, got %d", got)
	}
}

func TestPlanner_NewsSummaryFanOut(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	q.IntentType = datatypes.IntentNewsSummary

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got := len(callsNamed(plan, datatypes.ToolMakeSemanticQuery)); got != 2 {
		t.Errorf("expected 2 perspectives for news_summary, got %d", got)
	}
}

func TestPlanner_LongWindowsClampSearchRange(t *testing.T) {
	cases := []struct {
		relative   string
		priceRange string
	}{
		{datatypes.RelativeYTD, datatypes.RangeYear},
		{datatypes.RelativeAll, datatypes.RangeYear},
		{datatypes.Relative1m, datatypes.RangeMonth},
	}
	p := newTestPlanner(t)

	for _, tc := range cases {
		q := priceReasonQuery()
		q.TimeRange.Relative = tc.relative

		plan, err := p.Plan(context.Background(), q)
		if err != nil {
			t.Fatalf("Plan(%s): %v", tc.relative, err)
		}
		price := callsNamed(plan, datatypes.ToolGetCoinPrice)[0]
		if got := price.StringArg("range_type"); got != tc.priceRange {
			t.Errorf("relative %s: expected price range %q, got %q", tc.relative, tc.priceRange, got)
		}
		params := datatypes.SearchParamsFrom(callsNamed(plan, datatypes.ToolMakeSemanticQuery)[0])
		if params.DateRange != datatypes.RangeMonth {
			t.Errorf("relative %s: expected search range clamped to month, got %q", tc.relative, params.DateRange)
		}
	}
}

func TestPlanner_NoRelativeWindowDefaults(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	q.TimeRange.Relative = ""

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	price := callsNamed(plan, datatypes.ToolGetCoinPrice)[0]
	if got := price.StringArg("range_type"); got != datatypes.RangeWeek {
		t.Errorf("expected week price range by default, got %q", got)
	}
}

func TestPlanner_TodayPivotResolvesToUTCMidnight(t *testing.T) {
	p := newTestPlanner(t)

	q := priceReasonQuery()
	q.TimeRange.PivotTime = datatypes.PivotToday

	plan, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC).Unix()
	if plan.PivotTime != want {
		t.Errorf("expected today's UTC midnight %d, got %d", want, plan.PivotTime)
	}
}

func TestPlanner_DeterministicAndRoundTrips(t *testing.T) {
	p := newTestPlanner(t)
	q := priceReasonQuery()

	first, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("first Plan: %v", err)
	}
	second, err := p.Plan(context.Background(), q)
	if err != nil {
		t.Fatalf("second Plan: %v", err)
	}

	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Error("expected identical plans for identical queries")
	}

	// A plan that crossed the HTTP boundary must keep its structure.
	var decoded datatypes.QueryPlan
	if err := json.Unmarshal(firstJSON, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.IntentType != first.IntentType || decoded.PivotTime != first.PivotTime {
		t.Error("expected intent and pivot to round-trip")
	}
	if len(decoded.Calls) != len(first.Calls) {
		t.Fatalf("expected %d calls after round-trip, got %d", len(first.Calls), len(decoded.Calls))
	}
	for i, call := range decoded.Calls {
		if call.ToolName != first.Calls[i].ToolName {
			t.Errorf("call %d: expected tool %s, got %s", i, first.Calls[i].ToolName, call.ToolName)
		}
	}
	reParams := datatypes.SearchParamsFrom(callsNamed(&decoded, datatypes.ToolMakeSemanticQuery)[0])
	origParams := datatypes.SearchParamsFrom(callsNamed(first, datatypes.ToolMakeSemanticQuery)[0])
	if reParams != origParams {
		t.Errorf("expected search params to round-trip, got %+v want %+v", reParams, origParams)
	}
}

func callsNamed(plan *datatypes.QueryPlan, tool string) []datatypes.ToolCall {
	var out []datatypes.ToolCall
	for _, c := range plan.Calls {
		if c.ToolName == tool {
			out = append(out, c)
		}
	}
	return out
}
