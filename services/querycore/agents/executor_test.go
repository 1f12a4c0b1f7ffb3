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
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/tools"
)

func newTestExecutor(t *testing.T, reg ToolDispatcher) *Executor {
	t.Helper()
	return NewExecutor(reg, ExecutorConfig{}, nil, testLogger())
}

// executorPlan is a minimal price_reason plan: one price lookup and two
// news perspectives.
func executorPlan() *datatypes.QueryPlan {
	searchParams := datatypes.SearchParams{
		TopK:                15,
		SimilarityThreshold: 0.0,
		PivotDate:           1760486400,
		DateRange:           datatypes.RangeMonth,
	}
	return &datatypes.QueryPlan{
		IntentType: datatypes.IntentPriceReason,
		PivotTime:  1760486400,
		Calls: []datatypes.ToolCall{
			{
				ToolName: datatypes.ToolGetCoinPrice,
				Arguments: map[string]any{
					"coin_name":  "BTC",
					"pivot_date": int64(1760486400),
					"range_type": datatypes.RangeWeek,
					"direction":  datatypes.DirectionBoth,
				},
			},
			{
				ToolName: datatypes.ToolMakeSemanticQuery,
				Arguments: map[string]any{
					"coin_names":              []string{"BTC"},
					"intent_type":             datatypes.IntentPriceReason,
					"custom_context":          "direct causes of the price move",
					datatypes.SearchParamsKey: searchParams,
				},
			},
			{
				ToolName: datatypes.ToolMakeSemanticQuery,
				Arguments: map[string]any{
					"coin_names":              []string{"BTC"},
					"intent_type":             datatypes.IntentPriceReason,
					"custom_context":          "macro and monetary policy backdrop",
					datatypes.SearchParamsKey: searchParams,
				},
			},
		},
	}
}

func TestExecutor_HappyPath(t *testing.T) {
	reg := happyDispatcher()
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "10월 중순 비트코인 급등 원인")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TotalActions != 3 || result.SuccessfulActions != 3 || result.FailedActions != 0 {
		t.Errorf("expected counters 3/3/0, got %d/%d/%d",
			result.TotalActions, result.SuccessfulActions, result.FailedActions)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
	if len(result.CoinNames) != 1 || result.CoinNames[0] != "BTC" {
		t.Errorf("expected coin_names [BTC], got %v", result.CoinNames)
	}
	if result.PriceSummary == nil || !strings.Contains(*result.PriceSummary, "BTC") {
		t.Errorf("expected a BTC price summary, got %v", result.PriceSummary)
	}
	if result.NewsSummary == nil {
		t.Error("expected a news summary")
	}
	if result.CombinedSummary == nil {
		t.Error("expected a combined summary when both inputs exist")
	}
	if result.OriginalQuery != "10월 중순 비트코인 급등 원인" {
		t.Errorf("expected the utterance echoed, got %q", result.OriginalQuery)
	}
}

func TestExecutor_ChainsSearchAfterSemanticQuery(t *testing.T) {
	reg := happyDispatcher()
	e := newTestExecutor(t, reg)

	if _, err := e.Run(context.Background(), executorPlan(), "btc"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	searches := reg.callsFor(datatypes.ToolSemanticSearch)
	if len(searches) != 2 {
		t.Fatalf("expected one chained search per semantic query, got %d", len(searches))
	}
	for _, search := range searches {
		if got := search.StringArg("query"); !strings.HasPrefix(got, "crypto news about") {
			t.Errorf("expected the generated query forwarded, got %q", got)
		}
		if got, ok := search.IntArg("top_k"); !ok || got != 15 {
			t.Errorf("expected top_k 15 from _search_params, got %d", got)
		}
		if got, ok := search.Int64Arg("pivot_date"); !ok || got != 1760486400 {
			t.Errorf("expected pivot_date forwarded, got %d", got)
		}
		if got := search.StringArg("date_range"); got != datatypes.RangeMonth {
			t.Errorf("expected date_range month, got %q", got)
		}
		for key := range search.Arguments {
			if strings.HasPrefix(key, datatypes.MetaArgPrefix) {
				t.Errorf("chained search must not carry meta arguments, found %q", key)
			}
		}
	}
}

func TestExecutor_DeclaredFailureCounted(t *testing.T) {
	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolGetCoinPrice {
			return nil, errors.New("influx unreachable")
		}
		return happyToolHandler(call)
	}}
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TotalActions != 3 || result.SuccessfulActions != 2 || result.FailedActions != 1 {
		t.Errorf("expected counters 3/2/1, got %d/%d/%d",
			result.TotalActions, result.SuccessfulActions, result.FailedActions)
	}
	if result.TotalActions != result.SuccessfulActions+result.FailedActions {
		t.Error("expected total = successful + failed")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "Error executing get_coin_price") {
		t.Errorf("expected a get_coin_price error first, got %v", result.Errors)
	}

	// The declared plan still names the coin even though its lookup
	// failed.
	if len(result.CoinNames) != 1 || result.CoinNames[0] != "BTC" {
		t.Errorf("expected coin_names [BTC] from the declared plan, got %v", result.CoinNames)
	}
	if result.PriceSummary != nil {
		t.Error("expected no price summary without price data")
	}
	if result.NewsSummary == nil {
		t.Error("expected the news side to proceed")
	}
	if result.CombinedSummary != nil {
		t.Error("expected no combined summary when one side is missing")
	}
}

func TestExecutor_ChainFailureDoesNotTouchCounters(t *testing.T) {
	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolSemanticSearch {
			return nil, errors.New("weaviate unreachable")
		}
		return happyToolHandler(call)
	}}
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Both declared semantic queries succeeded; only their chained
	// searches failed.
	if result.TotalActions != 3 || result.SuccessfulActions != 3 || result.FailedActions != 0 {
		t.Errorf("expected counters 3/3/0, got %d/%d/%d",
			result.TotalActions, result.SuccessfulActions, result.FailedActions)
	}
	chainErrs := 0
	for _, msg := range result.Errors {
		if strings.Contains(msg, "Error executing semantic_search") {
			chainErrs++
		}
	}
	if chainErrs != 2 {
		t.Errorf("expected 2 chained-search errors, got %d in %v", chainErrs, result.Errors)
	}
	if result.NewsSummary != nil {
		t.Error("expected no news summary without passages")
	}
}

func TestExecutor_ZeroHitsStillSucceeds(t *testing.T) {
	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolSemanticSearch {
			return []datatypes.NewsChunk{}, nil
		}
		return happyToolHandler(call)
	}}
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "BTC 분석해줘")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.NewsSummary != nil {
		t.Error("expected nil news summary for zero hits")
	}
	if result.PriceSummary == nil {
		t.Error("expected the price summary regardless of news hits")
	}
	if len(reg.callsFor(datatypes.ToolSummarizeNewsChunks)) != 0 {
		t.Error("expected no news summarizer call without passages")
	}
	if result.TotalActions != 3 || result.FailedActions != 0 {
		t.Errorf("expected a clean turn, got %d/%d/%d",
			result.TotalActions, result.SuccessfulActions, result.FailedActions)
	}
}

func TestExecutor_TopPassagesPerPerspective(t *testing.T) {
	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolSemanticSearch {
			// Five hits, deliberately unsorted.
			return []datatypes.NewsChunk{
				{Title: "c", Document: "c", Similarity: 0.55},
				{Title: "a", Document: "a", Similarity: 0.95},
				{Title: "d", Document: "d", Similarity: 0.40},
				{Title: "b", Document: "b", Similarity: 0.80},
				{Title: "e", Document: "e", Similarity: 0.30},
			}, nil
		}
		return happyToolHandler(call)
	}}
	e := newTestExecutor(t, reg)

	if _, err := e.Run(context.Background(), executorPlan(), "btc"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	newsCalls := reg.callsFor(datatypes.ToolSummarizeNewsChunks)
	if len(newsCalls) != 1 {
		t.Fatalf("expected one news summarizer call, got %d", len(newsCalls))
	}
	chunks, ok := newsCalls[0].Arguments["news_chunks"].([]datatypes.NewsChunk)
	if !ok {
		t.Fatalf("expected []datatypes.NewsChunk argument, got %T", newsCalls[0].Arguments["news_chunks"])
	}

	// Two perspectives, each capped at 3 passages.
	if len(chunks) != 2*MaxPassagesPerPerspective {
		t.Errorf("expected %d passages after the per-perspective cap, got %d",
			2*MaxPassagesPerPerspective, len(chunks))
	}
	for _, c := range chunks {
		if c.Similarity < 0.55 {
			t.Errorf("expected only each perspective's top passages, found similarity %v", c.Similarity)
		}
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Similarity > chunks[i-1].Similarity {
			t.Errorf("expected similarity descending, got %v before %v",
				chunks[i-1].Similarity, chunks[i].Similarity)
		}
	}
}

func TestExecutor_HourlyRowsFoldToCloses(t *testing.T) {
	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolGetCoinPrice {
			return &tools.PriceResult{
				Coin:      "BTC",
				RangeType: datatypes.RangeHour,
				Hourly: []datatypes.HourlyPrice{
					{Time: 1760482800, Open: 66000, High: 67500, Low: 65800, Close: 67000},
					{Time: 1760486400, Open: 67000, High: 68200, Low: 66900, Close: 68000},
				},
			}, nil
		}
		return happyToolHandler(call)
	}}
	e := newTestExecutor(t, reg)

	if _, err := e.Run(context.Background(), executorPlan(), "btc"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	priceCalls := reg.callsFor(datatypes.ToolSummarizePriceData)
	if len(priceCalls) != 1 {
		t.Fatalf("expected one price summarizer call, got %d", len(priceCalls))
	}
	series, ok := priceCalls[0].Arguments["price_data"].([]datatypes.PricePoint)
	if !ok {
		t.Fatalf("expected []datatypes.PricePoint argument, got %T", priceCalls[0].Arguments["price_data"])
	}
	if len(series) != 2 || series[0].Close != 67000 || series[1].Close != 68000 {
		t.Errorf("expected hourly closes folded into the series, got %v", series)
	}
}

func TestExecutor_GeneratedQueriesDeduplicated(t *testing.T) {
	reg := happyDispatcher()
	reg.extract = func(title, document string) ([]string, error) {
		return []string{"bitcoin etf inflows", "rate cut timing", "bitcoin etf inflows"}, nil
	}
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.GeneratedQueries) != 2 {
		t.Errorf("expected 2 distinct follow-up queries, got %v", result.GeneratedQueries)
	}
}

func TestExecutor_ExtractionFailureIsSilent(t *testing.T) {
	reg := happyDispatcher()
	reg.extract = func(title, document string) ([]string, error) {
		return nil, errors.New("model busy")
	}
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.GeneratedQueries) != 0 {
		t.Errorf("expected no follow-up queries, got %v", result.GeneratedQueries)
	}
	for _, msg := range result.Errors {
		if strings.Contains(msg, "model busy") {
			t.Errorf("expected extraction failures kept out of result errors, got %v", result.Errors)
		}
	}
}

func TestExecutor_CombinedSummaryFailureRecorded(t *testing.T) {
	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolSummarizeCombined {
			return nil, errors.New("model overloaded")
		}
		return happyToolHandler(call)
	}}
	e := newTestExecutor(t, reg)

	result, err := e.Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.CombinedSummary != nil {
		t.Error("expected nil combined summary on failure")
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "Combined summary failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a combined summary error, got %v", result.Errors)
	}
	// Summarizer failures never touch the declared-call counters.
	if result.FailedActions != 0 {
		t.Errorf("expected 0 failed actions, got %d", result.FailedActions)
	}
}

func TestExecutor_NilPlan(t *testing.T) {
	e := newTestExecutor(t, happyDispatcher())

	_, err := e.Run(context.Background(), nil, "btc")
	if !IsKind(err, ErrKindInternalError) {
		t.Fatalf("expected InternalError for nil plan, got %v", err)
	}
}

func TestExecutor_DeterministicAcrossRuns(t *testing.T) {
	first, err := newTestExecutor(t, happyDispatcher()).Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := newTestExecutor(t, happyDispatcher()).Run(context.Background(), executorPlan(), "btc")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical results for identical inputs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExecutor_FanOutBound(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0

	reg := &fakeDispatcher{handler: func(call datatypes.ToolCall) (any, error) {
		if call.ToolName == datatypes.ToolGetCoinPrice {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			current--
			mu.Unlock()
		}
		return happyToolHandler(call)
	}}

	plan := &datatypes.QueryPlan{IntentType: datatypes.IntentMarketTrend}
	for _, coin := range []string{"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE"} {
		plan.Calls = append(plan.Calls, datatypes.ToolCall{
			ToolName:  datatypes.ToolGetCoinPrice,
			Arguments: map[string]any{"coin_name": coin, "range_type": datatypes.RangeWeek},
		})
	}

	e := NewExecutor(reg, ExecutorConfig{FanOut: 2}, nil, testLogger())
	if _, err := e.Run(context.Background(), plan, "market"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("expected at most 2 calls in flight, saw %d", peak)
	}
	if peak == 0 {
		t.Error("expected the price calls to actually run")
	}
}
