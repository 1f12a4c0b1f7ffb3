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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// =============================================================================
// Planning Tables
// =============================================================================

// defaultMarketBasket is the coin set substituted for the ALL sentinel,
// so a plan always names concrete symbols.
var defaultMarketBasket = []string{"BTC", "ETH"}

// depthParams couples the retrieval breadth knobs controlled by
// goal.depth. Thresholds decrease with depth: a deep dive tolerates
// weaker matches in exchange for coverage.
type depthParams struct {
	topK      int
	threshold float64
}

var depthTable = map[string]depthParams{
	datatypes.DepthShort:  {topK: 10, threshold: 0.1},
	datatypes.DepthMedium: {topK: 15, threshold: 0.0},
	datatypes.DepthDeep:   {topK: 25, threshold: -0.2},
}

// relativePriceRange maps the query's relative window to the
// get_coin_price range_type.
var relativePriceRange = map[string]string{
	datatypes.Relative24h: datatypes.RangeDay,
	datatypes.Relative7d:  datatypes.RangeWeek,
	datatypes.Relative1m:  datatypes.RangeMonth,
	datatypes.RelativeYTD: datatypes.RangeYear,
	datatypes.RelativeAll: datatypes.RangeYear,
}

// relativeSearchRange maps the relative window to the news search
// date_range. News windows top out at a month, so the long price
// ranges clamp to month here.
var relativeSearchRange = map[string]string{
	datatypes.Relative24h: datatypes.RangeDay,
	datatypes.Relative7d:  datatypes.RangeWeek,
	datatypes.Relative1m:  datatypes.RangeMonth,
	datatypes.RelativeYTD: datatypes.RangeMonth,
	datatypes.RelativeAll: datatypes.RangeMonth,
}

// perspective is one retrieval angle on the user's question. Each
// perspective becomes one make_semantic_query call; its keywords are
// unioned with the query's own event keywords.
type perspective struct {
	context  string
	keywords []string
}

// intentPerspectives lists the retrieval angles per intent. price_reason
// fans out widest because "why did it move" has several candidate
// explanations worth searching separately.
var intentPerspectives = map[string][]perspective{
	datatypes.IntentPriceReason: {
		{context: "direct causes of the price move", keywords: []string{"reason", "cause"}},
		{context: "macro and monetary policy backdrop", keywords: []string{"fed", "interest rate", "inflation"}},
		{context: "positive catalysts and adoption", keywords: []string{"etf", "adoption", "institutional"}},
		{context: "regulation and legal pressure", keywords: []string{"regulation", "sec", "lawsuit"}},
	},
	datatypes.IntentMarketTrend: {
		{context: "overall market trend and sentiment", keywords: []string{"market", "trend", "sentiment"}},
		{context: "large holder and institutional flows", keywords: []string{"whale", "institutional", "inflow"}},
	},
	datatypes.IntentNewsSummary: {
		{context: "headline events", keywords: []string{"announcement", "headline"}},
		{context: "project and ecosystem updates", keywords: []string{"upgrade", "partnership", "launch"}},
	},
}

// magnitudeKeywords maps an event magnitude to the search keyword it
// contributes.
var magnitudeKeywords = map[string][]string{
	datatypes.MagnitudeBig:   {"surge"},
	datatypes.MagnitudeSmall: {"plunge"},
}

// =============================================================================
// Planner
// =============================================================================

// Planner compiles a NormalizedQuery into a QueryPlan.
//
// # Description
//
// Planning is pure table-driven compilation: no model calls and no
// I/O, so identical queries compile to identical plans. The plan lists
// one get_coin_price call per coin, then one make_semantic_query call
// per perspective, in table order. Declared order is load-bearing; the
// Executor uses it for tie-breaking and error ordering.
//
// # Thread Safety
//
// Safe for concurrent use.
type Planner struct {
	basket []string
	now    func() time.Time
	logger *slog.Logger
}

// NewPlanner creates a Planner. A nil basket falls back to the default
// market basket used to expand the ALL coin sentinel.
func NewPlanner(basket []string, logger *slog.Logger) *Planner {
	if len(basket) == 0 {
		basket = defaultMarketBasket
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{basket: basket, now: time.Now, logger: logger}
}

// Plan compiles the query into an ordered ToolCall sequence.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - query: A schema-valid NormalizedQuery. Must not carry the
//     unknown intent.
//
// # Outputs
//
//   - *datatypes.QueryPlan: The compiled plan.
//   - error: *PipelineError with kind UnknownIntent when the query's
//     intent is unknown or absent from the perspective tables.
func (p *Planner) Plan(ctx context.Context, query datatypes.NormalizedQuery) (*datatypes.QueryPlan, error) {
	_, span := agentsTracer.Start(ctx, "Planner.Plan")
	defer span.End()

	if query.IsUnknown() {
		err := NewPipelineError(ErrKindUnknownIntent, StagePlanner,
			"utterance did not resolve to an actionable intent")
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown intent")
		return nil, err
	}
	perspectives, ok := intentPerspectives[query.IntentType]
	if !ok {
		err := NewPipelineError(ErrKindUnknownIntent, StagePlanner,
			"no planning rules for intent "+query.IntentType)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unplannable intent")
		return nil, err
	}

	pivot := query.TimeRange.ResolvePivot(p.now()).Unix()
	coins := p.expandCoins(query.Target.Coin)
	rangeType := lookupRange(relativePriceRange, query.TimeRange.Relative, datatypes.RangeWeek)
	direction := datatypes.DirectionBefore
	if query.IntentType == datatypes.IntentPriceReason {
		// Why-questions need the move itself and the aftermath.
		direction = datatypes.DirectionBoth
	}

	calls := make([]datatypes.ToolCall, 0, len(coins)+len(perspectives))
	for _, coin := range coins {
		calls = append(calls, datatypes.ToolCall{
			ToolName: datatypes.ToolGetCoinPrice,
			Arguments: map[string]any{
				"coin_name":  coin,
				"pivot_date": pivot,
				"range_type": rangeType,
				"direction":  direction,
			},
		})
	}

	depth := depthTable[datatypes.DepthMedium]
	if d, ok := depthTable[query.Goal.Depth]; ok {
		depth = d
	}
	searchRange := lookupRange(relativeSearchRange, query.TimeRange.Relative, datatypes.DefaultSearchDateRange)

	for _, persp := range perspectives {
		keywords := unionKeywords(
			query.Event.Keywords,
			magnitudeKeywords[query.Event.Magnitude],
			persp.keywords,
		)
		calls = append(calls, datatypes.ToolCall{
			ToolName: datatypes.ToolMakeSemanticQuery,
			Arguments: map[string]any{
				"coin_names":      coins,
				"intent_type":     query.IntentType,
				"event_keywords":  keywords,
				"event_magnitude": query.Event.Magnitude,
				"custom_context":  persp.context,
				datatypes.SearchParamsKey: datatypes.SearchParams{
					TopK:                depth.topK,
					SimilarityThreshold: depth.threshold,
					PivotDate:           pivot,
					DateRange:           searchRange,
				},
			},
		})
	}

	span.SetAttributes(
		attribute.String("plan.intent", query.IntentType),
		attribute.Int("plan.calls", len(calls)),
		attribute.Int("plan.coins", len(coins)),
	)

	return &datatypes.QueryPlan{
		IntentType: query.IntentType,
		PivotTime:  pivot,
		Calls:      calls,
	}, nil
}

// expandCoins replaces the ALL sentinel with the market basket and
// drops duplicates, preserving first-appearance order.
func (p *Planner) expandCoins(coins []string) []string {
	seen := make(map[string]bool, len(coins))
	out := make([]string, 0, len(coins))
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range coins {
		if c == datatypes.CoinAll {
			for _, b := range p.basket {
				add(b)
			}
			continue
		}
		add(c)
	}
	return out
}

// lookupRange resolves a relative window through the given table,
// falling back when the window is empty or unmapped.
func lookupRange(table map[string]string, relative, fallback string) string {
	if r, ok := table[relative]; ok {
		return r
	}
	return fallback
}

// unionKeywords merges keyword groups preserving first-appearance
// order, so identical queries always produce identical keyword lists.
func unionKeywords(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range groups {
		for _, k := range group {
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
