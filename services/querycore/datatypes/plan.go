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
	"strings"
)

// =============================================================================
// Tool Names and Argument Enumerations
// =============================================================================

// Registered tool names. The Executor dispatches by these strings only.
const (
	ToolGetCoinPrice        = "get_coin_price"
	ToolMakeSemanticQuery   = "make_semantic_query"
	ToolSemanticSearch      = "semantic_search"
	ToolSummarizePriceData  = "summarize_price_data"
	ToolSummarizeNewsChunks = "summarize_news_chunks"
	ToolSummarizeCombined   = "summarize_combined"
)

// Price range types accepted by get_coin_price.
const (
	RangeHour  = "hour"
	RangeDay   = "day"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// Price lookup directions relative to the pivot.
const (
	DirectionBefore = "before"
	DirectionAfter  = "after"
	DirectionBoth   = "both"
)

// MetaArgPrefix marks ToolCall arguments that are consumed by the
// Executor and never forwarded to the tool body.
const MetaArgPrefix = "_"

// SearchParamsKey is the meta argument carrying auto-chain search
// parameters on make_semantic_query calls.
const SearchParamsKey = "_search_params"

// =============================================================================
// ToolCall / QueryPlan
// =============================================================================

// ToolCall names one tool invocation with its arguments. Argument keys
// beginning with MetaArgPrefix are meta arguments: the Executor reads
// them but strips them before dispatch.
type ToolCall struct {
	ToolName  string         `json:"tool_name" validate:"required"`
	Arguments map[string]any `json:"arguments"`
}

// StripMeta returns a copy of the arguments without meta keys. The
// receiver is not modified; handlers must never see underscore keys.
func (c ToolCall) StripMeta() map[string]any {
	clean := make(map[string]any, len(c.Arguments))
	for k, v := range c.Arguments {
		if strings.HasPrefix(k, MetaArgPrefix) {
			continue
		}
		clean[k] = v
	}
	return clean
}

// StringArg returns the named argument as a string, or "" when absent
// or of another type.
func (c ToolCall) StringArg(key string) string {
	if v, ok := c.Arguments[key].(string); ok {
		return v
	}
	return ""
}

// IntArg returns the named argument as an int. JSON decoding produces
// float64 for every number, so both forms are accepted.
func (c ToolCall) IntArg(key string) (int, bool) {
	switch v := c.Arguments[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Int64Arg returns the named argument as an int64, accepting the same
// numeric forms as IntArg.
func (c ToolCall) Int64Arg(key string) (int64, bool) {
	switch v := c.Arguments[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// FloatArg returns the named argument as a float64, accepting the same
// numeric forms as IntArg.
func (c ToolCall) FloatArg(key string) (float64, bool) {
	return asFloat(c.Arguments[key])
}

// StringSliceArg returns the named argument as a string slice. A
// JSON-decoded plan carries []any; an in-process plan carries []string.
func (c ToolCall) StringSliceArg(key string) []string {
	switch v := c.Arguments[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// QueryPlan is the ordered ToolCall sequence the Planner compiles from a
// NormalizedQuery. Order is significant: the Executor derives phase
// dependencies and tie-break ordering from declared position.
type QueryPlan struct {
	IntentType string     `json:"intent_type"`
	PivotTime  int64      `json:"pivot_time"`
	Calls      []ToolCall `json:"query_plan"`
}

// CoinNames collects the distinct coin symbols named by the plan's
// get_coin_price calls, in first-appearance order. The declared plan is
// the source of truth for which coins a turn covers, whether or not the
// price lookups later succeed.
func (p *QueryPlan) CoinNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, call := range p.Calls {
		if call.ToolName != ToolGetCoinPrice {
			continue
		}
		coin := call.StringArg("coin_name")
		if coin == "" || seen[coin] {
			continue
		}
		seen[coin] = true
		names = append(names, coin)
	}
	return names
}

// =============================================================================
// Auto-Chain Search Parameters
// =============================================================================

// SearchParams are the meta parameters a make_semantic_query call carries
// for the semantic_search the Executor chains immediately after it.
type SearchParams struct {
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	PivotDate           int64   `json:"pivot_date,omitempty"`
	DateRange           string  `json:"date_range,omitempty"`
}

// Default auto-chain parameters, used when a plan omits _search_params.
const (
	DefaultSearchTopK      = 15
	DefaultSearchThreshold = 0.65
	DefaultSearchDateRange = RangeMonth
)

// DefaultSearchParams returns the auto-chain parameters used when a
// make_semantic_query call carries no _search_params meta argument.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		TopK:                DefaultSearchTopK,
		SimilarityThreshold: DefaultSearchThreshold,
		DateRange:           DefaultSearchDateRange,
	}
}

// SearchParamsFrom extracts SearchParams from a ToolCall's meta
// arguments.
//
// An in-process plan stores the typed struct; a plan that crossed the
// HTTP boundary stores a decoded map. Absent or malformed parameters
// fall back to DefaultSearchParams.
func SearchParamsFrom(c ToolCall) SearchParams {
	raw, ok := c.Arguments[SearchParamsKey]
	if !ok {
		return DefaultSearchParams()
	}
	switch v := raw.(type) {
	case SearchParams:
		return v
	case *SearchParams:
		if v != nil {
			return *v
		}
	case map[string]any:
		p := DefaultSearchParams()
		if tk, ok := asInt(v["top_k"]); ok {
			p.TopK = tk
		}
		if th, ok := asFloat(v["similarity_threshold"]); ok {
			p.SimilarityThreshold = th
		}
		if pd, ok := asInt64(v["pivot_date"]); ok {
			p.PivotDate = pd
		}
		if dr, ok := v["date_range"].(string); ok && dr != "" {
			p.DateRange = dr
		}
		return p
	}
	return DefaultSearchParams()
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
