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

import "sort"

// MaxGeneratedQueries caps the follow-up query suggestions carried on a
// PlanResult.
const MaxGeneratedQueries = 10

// PlanResult is what the Executor returns and the Scripter consumes.
//
// # Description
//
// PlanResult carries only summaries and bookkeeping out of execution.
// Raw price rows and raw news passages never leave the Executor; they
// are reduced to PriceSummary and NewsSummary before assembly. The
// counters cover the plan's declared ToolCalls: auto-chained searches
// and Phase-B summarization calls are not counted, though their
// failures still append to Errors.
//
// # Fields
//
//   - OriginalQuery: The verbatim user utterance.
//   - IntentType: Echo of the plan's intent.
//   - CoinNames: Sorted, de-duplicated coin symbols the plan covered.
//   - PriceSummary / NewsSummary / CombinedSummary: Nullable summary
//     strings. Nil means the corresponding data was absent or its
//     summarization failed.
//   - GeneratedQueries: Up to MaxGeneratedQueries deduplicated follow-up
//     search queries mined from the retrieved news.
//   - TotalActions / SuccessfulActions / FailedActions: Declared-call
//     counters. TotalActions = SuccessfulActions + FailedActions.
//   - Errors: Human-readable error strings from any phase.
type PlanResult struct {
	OriginalQuery     string   `json:"original_query"`
	IntentType        string   `json:"intent_type"`
	CoinNames         []string `json:"coin_names"`
	PriceSummary      *string  `json:"price_summary"`
	NewsSummary       *string  `json:"news_summary"`
	CombinedSummary   *string  `json:"combined_summary"`
	GeneratedQueries  []string `json:"generated_queries"`
	TotalActions      int      `json:"total_actions"`
	SuccessfulActions int      `json:"successful_actions"`
	FailedActions     int      `json:"failed_actions"`
	Errors            []string `json:"errors"`
}

// NewPlanResult creates an empty PlanResult for the given turn.
func NewPlanResult(originalQuery, intentType string) *PlanResult {
	return &PlanResult{
		OriginalQuery:    originalQuery,
		IntentType:       intentType,
		CoinNames:        []string{},
		GeneratedQueries: []string{},
		Errors:           []string{},
	}
}

// SetCoinNames stores the given symbols sorted and de-duplicated.
func (r *PlanResult) SetCoinNames(names []string) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	r.CoinNames = out
}

// RecordSuccess counts one declared ToolCall that completed.
func (r *PlanResult) RecordSuccess() {
	r.TotalActions++
	r.SuccessfulActions++
}

// RecordFailure counts one declared ToolCall that failed and records its
// error.
func (r *PlanResult) RecordFailure(msg string) {
	r.TotalActions++
	r.FailedActions++
	r.Errors = append(r.Errors, msg)
}

// RecordError appends an error that does not correspond to a declared
// ToolCall, such as an auto-chained search or a summarizer failure.
func (r *PlanResult) RecordError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddGeneratedQueries appends follow-up queries, dropping duplicates and
// empties, up to MaxGeneratedQueries.
func (r *PlanResult) AddGeneratedQueries(queries []string) {
	seen := make(map[string]bool, len(r.GeneratedQueries))
	for _, q := range r.GeneratedQueries {
		seen[q] = true
	}
	for _, q := range queries {
		if len(r.GeneratedQueries) >= MaxGeneratedQueries {
			return
		}
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		r.GeneratedQueries = append(r.GeneratedQueries, q)
	}
}

// HasSummaries reports whether execution produced anything for the
// Scripter to narrate.
func (r *PlanResult) HasSummaries() bool {
	return r.PriceSummary != nil || r.NewsSummary != nil || r.CombinedSummary != nil
}

// StrPtr returns a pointer to s. Summary fields are nullable, so
// assembly code needs pointers to freshly produced strings.
func StrPtr(s string) *string {
	return &s
}
