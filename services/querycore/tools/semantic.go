// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/news"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
)

// Generation bounds for the query-condensing calls. These produce short
// keyword strings, so the budgets are small and the temperature is
// pinned at zero for reproducibility.
const (
	queryGenMaxTokens   = 128
	extractMaxTokens    = 256
	maxExtractedQueries = 5
)

// makeSemanticQuery implements the make_semantic_query tool.
//
// Arguments:
//   - coin_names ([]string): Coins the search should mention.
//   - intent_type (string): The plan's intent, steering keyword choice.
//   - event_keywords ([]string): Unioned base + perspective keywords.
//   - event_magnitude (string): surge, plunge or any. Optional.
//   - custom_context (string): The perspective this query serves.
//
// Returns the condensed search query string. The auto-chained
// semantic_search that consumes it is dispatched by the Executor, not
// here.
func (r *Registry) makeSemanticQuery(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.make_semantic_query")
	defer span.End()

	data := prompts.SemanticQueryData{
		CoinNames:      call.StringSliceArg("coin_names"),
		IntentType:     call.StringArg("intent_type"),
		EventKeywords:  call.StringSliceArg("event_keywords"),
		EventMagnitude: call.StringArg("event_magnitude"),
		CustomContext:  call.StringArg("custom_context"),
	}

	prompt, err := r.prompts.Render(prompts.NameSemanticQuery, data)
	if err != nil {
		return nil, WrapToolError(call.ToolName, ErrCodeBadArgument, false, err)
	}

	temp := float32(0)
	maxTokens := queryGenMaxTokens
	params := llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"\n"},
	}

	raw, err := r.llm.Generate(ctx, prompt, params)
	if err != nil {
		return nil, WrapToolError(call.ToolName, ErrCodeLLM, true, err)
	}

	query := strings.TrimSpace(raw)
	if query == "" {
		// A blank query would search for nothing; fall back to the
		// literal keywords so the chained search still has a target.
		query = strings.TrimSpace(strings.Join(append(data.CoinNames, data.EventKeywords...), " "))
	}
	if query == "" {
		return nil, NewToolError(call.ToolName, ErrCodeLLM,
			"model produced an empty query and no keywords were available", false)
	}

	span.SetAttributes(attribute.String("semantic.query", query))
	return query, nil
}

// semanticSearch implements the semantic_search tool.
//
// Arguments:
//   - query (string, required): The search text to embed.
//   - top_k (int): Result cap. Defaults via SearchOptions.
//   - similarity_threshold (float): Minimum similarity kept. Can be
//     negative; zero is a valid permissive threshold.
//   - pivot_date (int): Epoch seconds centering the date window. Zero
//     disables date filtering.
//   - date_range (string): day, week or month window around the pivot.
//
// Returns the ranked []datatypes.NewsChunk.
func (r *Registry) semanticSearch(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.semantic_search")
	defer span.End()

	query := strings.TrimSpace(call.StringArg("query"))
	if query == "" {
		return nil, NewToolError(call.ToolName, ErrCodeBadArgument, "query is required", false)
	}

	opts := news.SearchOptions{DateRange: datatypes.DefaultSearchDateRange}
	if topK, ok := call.IntArg("top_k"); ok {
		opts.TopK = topK
	}
	if threshold, ok := call.FloatArg("similarity_threshold"); ok {
		opts.SimilarityThreshold = threshold
	}
	if pivot, ok := call.Int64Arg("pivot_date"); ok {
		opts.PivotDate = pivot
	}
	if dateRange := call.StringArg("date_range"); dateRange != "" {
		opts.DateRange = dateRange
	}
	opts.Source = call.StringArg("source")

	span.SetAttributes(
		attribute.String("search.query", query),
		attribute.Int("search.top_k", opts.TopK),
		attribute.Float64("search.threshold", opts.SimilarityThreshold),
		attribute.String("search.date_range", opts.DateRange),
	)

	chunks, err := r.news.Search(ctx, query, opts)
	if err != nil {
		return nil, WrapToolError(call.ToolName, ErrCodeUpstream, true, err)
	}

	span.SetAttributes(attribute.Int("search.results", len(chunks)))
	return chunks, nil
}

// ExtractQueries mines follow-up search queries from one news passage.
//
// # Description
//
// Not a registered tool: plans never declare it. The Executor calls it
// directly on the highest-ranked passages after collection to populate
// PlanResult.GeneratedQueries. The model returns one query per line; up
// to maxExtractedQueries non-empty lines are kept.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - title: The passage's headline. May be empty.
//   - document: The passage body. May be empty, but not together with
//     title.
//
// # Outputs
//
//   - []string: Extracted queries, already trimmed. May be empty.
//   - error: Non-nil on render or model failure.
func (r *Registry) ExtractQueries(ctx context.Context, title, document string) ([]string, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.ExtractQueries")
	defer span.End()

	if strings.TrimSpace(title) == "" && strings.TrimSpace(document) == "" {
		return nil, nil
	}

	prompt, err := r.prompts.Render(prompts.NameGeneratedQueries, prompts.GeneratedQueriesData{
		Title:    title,
		Document: document,
	})
	if err != nil {
		return nil, err
	}

	temp := float32(0)
	maxTokens := extractMaxTokens
	params := llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}

	raw, err := r.llm.Generate(ctx, prompt, params)
	if err != nil {
		return nil, err
	}

	var queries []string
	for _, line := range strings.Split(raw, "\n") {
		q := trimListMarker(line)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) >= maxExtractedQueries {
			break
		}
	}

	span.SetAttributes(attribute.Int("extract.queries", len(queries)))
	return queries, nil
}

// trimListMarker strips a leading "- ", "* " or "3. " style list marker
// from a model output line.
func trimListMarker(line string) string {
	q := strings.TrimSpace(line)
	q = strings.TrimPrefix(q, "- ")
	q = strings.TrimPrefix(q, "* ")
	if dot := strings.IndexByte(q, '.'); dot > 0 && dot <= 2 {
		digits := true
		for _, r := range q[:dot] {
			if r < '0' || r > '9' {
				digits = false
				break
			}
		}
		if digits {
			q = q[dot+1:]
		}
	}
	return strings.TrimSpace(q)
}
