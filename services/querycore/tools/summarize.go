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
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
)

// Summarization bounds. Price series are sampled and news passages are
// capped before prompt assembly so a deep plan cannot blow the model's
// context window.
const (
	summaryMaxTokens  = 2048
	maxPriceSample    = 20
	maxNewsChunks     = 15
	summarizerTempVal = float32(0)
)

// summarizeParams returns the shared generation parameters for the
// summarizer calls.
func summarizeParams() llm.GenerationParams {
	temp := summarizerTempVal
	maxTokens := summaryMaxTokens
	return llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}
}

// generateSummary renders a prompt template and runs it through the LLM.
func (r *Registry) generateSummary(ctx context.Context, tool, templateName string, data any) (string, error) {
	prompt, err := r.prompts.Render(templateName, data)
	if err != nil {
		return "", WrapToolError(tool, ErrCodeBadArgument, false, err)
	}
	raw, err := r.llm.Generate(ctx, prompt, summarizeParams())
	if err != nil {
		return "", WrapToolError(tool, ErrCodeLLM, true, err)
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", NewToolError(tool, ErrCodeLLM, "model produced an empty summary", true)
	}
	return summary, nil
}

// decodeArg re-decodes a JSON-shaped argument into a typed value. Plans
// built in process pass typed slices directly; plans that crossed the
// HTTP boundary pass []any of maps. A JSON round trip handles both.
func decodeArg(raw any, out any) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// summarizePriceData implements the summarize_price_data tool.
//
// Arguments:
//   - coin_name (string, required): Coin the series belongs to.
//   - price_data ([]PricePoint, required): Chronological close series.
//     Hour-resolution OHLC rows must be folded to close points by the
//     caller first.
//   - analysis_focus (string): Optional steering text for the summary.
//
// Returns the summary string.
func (r *Registry) summarizePriceData(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.summarize_price_data")
	defer span.End()

	coin := call.StringArg("coin_name")
	if coin == "" {
		return nil, NewToolError(call.ToolName, ErrCodeBadArgument, "coin_name is required", false)
	}

	var points []datatypes.PricePoint
	switch v := call.Arguments["price_data"].(type) {
	case []datatypes.PricePoint:
		points = v
	case nil:
		// handled below as empty
	default:
		if err := decodeArg(v, &points); err != nil {
			return nil, WrapToolError(call.ToolName, ErrCodeBadArgument, false, err)
		}
	}
	if len(points) == 0 {
		return nil, NewToolError(call.ToolName, ErrCodeBadArgument, "price_data is empty", false)
	}

	stats, _ := datatypes.ComputePriceStats(points)
	sample := points
	if len(sample) > maxPriceSample {
		sample = sample[:maxPriceSample]
	}

	span.SetAttributes(
		attribute.String("summary.coin", coin),
		attribute.Int("summary.points", len(points)),
	)

	return r.generateSummary(ctx, call.ToolName, prompts.NamePriceSummary, prompts.PriceSummaryData{
		CoinName:      coin,
		Stats:         stats,
		Sample:        sample,
		AnalysisFocus: call.StringArg("analysis_focus"),
	})
}

// summarizeNewsChunks implements the summarize_news_chunks tool.
//
// Arguments:
//   - news_chunks ([]NewsChunk, required): Ranked passages. Only the
//     first maxNewsChunks reach the prompt; the template truncates each
//     body to its display budget.
//   - focus_topic (string): Optional steering text.
//
// Returns the summary string.
func (r *Registry) summarizeNewsChunks(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.summarize_news_chunks")
	defer span.End()

	var chunks []datatypes.NewsChunk
	switch v := call.Arguments["news_chunks"].(type) {
	case []datatypes.NewsChunk:
		chunks = v
	case nil:
		// handled below as empty
	default:
		if err := decodeArg(v, &chunks); err != nil {
			return nil, WrapToolError(call.ToolName, ErrCodeBadArgument, false, err)
		}
	}
	if len(chunks) == 0 {
		return nil, NewToolError(call.ToolName, ErrCodeBadArgument, "news_chunks is empty", false)
	}
	if len(chunks) > maxNewsChunks {
		chunks = chunks[:maxNewsChunks]
	}

	span.SetAttributes(attribute.Int("summary.chunks", len(chunks)))

	return r.generateSummary(ctx, call.ToolName, prompts.NameNewsSummary, prompts.NewsSummaryData{
		Chunks:     chunks,
		FocusTopic: call.StringArg("focus_topic"),
	})
}

// summarizeCombined implements the summarize_combined tool.
//
// Arguments:
//   - coin_name (string, required): Coin the report covers.
//   - price_summary (string): Output of summarize_price_data, or a
//     "no data" placeholder.
//   - news_summary (string): Output of summarize_news_chunks, or a
//     "no data" placeholder.
//   - user_query (string): The original utterance, for answer framing.
//
// Returns the combined report string.
func (r *Registry) summarizeCombined(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.summarize_combined")
	defer span.End()

	coin := call.StringArg("coin_name")
	if coin == "" {
		return nil, NewToolError(call.ToolName, ErrCodeBadArgument, "coin_name is required", false)
	}

	span.SetAttributes(attribute.String("summary.coin", coin))

	return r.generateSummary(ctx, call.ToolName, prompts.NameCombinedSummary, prompts.CombinedSummaryData{
		CoinName:     coin,
		PriceSummary: call.StringArg("price_summary"),
		NewsSummary:  call.StringArg("news_summary"),
		UserQuery:    call.StringArg("user_query"),
	})
}
