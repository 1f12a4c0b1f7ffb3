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
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
)

// Scripter generation parameters. A little temperature keeps the
// phrasing natural; the content is pinned by the summaries.
const (
	scripterTemperature = float32(0.3)
	scripterMaxTokens   = 2048
)

// Scripter writes the final user-facing answer from a PlanResult.
//
// The Scripter never sees raw rows or passages, only the summaries the
// Executor produced, so it cannot leak evidence the pipeline decided
// to drop.
type Scripter struct {
	llm     llm.LLMClient
	prompts *prompts.Store
	logger  *slog.Logger
}

// NewScripter creates a Scripter.
func NewScripter(llmClient llm.LLMClient, promptStore *prompts.Store, logger *slog.Logger) *Scripter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scripter{llm: llmClient, prompts: promptStore, logger: logger}
}

// Script renders the answer for one executed turn.
//
// # Outputs
//
//   - string: The answer text, non-empty on success.
//   - error: *PipelineError with kind Timeout or UpstreamFailure for
//     model failures, InternalError for prompt failures.
func (s *Scripter) Script(ctx context.Context, result *datatypes.PlanResult) (string, error) {
	ctx, span := agentsTracer.Start(ctx, "Scripter.Script")
	defer span.End()

	if result == nil {
		err := NewPipelineError(ErrKindInternalError, StageScripter, "nil result")
		span.RecordError(err)
		span.SetStatus(codes.Error, "nil result")
		return "", err
	}

	prompt, err := s.prompts.Render(prompts.NameScripter, prompts.ScripterData{
		OriginalQuery:   result.OriginalQuery,
		IntentType:      result.IntentType,
		CoinNames:       result.CoinNames,
		PriceSummary:    strOrEmpty(result.PriceSummary),
		NewsSummary:     strOrEmpty(result.NewsSummary),
		CombinedSummary: strOrEmpty(result.CombinedSummary),
		Errors:          result.Errors,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt render failed")
		return "", WrapPipelineError(ErrKindInternalError, StageScripter, err)
	}

	temp := scripterTemperature
	maxTokens := scripterMaxTokens
	answer, err := s.llm.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		perr := llmFailure(StageScripter, err)
		span.RecordError(perr)
		span.SetStatus(codes.Error, "model call failed")
		return "", perr
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		perr := NewPipelineError(ErrKindUpstreamFailure, StageScripter, "model returned an empty answer")
		span.RecordError(perr)
		span.SetStatus(codes.Error, "empty answer")
		return "", perr
	}

	span.SetAttributes(attribute.Int("answer.chars", len(answer)))
	return answer, nil
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
