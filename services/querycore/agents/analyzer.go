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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
	"github.com/CoinScopeAI/CoinScope/services/querycore/querycache"
)

// analyzerMaxTokens bounds the model's JSON reply. The schema fits well
// under this even with long keyword lists.
const analyzerMaxTokens = 1024

// AnalysisCache is the lookup surface the Analyzer uses to skip repeat
// model calls. Keys are utterance plus calendar day: the analyzer
// resolves relative dates against today, so yesterday's analysis of the
// same utterance is not reusable.
type AnalysisCache interface {
	Get(ctx context.Context, utterance string, day time.Time) (*datatypes.NormalizedQuery, bool, error)
	Put(ctx context.Context, utterance string, day time.Time, query *datatypes.NormalizedQuery) error
}

// Compile-time interface implementation check.
var _ AnalysisCache = (*querycache.Cache)(nil)

// Analyzer reduces a raw utterance to a NormalizedQuery.
//
// # Description
//
// The Analyzer is the only stage that sees free text. It enforces the
// utterance length bound, then makes one model round-trip asking for
// the normalization JSON. Output that fails to parse or validate is
// reported as the unknown intent rather than a guess; the Planner
// refuses unknown intents, so a bad model reply degrades to a direct
// answer instead of a fabricated plan.
//
// # Thread Safety
//
// Safe for concurrent use.
type Analyzer struct {
	llm     llm.LLMClient
	prompts *prompts.Store
	cache   AnalysisCache
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyzer creates an Analyzer. The cache is optional; nil disables
// analysis caching.
func NewAnalyzer(llmClient llm.LLMClient, promptStore *prompts.Store, cache AnalysisCache, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		llm:     llmClient,
		prompts: promptStore,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// Analyze normalizes one utterance.
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing.
//   - utterance: The raw user message. At most datatypes.MaxQueryChars
//     runes after trimming.
//
// # Outputs
//
//   - datatypes.NormalizedQuery: Always schema-valid. IntentUnknown
//     when the utterance could not be analyzed.
//   - error: *PipelineError with kind QueryTooLong for oversized
//     utterances (no model call is made), Timeout or UpstreamFailure
//     for model failures. Unparseable model output is NOT an error; it
//     yields the unknown intent.
func (a *Analyzer) Analyze(ctx context.Context, utterance string) (datatypes.NormalizedQuery, error) {
	ctx, span := agentsTracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	utterance = strings.TrimSpace(utterance)
	length := utf8.RuneCountInString(utterance)
	span.SetAttributes(attribute.Int("utterance.chars", length))

	if length > datatypes.MaxQueryChars {
		err := NewPipelineError(ErrKindQueryTooLong, StageAnalyzer,
			fmt.Sprintf("utterance is %d characters; the limit is %d", length, datatypes.MaxQueryChars))
		span.RecordError(err)
		span.SetStatus(codes.Error, "utterance too long")
		return datatypes.UnknownQuery(), err
	}
	if length == 0 {
		return datatypes.UnknownQuery(), nil
	}

	day := a.now().UTC()

	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, utterance, day)
		if err != nil {
			a.logger.Warn("agents.analyzer: cache read failed", "error", err)
		} else if ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return *cached, nil
		}
	}

	system, err := a.prompts.Render(prompts.NameAnalyzer, prompts.AnalyzerData{
		Today: day.Format("2006-01-02"),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prompt render failed")
		return datatypes.UnknownQuery(), WrapPipelineError(ErrKindInternalError, StageAnalyzer, err)
	}

	temp := float32(0)
	maxTokens := analyzerMaxTokens
	raw, err := a.llm.Generate(ctx, system+"\n\n"+utterance, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		perr := llmFailure(StageAnalyzer, err)
		span.RecordError(perr)
		span.SetStatus(codes.Error, "model call failed")
		return datatypes.UnknownQuery(), perr
	}

	var parsed datatypes.NormalizedQuery
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); err != nil {
		a.logger.Warn("agents.analyzer: model output is not valid JSON, treating intent as unknown",
			"error", err)
		span.SetAttributes(attribute.Bool("parse.failed", true))
		return datatypes.UnknownQuery(), nil
	}

	parsed.EnsureDefaults()
	if parsed.IntentType == "" {
		parsed.IntentType = datatypes.IntentUnknown
	}
	if err := parsed.Validate(); err != nil {
		a.logger.Warn("agents.analyzer: model output failed validation, treating intent as unknown",
			"error", err)
		span.SetAttributes(attribute.Bool("validation.failed", true))
		return datatypes.UnknownQuery(), nil
	}

	span.SetAttributes(attribute.String("query.intent", parsed.IntentType))

	if a.cache != nil && !parsed.IsUnknown() {
		if err := a.cache.Put(ctx, utterance, day, &parsed); err != nil {
			a.logger.Warn("agents.analyzer: cache write failed", "error", err)
		}
	}

	return parsed, nil
}

// stripCodeFences removes a surrounding markdown code fence from a
// model reply. Models asked for bare JSON still wrap it in ```json
// fences often enough that parsing must tolerate it.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// Drop the info string line ("json").
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
