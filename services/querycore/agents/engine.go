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
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/observability"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
	"github.com/CoinScopeAI/CoinScope/services/querycore/session"
)

// Engine generation parameters.
const (
	// routerMaxTokens bounds the router reply; "PATH: FULL_PIPELINE" is
	// a handful of tokens.
	routerMaxTokens = 32

	// directMaxTokens bounds small-talk answers.
	directMaxTokens = 512

	// directTemperature keeps conversational replies from sounding
	// canned.
	directTemperature = float32(0.7)

	// summaryPreviewChars is how much of each cached summary the router
	// prompt carries.
	summaryPreviewChars = 200
)

// failedTurnAnswer is the static answer for turns where a stage failed
// outright. The typed error rides alongside it in the errors list.
const failedTurnAnswer = "Sorry, something went wrong while processing your question. Please try again."

// TurnResult is the outcome of one conversational turn.
//
// # Fields
//
//   - Answer: The user-visible answer text.
//   - Path: The entry path that produced the answer, or its ERROR_
//     form when a stage failed.
//   - Errors: Execution errors surfaced to the client. Empty on a
//     clean turn.
type TurnResult struct {
	Answer string
	Path   string
	Errors []string
}

// EngineDeps carries the Engine's collaborators. Metrics and Logger
// are optional; everything else is required.
type EngineDeps struct {
	Analyzer *Analyzer
	Planner  *Planner
	Executor *Executor
	Scripter *Scripter
	LLM      llm.LLMClient
	Prompts  *prompts.Store
	Sessions session.Store
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Engine runs conversational turns.
//
// # Description
//
// Engine owns the entry routing in front of the pipeline stages. A
// turn consults the session context, asks the router model for a path,
// applies the deterministic reuse guards, runs the chosen path, and on
// success promotes the turn's outputs into the session. Failed turns
// leave the session untouched and report the path in its ERROR_ form.
//
// # Thread Safety
//
// Safe for concurrent turns. Concurrent turns on the same session are
// serialized only at the session store; the last successful turn wins
// the context promotion.
type Engine struct {
	analyzer *Analyzer
	planner  *Planner
	executor *Executor
	scripter *Scripter
	llm      llm.LLMClient
	prompts  *prompts.Store
	sessions session.Store
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEngine creates an Engine from its dependencies.
func NewEngine(deps EngineDeps) (*Engine, error) {
	switch {
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("engine: analyzer is required")
	case deps.Planner == nil:
		return nil, fmt.Errorf("engine: planner is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("engine: executor is required")
	case deps.Scripter == nil:
		return nil, fmt.Errorf("engine: scripter is required")
	case deps.LLM == nil:
		return nil, fmt.Errorf("engine: llm client is required")
	case deps.Prompts == nil:
		return nil, fmt.Errorf("engine: prompt store is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("engine: session store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		analyzer: deps.Analyzer,
		planner:  deps.Planner,
		executor: deps.Executor,
		scripter: deps.Scripter,
		llm:      deps.LLM,
		prompts:  deps.Prompts,
		sessions: deps.Sessions,
		metrics:  deps.Metrics,
		logger:   logger,
	}, nil
}

// Ask runs one conversational turn.
//
// # Inputs
//
//   - ctx: Turn context; carries the per-turn budget.
//   - req: The request, validated by the caller. EnsureDefaults is
//     applied here so direct library callers get IDs too.
//
// # Outputs
//
//   - *TurnResult: The answer, the path taken, and any execution
//     errors. A stage failure still yields a result, with the ERROR_
//     path form and a static apology answer.
//   - error: *PipelineError with kind QueryTooLong for oversized
//     utterances. This is the only error return; it happens before any
//     stage or session write.
func (eng *Engine) Ask(ctx context.Context, req *datatypes.AskRequest) (*TurnResult, error) {
	ctx, span := agentsTracer.Start(ctx, "Engine.Ask")
	defer span.End()

	req.EnsureDefaults()
	span.SetAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("request.id", req.RequestID),
	)

	start := time.Now()
	eng.metrics.TurnStarted()

	utterance := strings.TrimSpace(req.Utterance)
	if n := utf8.RuneCountInString(utterance); n > datatypes.MaxQueryChars {
		err := NewPipelineError(ErrKindQueryTooLong, "",
			fmt.Sprintf("utterance is %d characters; the limit is %d", n, datatypes.MaxQueryChars))
		eng.metrics.TurnFinished("rejected", false, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "utterance too long")
		return nil, err
	}

	rec, _, err := eng.sessions.Load(ctx, req.SessionID)
	if err != nil {
		eng.logger.Warn("agents.engine: session load failed, starting fresh",
			"session_id", req.SessionID, "error", err)
		rec = session.NewRecord(req.SessionID, req.UserID)
	}

	path := eng.route(ctx, utterance, &rec.Context)
	span.SetAttributes(attribute.String("turn.requested_path", path))

	out, perr := eng.runPath(ctx, path, utterance, req, &rec.Context)
	elapsed := time.Since(start)

	if perr != nil {
		eng.metrics.TurnFinished(out.path, false, elapsed)
		span.RecordError(perr)
		span.SetStatus(codes.Error, "stage failed")
		eng.logger.Error("agents.engine: turn failed",
			"session_id", req.SessionID, "path", out.path, "kind", perr.Kind, "error", perr)
		return &TurnResult{
			Answer: failedTurnAnswer,
			Path:   datatypes.ErrorPathPrefix + out.path,
			Errors: []string{perr.Error()},
		}, nil
	}

	eng.commitTurn(ctx, req, out)
	eng.metrics.TurnFinished(out.path, true, elapsed)
	span.SetAttributes(attribute.String("turn.path", out.path))

	return &TurnResult{Answer: out.answer, Path: out.path, Errors: out.errs}, nil
}

// =============================================================================
// Entry Routing
// =============================================================================

// route picks the entry path for one turn. Any routing failure is a
// full pipeline run; paths that need session state the session does
// not hold are downgraded the same way.
func (eng *Engine) route(ctx context.Context, utterance string, sctx *datatypes.SessionContext) string {
	ctx, span := agentsTracer.Start(ctx, "Engine.route")
	defer span.End()

	start := time.Now()
	defer func() { eng.metrics.ObserveStage(StageRouter, time.Since(start)) }()

	data := prompts.RouterData{
		Utterance:       utterance,
		HasAnalysis:     sctx.HasHistory(),
		HasResult:       sctx.HasResult(),
		PreviousCoins:   sctx.Coins,
		PreviousSummary: summaryPreview(sctx.LastResult),
	}
	if sctx.LastQuery != nil {
		data.PreviousIntent = sctx.LastQuery.IntentType
	}

	prompt, err := eng.prompts.Render(prompts.NameRouter, data)
	if err != nil {
		eng.logger.Warn("agents.engine: router prompt render failed, using full pipeline", "error", err)
		return datatypes.PathFullPipeline
	}

	temp := float32(0)
	maxTokens := routerMaxTokens
	reply, err := eng.llm.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"\n"},
	})
	if err != nil {
		eng.logger.Warn("agents.engine: router call failed, using full pipeline", "error", err)
		return datatypes.PathFullPipeline
	}

	path := parsePath(reply)

	// The model's verdict is advisory; a reuse path requires the state
	// it assumes.
	switch path {
	case datatypes.PathReuseResult:
		if !sctx.HasResult() {
			path = datatypes.PathFullPipeline
		}
	case datatypes.PathReuseAnalysis:
		if !sctx.HasHistory() {
			path = datatypes.PathFullPipeline
		}
	}

	span.SetAttributes(attribute.String("router.path", path))
	return path
}

// parsePath extracts the chosen path from the router reply. Anything
// that does not parse to a known path is a full pipeline run.
func parsePath(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		rest, ok := strings.CutPrefix(line, "PATH:")
		if !ok {
			continue
		}
		switch strings.TrimSpace(rest) {
		case datatypes.PathDirect:
			return datatypes.PathDirect
		case datatypes.PathReuseResult:
			return datatypes.PathReuseResult
		case datatypes.PathReuseAnalysis:
			return datatypes.PathReuseAnalysis
		case datatypes.PathFullPipeline:
			return datatypes.PathFullPipeline
		}
	}
	return datatypes.PathFullPipeline
}

// summaryPreview compresses a cached result into the short state line
// the router prompt carries.
func summaryPreview(result *datatypes.PlanResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	if result.PriceSummary != nil {
		parts = append(parts, truncateRunes(*result.PriceSummary, summaryPreviewChars))
	}
	if result.NewsSummary != nil {
		parts = append(parts, truncateRunes(*result.NewsSummary, summaryPreviewChars))
	}
	return strings.Join(parts, " / ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// =============================================================================
// Path Execution
// =============================================================================

// turnOutcome is a successfully produced turn before session commit.
// path may differ from the requested path: an unanswerable analysis
// falls back to DIRECT.
type turnOutcome struct {
	answer string
	path   string
	errs   []string
	patch  session.ContextPatch
}

func (eng *Engine) runPath(ctx context.Context, path, utterance string, req *datatypes.AskRequest, sctx *datatypes.SessionContext) (turnOutcome, *PipelineError) {
	out := turnOutcome{path: path, patch: session.ContextPatch{UserID: req.UserID}}

	switch path {
	case datatypes.PathDirect:
		answer, perr := eng.directAnswer(ctx, utterance)
		if perr != nil {
			return out, perr
		}
		out.answer = answer
		return out, nil

	case datatypes.PathReuseResult:
		// Re-narrate the cached result for the new phrasing. The cached
		// context keeps its original promoted result.
		reused := *sctx.LastResult
		reused.OriginalQuery = utterance
		answer, err := eng.scriptTimed(ctx, &reused)
		if err != nil {
			return out, Classify(StageScripter, err)
		}
		out.answer = answer
		return out, nil

	case datatypes.PathReuseAnalysis:
		return eng.runPipeline(ctx, out, *sctx.LastQuery, utterance, false)

	default:
		query, err := eng.analyzeTimed(ctx, utterance)
		if err != nil {
			return out, Classify(StageAnalyzer, err)
		}
		if query.IsUnknown() {
			return eng.unknownFallback(ctx, out, utterance)
		}
		return eng.runPipeline(ctx, out, query, utterance, true)
	}
}

// runPipeline plans, executes and scripts one analyzed query.
// promoteQuery distinguishes a fresh analysis (promoted to the session
// together with the result) from a reused one (only the result is
// promoted).
func (eng *Engine) runPipeline(ctx context.Context, out turnOutcome, query datatypes.NormalizedQuery, utterance string, promoteQuery bool) (turnOutcome, *PipelineError) {
	plan, err := eng.planTimed(ctx, query)
	if err != nil {
		if IsKind(err, ErrKindUnknownIntent) {
			return eng.unknownFallback(ctx, out, utterance)
		}
		return out, Classify(StagePlanner, err)
	}

	result, err := eng.executeTimed(ctx, plan, utterance)
	if err != nil {
		return out, Classify(StageExecutor, err)
	}

	answer, err := eng.scriptTimed(ctx, result)
	if err != nil {
		return out, Classify(StageScripter, err)
	}

	out.answer = answer
	out.errs = result.Errors
	out.patch.LastResult = result
	if promoteQuery {
		q := query
		out.patch.LastQuery = &q
		out.patch.Coins = result.CoinNames
	}
	return out, nil
}

// unknownFallback answers an unanalyzable utterance conversationally.
// The turn reports the DIRECT path; the refusal stays visible in the
// errors list.
func (eng *Engine) unknownFallback(ctx context.Context, out turnOutcome, utterance string) (turnOutcome, *PipelineError) {
	out.path = datatypes.PathDirect
	answer, perr := eng.directAnswer(ctx, utterance)
	if perr != nil {
		return out, perr
	}
	refusal := NewPipelineError(ErrKindUnknownIntent, StagePlanner,
		"utterance did not resolve to an actionable intent")
	out.answer = answer
	out.errs = []string{refusal.Error()}
	return out, nil
}

// directAnswer produces a conversational reply without touching the
// pipeline.
func (eng *Engine) directAnswer(ctx context.Context, utterance string) (string, *PipelineError) {
	prompt, err := eng.prompts.Render(prompts.NameDirect, prompts.DirectData{Utterance: utterance})
	if err != nil {
		return "", WrapPipelineError(ErrKindInternalError, StageRouter, err)
	}

	temp := directTemperature
	maxTokens := directMaxTokens
	answer, err := eng.llm.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", llmFailure(StageRouter, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", NewPipelineError(ErrKindUpstreamFailure, StageRouter, "model returned an empty answer")
	}
	return answer, nil
}

// commitTurn appends the exchanged messages and merges the turn's
// context patch. Commit failures are logged, not surfaced; the answer
// is already produced and the next turn starts from whatever state
// stuck.
func (eng *Engine) commitTurn(ctx context.Context, req *datatypes.AskRequest, out turnOutcome) {
	sid := req.SessionID
	if err := eng.sessions.AppendMessage(ctx, sid, "user", req.Utterance); err != nil {
		eng.logger.Warn("agents.engine: user message append failed", "session_id", sid, "error", err)
	}
	if err := eng.sessions.AppendMessage(ctx, sid, "assistant", out.answer); err != nil {
		eng.logger.Warn("agents.engine: assistant message append failed", "session_id", sid, "error", err)
	}
	if err := eng.sessions.UpdateContext(ctx, sid, out.patch); err != nil {
		eng.logger.Warn("agents.engine: context update failed", "session_id", sid, "error", err)
	}
}

// =============================================================================
// Stage Timing
// =============================================================================

func (eng *Engine) analyzeTimed(ctx context.Context, utterance string) (datatypes.NormalizedQuery, error) {
	start := time.Now()
	query, err := eng.analyzer.Analyze(ctx, utterance)
	eng.metrics.ObserveStage(StageAnalyzer, time.Since(start))
	return query, err
}

func (eng *Engine) planTimed(ctx context.Context, query datatypes.NormalizedQuery) (*datatypes.QueryPlan, error) {
	start := time.Now()
	plan, err := eng.planner.Plan(ctx, query)
	eng.metrics.ObserveStage(StagePlanner, time.Since(start))
	return plan, err
}

func (eng *Engine) executeTimed(ctx context.Context, plan *datatypes.QueryPlan, utterance string) (*datatypes.PlanResult, error) {
	start := time.Now()
	result, err := eng.executor.Run(ctx, plan, utterance)
	eng.metrics.ObserveStage(StageExecutor, time.Since(start))
	return result, err
}

func (eng *Engine) scriptTimed(ctx context.Context, result *datatypes.PlanResult) (string, error) {
	start := time.Now()
	answer, err := eng.scripter.Script(ctx, result)
	eng.metrics.ObserveStage(StageScripter, time.Since(start))
	return answer, err
}
