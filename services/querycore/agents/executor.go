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
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/observability"
	"github.com/CoinScopeAI/CoinScope/services/querycore/tools"
)

// Executor defaults.
const (
	// DefaultFanOut is the maximum number of tool calls in flight at
	// once.
	DefaultFanOut = 8

	// DefaultCallTimeout is the per-call deadline within a turn.
	DefaultCallTimeout = 60 * time.Second
)

// MaxPassagesPerPerspective caps how many passages each perspective's
// search contributes to summarization.
const MaxPassagesPerPerspective = 3

// maxQuerySourceChunks is how many of the top passages feed follow-up
// query extraction.
const maxQuerySourceChunks = 3

// ToolDispatcher is the execution surface the Executor drives.
//
// Execute must return the result types the registry documents:
// *tools.PriceResult for get_coin_price, string for
// make_semantic_query and the summarizers, []datatypes.NewsChunk for
// semantic_search. Tests substitute a scripted dispatcher.
type ToolDispatcher interface {
	Execute(ctx context.Context, call datatypes.ToolCall) (any, error)
	ExtractQueries(ctx context.Context, title, document string) ([]string, error)
}

// Compile-time interface implementation check.
var _ ToolDispatcher = (*tools.Registry)(nil)

// ExecutorConfig carries the Executor's tuning knobs. Zero values fall
// back to the defaults.
type ExecutorConfig struct {
	// FanOut bounds concurrent tool calls. An auto-chained search runs
	// inside its parent call's slot, so the bound holds plan-wide.
	FanOut int

	// CallTimeout is the deadline applied to each individual tool call.
	CallTimeout time.Duration
}

// Executor runs a QueryPlan against the tool registry and reduces the
// collected data to a PlanResult.
//
// # Description
//
// Execution is three phases with a barrier between collection and
// summarization:
//
//   - Phase A: every declared ToolCall runs, independent calls in
//     parallel up to FanOut. A make_semantic_query result immediately
//     chains a semantic_search with the call's _search_params; the
//     chained search shares the parent's concurrency slot and is not
//     counted in the action counters. Failures are recorded on the
//     result, never fatal.
//   - Phase B: price and news summarization run in parallel over the
//     collected buckets, along with follow-up query extraction. A
//     summarizer failure nulls that summary and records an error.
//   - Phase C: assembly. When both summaries exist, one more call
//     merges them into the combined summary.
//
// Outcomes are folded in declared plan order after the Phase A
// barrier, so counters, error ordering and bucket contents are
// deterministic regardless of goroutine scheduling.
//
// # Thread Safety
//
// Safe for concurrent turns; all per-turn state is local to Run.
type Executor struct {
	registry    ToolDispatcher
	fanOut      int
	callTimeout time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewExecutor creates an Executor. Metrics may be nil.
func NewExecutor(registry ToolDispatcher, cfg ExecutorConfig, metrics *observability.Metrics, logger *slog.Logger) *Executor {
	if cfg.FanOut <= 0 {
		cfg.FanOut = DefaultFanOut
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:    registry,
		fanOut:      cfg.FanOut,
		callTimeout: cfg.CallTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run executes the plan.
//
// # Inputs
//
//   - ctx: Turn context. Expiry fails the remaining calls with their
//     own per-call errors and execution proceeds to assembly with
//     whatever was collected.
//   - plan: The compiled plan. Declared call order is preserved in
//     counters and error ordering.
//   - originalQuery: The verbatim utterance, echoed on the result.
//
// # Outputs
//
//   - *datatypes.PlanResult: Always non-nil for a non-nil plan. Tool
//     failures surface in its counters and errors, not as a Run error.
//   - error: *PipelineError only for a nil plan.
func (e *Executor) Run(ctx context.Context, plan *datatypes.QueryPlan, originalQuery string) (*datatypes.PlanResult, error) {
	ctx, span := agentsTracer.Start(ctx, "Executor.Run")
	defer span.End()

	if plan == nil {
		err := NewPipelineError(ErrKindInternalError, StageExecutor, "nil plan")
		span.RecordError(err)
		span.SetStatus(codes.Error, "nil plan")
		return nil, err
	}

	result := datatypes.NewPlanResult(originalQuery, plan.IntentType)
	result.SetCoinNames(plan.CoinNames())

	outcomes := e.collect(ctx, plan)
	b := e.fold(plan, outcomes, result)
	e.summarize(ctx, plan.IntentType, result, b)

	span.SetAttributes(
		attribute.Int("exec.total_actions", result.TotalActions),
		attribute.Int("exec.failed_actions", result.FailedActions),
		attribute.Int("exec.news_chunks", len(b.chunks)),
		attribute.Bool("exec.has_summaries", result.HasSummaries()),
	)
	return result, nil
}

// =============================================================================
// Phase A: Collection
// =============================================================================

// callOutcome is the Phase A result of one declared ToolCall. Each
// goroutine writes only its own index, so no locking is needed.
type callOutcome struct {
	err      error
	prices   *tools.PriceResult
	chunks   []datatypes.NewsChunk
	chainErr error
}

func (e *Executor) collect(ctx context.Context, plan *datatypes.QueryPlan) []callOutcome {
	outcomes := make([]callOutcome, len(plan.Calls))

	var g errgroup.Group
	g.SetLimit(e.fanOut)
	for i, call := range plan.Calls {
		g.Go(func() error {
			outcomes[i] = e.runCall(ctx, call)
			return nil // Tool failures are recorded, never fatal.
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Executor) runCall(ctx context.Context, call datatypes.ToolCall) callOutcome {
	out, err := e.dispatch(ctx, call)
	if err != nil {
		return callOutcome{err: err}
	}

	oc := callOutcome{}
	switch call.ToolName {
	case datatypes.ToolGetCoinPrice:
		if pr, ok := out.(*tools.PriceResult); ok {
			oc.prices = pr
		}
	case datatypes.ToolMakeSemanticQuery:
		query, _ := out.(string)
		chunks, err := e.chainSearch(ctx, call, query)
		if err != nil {
			oc.chainErr = err
		} else {
			oc.chunks = chunks
		}
	}
	return oc
}

// chainSearch runs the semantic_search a make_semantic_query call
// implies, parameterized by the parent call's _search_params. It keeps
// only the top passages so one broad perspective cannot flood the
// shared news bucket.
func (e *Executor) chainSearch(ctx context.Context, parent datatypes.ToolCall, query string) ([]datatypes.NewsChunk, error) {
	params := datatypes.SearchParamsFrom(parent)
	args := map[string]any{
		"query":                query,
		"top_k":                params.TopK,
		"similarity_threshold": params.SimilarityThreshold,
	}
	if params.PivotDate > 0 {
		args["pivot_date"] = params.PivotDate
	}
	if params.DateRange != "" {
		args["date_range"] = params.DateRange
	}

	out, err := e.dispatch(ctx, datatypes.ToolCall{
		ToolName:  datatypes.ToolSemanticSearch,
		Arguments: args,
	})
	if err != nil {
		return nil, err
	}
	chunks, _ := out.([]datatypes.NewsChunk)
	return datatypes.TopChunks(chunks, MaxPassagesPerPerspective), nil
}

// dispatch runs one tool call under the per-call deadline and records
// its outcome metric.
func (e *Executor) dispatch(ctx context.Context, call datatypes.ToolCall) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	out, err := e.registry.Execute(callCtx, call)
	e.metrics.RecordToolCall(call.ToolName, err == nil)
	return out, err
}

// =============================================================================
// Fold: Declared-Order Reduction
// =============================================================================

// buckets is the collected, pre-summarization state of a turn. Price
// points are keyed by coin and resolution; news passages share one
// list.
type buckets struct {
	daily  map[string][]datatypes.PricePoint
	hourly map[string][]datatypes.HourlyPrice
	chunks []datatypes.NewsChunk
}

func newBuckets() *buckets {
	return &buckets{
		daily:  make(map[string][]datatypes.PricePoint),
		hourly: make(map[string][]datatypes.HourlyPrice),
	}
}

func (b *buckets) addPrices(pr *tools.PriceResult) {
	if pr == nil || pr.Len() == 0 {
		return
	}
	if pr.IsHourly() {
		b.hourly[pr.Coin] = append(b.hourly[pr.Coin], pr.Hourly...)
	} else {
		b.daily[pr.Coin] = append(b.daily[pr.Coin], pr.Daily...)
	}
}

// series returns one coin's close series: daily points followed by the
// hourly OHLC rows folded to closes, so both resolutions flow through
// the same summarizer.
func (b *buckets) series(coin string) []datatypes.PricePoint {
	series := append([]datatypes.PricePoint(nil), b.daily[coin]...)
	return append(series, datatypes.FoldHourly(b.hourly[coin])...)
}

// coins returns the symbols holding any price data, sorted.
func (b *buckets) coins() []string {
	seen := make(map[string]bool, len(b.daily)+len(b.hourly))
	var out []string
	for c := range b.daily {
		seen[c] = true
		out = append(out, c)
	}
	for c := range b.hourly {
		if !seen[c] {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// fold reduces the Phase A outcomes into counters, errors and buckets
// in declared plan order. The news bucket ends sorted by similarity
// descending; the stable sort keeps declared order among ties.
func (e *Executor) fold(plan *datatypes.QueryPlan, outcomes []callOutcome, result *datatypes.PlanResult) *buckets {
	b := newBuckets()
	for i, call := range plan.Calls {
		oc := outcomes[i]
		if oc.err != nil {
			result.RecordFailure(fmt.Sprintf("Error executing %s: %v", call.ToolName, oc.err))
			continue
		}
		result.RecordSuccess()

		switch call.ToolName {
		case datatypes.ToolGetCoinPrice:
			b.addPrices(oc.prices)
		case datatypes.ToolMakeSemanticQuery:
			if oc.chainErr != nil {
				// The declared call succeeded; only the chained search
				// failed, so the counters stay untouched.
				result.RecordError(fmt.Sprintf("Error executing %s: %v", datatypes.ToolSemanticSearch, oc.chainErr))
				continue
			}
			b.chunks = append(b.chunks, oc.chunks...)
		}
	}
	datatypes.SortChunksBySimilarity(b.chunks)
	return b
}

// =============================================================================
// Phase B/C: Summarization and Assembly
// =============================================================================

func (e *Executor) summarize(ctx context.Context, intent string, result *datatypes.PlanResult, b *buckets) {
	coins := b.coins()

	// Each goroutine writes only its own variables; everything is
	// folded into the result sequentially after the barrier.
	var (
		priceSummary *string
		priceErrs    []string
		newsSummary  *string
		newsErr      string
		generated    []string
	)

	var g errgroup.Group
	if len(coins) > 0 {
		g.Go(func() error {
			priceSummary, priceErrs = e.summarizePrices(ctx, intent, coins, b)
			return nil
		})
	}
	if len(b.chunks) > 0 {
		g.Go(func() error {
			newsSummary, newsErr = e.summarizeNews(ctx, intent, b.chunks)
			return nil
		})
		g.Go(func() error {
			generated = e.extractQueries(ctx, b.chunks)
			return nil
		})
	}
	_ = g.Wait()

	for _, msg := range priceErrs {
		result.RecordError(msg)
	}
	if newsErr != "" {
		result.RecordError(newsErr)
	}
	result.PriceSummary = priceSummary
	result.NewsSummary = newsSummary
	result.AddGeneratedQueries(generated)

	if priceSummary != nil && newsSummary != nil && len(coins) > 0 {
		e.combineSummaries(ctx, result, coins[0])
	}
}

// summarizePrices summarizes each coin's series in sorted-coin order
// and joins the pieces into one price summary. Per-coin failures are
// reported individually; the summary carries whichever coins worked.
func (e *Executor) summarizePrices(ctx context.Context, intent string, coins []string, b *buckets) (*string, []string) {
	var parts, errs []string
	for _, coin := range coins {
		series := b.series(coin)
		if len(series) == 0 {
			continue
		}
		out, err := e.dispatch(ctx, datatypes.ToolCall{
			ToolName: datatypes.ToolSummarizePriceData,
			Arguments: map[string]any{
				"coin_name":      coin,
				"price_data":     series,
				"analysis_focus": intent + " analysis",
			},
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("Price summary failed: %v", err))
			continue
		}
		if s, ok := out.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil, errs
	}
	return datatypes.StrPtr(strings.Join(parts, "\n\n")), errs
}

func (e *Executor) summarizeNews(ctx context.Context, intent string, chunks []datatypes.NewsChunk) (*string, string) {
	out, err := e.dispatch(ctx, datatypes.ToolCall{
		ToolName: datatypes.ToolSummarizeNewsChunks,
		Arguments: map[string]any{
			"news_chunks": chunks,
			"focus_topic": intent,
		},
	})
	if err != nil {
		return nil, fmt.Sprintf("News summary failed: %v", err)
	}
	s, _ := out.(string)
	if s == "" {
		return nil, ""
	}
	return datatypes.StrPtr(s), ""
}

// combineSummaries merges the price and news summaries into the
// combined summary. Failure records an error and leaves the field nil.
func (e *Executor) combineSummaries(ctx context.Context, result *datatypes.PlanResult, coin string) {
	out, err := e.dispatch(ctx, datatypes.ToolCall{
		ToolName: datatypes.ToolSummarizeCombined,
		Arguments: map[string]any{
			"coin_name":     coin,
			"price_summary": *result.PriceSummary,
			"news_summary":  *result.NewsSummary,
			"user_query":    result.OriginalQuery,
		},
	})
	if err != nil {
		result.RecordError(fmt.Sprintf("Combined summary failed: %v", err))
		return
	}
	if s, ok := out.(string); ok && s != "" {
		result.CombinedSummary = datatypes.StrPtr(s)
	}
}

// extractQueries mines follow-up search queries from the top passages.
// Extraction is best-effort; failures are logged and skipped.
func (e *Executor) extractQueries(ctx context.Context, chunks []datatypes.NewsChunk) []string {
	sources := chunks
	if len(sources) > maxQuerySourceChunks {
		sources = sources[:maxQuerySourceChunks]
	}
	var out []string
	for _, chunk := range sources {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		queries, err := e.registry.ExtractQueries(callCtx, chunk.Title, chunk.Document)
		cancel()
		if err != nil {
			e.logger.Warn("agents.executor: follow-up query extraction failed",
				"title", chunk.Title, "error", err)
			continue
		}
		out = append(out, queries...)
	}
	return out
}
