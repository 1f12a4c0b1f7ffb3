// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools implements the tool registry the Executor dispatches
// QueryPlan ToolCalls through.
//
// Each tool is a named handler over the service's data planes: price
// lookups hit the market data store, semantic search hits the news
// vector store, and the summarizers call the LLM with templates from
// the prompt store. The registry is the only dispatch surface; the
// Executor never calls a data plane directly.
//
// Tools receive their arguments as a ToolCall and are responsible for
// their own argument decoding. Meta arguments (keys starting with "_")
// are stripped by Execute before a handler runs.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/news"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prices"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
)

// toolsTracer is the OpenTelemetry tracer for tool dispatch.
var toolsTracer = otel.Tracer("coinscope.querycore.tools")

// Handler executes one tool call and returns its typed result.
//
// Result types by tool:
//   - get_coin_price: *PriceResult
//   - make_semantic_query: string
//   - semantic_search: []datatypes.NewsChunk
//   - summarize_price_data: string
//   - summarize_news_chunks: string
//   - summarize_combined: string
type Handler func(ctx context.Context, call datatypes.ToolCall) (any, error)

// =============================================================================
// Registry
// =============================================================================

// Registry maps tool names to handlers.
//
// # Description
//
// The Executor resolves every declared ToolCall (and every auto-chained
// search) through a Registry. Dispatching an unregistered name fails
// with a non-retryable *ToolError; the Executor counts that as a failed
// action and carries on with the rest of the plan.
//
// # Thread Safety
//
// Safe for concurrent use after construction. The handler map and the
// retry policy are never mutated post-NewRegistry; the underlying
// clients manage their own synchronization.
type Registry struct {
	prices  prices.Reader
	news    news.Searcher
	llm     llm.LLMClient
	prompts *prompts.Store

	handlers map[string]Handler
	retry    RetryConfig
}

// NewRegistry builds a Registry over the given data planes.
//
// All dependencies are required: a nil reader, searcher, LLM client or
// prompt store returns an error rather than a registry that panics on
// first dispatch.
func NewRegistry(
	priceReader prices.Reader,
	newsSearcher news.Searcher,
	llmClient llm.LLMClient,
	promptStore *prompts.Store,
) (*Registry, error) {
	if priceReader == nil {
		return nil, fmt.Errorf("price reader is required")
	}
	if newsSearcher == nil {
		return nil, fmt.Errorf("news searcher is required")
	}
	if llmClient == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if promptStore == nil {
		return nil, fmt.Errorf("prompt store is required")
	}

	r := &Registry{
		prices:  priceReader,
		news:    newsSearcher,
		llm:     llmClient,
		prompts: promptStore,
		retry:   DefaultRetryConfig(),
	}
	r.handlers = map[string]Handler{
		datatypes.ToolGetCoinPrice:        r.getCoinPrice,
		datatypes.ToolMakeSemanticQuery:   r.makeSemanticQuery,
		datatypes.ToolSemanticSearch:      r.semanticSearch,
		datatypes.ToolSummarizePriceData:  r.summarizePriceData,
		datatypes.ToolSummarizeNewsChunks: r.summarizeNewsChunks,
		datatypes.ToolSummarizeCombined:   r.summarizeCombined,
	}
	return r, nil
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches one ToolCall to its handler.
//
// # Description
//
// Meta arguments are stripped before the handler runs; handlers never
// see underscore keys. An unregistered tool name fails with a
// non-retryable *ToolError carrying ErrCodeUnknownTool.
//
// Retryable handler failures (upstream stores, the model) are retried
// with exponential backoff per the registry's RetryConfig before the
// error surfaces to the caller. Argument errors fail immediately.
//
// # Inputs
//
//   - ctx: Context for cancellation, timeouts and tracing. The caller
//     owns per-call deadlines; Execute adds none of its own, and the
//     deadline bounds the retry loop.
//   - call: The ToolCall to run. Arguments are not mutated.
//
// # Outputs
//
//   - any: The handler's typed result. See Handler for the mapping.
//   - error: Non-nil on dispatch or handler failure. Tool failures are
//     *ToolError where the failure mode is known; context errors pass
//     through unwrapped.
func (r *Registry) Execute(ctx context.Context, call datatypes.ToolCall) (any, error) {
	ctx, span := toolsTracer.Start(ctx, "Registry.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.ToolName))

	handler, ok := r.handlers[call.ToolName]
	if !ok {
		err := NewToolError(call.ToolName, ErrCodeUnknownTool,
			fmt.Sprintf("tool %q is not registered", call.ToolName), false)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown tool")
		return nil, err
	}

	clean := call
	clean.Arguments = call.StripMeta()

	result, attempts, err := runWithRetry(ctx, r.retry, func(ctx context.Context) (any, error) {
		return handler(ctx, clean)
	})
	span.SetAttributes(attribute.Int("tool.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		return nil, err
	}
	return result, nil
}

// =============================================================================
// Error Types
// =============================================================================

// Common tool error codes.
const (
	ErrCodeUnknownTool = "TOOL_UNKNOWN"
	ErrCodeBadArgument = "TOOL_BAD_ARGUMENT"
	ErrCodeUpstream    = "TOOL_UPSTREAM"
	ErrCodeLLM         = "TOOL_LLM"
)

// ToolError represents a failure inside one tool dispatch.
//
// # Fields
//
//   - Tool: The tool name that failed.
//   - Code: A machine-readable error code.
//   - Message: A human-readable error message.
//   - Retryable: Whether the failure might resolve on retry. Argument
//     errors are never retryable; upstream store and LLM failures are.
type ToolError struct {
	Tool      string `json:"tool"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`

	cause error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *ToolError) Unwrap() error {
	return e.cause
}

// NewToolError creates a ToolError without a wrapped cause.
func NewToolError(tool, code, message string, retryable bool) *ToolError {
	return &ToolError{Tool: tool, Code: code, Message: message, Retryable: retryable}
}

// WrapToolError creates a ToolError around an upstream failure.
func WrapToolError(tool, code string, retryable bool, cause error) *ToolError {
	return &ToolError{
		Tool:      tool,
		Code:      code,
		Message:   cause.Error(),
		Retryable: retryable,
		cause:     cause,
	}
}

// IsToolError checks if an error is a *ToolError anywhere in its chain.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

// AsToolError extracts the *ToolError from an error chain. Returns nil
// when the chain carries none.
func AsToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
