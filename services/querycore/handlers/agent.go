// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CoinScopeAI/CoinScope/services/querycore/agents"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// Stage interfaces, satisfied by the agents package. The debug
// endpoints expose each stage in isolation so operators can inspect
// intermediate artifacts without running a full turn.
type (
	// QueryAnalyzer normalizes an utterance.
	QueryAnalyzer interface {
		Analyze(ctx context.Context, utterance string) (datatypes.NormalizedQuery, error)
	}

	// QueryPlanner expands a normalized query into a plan.
	QueryPlanner interface {
		Plan(ctx context.Context, query datatypes.NormalizedQuery) (*datatypes.QueryPlan, error)
	}

	// PlanRunner executes a plan into a result.
	PlanRunner interface {
		Run(ctx context.Context, plan *datatypes.QueryPlan, originalQuery string) (*datatypes.PlanResult, error)
	}

	// AnswerScripter renders a result into answer text.
	AnswerScripter interface {
		Script(ctx context.Context, result *datatypes.PlanResult) (string, error)
	}
)

var (
	_ Asker          = (*agents.Engine)(nil)
	_ QueryAnalyzer  = (*agents.Analyzer)(nil)
	_ QueryPlanner   = (*agents.Planner)(nil)
	_ PlanRunner     = (*agents.Executor)(nil)
	_ AnswerScripter = (*agents.Scripter)(nil)
)

type analyzeRequest struct {
	Utterance string `json:"utterance"`
}

// HandleAgentAnalyze serves POST /v1/agent/analyze.
func HandleAgentAnalyze(analyzer QueryAnalyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Utterance == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "utterance is required"})
			return
		}

		query, err := analyzer.Analyze(c.Request.Context(), req.Utterance)
		if err != nil {
			slog.Warn("Analyze stage failed", "kind", agents.KindOf(err), "error", err)
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, query)
	}
}

// HandleAgentPlan serves POST /v1/agent/plan. The body is a
// NormalizedQuery; an unknown intent maps to 422.
func HandleAgentPlan(planner QueryPlanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query datatypes.NormalizedQuery
		if err := c.BindJSON(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		plan, err := planner.Plan(c.Request.Context(), query)
		if err != nil {
			slog.Warn("Plan stage failed", "kind", agents.KindOf(err), "error", err)
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

type executeRequest struct {
	Plan          *datatypes.QueryPlan `json:"plan"`
	OriginalQuery string               `json:"original_query"`
}

// HandleAgentExecute serves POST /v1/agent/execute.
func HandleAgentExecute(executor PlanRunner) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req executeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Plan == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "plan is required"})
			return
		}

		result, err := executor.Run(c.Request.Context(), req.Plan, req.OriginalQuery)
		if err != nil {
			slog.Warn("Execute stage failed", "kind", agents.KindOf(err), "error", err)
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleAgentScript serves POST /v1/agent/script. The body is a
// PlanResult.
func HandleAgentScript(scripter AnswerScripter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var result datatypes.PlanResult
		if err := c.BindJSON(&result); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		answer, err := scripter.Script(c.Request.Context(), &result)
		if err != nil {
			slog.Warn("Script stage failed", "kind", agents.KindOf(err), "error", err)
			c.JSON(statusForError(err), errorBody(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"answer": answer})
	}
}

// HandleAgentChain serves POST /v1/agent/chain: the four stages run
// back to back on one utterance with no session involvement. The
// response carries every intermediate artifact for inspection.
func HandleAgentChain(analyzer QueryAnalyzer, planner QueryPlanner,
	executor PlanRunner, scripter AnswerScripter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleAgentChain")
		defer span.End()

		var req analyzeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Utterance == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "utterance is required"})
			return
		}

		query, err := analyzer.Analyze(ctx, req.Utterance)
		if err != nil {
			chainFail(c, span, "analyze", err)
			return
		}
		plan, err := planner.Plan(ctx, query)
		if err != nil {
			chainFail(c, span, "plan", err)
			return
		}
		result, err := executor.Run(ctx, plan, req.Utterance)
		if err != nil {
			chainFail(c, span, "execute", err)
			return
		}
		answer, err := scripter.Script(ctx, result)
		if err != nil {
			chainFail(c, span, "script", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"answer":           answer,
			"normalized_query": query,
			"plan":             plan,
			"result":           result,
		})
	}
}

func chainFail(c *gin.Context, span trace.Span, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
	slog.Warn("Chain stage failed", "stage", stage, "kind", agents.KindOf(err), "error", err)
	c.JSON(statusForError(err), errorBody(err))
}
