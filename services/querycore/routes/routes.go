// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the HTTP routes of the query service.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CoinScopeAI/CoinScope/services/querycore/handlers"
	"github.com/CoinScopeAI/CoinScope/services/querycore/session"
)

// Deps carries the collaborators the routes dispatch to. The handler
// interfaces are satisfied by the agents package in production.
type Deps struct {
	Engine   handlers.Asker
	Analyzer handlers.QueryAnalyzer
	Planner  handlers.QueryPlanner
	Executor handlers.PlanRunner
	Scripter handlers.AnswerScripter
	Sessions session.Store
	Ingester handlers.NewsIngester

	// EnableMetrics mounts GET /metrics over the default Prometheus
	// registry.
	EnableMetrics bool
}

// SetupRoutes registers every route of the service on the router.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/healthz", handlers.HealthCheck)
	if deps.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/ask", handlers.HandleAsk(deps.Engine))

		// Stage-level debug routes
		agent := v1.Group("/agent")
		{
			agent.POST("/analyze", handlers.HandleAgentAnalyze(deps.Analyzer))
			agent.POST("/plan", handlers.HandleAgentPlan(deps.Planner))
			agent.POST("/execute", handlers.HandleAgentExecute(deps.Executor))
			agent.POST("/script", handlers.HandleAgentScript(deps.Scripter))
			agent.POST("/chain", handlers.HandleAgentChain(
				deps.Analyzer, deps.Planner, deps.Executor, deps.Scripter))
		}

		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId", handlers.GetSession(deps.Sessions))
			sessions.GET("/:sessionId/messages", handlers.GetSessionMessages(deps.Sessions))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Sessions))
		}

		// Ingestion runs outside query time
		admin := v1.Group("/admin")
		{
			admin.POST("/news", handlers.IngestNews(deps.Ingester))
		}
	}
}
