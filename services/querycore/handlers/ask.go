// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the query service.
//
// Handlers bind and validate request bodies, delegate to the pipeline
// stages, and translate typed pipeline errors into HTTP status codes.
// No business logic lives here.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/querycore/agents"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

var handlersTracer = otel.Tracer("coinscope.querycore.handlers")

// Asker runs one conversational turn. Satisfied by *agents.Engine.
type Asker interface {
	Ask(ctx context.Context, req *datatypes.AskRequest) (*agents.TurnResult, error)
}

// AskResponse is the response body for POST /v1/ask.
type AskResponse struct {
	SessionID        string   `json:"session_id"`
	Answer           string   `json:"answer"`
	Path             string   `json:"path"`
	Errors           []string `json:"errors"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}

// HandleAsk serves POST /v1/ask, the inbound operation of the service.
//
// # Description
//
// Binds an AskRequest, validates it, and runs one turn through the
// engine. Turns that fail inside a stage still answer 200: the body
// carries the ERROR_-prefixed path and the stage error so the caller
// sees a degraded turn, not a transport failure. Only requests the
// engine rejects outright (an oversized utterance, a dead upstream)
// map to error statuses.
func HandleAsk(engine Asker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var req datatypes.AskRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the ask request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			slog.Warn("Rejected an invalid ask request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		start := time.Now()
		result, err := engine.Ask(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Ask turn was rejected", "session_id", req.SessionID,
				"kind", agents.KindOf(err), "error", err)
			c.JSON(statusForError(err), errorBody(err))
			return
		}

		errs := result.Errors
		if errs == nil {
			errs = []string{}
		}
		c.JSON(http.StatusOK, AskResponse{
			SessionID:        req.SessionID,
			Answer:           result.Answer,
			Path:             result.Path,
			Errors:           errs,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		})
	}
}

// statusForError maps a pipeline error kind to an HTTP status.
func statusForError(err error) int {
	switch agents.KindOf(err) {
	case agents.ErrKindQueryTooLong:
		return http.StatusBadRequest
	case agents.ErrKindUnknownIntent:
		return http.StatusUnprocessableEntity
	case agents.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case agents.ErrKindUpstreamFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorBody is the uniform error response shape.
func errorBody(err error) gin.H {
	return gin.H{"error": err.Error(), "kind": agents.KindOf(err)}
}
