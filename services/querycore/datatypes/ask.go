// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the /v1/ask endpoint,
// the single inbound operation of the query pipeline.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Entry Paths
// =============================================================================

// Entry paths the router can choose for a turn. The error form of a path
// is ErrorPathPrefix + path, reported when a stage on that path failed.
const (
	PathDirect        = "DIRECT"
	PathReuseResult   = "REUSE_RESULT"
	PathReuseAnalysis = "REUSE_ANALYSIS"
	PathFullPipeline  = "FULL_PIPELINE"

	ErrorPathPrefix = "ERROR_"
)

// =============================================================================
// Ask Request / Response
// =============================================================================

// AskRequest is the request body for POST /v1/ask.
//
// # Description
//
// One conversational turn. SessionID binds the turn to cached context
// from earlier turns; when absent a fresh session is created
// server-side. Every request gets a RequestID and Timestamp for audit
// trails, generated on EnsureDefaults when the client omits them.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: must be UUID v4 when present
//   - SessionID: must be UUID v4 when present
//   - Utterance: required, bounded by maxbytes (32KB)
//
// The 200-character utterance limit is deliberately not enforced here;
// the Analyzer rejects oversized utterances with a typed error so the
// caller gets a stable error code rather than a generic binding failure.
//
// # Examples
//
//	req := AskRequest{Utterance: "10월 비트코인 급등 원인 분석해줘"}
//	req.EnsureDefaults()
//	// req.RequestID, req.SessionID, req.Timestamp now populated
type AskRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid4"`
	SessionID string `json:"session_id" validate:"omitempty,uuid4"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"timestamp" validate:"omitempty,gt=0"`
	Utterance string `json:"utterance" validate:"required,maxbytes"`
}

// Validate validates the AskRequest fields.
func (r *AskRequest) Validate() error {
	return queryValidate.Struct(r)
}

// EnsureDefaults populates RequestID, SessionID, and Timestamp when the
// client omitted them.
func (r *AskRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.SessionID == "" {
		r.SessionID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// AskResponse is the response body for POST /v1/ask.
//
// # Fields
//
//   - ResponseID: Server-generated UUID for this response.
//   - RequestID: Echo of the request ID for correlation.
//   - SessionID: The session this turn ran under. Echoed back so
//     clients that omitted one can continue the conversation.
//   - Timestamp: Unix milliseconds (UTC) when the response was built.
//   - Answer: The user-visible answer text.
//   - Path: The entry path that produced the answer, or its ERROR_
//     form when a stage failed.
//   - Errors: Execution errors surfaced to the client. Empty on a
//     clean turn.
//   - ProcessingTimeMs: End-to-end turn latency.
type AskResponse struct {
	ResponseID       string   `json:"response_id"`
	RequestID        string   `json:"request_id"`
	SessionID        string   `json:"session_id"`
	Timestamp        int64    `json:"timestamp"`
	Answer           string   `json:"answer"`
	Path             string   `json:"path"`
	Errors           []string `json:"errors,omitempty"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
}

// NewAskResponse creates an AskResponse with generated ResponseID and
// Timestamp, echoing the request's identifiers.
func NewAskResponse(requestID, sessionID, answer, path string) *AskResponse {
	return &AskResponse{
		ResponseID: uuid.NewString(),
		RequestID:  requestID,
		SessionID:  sessionID,
		Timestamp:  time.Now().UnixMilli(),
		Answer:     answer,
		Path:       path,
	}
}
