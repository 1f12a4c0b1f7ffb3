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
	"errors"

	"github.com/CoinScopeAI/CoinScope/services/querycore/tools"
)

// =============================================================================
// Error Kinds and Stage Names
// =============================================================================

// Pipeline error kinds. Kind is the stable, machine-readable part of a
// PipelineError; the HTTP layer maps kinds to status codes.
const (
	ErrKindQueryTooLong    = "QueryTooLong"
	ErrKindUnknownIntent   = "UnknownIntent"
	ErrKindTimeout         = "Timeout"
	ErrKindUpstreamFailure = "UpstreamFailure"
	ErrKindInternalError   = "InternalError"
)

// Pipeline stage names, used on PipelineError.Stage and as metric
// labels.
const (
	StageRouter   = "router"
	StageAnalyzer = "analyzer"
	StagePlanner  = "planner"
	StageExecutor = "executor"
	StageScripter = "scripter"
)

// =============================================================================
// PipelineError
// =============================================================================

// PipelineError is the typed error every stage fails with.
//
// # Fields
//
//   - Kind: One of the ErrKind* constants.
//   - Stage: The stage that failed, or empty for pre-stage rejections.
//   - Message: Human-readable description.
type PipelineError struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`

	cause error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return e.Stage + ": " + e.Kind + ": " + e.Message
	}
	return e.Kind + ": " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *PipelineError) Unwrap() error {
	return e.cause
}

// NewPipelineError creates a PipelineError with no underlying cause.
func NewPipelineError(kind, stage, message string) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Message: message}
}

// WrapPipelineError creates a PipelineError whose message and cause come
// from err.
func WrapPipelineError(kind, stage string, err error) *PipelineError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &PipelineError{Kind: kind, Stage: stage, Message: msg, cause: err}
}

// AsPipelineError returns the PipelineError in err's chain, or nil.
func AsPipelineError(err error) *PipelineError {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr
	}
	return nil
}

// IsKind reports whether err carries a PipelineError of the given kind.
func IsKind(err error, kind string) bool {
	perr := AsPipelineError(err)
	return perr != nil && perr.Kind == kind
}

// KindOf returns the kind of err. Errors without a PipelineError in
// their chain classify as InternalError; nil returns the empty string.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	if perr := AsPipelineError(err); perr != nil {
		return perr.Kind
	}
	return ErrKindInternalError
}

// Classify converts an arbitrary error into a PipelineError attributed
// to the given stage.
//
// An existing PipelineError passes through unchanged. Context expiry
// becomes Timeout; tool errors become UpstreamFailure when the tool
// failed against its backing store or model, InternalError otherwise.
func Classify(stage string, err error) *PipelineError {
	if err == nil {
		return nil
	}
	if perr := AsPipelineError(err); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapPipelineError(ErrKindTimeout, stage, err)
	}
	if terr := tools.AsToolError(err); terr != nil {
		switch terr.Code {
		case tools.ErrCodeUpstream, tools.ErrCodeLLM:
			return WrapPipelineError(ErrKindUpstreamFailure, stage, err)
		default:
			return WrapPipelineError(ErrKindInternalError, stage, err)
		}
	}
	return WrapPipelineError(ErrKindInternalError, stage, err)
}

// llmFailure classifies a failed model call: context expiry is Timeout,
// everything else is the model upstream failing.
func llmFailure(stage string, err error) *PipelineError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapPipelineError(ErrKindTimeout, stage, err)
	}
	return WrapPipelineError(ErrKindUpstreamFailure, stage, err)
}
