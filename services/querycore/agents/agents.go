// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents implements the staged query pipeline and the
// session-aware engine that drives it.
//
// # Description
//
// A turn moves through up to four stages:
//
//   - Analyzer: reduces the raw utterance to a NormalizedQuery. One
//     model round-trip, cached by utterance and calendar day.
//   - Planner: compiles the NormalizedQuery into an ordered QueryPlan
//     of ToolCalls. Pure computation, no model calls.
//   - Executor: runs the plan against the ToolRegistry with bounded
//     fan-out and reduces the collected data to summaries on a
//     PlanResult.
//   - Scripter: turns the PlanResult into the final answer text.
//
// Engine sits in front of the stages. Per turn it consults the session
// context, asks the router model which entry path the message needs
// (DIRECT, REUSE_RESULT, REUSE_ANALYSIS or FULL_PIPELINE), runs that
// path, and promotes the turn's outputs into the session on success.
//
// # Thread Safety
//
// Every stage struct is immutable after construction and safe for
// concurrent turns. Cross-turn state lives in the session store only.
package agents

import (
	"go.opentelemetry.io/otel"
)

// agentsTracer is the OpenTelemetry tracer for pipeline stage operations.
var agentsTracer = otel.Tracer("coinscope.querycore.agents")
