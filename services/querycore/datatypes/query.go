// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the querycore service.
//
// This file contains the NormalizedQuery schema: the structured form every
// user utterance is reduced to before planning. For plan and result types,
// see plan.go and result.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/CoinScopeAI/CoinScope/pkg/validation"
)

// =============================================================================
// Constants for Query Limits
// =============================================================================

const (
	// MaxQueryChars is the maximum length of a user utterance in runes.
	// Longer utterances are rejected before any model call is made.
	MaxQueryChars = 200

	// MaxKeywords is the maximum number of event keywords kept per query.
	// Extra keywords beyond this bound are dropped during normalization.
	MaxKeywords = 16
)

// =============================================================================
// Intent / Goal / Time Enumerations
// =============================================================================

// Intent types a query can resolve to.
const (
	IntentMarketTrend = "market_trend"
	IntentNewsSummary = "news_summary"
	IntentPriceReason = "price_reason"
	IntentUnknown     = "unknown"
)

// Event magnitudes. An empty string means the magnitude is unspecified.
const (
	MagnitudeBig   = "big"
	MagnitudeSmall = "small"
	MagnitudeAny   = "any"
)

// Goal tasks.
const (
	TaskSummarize       = "summarize"
	TaskAnalyze         = "analyze"
	TaskExplainImpact   = "explain_impact"
	TaskFindReasons     = "find_reasons"
	TaskCompare         = "compare"
	TaskForecast        = "forecast"
	TaskExtractKeywords = "extract_keywords"
)

// Goal depths. Depth controls how many news passages the planner asks for.
const (
	DepthShort  = "short"
	DepthMedium = "medium"
	DepthDeep   = "deep"
)

// Relative time ranges. An empty string means no relative range was given.
const (
	Relative24h = "24h"
	Relative7d  = "7d"
	Relative1m  = "1m"
	RelativeYTD = "ytd"
	RelativeAll = "all"
)

// PivotToday is the sentinel pivot_time meaning "resolve against the wall
// clock at plan time".
const PivotToday = "today"

// CoinAll is the sentinel coin symbol meaning "the whole market". The
// planner expands it into a representative basket.
const CoinAll = "ALL"

// =============================================================================
// Shared Validator Instance
// =============================================================================

// queryValidate is the validator instance shared by every datatype in
// this package. Built eagerly so files in this package can use it from
// their own initializers.
var queryValidate = newQueryValidator()

func newQueryValidator() *validator.Validate {
	v := validator.New()

	// Coin symbols share the sanitization rules used at the storage layer.
	_ = v.RegisterValidation("cointicker", validateCoinTicker)
	_ = v.RegisterValidation("pivottime", validatePivotTime)
	_ = v.RegisterValidation("maxbytes", validateMaxBytes)
	return v
}

// validateCoinTicker validates that a coin symbol is safe to interpolate
// into downstream store queries. The CoinAll sentinel is accepted because
// it matches the ticker shape after sanitization.
func validateCoinTicker(fl validator.FieldLevel) bool {
	return validation.ValidateCoin(fl.Field().String()) == nil
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Byte length, not rune count, so oversized
// payloads are caught regardless of encoding.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// validatePivotTime validates the pivot_time field: either the literal
// "today" or a YYYYMMDD calendar date. Unparseable dates are allowed here
// and fall back to today at plan time, but the field must at least look
// like a date to catch wholesale garbage early.
func validatePivotTime(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	if v == PivotToday {
		return true
	}
	if len(v) != 8 {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// NormalizedQuery Types
// =============================================================================

// Target identifies what the query is about.
//
// # Fields
//
//   - Coin: Coin symbols such as BTC or ETH, or the CoinAll sentinel.
//     May be empty when the utterance names no coin.
//   - Entity: Optional named actors driving an event (a country, a
//     corporation, a committee, an exchange).
type Target struct {
	Coin   []string `json:"coin" validate:"dive,cointicker"`
	Entity []string `json:"entity,omitempty"`
}

// Event captures what happened according to the utterance.
//
// # Fields
//
//   - Magnitude: "big", "small", "any", or empty when unspecified.
//   - Keywords: Ordered free-text keywords extracted from the utterance.
//     Order is preserved because the planner unions these with
//     perspective keywords in a deterministic way.
type Event struct {
	Magnitude string   `json:"magnitude,omitempty" validate:"omitempty,oneof=big small any"`
	Keywords  []string `json:"keywords"`
}

// Goal captures what the user wants done and how thoroughly.
type Goal struct {
	Task  string `json:"task" validate:"required,oneof=summarize analyze explain_impact find_reasons compare forecast extract_keywords"`
	Depth string `json:"depth" validate:"required,oneof=short medium deep"`
}

// TimeRange captures when the query is anchored.
//
// # Fields
//
//   - PivotTime: "today", a YYYYMMDD date, or empty. Empty and "today"
//     both resolve to the current day at plan time.
//   - Relative: The lookback window relative to the pivot, or empty when
//     the utterance gives none.
type TimeRange struct {
	PivotTime string `json:"pivot_time,omitempty" validate:"omitempty,pivottime"`
	Relative  string `json:"relative,omitempty" validate:"omitempty,oneof=24h 7d 1m ytd all"`
}

// Filters narrow the news retrieval surface.
type Filters struct {
	Sentiment string `json:"sentiment" validate:"omitempty,oneof=positive negative neutral any"`
	Category  string `json:"category" validate:"omitempty,oneof=macro altcoin defi layer2 meme regulation exchange unknown"`
}

// NormalizedQuery is the structured form of a user utterance.
//
// # Description
//
// NormalizedQuery is produced by the Analyzer and consumed by the Planner.
// It is the only representation of user intent that crosses stage
// boundaries; raw utterances are carried separately for reporting. A
// query with IntentType of IntentUnknown must never reach the Planner.
//
// # Validation
//
// Uses go-playground/validator:
//   - IntentType: required, one of the Intent* constants
//   - Target.Coin: each element must pass coin-ticker sanitization
//   - Goal.Task / Goal.Depth: required enumerated values
//   - TimeRange.PivotTime: "today" or YYYYMMDD when present
//
// Call EnsureDefaults before Validate: model output uses lowercase or
// mixed-case coin symbols and may omit the filter block entirely.
//
// # Examples
//
//	nq := NormalizedQuery{
//	    IntentType: IntentPriceReason,
//	    Target:     Target{Coin: []string{"BTC"}},
//	    Event:      Event{Magnitude: MagnitudeBig, Keywords: []string{"급등"}},
//	    Goal:       Goal{Task: TaskFindReasons, Depth: DepthMedium},
//	    TimeRange:  TimeRange{PivotTime: "20251015", Relative: Relative1m},
//	}
//	nq.EnsureDefaults()
//	if err := nq.Validate(); err != nil { ... }
type NormalizedQuery struct {
	IntentType string    `json:"intent_type" validate:"required,oneof=market_trend news_summary price_reason unknown"`
	Target     Target    `json:"target"`
	Event      Event     `json:"event"`
	Goal       Goal      `json:"goal"`
	TimeRange  TimeRange `json:"time_range"`
	Filters    Filters   `json:"filters"`
}

// Validate validates the NormalizedQuery fields.
func (q *NormalizedQuery) Validate() error {
	return queryValidate.Struct(q)
}

// EnsureDefaults normalizes model output into canonical form.
//
// # Description
//
// Coin symbols are sanitized to uppercase ticker form; unsanitizable
// entries are dropped rather than failing the whole query. Unset filter
// and goal fields receive their documented defaults. Keywords beyond
// MaxKeywords are discarded.
func (q *NormalizedQuery) EnsureDefaults() {
	coins := make([]string, 0, len(q.Target.Coin))
	for _, c := range q.Target.Coin {
		clean, err := validation.SanitizeCoin(c)
		if err != nil {
			continue
		}
		coins = append(coins, clean)
	}
	q.Target.Coin = coins

	if q.Event.Keywords == nil {
		q.Event.Keywords = []string{}
	}
	if len(q.Event.Keywords) > MaxKeywords {
		q.Event.Keywords = q.Event.Keywords[:MaxKeywords]
	}

	if q.Goal.Task == "" {
		q.Goal.Task = TaskSummarize
	}
	if q.Goal.Depth == "" {
		q.Goal.Depth = DepthMedium
	}
	if q.Filters.Sentiment == "" {
		q.Filters.Sentiment = "any"
	}
	if q.Filters.Category == "" {
		q.Filters.Category = "unknown"
	}
}

// IsUnknown reports whether the query failed to resolve to an actionable
// intent.
func (q *NormalizedQuery) IsUnknown() bool {
	return q.IntentType == IntentUnknown
}

// HasCoin reports whether the query names the given symbol, either
// directly or through the CoinAll sentinel.
func (q *NormalizedQuery) HasCoin(symbol string) bool {
	for _, c := range q.Target.Coin {
		if c == symbol || c == CoinAll {
			return true
		}
	}
	return false
}

// UnknownQuery builds a schema-valid NormalizedQuery for an utterance
// that could not be analyzed. The goal fields carry neutral defaults so
// the value still validates; the unknown intent keeps it out of the
// Planner.
func UnknownQuery() NormalizedQuery {
	q := NormalizedQuery{
		IntentType: IntentUnknown,
		Target:     Target{Coin: []string{}},
		Event:      Event{Keywords: []string{}},
		Goal:       Goal{Task: TaskSummarize, Depth: DepthShort},
	}
	q.EnsureDefaults()
	return q
}

// ResolvePivot resolves the pivot_time field to the UTC midnight of the
// pivot date.
//
// # Description
//
// "today" and the empty string resolve against now; a YYYYMMDD string
// resolves by calendar parsing; anything unparseable falls back to
// today's midnight. The result is always midnight UTC so identical
// queries planned on the same day produce identical plans.
func (t TimeRange) ResolvePivot(now time.Time) time.Time {
	day := now.UTC()
	if t.PivotTime != "" && t.PivotTime != PivotToday {
		if parsed, err := time.Parse("20060102", t.PivotTime); err == nil {
			day = parsed.UTC()
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
