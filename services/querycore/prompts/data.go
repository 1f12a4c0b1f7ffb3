// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompts

import (
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// RouterData feeds the router template with the new utterance and a
// compressed view of the session state the path decision depends on.
type RouterData struct {
	Utterance       string
	HasAnalysis     bool
	HasResult       bool
	PreviousCoins   []string
	PreviousIntent  string
	PreviousSummary string
}

// AnalyzerData feeds the analyzer template. Today is the current
// calendar date in YYYY-MM-DD form so relative day expressions resolve
// reproducibly.
type AnalyzerData struct {
	Today string
}

// SemanticQueryData feeds the semantic_query template.
type SemanticQueryData struct {
	CoinNames      []string
	IntentType     string
	EventKeywords  []string
	EventMagnitude string
	CustomContext  string
}

// PriceSummaryData feeds the price_summary template. Sample should be
// a bounded slice of the full series; the stats cover the whole series.
type PriceSummaryData struct {
	CoinName      string
	Stats         datatypes.PriceStats
	Sample        []datatypes.PricePoint
	AnalysisFocus string
}

// NewsSummaryData feeds the news_summary template.
type NewsSummaryData struct {
	Chunks     []datatypes.NewsChunk
	FocusTopic string
}

// CombinedSummaryData feeds the combined_summary template.
type CombinedSummaryData struct {
	CoinName     string
	PriceSummary string
	NewsSummary  string
	UserQuery    string
}

// GeneratedQueriesData feeds the generated_queries template with one
// news passage.
type GeneratedQueriesData struct {
	Title    string
	Document string
}

// ScripterData feeds the scripter template. Empty summary strings mean
// that section is omitted from the rendered prompt.
type ScripterData struct {
	OriginalQuery   string
	IntentType      string
	CoinNames       []string
	PriceSummary    string
	NewsSummary     string
	CombinedSummary string
	Errors          []string
}

// DirectData feeds the direct template for turns that skip the
// pipeline.
type DirectData struct {
	Utterance string
}
