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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

func sampleData(name string) any {
	switch name {
	case NameRouter:
		return RouterData{
			Utterance:      "방금 그거 다시 요약해줘",
			HasAnalysis:    true,
			HasResult:      true,
			PreviousCoins:  []string{"BTC"},
			PreviousIntent: datatypes.IntentPriceReason,
		}
	case NameAnalyzer:
		return AnalyzerData{Today: "2025-10-20"}
	case NameSemanticQuery:
		return SemanticQueryData{
			CoinNames:      []string{"BTC"},
			IntentType:     datatypes.IntentPriceReason,
			EventKeywords:  []string{"급등", "ETF"},
			EventMagnitude: "surge",
			CustomContext:  "직접적인 원인",
		}
	case NamePriceSummary:
		return PriceSummaryData{
			CoinName: "BTC",
			Stats: datatypes.PriceStats{
				Count: 2, First: 62000, Last: 71000,
				High: 71000, Low: 62000, ChangePct: 14.52,
			},
			Sample: []datatypes.PricePoint{
				{Date: "2025-10-01", Close: 62000},
				{Date: "2025-10-15", Close: 71000},
			},
			AnalysisFocus: "price_reason 분석",
		}
	case NameNewsSummary:
		return NewsSummaryData{
			Chunks: []datatypes.NewsChunk{
				{Title: "BTC ETF 승인", Source: "coindesk", PublishDateReadable: "2025-10-14", Document: "미국 SEC가 현물 ETF를 승인했다."},
			},
			FocusTopic: "price_reason",
		}
	case NameCombinedSummary:
		return CombinedSummaryData{
			CoinName:     "BTC",
			PriceSummary: "BTC +14.5% 상승",
			NewsSummary:  "[주요 이슈] ETF 승인",
			UserQuery:    "10월 비트코인 급등 원인",
		}
	case NameGeneratedQueries:
		return GeneratedQueriesData{
			Title:    "BTC ETF 승인",
			Document: "미국 SEC가 현물 ETF를 승인했다.",
		}
	case NameScripter:
		return ScripterData{
			OriginalQuery: "10월 비트코인 급등 원인",
			IntentType:    datatypes.IntentPriceReason,
			CoinNames:     []string{"BTC"},
			PriceSummary:  "BTC +14.5% 상승",
			NewsSummary:   "[주요 이슈] ETF 승인",
		}
	case NameDirect:
		return DirectData{Utterance: "안녕하세요"}
	}
	return nil
}

func TestNew_BuiltinsRenderForEveryName(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for _, name := range AllNames() {
		out, err := s.Render(name, sampleData(name))
		if err != nil {
			t.Errorf("render %s: %v", name, err)
			continue
		}
		if strings.TrimSpace(out) == "" {
			t.Errorf("render %s: empty output", name)
		}
	}
}

func TestRender_AnalyzerIncludesDateAndSchema(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	out, err := s.Render(NameAnalyzer, AnalyzerData{Today: "2025-10-20"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"2025-10-20", "intent_type", "price_reason", "pivot_time", "unknown"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected analyzer prompt to contain %q", want)
		}
	}
}

func TestRender_SemanticQueryOmitsEmptySections(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	out, err := s.Render(NameSemanticQuery, SemanticQueryData{
		CoinNames:  []string{"BTC", "ETH"},
		IntentType: datatypes.IntentMarketTrend,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(out, "BTC, ETH") {
		t.Error("expected coin names joined in prompt")
	}
	if strings.Contains(out, "perspective:") {
		t.Error("expected perspective line omitted when empty")
	}
	if strings.Contains(out, "event magnitude:") {
		t.Error("expected magnitude line omitted when empty")
	}
}

func TestRender_RouterStatesPathsAndOmitsEmptyContext(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	out, err := s.Render(NameRouter, RouterData{Utterance: "안녕"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"DIRECT", "REUSE_RESULT", "REUSE_ANALYSIS", "FULL_PIPELINE", "PATH:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected router prompt to contain %q", want)
		}
	}
	if strings.Contains(out, "previous coins:") {
		t.Error("expected previous coins line omitted without context")
	}
}

func TestRender_PriceSummaryFormatsNumbers(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	out, err := s.Render(NamePriceSummary, sampleData(NamePriceSummary))
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"62000.00", "71000.00", "+14.52%", "2025-10-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected price prompt to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRender_NewsSummaryNumbersAndTruncates(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	long := strings.Repeat("가", 600)
	out, err := s.Render(NameNewsSummary, NewsSummaryData{
		Chunks: []datatypes.NewsChunk{
			{Title: "첫번째", Document: long},
			{Title: "두번째", Document: "짧은 본문"},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(out, "[News 1]") || !strings.Contains(out, "[News 2]") {
		t.Error("expected chunks numbered from 1")
	}
	if strings.Contains(out, strings.Repeat("가", 501)) {
		t.Error("expected document truncated to 500 runes")
	}
	if !strings.Contains(out, strings.Repeat("가", 500)) {
		t.Error("expected the first 500 runes kept")
	}
}

func TestRender_ScripterOmitsMissingSummaries(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	out, err := s.Render(NameScripter, ScripterData{
		OriginalQuery: "BTC 뉴스 요약",
		IntentType:    datatypes.IntentNewsSummary,
		NewsSummary:   "[주요 이슈] ETF",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if strings.Contains(out, "[Price analysis]") {
		t.Error("expected price section omitted")
	}
	if !strings.Contains(out, "[News analysis]") {
		t.Error("expected news section present")
	}
	if strings.Contains(out, "Partial failures") {
		t.Error("expected failure note omitted without errors")
	}
}

func TestRender_UnknownName(t *testing.T) {
	s, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.Render("no_such_prompt", nil); err == nil {
		t.Error("expected error for unknown template name, got nil")
	}
}

// =============================================================================
// Override Directory Tests
// =============================================================================

func TestNew_LoadsOverrideDirectory(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, NameScripter+TmplExt)
	if err := os.WriteFile(override, []byte("OVERRIDE {{.OriginalQuery}}"), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}

	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	out, err := s.Render(NameScripter, ScripterData{OriginalQuery: "질문"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "OVERRIDE 질문" {
		t.Errorf("expected override used, got %q", out)
	}

	// Other templates still come from builtins.
	if _, err := s.Render(NameAnalyzer, AnalyzerData{Today: "2025-10-20"}); err != nil {
		t.Errorf("expected builtin analyzer intact, got error: %v", err)
	}
}

func TestNew_MissingDirectoryServesBuiltins(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := s.Render(NameAnalyzer, AnalyzerData{Today: "2025-10-20"}); err != nil {
		t.Errorf("render: %v", err)
	}
}

func TestNew_BrokenOverrideFails(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, NameAnalyzer+TmplExt)
	if err := os.WriteFile(bad, []byte("{{.Unclosed"), 0o600); err != nil {
		t.Fatalf("write override: %v", err)
	}

	if _, err := New(dir, nil); err == nil {
		t.Error("expected New to fail on unparseable override, got nil")
	}
}

func TestReloadFile_KeepsPreviousOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, NameScripter+TmplExt)
	if err := os.WriteFile(path, []byte("GOOD {{.OriginalQuery}}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(path, []byte("{{.Broken"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	s.reloadFile(path)

	out, err := s.Render(NameScripter, ScripterData{OriginalQuery: "q"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "GOOD q" {
		t.Errorf("expected previous template kept, got %q", out)
	}
}

func TestWatch_PicksUpOverrideWrites(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	path := filepath.Join(dir, NameScripter+TmplExt)
	if err := os.WriteFile(path, []byte("LIVE {{.OriginalQuery}}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		out, err := s.Render(NameScripter, ScripterData{OriginalQuery: "q"})
		if err == nil && out == "LIVE q" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected watcher to install the override within the deadline")
}
