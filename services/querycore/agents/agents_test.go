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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
	"github.com/CoinScopeAI/CoinScope/services/querycore/tools"
)

// =============================================================================
// Shared Test Fakes
// =============================================================================

// fakeLLM is a scripted LLMClient. The reply function sees the rendered
// prompt, so tests can both script outputs and assert on what each
// stage actually sent.
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.reply != nil {
		return f.reply(prompt)
	}
	return "", nil
}

func (f *fakeLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (string, error) {
	return "", errors.New("chat is not scripted in these tests")
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func staticLLM(text string) *fakeLLM {
	return &fakeLLM{reply: func(string) (string, error) { return text, nil }}
}

func failingLLM(err error) *fakeLLM {
	return &fakeLLM{reply: func(string) (string, error) { return "", err }}
}

// fakeDispatcher is a scripted ToolDispatcher. Calls are recorded in
// dispatch order under a mutex because the Executor fans out.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []datatypes.ToolCall
	handler func(call datatypes.ToolCall) (any, error)
	extract func(title, document string) ([]string, error)
}

func (f *fakeDispatcher) Execute(ctx context.Context, call datatypes.ToolCall) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.handler(call)
}

func (f *fakeDispatcher) ExtractQueries(ctx context.Context, title, document string) ([]string, error) {
	if f.extract != nil {
		return f.extract(title, document)
	}
	return nil, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) callsFor(tool string) []datatypes.ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []datatypes.ToolCall
	for _, c := range f.calls {
		if c.ToolName == tool {
			out = append(out, c)
		}
	}
	return out
}

// happyDispatcher scripts every tool to succeed with small
// deterministic outputs.
func happyDispatcher() *fakeDispatcher {
	return &fakeDispatcher{handler: happyToolHandler}
}

func happyToolHandler(call datatypes.ToolCall) (any, error) {
	switch call.ToolName {
	case datatypes.ToolGetCoinPrice:
		return &tools.PriceResult{
			Coin:      call.StringArg("coin_name"),
			RangeType: call.StringArg("range_type"),
			Daily: []datatypes.PricePoint{
				{Date: "2025-10-14", Close: 62000},
				{Date: "2025-10-15", Close: 67000},
			},
		}, nil
	case datatypes.ToolMakeSemanticQuery:
		return "crypto news about " + call.StringArg("custom_context"), nil
	case datatypes.ToolSemanticSearch:
		return []datatypes.NewsChunk{
			{Title: "ETF inflows accelerate", Document: "Spot ETF inflows hit a weekly record.", Similarity: 0.91},
			{Title: "Rate cut hopes lift risk assets", Document: "Markets price in an early cut.", Similarity: 0.84},
		}, nil
	case datatypes.ToolSummarizePriceData:
		return call.StringArg("coin_name") + " rose about 8% over the window.", nil
	case datatypes.ToolSummarizeNewsChunks:
		return "ETF inflows and rate cut hopes dominated coverage.", nil
	case datatypes.ToolSummarizeCombined:
		return "The move tracked record ETF inflows.", nil
	}
	return nil, fmt.Errorf("unscripted tool %s", call.ToolName)
}

// newTestPrompts returns a builtin-only prompt store.
func newTestPrompts(t *testing.T) *prompts.Store {
	t.Helper()
	store, err := prompts.New("", testLogger())
	if err != nil {
		t.Fatalf("prompts.New: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

// testLogger discards log output so expected-failure tests stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
