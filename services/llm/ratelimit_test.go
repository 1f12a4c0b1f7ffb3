// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// countingLLM records how many times it was called.
type countingLLM struct {
	generateCalls atomic.Int64
	chatCalls     atomic.Int64
}

func (c *countingLLM) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	c.generateCalls.Add(1)
	return "generated", nil
}

func (c *countingLLM) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	c.chatCalls.Add(1)
	return "chatted", nil
}

func TestNewRateLimitedClient_DisabledReturnsInner(t *testing.T) {
	inner := &countingLLM{}
	client := NewRateLimitedClient(inner, 0, 1)
	if client != LLMClient(inner) {
		t.Error("rps <= 0 should return the inner client unchanged")
	}
}

func TestRateLimitedClient_ForwardsCalls(t *testing.T) {
	inner := &countingLLM{}
	client := NewRateLimitedClient(inner, 100, 10)

	got, err := client.Generate(context.Background(), "p", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "generated" {
		t.Errorf("Generate() = %q", got)
	}

	got, err = client.Chat(context.Background(), []datatypes.Message{{Role: "user", Content: "hi"}}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got != "chatted" {
		t.Errorf("Chat() = %q", got)
	}

	if inner.generateCalls.Load() != 1 || inner.chatCalls.Load() != 1 {
		t.Errorf("inner calls = %d/%d, want 1/1", inner.generateCalls.Load(), inner.chatCalls.Load())
	}
}

func TestRateLimitedClient_CanceledContext(t *testing.T) {
	inner := &countingLLM{}
	// One token per minute with an exhausted burst forces a wait.
	client := NewRateLimitedClient(inner, 1.0/60.0, 1)

	// Use up the single burst token.
	if _, err := client.Generate(context.Background(), "p", GenerationParams{}); err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Generate(ctx, "p", GenerationParams{}); err == nil {
		t.Fatal("expected error when context is canceled before a token is available")
	}

	if inner.generateCalls.Load() != 1 {
		t.Errorf("inner should not be called after limiter rejection, calls = %d", inner.generateCalls.Load())
	}
}
