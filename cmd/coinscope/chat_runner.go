// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// =============================================================================
// ChatRunner Interface
// =============================================================================

// ChatRunner runs an interactive conversation loop against the query
// service.
//
// Run blocks until the user exits ("exit"/"quit"/Ctrl+D, returns nil)
// or the context is cancelled (returns context.Canceled). Callers must
// Close() the runner when done, typically via defer. A runner is
// single use; it cannot be restarted after Run returns.
type ChatRunner interface {
	Run(ctx context.Context) error
	Close() error
}

// ChatRunnerConfig holds configuration for creating a chat runner.
//
// # Fields
//
//   - BaseURL: Required. Query service URL without trailing slash.
//   - SessionID: Optional. Resume an existing session by its ID. When
//     empty the server assigns one on the first question.
type ChatRunnerConfig struct {
	BaseURL   string
	SessionID string
}

// =============================================================================
// Implementation
// =============================================================================

// askChatRunner implements ChatRunner over the /v1/ask endpoint.
//
// The server owns all conversation state; the runner only tracks the
// session ID so follow-up questions land in the same session.
type askChatRunner struct {
	baseURL   string
	sessionID string
	input     InputReader
	turns     int

	closed bool
	mu     sync.Mutex
}

// NewChatRunner creates a chat runner with production dependencies: an
// interactive input reader with 50 entries of history.
func NewChatRunner(config ChatRunnerConfig) ChatRunner {
	return &askChatRunner{
		baseURL:   config.BaseURL,
		sessionID: config.SessionID,
		input:     NewHistoryReader(50),
	}
}

// newChatRunnerWithInput creates a chat runner with an injected input
// reader for tests.
func newChatRunnerWithInput(config ChatRunnerConfig, input InputReader) *askChatRunner {
	return &askChatRunner{
		baseURL:   config.BaseURL,
		sessionID: config.SessionID,
		input:     input,
	}
}

// Run executes the interactive loop.
//
// Each iteration reads a line, handles the control commands ("exit",
// "quit", "/new"), sends the question to the service and renders the
// turn. Tool failures inside a turn are reported by the server in the
// response body and displayed; only transport-level failures surface
// as inline errors. Both keep the loop alive.
func (r *askChatRunner) Run(ctx context.Context) error {
	printChatHeader(r.sessionID)

	for {
		select {
		case <-ctx.Done():
			return r.handleShutdown(ctx)
		default:
		}

		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(styles.Prompt.Render("coinscope> "))
		} else {
			fmt.Print(styles.Prompt.Render("coinscope> "))
		}
		input, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				printChatFooter(r.sessionID, r.turns)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if input == "" {
			continue
		}

		// Bubbletea clears its render area on exit, so restore the
		// visual line for interactive readers.
		if _, interactive := r.input.(*HistoryReader); interactive {
			fmt.Printf("%s%s\n", styles.Prompt.Render("coinscope> "), input)
		}

		if isExitCommand(input) {
			printChatFooter(r.sessionID, r.turns)
			return nil
		}

		if input == "/new" {
			r.sessionID = ""
			r.turns = 0
			fmt.Println(styles.Muted.Render("Started a fresh session."))
			continue
		}

		resp, err := sendAskRequest(r.baseURL, input, r.sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return r.handleShutdown(ctx)
			}
			fmt.Println(styles.Error.Render("Error: " + err.Error()))
			continue
		}

		// Adopt the server-assigned session so follow-ups reuse it.
		r.sessionID = resp.SessionID
		r.turns++
		printAnswer(resp)
	}
}

// handleShutdown finishes the session after context cancellation.
func (r *askChatRunner) handleShutdown(ctx context.Context) error {
	if r.sessionID != "" {
		slog.Info("conversation preserved server-side",
			"session_id", r.sessionID,
			"note", "resume with the --resume flag")
	}
	fmt.Println()
	printChatFooter(r.sessionID, r.turns)
	return ctx.Err()
}

// Close marks the runner closed. Safe to call multiple times.
func (r *askChatRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// isExitCommand reports whether input ends the chat loop.
func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}
