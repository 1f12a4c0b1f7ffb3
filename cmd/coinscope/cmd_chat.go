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
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CoinScopeAI/CoinScope/pkg/logging"
)

func runChatCommand(cmd *cobra.Command, args []string) {
	// Keep slog output out of the interactive terminal. Entries still
	// land in ~/.coinscope/logs for postmortems.
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  "~/.coinscope/logs",
		Service: "cli",
		Quiet:   true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	runner := NewChatRunner(ChatRunnerConfig{
		BaseURL:   getServiceBaseURL(),
		SessionID: resumeID,
	})
	defer runner.Close()

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Chat error: %v", err)
	}
}
