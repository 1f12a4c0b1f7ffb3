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
	"log"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/CoinScopeAI/CoinScope/pkg/logging"
	"github.com/CoinScopeAI/CoinScope/services/querycore"
)

// runServe starts the query service and blocks until it stops.
//
// Configuration comes from the optional --config YAML file overlaid
// with environment variables (QUERYCORE_PORT, LLM_BACKEND_TYPE,
// WEAVIATE_SERVICE_URL, INFLUXDB_URL, REDIS_ADDR and friends).
func runServe(cmd *cobra.Command, args []string) {
	// Setup structured logging. JSON for log collectors, text when a
	// human is watching the terminal.
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "querycore",
		JSON:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg, err := querycore.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	svc, err := querycore.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create the query service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Query service error: %v", err)
	}
}
