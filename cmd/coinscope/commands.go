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
	"github.com/spf13/cobra"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

// --- Global Command Variables ---
var (
	configPath    string
	askSessionID  string
	resumeID      string
	messagesLimit int

	rootCmd = &cobra.Command{
		Use:     "coinscope",
		Short:   "A cli for the CoinScope crypto question answering service",
		Version: version,
		Long: `CoinScope answers natural language questions about cryptocurrency
				prices and news. Run the service with 'serve', then ask questions
				with 'ask' or hold a conversation with 'chat'.`,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the CoinScope query service",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Ask / Chat ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question about crypto prices or news",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_ask.go
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}
	showSessionCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "Show the stored context for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runShowSession, // Defined in cmd_session.go
	}
	sessionMessagesCmd = &cobra.Command{
		Use:   "messages [session_id]",
		Short: "Print the conversation history for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionMessages, // Defined in cmd_session.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a specific conversation session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_session.go
	}

	// --- News Admin ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [articles.json]",
		Short: "Ingest a JSON file of news articles into the vector store",
		Args:  cobra.ExactArgs(1),
		Run:   runIngestNews, // Defined in cmd_ingest.go
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&configPath, "config", "",
		"Path to a YAML config file (optional, env vars still apply)")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askSessionID, "session", "",
		"Ask within an existing session for follow-up context")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeID, "resume", "",
		"Resume a conversation using a specific session ID")

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(showSessionCmd)
	sessionCmd.AddCommand(sessionMessagesCmd)
	sessionMessagesCmd.Flags().IntVar(&messagesLimit, "limit", 0,
		"Maximum number of messages to fetch (0 uses the server default)")
	sessionCmd.AddCommand(deleteSessionCmd)

	rootCmd.AddCommand(ingestCmd)
}
