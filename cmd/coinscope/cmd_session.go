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
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// sessionRecord mirrors the /v1/sessions/:id response body.
type sessionRecord struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Context   struct {
		Coins        []string  `json:"coins"`
		MessageCount int       `json:"message_count"`
		LastActive   time.Time `json:"last_active"`
	} `json:"context"`
}

// sessionMessages mirrors the /v1/sessions/:id/messages response body.
type sessionMessages struct {
	SessionID string `json:"session_id"`
	Messages  []struct {
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"messages"`
}

func runShowSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s", getServiceBaseURL(), sessionID)

	var rec sessionRecord
	if err := fetchJSON(url, &rec); err != nil {
		log.Fatalf("Failed to fetch session %s: %v", sessionID, err)
	}

	fmt.Printf("Session:  %s\n", rec.SessionID)
	if rec.UserID != "" {
		fmt.Printf("User:     %s\n", rec.UserID)
	}
	fmt.Printf("Created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Messages: %d\n", rec.Context.MessageCount)
	if len(rec.Context.Coins) > 0 {
		fmt.Printf("Coins:    %s\n", strings.Join(rec.Context.Coins, ", "))
	}
}

func runSessionMessages(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s/messages", getServiceBaseURL(), sessionID)
	if messagesLimit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, messagesLimit)
	}

	var history sessionMessages
	if err := fetchJSON(url, &history); err != nil {
		log.Fatalf("Failed to fetch messages for %s: %v", sessionID, err)
	}

	if len(history.Messages) == 0 {
		fmt.Println("No messages in this session.")
		return
	}

	for _, m := range history.Messages {
		role := styles.Prompt.Render(m.Role)
		when := styles.Muted.Render(m.Timestamp.Format("15:04:05"))
		fmt.Printf("%s %s\n%s\n\n", role, when, m.Content)
	}
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	sessionID := args[0]
	url := fmt.Sprintf("%s/v1/sessions/%s", getServiceBaseURL(), sessionID)

	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		log.Fatalf("Failed to create delete request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to send delete request to the query service: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Query service returned an error: %s", resp.Status)
	}

	fmt.Printf("Successfully deleted session: %s\n", sessionID)
}
