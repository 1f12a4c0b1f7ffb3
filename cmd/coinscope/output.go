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
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// CoinScope terminal palette.
var (
	ColorGold   = lipgloss.Color("#F5B041") // Brand gold - titles, highlights
	ColorAmber  = lipgloss.Color("#D68910") // Deep amber - accents
	ColorViolet = lipgloss.Color("#8E7CC3") // Violet - path badges
	ColorGreen  = lipgloss.Color("#27AE60") // Success
	ColorRed    = lipgloss.Color("#E74C3C") // Errors
	ColorSlate  = lipgloss.Color("#7F8C8D") // Muted text
)

// styles holds the pre-configured lipgloss styles for CLI output.
var styles = struct {
	Title   lipgloss.Style
	Prompt  lipgloss.Style
	Answer  lipgloss.Style
	Badge   lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Foreground(ColorGold).Bold(true),
	Prompt:  lipgloss.NewStyle().Foreground(ColorAmber).Bold(true),
	Answer:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ECF0F1")),
	Badge:   lipgloss.NewStyle().Foreground(ColorViolet),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Warning: lipgloss.NewStyle().Foreground(ColorAmber),
	Error:   lipgloss.NewStyle().Foreground(ColorRed),
}

// printAnswer renders one completed turn: the answer text, the routing
// path, any degraded-execution errors, and the server-side latency.
func printAnswer(resp askResponse) {
	fmt.Println()
	fmt.Println(styles.Answer.Render(resp.Answer))
	fmt.Println()

	badge := fmt.Sprintf("[%s]", resp.Path)
	timing := fmt.Sprintf("%dms", resp.ProcessingTimeMS)
	fmt.Println(styles.Badge.Render(badge) + " " + styles.Muted.Render(timing))

	if len(resp.Errors) > 0 {
		fmt.Println(styles.Warning.Render(
			fmt.Sprintf("%d tool call(s) failed while answering:", len(resp.Errors))))
		for _, e := range resp.Errors {
			fmt.Println(styles.Muted.Render("  - " + e))
		}
	}
}

// printChatHeader renders the interactive session banner.
func printChatHeader(sessionID string) {
	fmt.Println(styles.Title.Render("CoinScope Chat"))
	if sessionID != "" {
		fmt.Println(styles.Muted.Render("Resuming session " + sessionID))
	}
	fmt.Println(styles.Muted.Render("Type a question, /new for a fresh session, exit to leave."))
	fmt.Println(styles.Muted.Render(strings.Repeat("-", 60)))
}

// printChatFooter renders the end-of-session summary.
func printChatFooter(sessionID string, turns int) {
	fmt.Println()
	fmt.Println(styles.Muted.Render(strings.Repeat("-", 60)))
	if turns > 0 && sessionID != "" {
		fmt.Println(styles.Muted.Render(fmt.Sprintf(
			"Session %s (%d turn(s)). Resume with: coinscope chat --resume %s",
			sessionID, turns, sessionID)))
	} else {
		fmt.Println(styles.Muted.Render("No questions asked."))
	}
}
