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
	"strings"

	"github.com/spf13/cobra"
)

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Println(styles.Muted.Render("Asking: " + question))

	resp, err := sendAskRequest(getServiceBaseURL(), question, askSessionID)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	printAnswer(resp)
	fmt.Println(styles.Muted.Render(fmt.Sprintf(
		"Follow up with: coinscope ask --session %s \"...\"", resp.SessionID)))
}
