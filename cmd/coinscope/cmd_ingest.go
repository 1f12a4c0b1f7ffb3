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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CoinScopeAI/CoinScope/services/querycore/news"
)

func runIngestNews(cmd *cobra.Command, args []string) {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}

	var articles []news.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		log.Fatalf("Failed to parse %s as a JSON article list: %v", path, err)
	}
	if len(articles) == 0 {
		log.Fatalf("No articles found in %s", path)
	}

	fmt.Printf("Ingesting %d article(s) from %s\n", len(articles), path)

	body, err := json.Marshal(articles)
	if err != nil {
		log.Fatalf("Failed to encode the request body: %v", err)
	}

	serviceURL := fmt.Sprintf("%s/v1/admin/news", getServiceBaseURL())

	// Embedding a large batch can take a while.
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Post(serviceURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatalf("Failed to send articles to the query service: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Query service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Articles     int `json:"articles"`
		ChunksStored int `json:"chunks_stored"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		fmt.Println("Query service response:", string(respBody))
		return
	}
	fmt.Printf("Stored %d chunk(s) from %d article(s).\n", result.ChunksStored, result.Articles)
}
