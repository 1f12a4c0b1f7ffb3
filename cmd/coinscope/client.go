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
)

const (
	// DefaultServiceHost is where a local `coinscope serve` listens.
	DefaultServiceHost = "localhost"
	// DefaultServicePort matches the serve command's default port.
	DefaultServicePort = 12310
)

// askResponse mirrors the /v1/ask response body.
type askResponse struct {
	SessionID        string   `json:"session_id"`
	Answer           string   `json:"answer"`
	Path             string   `json:"path"`
	Errors           []string `json:"errors"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}

// serviceError mirrors the error body the service returns on non-200
// responses.
type serviceError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// getServiceBaseURL returns the query service address.
func getServiceBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("COINSCOPE_SERVICE_URL"); url != "" {
		return url
	}
	// 2. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultServiceHost, DefaultServicePort)
}

// sendAskRequest posts one question to /v1/ask and decodes the answer.
//
// A non-200 status is returned as an error carrying the service's
// error kind so callers can decide whether to retry or bail.
func sendAskRequest(baseURL, question, sessionID string) (askResponse, error) {
	var askResp askResponse
	postBody, err := json.Marshal(map[string]string{
		"utterance":  question,
		"session_id": sessionID,
	})
	if err != nil {
		return askResp, fmt.Errorf("failed to create request body: %w", err)
	}

	serviceURL := fmt.Sprintf("%s/v1/ask", baseURL)

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Post(serviceURL, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return askResp, fmt.Errorf("failed to reach the query service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var svcErr serviceError
		if json.Unmarshal(bodyBytes, &svcErr) == nil && svcErr.Error != "" {
			return askResp, fmt.Errorf("service rejected the question (%s): %s",
				svcErr.Kind, svcErr.Error)
		}
		return askResp, fmt.Errorf("service returned status %d: %s",
			resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, &askResp); err != nil {
		log.Printf("Raw response from the query service: %s", string(bodyBytes))
		return askResp, fmt.Errorf("failed to parse the service response: %w", err)
	}
	return askResp, nil
}

// fetchJSON gets a URL and decodes the JSON body into out.
func fetchJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to the query service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("service returned status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
