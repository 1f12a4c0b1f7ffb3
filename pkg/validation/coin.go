// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks (SQL/Flux injection, command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// coinPattern matches valid crypto coin symbols.
// Allows: uppercase letters, digits (1INCH), max length 10 characters
// (covers every symbol the price store carries).
var coinPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9]{0,9}$`)

// ValidateCoin validates a coin symbol to prevent Flux injection.
//
// Valid symbols:
//   - 1-10 characters
//   - Uppercase letters A-Z
//   - Digits 0-9 (1INCH, C98)
//
// Returns an error if the symbol is invalid.
//
// Example:
//
//	if err := validation.ValidateCoin(coin); err != nil {
//	    return nil, fmt.Errorf("invalid coin: %w", err)
//	}
//	// Safe to use in Flux query
func ValidateCoin(coin string) error {
	if coin == "" {
		return fmt.Errorf("coin symbol cannot be empty")
	}

	if !coinPattern.MatchString(coin) {
		return fmt.Errorf("invalid coin symbol: %q (must be 1-10 uppercase alphanumeric chars)", coin)
	}

	return nil
}

// ValidateCoins validates multiple coin symbols.
// Returns an error listing all invalid symbols if any fail validation.
func ValidateCoins(coins []string) error {
	var invalid []string
	for _, c := range coins {
		if err := ValidateCoin(c); err != nil {
			invalid = append(invalid, c)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid coin symbols: %v", invalid)
	}
	return nil
}

// SanitizeCoin normalizes and validates a coin symbol.
// Returns the uppercase symbol if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeCoin, err := validation.SanitizeCoin(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeCoin is uppercase and validated
func SanitizeCoin(coin string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(coin))
	if err := ValidateCoin(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
