// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

const (
	// MaxMessageContentBytes is the maximum size of a single message
	// content.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxHistoryMessages is the number of conversation messages a
	// session keeps; older ones are trimmed from the head.
	MaxHistoryMessages = 20
)

// Message is one turn of conversation, in the role/content form every
// LLM backend accepts.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// Validate validates the message fields.
func (m *Message) Validate() error {
	return queryValidate.Struct(m)
}

// SessionContext is the per-session state the entry router consults
// between turns.
//
// # Description
//
// A session owns at most one SessionContext. It is read at the start of
// a turn to decide whether prior work can be reused, and it is mutated
// only at the end of a fully successful turn. TTL expiry or an explicit
// session end destroys it; the next turn starts from a fresh zero value.
//
// # Fields
//
//   - LastQuery: The most recent NormalizedQuery promoted by a
//     successful turn. Nil until the first full pipeline completes.
//   - LastResult: The most recent PlanResult promoted by a successful
//     turn. Nil until then.
//   - Coins: Coin symbols the session has touched, sorted.
//   - MessageCount: Total messages exchanged on this session.
//   - LastActive: Wall-clock time of the last completed turn, used for
//     TTL accounting in stores without native expiry.
type SessionContext struct {
	LastQuery    *NormalizedQuery `json:"last_normalized_query"`
	LastResult   *PlanResult      `json:"last_plan_result"`
	Coins        []string         `json:"coins"`
	MessageCount int              `json:"message_count"`
	LastActive   time.Time        `json:"last_active"`
}

// HasHistory reports whether the session carries reusable prior work.
func (s *SessionContext) HasHistory() bool {
	return s != nil && s.LastQuery != nil
}

// HasResult reports whether the session carries a reusable PlanResult.
func (s *SessionContext) HasResult() bool {
	return s != nil && s.LastResult != nil
}

// Touch records a completed exchange of n messages at now.
func (s *SessionContext) Touch(now time.Time, n int) {
	s.MessageCount += n
	s.LastActive = now
}
