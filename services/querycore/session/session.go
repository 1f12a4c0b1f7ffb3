// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session stores per-session conversation state with a TTL.
//
// A session consists of a record (identity plus the SessionContext the
// entry router consults between turns) and an ordered message history.
// Every store operation refreshes the session's expiry; once the TTL
// elapses without a touch, the session drops opaquely and the next
// Load returns a fresh empty record.
//
// Two backends are provided: an in-process memory store with a
// background janitor, and a Redis store for deployments where the API
// layer is restarted independently of the conversations it serves.
package session

import (
	"context"
	"time"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// DefaultTTL is the session lifetime applied when no explicit TTL is
// configured. Matches the SESSION_TTL default of 3600 seconds.
const DefaultTTL = 3600 * time.Second

// Record is the stored session document.
type Record struct {
	SessionID string                   `json:"session_id"`
	UserID    string                   `json:"user_id,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
	Context   datatypes.SessionContext `json:"context"`
}

// NewRecord returns a fresh record with a zero context.
func NewRecord(sessionID, userID string) *Record {
	now := time.Now().UTC()
	return &Record{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StoredMessage is one conversation turn plus the time it was appended.
type StoredMessage struct {
	datatypes.Message
	Timestamp time.Time `json:"timestamp"`
}

// ContextPatch is a shallow merge applied to a stored SessionContext.
// Zero-valued fields keep whatever the store already holds, so a turn
// only ships the fields it actually produced.
type ContextPatch struct {
	// UserID attaches an owner to the session. Set once by the first
	// turn that knows it; empty keeps the stored value.
	UserID string

	// LastQuery replaces the promoted NormalizedQuery. Nil keeps.
	LastQuery *datatypes.NormalizedQuery

	// LastResult replaces the promoted PlanResult. Nil keeps.
	LastResult *datatypes.PlanResult

	// Coins replaces the session's coin set. Nil keeps; an empty
	// non-nil slice clears.
	Coins []string
}

// apply merges the patch into the record and stamps the update time.
// Query and result pointers are installed wholesale; the store never
// mutates them in place afterwards.
func (r *Record) apply(patch ContextPatch, now time.Time) {
	if patch.UserID != "" {
		r.UserID = patch.UserID
	}
	if patch.LastQuery != nil {
		r.Context.LastQuery = patch.LastQuery
	}
	if patch.LastResult != nil {
		r.Context.LastResult = patch.LastResult
	}
	if patch.Coins != nil {
		r.Context.Coins = append([]string(nil), patch.Coins...)
	}
	r.Context.LastActive = now
	r.UpdatedAt = now
}

// Store is the session persistence contract.
//
// # Description
//
// All operations are keyed by session ID and refresh the session's TTL.
// Load never fails on a missing or expired session; it hands back a
// fresh empty record so callers can treat first turns and follow-up
// turns uniformly. Mutations (AppendMessage, UpdateContext) create the
// session on first write.
//
// # Thread Safety
//
// Implementations serialize writes per session key and return copies
// or otherwise-immutable snapshots from reads, so concurrent turns on
// the same session never observe torn state.
type Store interface {
	// Load returns the session record and whether it existed. A missing
	// or expired session yields a fresh empty record with found=false.
	// Context.MessageCount always reflects the stored message history.
	Load(ctx context.Context, sessionID string) (rec *Record, found bool, err error)

	// AppendMessage appends one conversation turn to the history.
	// The role must be one of user, assistant or system.
	AppendMessage(ctx context.Context, sessionID, role, content string) error

	// Messages returns the trailing limit messages, oldest first.
	// Non-positive limits fall back to datatypes.MaxHistoryMessages.
	Messages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error)

	// UpdateContext shallow-merges the patch into the stored context,
	// creating the session record if it does not exist yet.
	UpdateContext(ctx context.Context, sessionID string, patch ContextPatch) error

	// Touch refreshes the TTL without mutating the session. A missing
	// session is a no-op.
	Touch(ctx context.Context, sessionID string) error

	// Delete removes the session record and its message history.
	Delete(ctx context.Context, sessionID string) error
}

// newMessage builds a validated StoredMessage stamped at now.
func newMessage(role, content string, now time.Time) (StoredMessage, error) {
	msg := StoredMessage{
		Message:   datatypes.Message{Role: role, Content: content},
		Timestamp: now,
	}
	if err := msg.Validate(); err != nil {
		return StoredMessage{}, err
	}
	return msg, nil
}
