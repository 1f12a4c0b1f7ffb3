// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// memoryEntry is one session's state plus its expiry deadline.
//
// created tracks whether the session record was explicitly written via
// UpdateContext; messages appended before the first context write keep
// the entry alive but Load still reports found=false, mirroring the
// Redis backend where the record document and the message list are
// separate keys.
type memoryEntry struct {
	record   Record
	messages []StoredMessage
	deadline time.Time
	created  bool
}

// MemoryStore keeps sessions in process memory.
//
// Expired entries are dropped lazily on access; pair the store with a
// Janitor to reclaim sessions nobody touches again. A single mutex
// serializes all access, which doubles as the per-key write
// serialization the pipeline requires.
type MemoryStore struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*memoryEntry

	// now is swapped out by tests to drive expiry without sleeping.
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a memory store with the given TTL.
// Non-positive TTLs fall back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]*memoryEntry),
		now:      time.Now,
	}
}

// live returns the entry for sessionID if present and unexpired,
// dropping it when the deadline has passed. Callers hold s.mu.
func (s *MemoryStore) live(sessionID string, now time.Time) (*memoryEntry, bool) {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if now.After(entry.deadline) {
		delete(s.sessions, sessionID)
		return nil, false
	}
	return entry, true
}

// ensure returns the live entry for sessionID, allocating one when the
// session is new or expired. Callers hold s.mu.
func (s *MemoryStore) ensure(sessionID string, now time.Time) *memoryEntry {
	if entry, ok := s.live(sessionID, now); ok {
		return entry
	}
	entry := &memoryEntry{record: *NewRecord(sessionID, "")}
	s.sessions[sessionID] = entry
	return entry
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	entry, ok := s.live(sessionID, now)
	if !ok || !entry.created {
		return NewRecord(sessionID, ""), false, nil
	}
	entry.deadline = now.Add(s.ttl)

	// Copy on read: the record struct is copied and the coin slice
	// duplicated so callers never alias store-owned memory. Query and
	// result pointers are shared but immutable once stored.
	rec := entry.record
	rec.Context.Coins = append([]string(nil), entry.record.Context.Coins...)
	rec.Context.MessageCount = len(entry.messages)
	return &rec, true, nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	msg, err := newMessage(role, content, now)
	if err != nil {
		return err
	}
	entry := s.ensure(sessionID, now)
	entry.messages = append(entry.messages, msg)
	entry.deadline = now.Add(s.ttl)
	return nil
}

// Messages implements Store.
func (s *MemoryStore) Messages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = datatypes.MaxHistoryMessages
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	entry, ok := s.live(sessionID, now)
	if !ok {
		return []StoredMessage{}, nil
	}
	entry.deadline = now.Add(s.ttl)

	start := len(entry.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]StoredMessage, len(entry.messages)-start)
	copy(out, entry.messages[start:])
	return out, nil
}

// UpdateContext implements Store.
func (s *MemoryStore) UpdateContext(ctx context.Context, sessionID string, patch ContextPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	entry := s.ensure(sessionID, now)
	entry.record.apply(patch, now)
	entry.created = true
	entry.deadline = now.Add(s.ttl)
	return nil
}

// Touch implements Store.
func (s *MemoryStore) Touch(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if entry, ok := s.live(sessionID, now); ok {
		entry.deadline = now.Add(s.ttl)
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}

// sweep drops every expired session and reports how many were removed.
func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		if now.After(entry.deadline) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions, expired entries included
// until the next access or sweep drops them.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
