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
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// Redis key layout. The record document and the message list live under
// separate keys so history appends never rewrite the session document.
const (
	sessionKeyPrefix  = "chat:session:"
	messagesKeyPrefix = "chat:messages:"
)

func sessionKey(sessionID string) string  { return sessionKeyPrefix + sessionID }
func messagesKey(sessionID string) string { return messagesKeyPrefix + sessionID }

// RedisConfig carries the Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisConfigFromEnv reads REDIS_HOST, REDIS_PORT, REDIS_DB,
// REDIS_PASSWORD and SESSION_TTL (seconds) with development defaults.
func RedisConfigFromEnv() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	cfg := RedisConfig{
		Addr:     net.JoinHostPort(host, port),
		Password: os.Getenv("REDIS_PASSWORD"),
		TTL:      DefaultTTL,
	}
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.DB = db
	}
	if secs, err := strconv.Atoi(os.Getenv("SESSION_TTL")); err == nil && secs > 0 {
		cfg.TTL = time.Duration(secs) * time.Second
	}
	return cfg
}

// NewRedisClient connects to Redis and verifies the connection with a
// ping before handing the client back.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	slog.Info("Connected to Redis session store", "addr", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}

// RedisStore persists sessions in Redis with native key expiry.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration

	// locks serialize read-merge-write cycles per session key. Striped
	// rather than per-key so idle sessions hold no memory here.
	locks [16]sync.Mutex
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an established Redis client. Non-positive TTLs
// fall back to DefaultTTL. The caller owns the client's lifecycle.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// lock returns the stripe guarding sessionID.
func (s *RedisStore) lock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// refresh pushes both session keys' expiry out by the configured TTL.
func (s *RedisStore) refresh(ctx context.Context, sessionID string) error {
	if err := s.rdb.Expire(ctx, sessionKey(sessionID), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh session %s: %w", sessionID, err)
	}
	if err := s.rdb.Expire(ctx, messagesKey(sessionID), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh session %s messages: %w", sessionID, err)
	}
	return nil
}

// warnRefresh refreshes best-effort after an operation that already
// succeeded; a failed refresh is not worth failing the caller over.
func (s *RedisStore) warnRefresh(ctx context.Context, sessionID string) {
	if err := s.refresh(ctx, sessionID); err != nil {
		slog.Warn("Failed to refresh session TTL", "session_id", sessionID, "error", err)
	}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Record, bool, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return NewRecord(sessionID, ""), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	count, err := s.rdb.LLen(ctx, messagesKey(sessionID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to count session %s messages: %w", sessionID, err)
	}
	rec.Context.MessageCount = int(count)

	s.warnRefresh(ctx, sessionID)
	return &rec, true, nil
}

// AppendMessage implements Store.
func (s *RedisStore) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	msg, err := newMessage(role, content, time.Now().UTC())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message for session %s: %w", sessionID, err)
	}

	if err := s.rdb.RPush(ctx, messagesKey(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("failed to append message to session %s: %w", sessionID, err)
	}
	s.warnRefresh(ctx, sessionID)
	return nil
}

// Messages implements Store.
func (s *RedisStore) Messages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = datatypes.MaxHistoryMessages
	}

	rows, err := s.rdb.LRange(ctx, messagesKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages for session %s: %w", sessionID, err)
	}

	out := make([]StoredMessage, 0, len(rows))
	for _, row := range rows {
		var msg StoredMessage
		if err := json.Unmarshal([]byte(row), &msg); err != nil {
			slog.Warn("Dropping undecodable session message", "session_id", sessionID, "error", err)
			continue
		}
		out = append(out, msg)
	}

	s.warnRefresh(ctx, sessionID)
	return out, nil
}

// UpdateContext implements Store.
func (s *RedisStore) UpdateContext(ctx context.Context, sessionID string, patch ContextPatch) error {
	lock := s.lock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	rec, _, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.apply(patch, time.Now().UTC())

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", sessionID, err)
	}
	return nil
}

// Touch implements Store.
func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	return s.refresh(ctx, sessionID)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID), messagesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	slog.Info("Session deleted", "session_id", sessionID)
	return nil
}
