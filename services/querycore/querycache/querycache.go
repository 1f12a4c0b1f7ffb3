// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querycache caches analyzer output in an embedded BadgerDB.
//
// Analysis of an utterance depends on the wall-clock day (relative
// time expressions resolve against it), so entries are keyed by
// utterance and day and expire via Badger's native TTL. A cache hit
// skips an analyzer model round trip; a corrupt or expired entry is
// simply a miss.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// DefaultTTL keeps cached analyses for one day, matching the day
// component baked into every cache key.
const DefaultTTL = 24 * time.Hour

// defaultGCDiscardRatio triggers value log GC once half the log is garbage.
const defaultGCDiscardRatio = 0.5

// Config holds configuration for the analyzer cache.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. The cache is rebuildable,
	// so the default leaves them off.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// TTL is the entry lifetime. Non-positive values use DefaultTTL.
	TTL time.Duration

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC; in-memory databases never run it.
	GCInterval time.Duration
}

// DefaultConfig returns production defaults with GC enabled.
func DefaultConfig() Config {
	return Config{
		TTL:        DefaultTTL,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns configuration for tests: in-memory, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		TTL:      DefaultTTL,
	}
}

// ConfigFromEnv reads QUERY_CACHE_PATH and QUERY_CACHE_TTL (seconds)
// on top of the production defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Path = os.Getenv("QUERY_CACHE_PATH")
	if cfg.Path == "" {
		cfg.Path = "./data/querycache"
	}
	if secs, err := strconv.Atoi(os.Getenv("QUERY_CACHE_TTL")); err == nil && secs > 0 {
		cfg.TTL = time.Duration(secs) * time.Second
	}
	return cfg
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Cache is an embedded analyzer result cache.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions
// provide the isolation.
type Cache struct {
	db  *badger.DB
	ttl time.Duration

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open creates and opens the cache with the given configuration.
// The caller must Close() it when done.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open query cache: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := &Cache{db: db, ttl: ttl}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		cache.gcStop = make(chan struct{})
		cache.gcDone = make(chan struct{})
		go cache.gcLoop(cfg.GCInterval)
	}
	return cache, nil
}

// Close stops garbage collection and closes the database.
func (c *Cache) Close() error {
	if c.gcStop != nil {
		close(c.gcStop)
		<-c.gcDone
		c.gcStop = nil
	}
	return c.db.Close()
}

// gcLoop periodically reclaims value log space.
func (c *Cache) gcLoop(interval time.Duration) {
	defer close(c.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed, not an error
			err := c.db.RunValueLogGC(defaultGCDiscardRatio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Query cache value log GC error", "error", err)
			}
		}
	}
}

// cacheKey derives the storage key for an utterance on a given day.
// Leading and trailing whitespace does not change the question, so it
// is trimmed before hashing.
func cacheKey(utterance string, day time.Time) []byte {
	sum := sha256.Sum256([]byte(strings.TrimSpace(utterance)))
	return []byte(fmt.Sprintf("nq:%s:%x", day.UTC().Format("2006-01-02"), sum[:16]))
}

// Get returns the cached analysis for the utterance on day, or
// found=false on a miss. Corrupt entries count as misses.
func (c *Cache) Get(ctx context.Context, utterance string, day time.Time) (*datatypes.NormalizedQuery, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var out *datatypes.NormalizedQuery
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(utterance, day))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var query datatypes.NormalizedQuery
			if err := json.Unmarshal(val, &query); err != nil {
				slog.Warn("Dropping undecodable cached analysis", "error", err)
				return nil
			}
			out = &query
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read query cache: %w", err)
	}
	return out, out != nil, nil
}

// Put stores the analysis for the utterance on day, replacing any
// previous entry. The entry expires after the configured TTL.
func (c *Cache) Put(ctx context.Context, utterance string, day time.Time, query *datatypes.NormalizedQuery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if query == nil {
		return errors.New("cannot cache a nil analysis")
	}

	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to encode analysis for cache: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(cacheKey(utterance, day), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to write query cache: %w", err)
	}
	return nil
}
