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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JanitorConfig holds configuration for the background session sweeper.
//
// # Fields
//
//   - Interval: How often to sweep for expired sessions. Default: 5 minutes.
type JanitorConfig struct {
	Interval time.Duration
}

// DefaultJanitorConfig returns the default sweeper configuration.
//
// Expired sessions are already dropped lazily on access; the janitor
// only reclaims memory for sessions nobody touches again, so a 5
// minute cadence is plenty.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Interval: 5 * time.Minute,
	}
}

// Janitor periodically removes expired sessions from a MemoryStore.
//
// # Description
//
// Manages the lifecycle of a background goroutine that sweeps the
// store at a fixed interval. Uses the ticker + done channel pattern
// for graceful shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe. A mutex protects the running
// state transitions.
type Janitor struct {
	store   *MemoryStore
	config  JanitorConfig
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewJanitor creates a sweeper for the given store.
//
// # Inputs
//
//   - store: The MemoryStore to sweep.
//   - config: Sweep interval configuration; zero Interval uses the default.
//
// # Outputs
//
//   - *Janitor: Ready to Start().
//
// # Examples
//
//	store := session.NewMemoryStore(session.DefaultTTL)
//	janitor := session.NewJanitor(store, session.DefaultJanitorConfig())
//	if err := janitor.Start(ctx); err != nil {
//	    return err
//	}
//	defer janitor.Stop()
func NewJanitor(store *MemoryStore, config JanitorConfig) *Janitor {
	if config.Interval <= 0 {
		config.Interval = DefaultJanitorConfig().Interval
	}
	return &Janitor{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// # Description
//
// Starts a goroutine that sweeps at the configured interval until
// Stop() is called or the context is cancelled. An initial sweep runs
// immediately on start.
//
// # Outputs
//
//   - error: Non-nil if the janitor is already running.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("session janitor is already running")
	}
	j.running = true
	j.done = make(chan struct{}) // Reset done channel for potential restart
	j.mu.Unlock()

	slog.Info("Session janitor starting", "interval", j.config.Interval.String())

	go j.runLoop(ctx, j.done)
	return nil
}

// Stop gracefully stops the sweep loop. Safe to call multiple times.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return nil // Already stopped
	}

	slog.Info("Session janitor stopping")
	close(j.done)
	j.running = false
	return nil
}

// RunNow triggers an immediate sweep and reports how many sessions
// were removed. Does not affect the scheduled sweep timing.
func (j *Janitor) RunNow() int {
	return j.executeSweep()
}

// runLoop is the main sweeper goroutine. The done channel is passed in
// so a restart's channel reset never races with a draining loop.
func (j *Janitor) runLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	// Run an initial sweep immediately on start
	j.executeSweep()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session janitor stopped (context cancelled)")
			return
		case <-done:
			slog.Info("Session janitor stopped (stop requested)")
			return
		case <-ticker.C:
			j.executeSweep()
		}
	}
}

// executeSweep runs a single sweep cycle with logging.
func (j *Janitor) executeSweep() int {
	removed := j.store.sweep(j.store.now().UTC())
	if removed > 0 {
		slog.Info("Session sweep completed", "removed", removed)
	} else {
		slog.Debug("Session sweep completed (no expired sessions)")
	}
	return removed
}
