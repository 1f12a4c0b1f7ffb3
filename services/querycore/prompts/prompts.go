// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts manages the prompt templates used by the query
// pipeline.
//
// Every template ships as a builtin; an operator can override one by
// placing <name>.tmpl in the prompt directory. With Watch running,
// edits to that directory take effect without a restart. A template
// that fails to parse never replaces a working one.
package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
)

// Template names.
const (
	NameRouter           = "router"
	NameAnalyzer         = "analyzer"
	NameSemanticQuery    = "semantic_query"
	NamePriceSummary     = "price_summary"
	NameNewsSummary      = "news_summary"
	NameCombinedSummary  = "combined_summary"
	NameGeneratedQueries = "generated_queries"
	NameScripter         = "scripter"
	NameDirect           = "direct"
)

// AllNames lists every template the pipeline requires.
func AllNames() []string {
	return []string{
		NameRouter,
		NameAnalyzer,
		NameSemanticQuery,
		NamePriceSummary,
		NameNewsSummary,
		NameCombinedSummary,
		NameGeneratedQueries,
		NameScripter,
		NameDirect,
	}
}

// TmplExt is the file extension override files must carry.
const TmplExt = ".tmpl"

// templateFuncs are available inside every prompt template.
var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
	"truncate": func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n])
	},
}

// Store holds parsed prompt templates and serves renders.
//
// # Thread Safety
//
// Safe for concurrent use. Renders take a read lock; reloads take the
// write lock, so an in-flight render always sees a complete template
// set.
type Store struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu        sync.RWMutex
	templates map[string]*template.Template

	stopOnce sync.Once
	done     chan struct{}
}

// New builds a Store from the builtins, then overlays any .tmpl files
// found in dir. An empty dir serves builtins only. A broken override
// file fails New; after startup the same file would be rejected and
// logged instead, keeping the last good version.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		dir:       dir,
		logger:    logger,
		templates: make(map[string]*template.Template, len(builtinTexts)),
		done:      make(chan struct{}),
	}

	for name, text := range builtinTexts {
		tmpl, err := parsePrompt(name, text)
		if err != nil {
			return nil, fmt.Errorf("builtin prompt %q does not parse: %w", name, err)
		}
		s.templates[name] = tmpl
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return s, nil
			}
			return nil, fmt.Errorf("failed to read prompt directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != TmplExt {
				continue
			}
			if err := s.loadFile(filepath.Join(dir, e.Name())); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func parsePrompt(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
}

// loadFile parses one override file and installs it under the file's
// base name. Files named after no known template are installed anyway;
// they are harmless and let operators stage new prompts.
func (s *Store) loadFile(path string) error {
	name := strings.TrimSuffix(filepath.Base(path), TmplExt)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompt override %s: %w", path, err)
	}
	tmpl, err := parsePrompt(name, string(data))
	if err != nil {
		return fmt.Errorf("prompt override %s does not parse: %w", path, err)
	}

	s.mu.Lock()
	s.templates[name] = tmpl
	s.mu.Unlock()

	s.logger.Info("Loaded prompt override", "name", name, "path", path)
	return nil
}

// reloadFile is the hot-reload variant of loadFile: parse failures are
// logged and the previous template stays installed.
func (s *Store) reloadFile(path string) {
	if err := s.loadFile(path); err != nil {
		s.logger.Error("Prompt reload rejected, keeping previous version",
			"path", path, "error", err)
	}
}

// Render executes the named template with the given data.
func (s *Store) Render(name string, data any) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return b.String(), nil
}

// Watch starts watching the prompt directory for override changes.
// Returns without error when the store has no directory. Watching stops
// when ctx is canceled or Close is called.
func (s *Store) Watch(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}
	if _, err := os.Stat(s.dir); os.IsNotExist(err) {
		s.logger.Info("Prompt directory absent, hot reload disabled", "dir", s.dir)
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch prompt directory %s: %w", s.dir, err)
	}
	s.watcher = watcher

	go s.watchLoop(ctx)
	s.logger.Info("Watching prompt directory", "dir", s.dir)
	return nil
}

func (s *Store) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != TmplExt {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				s.reloadFile(event.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Prompt watcher error", "error", err)
		}
	}
}

// Close stops the watcher. Safe to call multiple times and without a
// prior Watch.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}
