// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package querycore

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CoinScopeAI/CoinScope/services/querycore/prices"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the query service configuration.
//
// # Description
//
// Values come from three layers, lowest precedence first: defaults
// applied by New, an optional YAML file, and environment variables.
// Every field is optional; a zero Config runs against the local
// development stack.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int `yaml:"port"`

	// GinMode sets the Gin framework mode: debug, release or test.
	// Default: uses GIN_MODE env var or "debug".
	GinMode string `yaml:"gin_mode"`

	// LLMBackend selects the model provider.
	// Valid values: "openai", "ollama", "claude", "anthropic"
	// Default: "ollama"
	LLMBackend string `yaml:"llm_backend"`

	// LLMRateLimit is the shared requests-per-second budget across all
	// pipeline stages. Zero disables rate limiting.
	LLMRateLimit float64 `yaml:"llm_rate_limit"`

	// LLMRateBurst is the limiter burst size. Default: 4 when a rate
	// limit is set.
	LLMRateBurst int `yaml:"llm_rate_burst"`

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "coinscope-otel-collector:4317"
	OTelEndpoint string `yaml:"otel_endpoint"`

	// EnableMetrics mounts the Prometheus /metrics endpoint.
	// Default: true.
	EnableMetrics *bool `yaml:"enable_metrics"`

	// WeaviateURL is the news vector store URL.
	// Default: "http://localhost:8080"
	WeaviateURL string `yaml:"weaviate_url"`

	// Influx configures the market data store. Zero values fall back
	// to the INFLUXDB_* environment variables.
	Influx prices.InfluxConfig `yaml:"influx"`

	// RedisAddr selects the Redis session backend when set. Empty runs
	// the in-memory session store.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// SessionTTL is the idle session lifetime. Default: 1 hour.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// PromptsDir overrides the compiled-in prompt templates. Empty uses
	// the builtins only.
	PromptsDir string `yaml:"prompts_dir"`

	// WatchPrompts hot-reloads edited template files from PromptsDir.
	WatchPrompts bool `yaml:"watch_prompts"`

	// CacheDir is the Badger directory for the analyzer result cache.
	// Empty runs the cache in memory.
	CacheDir string `yaml:"cache_dir"`

	// FanOut bounds concurrent tool calls per plan. Default: 8.
	FanOut int `yaml:"fan_out"`

	// CallTimeout is the per-tool-call deadline. Default: 30s.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Coins is the market basket the ALL coin sentinel expands to.
	// Default: BTC, ETH.
	Coins []string `yaml:"coins"`
}

// LoadConfig builds a Config from the YAML file at path (skipped when
// path is empty or the file does not exist) overlaid with environment
// variables. Defaults are applied later by New.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// optional file
		case err != nil:
			return cfg, fmt.Errorf("failed to read the config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse the config file: %w", err)
			}
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

// overlayEnv applies environment variables on top of cfg. Set variables
// win over file values.
func overlayEnv(cfg *Config) {
	if v := os.Getenv("QUERYCORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		cfg.GinMode = v
	}
	if v := os.Getenv("LLM_BACKEND_TYPE"); v != "" {
		cfg.LLMBackend = v
	}
	if v := os.Getenv("LLM_RATE_LIMIT"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLMRateLimit = rate
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		// Trim quotes and whitespace in case the container runtime
		// passes them literally.
		cfg.WeaviateURL = strings.Trim(v, "\"' ")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.SessionTTL = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("PROMPTS_DIR"); v != "" {
		cfg.PromptsDir = v
	}
	if v := os.Getenv("ANALYSIS_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("EXECUTOR_FAN_OUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FanOut = n
		}
	}
	if v := os.Getenv("MARKET_BASKET"); v != "" {
		var coins []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				coins = append(coins, c)
			}
		}
		cfg.Coins = coins
	}
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "coinscope-otel-collector:4317"
	}
	if cfg.EnableMetrics == nil {
		enabled := true
		cfg.EnableMetrics = &enabled
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.LLMRateLimit > 0 && cfg.LLMRateBurst <= 0 {
		cfg.LLMRateBurst = 4
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	infEnv := prices.InfluxConfigFromEnv()
	if cfg.Influx.URL == "" {
		cfg.Influx.URL = infEnv.URL
	}
	if cfg.Influx.Token == "" {
		cfg.Influx.Token = infEnv.Token
	}
	if cfg.Influx.Org == "" {
		cfg.Influx.Org = infEnv.Org
	}
	if cfg.Influx.Bucket == "" {
		cfg.Influx.Bucket = infEnv.Bucket
	}
	if cfg.WeaviateURL == "" {
		cfg.WeaviateURL = "http://localhost:8080"
	}
	return cfg
}
