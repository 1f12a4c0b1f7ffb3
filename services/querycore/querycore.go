// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querycore assembles the crypto Q&A query service.
//
// The package wires the four pipeline stages (Analyzer, Planner,
// Executor, Scripter) and the entry-routing Engine over their data
// planes: the InfluxDB market store, the Weaviate news store, the
// session store and the analyzer result cache. The HTTP surface lives
// in routes/ and handlers/; this package owns construction order and
// resource lifetime.
package querycore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/CoinScopeAI/CoinScope/services/llm"
	"github.com/CoinScopeAI/CoinScope/services/querycore/agents"
	"github.com/CoinScopeAI/CoinScope/services/querycore/news"
	"github.com/CoinScopeAI/CoinScope/services/querycore/observability"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prices"
	"github.com/CoinScopeAI/CoinScope/services/querycore/prompts"
	"github.com/CoinScopeAI/CoinScope/services/querycore/querycache"
	"github.com/CoinScopeAI/CoinScope/services/querycore/routes"
	"github.com/CoinScopeAI/CoinScope/services/querycore/session"
	"github.com/CoinScopeAI/CoinScope/services/querycore/tools"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the query service lifecycle.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Resolved configuration, defaults applied.
//   - router: Gin HTTP engine with all routes registered.
//   - engine: The turn engine the /v1/ask route dispatches to.
//   - closers: Cleanup functions in construction order; cleanup runs
//     them in reverse.
type service struct {
	config Config
	router *gin.Engine
	engine *agents.Engine

	prompts  *prompts.Store
	prices   prices.Reader
	sessions session.Store
	cache    *querycache.Cache
	ingester *news.Ingester

	tracerCleanup func(context.Context)
	promptWatch   context.CancelFunc
	janitor       *session.Janitor
}

var _ Service = (*service)(nil)

// =============================================================================
// Constructor
// =============================================================================

// New creates the query service from its configuration.
//
// # Description
//
// New initializes components in dependency order:
//  1. Applies configuration defaults
//  2. Initializes OpenTelemetry tracing
//  3. Registers Prometheus metrics
//  4. Loads prompt templates (and starts the hot-reload watcher)
//  5. Creates the LLM client for the configured backend
//  6. Connects the market data and news stores
//  7. Opens the session store and analyzer cache
//  8. Builds the tool registry, pipeline stages and turn engine
//  9. Registers HTTP routes
//
// Construction failures release everything built so far.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run query service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	var metrics *observability.Metrics
	if *s.config.EnableMetrics {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
		slog.Info("Registered Prometheus metrics")
	}

	logger := slog.Default()

	if err := s.initPrompts(logger); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	llmClient, err := s.newLLMClient()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	priceReader, err := prices.NewInfluxReader(s.config.Influx)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to connect to the market data store: %w", err)
	}
	s.prices = priceReader

	searcher, err := s.initNews()
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to connect to the news store: %w", err)
	}

	if err := s.initSessions(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open the session store: %w", err)
	}

	if err := s.initCache(logger); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open the analyzer cache: %w", err)
	}

	registry, err := tools.NewRegistry(s.prices, searcher, llmClient, s.prompts)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build the tool registry: %w", err)
	}

	analyzer := agents.NewAnalyzer(llmClient, s.prompts, s.cache, logger)
	planner := agents.NewPlanner(s.config.Coins, logger)
	executor := agents.NewExecutor(registry, agents.ExecutorConfig{
		FanOut:      s.config.FanOut,
		CallTimeout: s.config.CallTimeout,
	}, metrics, logger)
	scripter := agents.NewScripter(llmClient, s.prompts, logger)

	s.engine, err = agents.NewEngine(agents.EngineDeps{
		Analyzer: analyzer,
		Planner:  planner,
		Executor: executor,
		Scripter: scripter,
		LLM:      llmClient,
		Prompts:  s.prompts,
		Sessions: s.sessions,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build the turn engine: %w", err)
	}

	s.initRouter(analyzer, planner, executor, scripter)

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until it stops. Cleanup is
// automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting query service", "port", s.config.Port,
		"llm_backend", s.config.LLMBackend)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing over an
// insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("querycore-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initPrompts loads the prompt store and starts the hot-reload watcher
// when configured.
func (s *service) initPrompts(logger *slog.Logger) error {
	store, err := prompts.New(s.config.PromptsDir, logger)
	if err != nil {
		return err
	}
	s.prompts = store

	if s.config.WatchPrompts && s.config.PromptsDir != "" {
		ctx, cancel := context.WithCancel(context.Background())
		if err := store.Watch(ctx); err != nil {
			cancel()
			slog.Warn("Prompt hot reload unavailable", "error", err)
		} else {
			s.promptWatch = cancel
			slog.Info("Watching prompt templates", "dir", s.config.PromptsDir)
		}
	}
	return nil
}

// newLLMClient creates the backend client, wrapped in the shared rate
// limiter when one is configured.
func (s *service) newLLMClient() (llm.LLMClient, error) {
	var (
		client llm.LLMClient
		err    error
	)
	switch s.config.LLMBackend {
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	case "claude", "anthropic":
		client, err = llm.NewAnthropicClient()
		slog.Info("Using Anthropic (Claude) LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		client, err = llm.NewOllamaClient()
	}
	if err != nil {
		return nil, err
	}

	if s.config.LLMRateLimit > 0 {
		client = llm.NewRateLimitedClient(client, s.config.LLMRateLimit, s.config.LLMRateBurst)
		slog.Info("LLM rate limiter enabled",
			"rps", s.config.LLMRateLimit, "burst", s.config.LLMRateBurst)
	}
	return client, nil
}

// initNews connects the Weaviate news store and builds the searcher
// and the admin ingester.
func (s *service) initNews() (news.Searcher, error) {
	client, err := news.NewWeaviateClient(news.WeaviateConfig{URL: s.config.WeaviateURL})
	if err != nil {
		return nil, err
	}

	embedder, err := news.NewOpenAIEmbedder()
	if err != nil {
		return nil, fmt.Errorf("embedding provider unavailable: %w", err)
	}

	s.ingester = news.NewIngester(client, embedder)
	slog.Info("News store connected", "url", s.config.WeaviateURL)
	return news.NewWeaviateSearcher(client, embedder), nil
}

// initSessions opens the Redis session store when an address is
// configured, the in-memory store with its expiry janitor otherwise.
func (s *service) initSessions() error {
	if s.config.RedisAddr != "" {
		rdb, err := session.NewRedisClient(context.Background(), session.RedisConfig{
			Addr:     s.config.RedisAddr,
			Password: s.config.RedisPassword,
			DB:       s.config.RedisDB,
			TTL:      s.config.SessionTTL,
		})
		if err != nil {
			return err
		}
		s.sessions = session.NewRedisStore(rdb, s.config.SessionTTL)
		slog.Info("Using Redis session store", "addr", s.config.RedisAddr)
		return nil
	}

	store := session.NewMemoryStore(s.config.SessionTTL)
	janitor := session.NewJanitor(store, session.JanitorConfig{})
	if err := janitor.Start(context.Background()); err != nil {
		return err
	}
	s.sessions = store
	s.janitor = janitor
	slog.Info("Using in-memory session store", "ttl", s.config.SessionTTL.String())
	return nil
}

// initCache opens the analyzer result cache, persistent when a
// directory is configured and in-memory otherwise.
func (s *service) initCache(logger *slog.Logger) error {
	cacheCfg := querycache.InMemoryConfig()
	if s.config.CacheDir != "" {
		cacheCfg = querycache.DefaultConfig()
		cacheCfg.Path = s.config.CacheDir
	}
	cacheCfg.Logger = logger

	cache, err := querycache.Open(cacheCfg)
	if err != nil {
		return err
	}
	s.cache = cache
	return nil
}

// initRouter sets up the Gin engine with tracing middleware and all
// routes.
func (s *service) initRouter(analyzer *agents.Analyzer, planner *agents.Planner,
	executor *agents.Executor, scripter *agents.Scripter) {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("querycore-service"))

	routes.SetupRoutes(s.router, routes.Deps{
		Engine:        s.engine,
		Analyzer:      analyzer,
		Planner:       planner,
		Executor:      executor,
		Scripter:      scripter,
		Sessions:      s.sessions,
		Ingester:      s.ingester,
		EnableMetrics: *s.config.EnableMetrics,
	})
}

// cleanup releases all resources held by the service, newest first.
func (s *service) cleanup() {
	if s.janitor != nil {
		if err := s.janitor.Stop(); err != nil {
			slog.Warn("Session janitor stop error", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			slog.Warn("Analyzer cache close error", "error", err)
		}
	}
	if s.prices != nil {
		s.prices.Close()
	}
	if s.promptWatch != nil {
		s.promptWatch()
	}
	if s.prompts != nil {
		s.prompts.Close()
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
