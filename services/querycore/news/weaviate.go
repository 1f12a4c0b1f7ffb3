// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

var tracer = otel.Tracer("coinscope.news.weaviate")

// newsClass is the Weaviate class holding ingested news passages.
const newsClass = "NewsChunk"

// WeaviateConfig holds connection settings for the news vector store.
type WeaviateConfig struct {
	URL string
}

// WeaviateConfigFromEnv reads WEAVIATE_SERVICE_URL, defaulting to a
// local development instance.
func WeaviateConfigFromEnv() WeaviateConfig {
	cfg := WeaviateConfig{URL: "http://localhost:8080"}
	if v := os.Getenv("WEAVIATE_SERVICE_URL"); v != "" {
		cfg.URL = v
	}
	return cfg
}

// NewWeaviateClient connects to the Weaviate instance named by cfg.
func NewWeaviateClient(cfg WeaviateConfig) (*weaviate.Client, error) {
	parsedURL, err := url.Parse(cfg.URL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", cfg.URL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	client, err := weaviate.NewClient(clientConf)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return client, nil
}

// WeaviateSearcher runs nearest-neighbour retrieval against the
// NewsChunk class using client-side embeddings.
//
// Safe for concurrent use.
type WeaviateSearcher struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

var _ Searcher = (*WeaviateSearcher)(nil)

// NewWeaviateSearcher creates a searcher over an existing client.
func NewWeaviateSearcher(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateSearcher {
	return &WeaviateSearcher{
		client:   client,
		embedder: embedder,
	}
}

// Search implements Searcher.
//
// The store is asked for the top K nearest passages; the similarity
// threshold and final ordering are applied client side, so a search
// can legitimately return fewer than K passages.
func (s *WeaviateSearcher) Search(ctx context.Context, query string, opts SearchOptions) ([]datatypes.NewsChunk, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	if query == "" {
		return nil, fmt.Errorf("search query is empty")
	}

	slog.Debug("Searching news passages",
		"query", query,
		"topK", opts.limit(),
		"threshold", opts.SimilarityThreshold)

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Distance is requested instead of certainty so the similarity
	// score keeps the full [-1, 1] cosine range.
	fields := []graphql.Field{
		{Name: "title"},
		{Name: "document"},
		{Name: "source"},
		{Name: "url"},
		{Name: "created_at"},
		{Name: "publish_date"},
		{Name: "publish_date_readable"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(newsClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(opts.limit())

	if where := buildWhere(opts); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := parseGraphQL[newsQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	chunks := chunksFromResults(parsed.Get.NewsChunk, query)
	ranked := rankAndFilter(chunks, opts.SimilarityThreshold, opts.limit())
	slog.Debug("News search complete", "retrieved", len(chunks), "kept", len(ranked))
	return ranked, nil
}

// buildWhere assembles the publish-date and source filters. Returns
// nil when opts request no filtering.
func buildWhere(opts SearchOptions) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if opts.PivotDate > 0 {
		start, stop := searchWindow(opts.PivotDate, opts.DateRange)
		operands = append(operands,
			filters.Where().
				WithPath([]string{"publish_date"}).
				WithOperator(filters.GreaterThanEqual).
				WithValueInt(start),
			filters.Where().
				WithPath([]string{"publish_date"}).
				WithOperator(filters.LessThanEqual).
				WithValueInt(stop))
	}

	if opts.Source != "" {
		operands = append(operands,
			filters.Where().
				WithPath([]string{"source"}).
				WithOperator(filters.Equal).
				WithValueString(opts.Source))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

// newsQueryResponse matches the GraphQL Get response for the news class.
type newsQueryResponse struct {
	Get struct {
		NewsChunk []newsResult `json:"NewsChunk"`
	} `json:"Get"`
}

// newsResult is a single raw row from a news search.
type newsResult struct {
	Title               string `json:"title"`
	Document            string `json:"document"`
	Source              string `json:"source"`
	URL                 string `json:"url"`
	CreatedAt           string `json:"created_at"`
	PublishDate         int64  `json:"publish_date"`
	PublishDateReadable string `json:"publish_date_readable"`
	Additional          struct {
		Distance *float32 `json:"distance"`
	} `json:"_additional"`
}

// chunksFromResults converts raw GraphQL rows into NewsChunk values,
// tagging each with the query that produced it. A row without a
// distance scores 0 rather than a perfect 1 so unranked rows sink.
func chunksFromResults(rows []newsResult, query string) []datatypes.NewsChunk {
	chunks := make([]datatypes.NewsChunk, 0, len(rows))
	for _, r := range rows {
		distance := 0.0
		similarity := 0.0
		if r.Additional.Distance != nil {
			distance = float64(*r.Additional.Distance)
			similarity = 1 - distance
		}
		chunks = append(chunks, datatypes.NewsChunk{
			Title:               r.Title,
			URL:                 r.URL,
			Source:              r.Source,
			CreatedAt:           r.CreatedAt,
			PublishDate:         r.PublishDate,
			PublishDateReadable: r.PublishDateReadable,
			Query:               query,
			Distance:            distance,
			Similarity:          similarity,
			Document:            r.Document,
		})
	}
	return chunks
}

// parseGraphQL converts Weaviate's dynamic response payload into a
// typed struct via a JSON round trip.
func parseGraphQL[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}
	return &result, nil
}

// NewsSchema returns the class definition for stored news passages.
// Vectors are supplied by the ingest pipeline, so the vectorizer is
// none.
func NewsSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       newsClass,
		Description: "A chunk of a crypto news article with its embedding.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Headline of the source article.",
				Tokenization: "word",
			},
			{
				Name:         "document",
				DataType:     []string{"text"},
				Description:  "The chunk text used for retrieval and summarization.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Publisher feed the article came from.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "url",
				DataType:     []string{"text"},
				Description:  "Link to the original article.",
				Tokenization: "field",
			},
			{
				Name:         "created_at",
				DataType:     []string{"text"},
				Description:  "Ingestion date in YYYY-MM-DD form.",
				Tokenization: "field",
			},
			{
				Name:            "publish_date",
				DataType:        []string{"int"},
				Description:     "Publication time as epoch seconds.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:         "publish_date_readable",
				DataType:     []string{"text"},
				Description:  "Publication date pre-formatted for display.",
				Tokenization: "field",
			},
		},
	}
}

// EnsureSchema creates the news class when it does not exist yet.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	class := NewsSchema()

	_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
	if err == nil {
		slog.Info("Schema already exists", "class", class.Class)
		return nil
	}

	slog.Info("Schema not found, creating it", "class", class.Class)
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
	}
	slog.Info("Successfully created schema", "class", class.Class)
	return nil
}
