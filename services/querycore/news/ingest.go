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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel/codes"
)

// Chunking parameters for article bodies.
const (
	ingestChunkSize    = 1000
	ingestChunkOverlap = 200
)

var newsSeparators = []string{"\n\n", "\n", " ", ""}

// Article is one crawled news item submitted for ingestion.
type Article struct {
	Title               string `json:"title"`
	URL                 string `json:"url"`
	Source              string `json:"source"`
	Content             string `json:"content"`
	PublishDate         int64  `json:"publish_date"`
	PublishDateReadable string `json:"publish_date_readable"`
	CreatedAt           string `json:"created_at"`
}

// Ingester splits, embeds and stores articles into the news class.
// Ingestion never runs on the query path.
type Ingester struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

// NewIngester creates an ingester over an existing client.
func NewIngester(client *weaviate.Client, embedder EmbeddingProvider) *Ingester {
	return &Ingester{
		client:   client,
		embedder: embedder,
	}
}

// pendingChunk pairs a split chunk with its article and ordinal.
type pendingChunk struct {
	article Article
	text    string
	ordinal int
}

// Ingest chunks the given articles, embeds every chunk and writes them
// through the Weaviate objects batcher. Object IDs derive from the
// article URL and chunk ordinal, so re-ingesting an article replaces
// its chunks instead of duplicating them. Returns the number of chunks
// the store accepted.
func (ing *Ingester) Ingest(ctx context.Context, articles []Article) (int, error) {
	ctx, span := tracer.Start(ctx, "Ingest")
	defer span.End()

	splitter := newsSplitter()

	var pending []pendingChunk
	for _, art := range articles {
		if art.Content == "" {
			slog.Warn("Skipping article with empty content", "url", art.URL)
			continue
		}
		parts, err := splitter.SplitText(art.Content)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "split failed")
			return 0, fmt.Errorf("failed to split article %q: %w", art.URL, err)
		}
		for i, p := range parts {
			pending = append(pending, pendingChunk{article: art, text: p, ordinal: i})
		}
	}
	if len(pending) == 0 {
		slog.Warn("No chunks produced from ingest request", "articles", len(articles))
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.text
	}

	vectors, err := embedAll(ctx, ing.embedder, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return 0, err
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	objects := make([]*models.Object, len(pending))
	for i, p := range pending {
		objects[i] = newsObject(p.article, p.text, p.ordinal, vectors[i])
	}

	batcher := ing.client.Batch().ObjectsBatcher()
	batcher.WithObjects(objects...)

	resp, err := batcher.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch import failed")
		return 0, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "error", errItem.Message)
			}
		} else {
			slog.Warn("Failed Weaviate batch item, no error provided")
		}
	}

	slog.Info("News ingest complete",
		"articles", len(articles),
		"chunks", len(pending),
		"stored", stored)
	return stored, nil
}

// newsObject builds the Weaviate object for one chunk. The ID is a
// UUID derived from the article URL (or the chunk text when the URL is
// empty) plus the chunk ordinal.
func newsObject(art Article, chunk string, ordinal int, vector []float32) *models.Object {
	seed := art.URL
	if seed == "" {
		seed = chunk
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", seed, ordinal)))
	docUUID, _ := uuid.FromBytes(hash[:16])

	createdAt := art.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format("2006-01-02")
	}

	return &models.Object{
		Class:  newsClass,
		ID:     strfmt.UUID(docUUID.String()),
		Vector: vector,
		Properties: map[string]interface{}{
			"title":                 art.Title,
			"document":              chunk,
			"source":                art.Source,
			"url":                   art.URL,
			"created_at":            createdAt,
			"publish_date":          art.PublishDate,
			"publish_date_readable": art.PublishDateReadable,
		},
	}
}

// embedAll uses one batch call when the provider supports it and falls
// back to per-chunk embedding otherwise.
func embedAll(ctx context.Context, embedder EmbeddingProvider, texts []string) ([][]float32, error) {
	if batcher, ok := embedder.(BatchEmbeddingProvider); ok {
		return batcher.BatchEmbed(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func newsSplitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ingestChunkSize),
		textsplitter.WithChunkOverlap(ingestChunkOverlap),
		textsplitter.WithSeparators(newsSeparators),
	)
}
