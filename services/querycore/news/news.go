// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package news provides semantic search over ingested news passages.
//
// A search embeds the query text, runs nearest-neighbour retrieval
// against the vector store, then post-filters by similarity threshold,
// publish-date window and source before ranking the survivors by
// similarity descending.
package news

import (
	"context"

	"github.com/CoinScopeAI/CoinScope/services/querycore/datatypes"
)

// EmbeddingProvider computes a vector embedding for a piece of text.
//
// Implementations wrap an embedding model endpoint (OpenAI or an
// API-compatible local server). The returned vector must have the same
// dimensionality as the vectors stored alongside the news passages.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbeddingProvider is implemented by embedders that can embed
// several texts in one round trip. The ingest path prefers it over
// per-chunk Embed calls when available.
type BatchEmbeddingProvider interface {
	EmbeddingProvider
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher retrieves ranked news passages for a keyword query.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]datatypes.NewsChunk, error)
}

// SearchOptions controls retrieval breadth and filtering for one search.
type SearchOptions struct {
	// TopK caps the number of returned passages. Non-positive values
	// fall back to datatypes.DefaultSearchTopK.
	TopK int

	// SimilarityThreshold drops passages scoring below it. Similarity
	// is 1 - vector distance and can be negative, so a negative
	// threshold is valid and keeps weak matches.
	SimilarityThreshold float64

	// PivotDate is an epoch timestamp in seconds. When positive the
	// search is restricted to a publish-date window around it, sized
	// by DateRange. Zero disables date filtering.
	PivotDate int64

	// DateRange sizes the window around PivotDate: day is +/-1 day,
	// week +/-7 days, month +/-30 days. Unrecognized values fall back
	// to the month window.
	DateRange string

	// Source restricts results to a single news source when non-empty.
	Source string
}

// OptionsFrom builds SearchOptions from auto-chained search parameters.
func OptionsFrom(p datatypes.SearchParams) SearchOptions {
	return SearchOptions{
		TopK:                p.TopK,
		SimilarityThreshold: p.SimilarityThreshold,
		PivotDate:           p.PivotDate,
		DateRange:           p.DateRange,
	}
}

// limit returns the effective result cap.
func (o SearchOptions) limit() int {
	if o.TopK <= 0 {
		return datatypes.DefaultSearchTopK
	}
	return o.TopK
}

const (
	daySeconds   = int64(24 * 60 * 60)
	weekSeconds  = 7 * daySeconds
	monthSeconds = 30 * daySeconds
)

// searchWindow returns the inclusive [start, stop] publish-date window
// around pivot for the given range name.
func searchWindow(pivot int64, rangeName string) (start, stop int64) {
	span := monthSeconds
	switch rangeName {
	case datatypes.RangeDay:
		span = daySeconds
	case datatypes.RangeWeek:
		span = weekSeconds
	case datatypes.RangeMonth:
		span = monthSeconds
	}
	return pivot - span, pivot + span
}

// rankAndFilter applies the similarity threshold, orders survivors by
// similarity descending and caps the result at limit. The input slice
// is not modified.
func rankAndFilter(chunks []datatypes.NewsChunk, threshold float64, limit int) []datatypes.NewsChunk {
	kept := make([]datatypes.NewsChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Similarity >= threshold {
			kept = append(kept, c)
		}
	}
	datatypes.SortChunksBySimilarity(kept)
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
