// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "sort"

// NewsChunk is one ranked passage returned by semantic search.
//
// Similarity is 1 - vector distance, so higher is more relevant.
// PublishDate is an epoch timestamp; PublishDateReadable is the same
// date pre-formatted by the store for prompts and display.
type NewsChunk struct {
	Title               string  `json:"title"`
	URL                 string  `json:"url,omitempty"`
	Source              string  `json:"source,omitempty"`
	CreatedAt           string  `json:"created_at,omitempty"`
	PublishDate         int64   `json:"publish_date,omitempty"`
	PublishDateReadable string  `json:"publish_date_readable,omitempty"`
	Query               string  `json:"query,omitempty"`
	Distance            float64 `json:"distance,omitempty"`
	Similarity          float64 `json:"similarity_score"`
	Document            string  `json:"document"`
}

// DisplayDate returns the best available date string for prompts.
func (n NewsChunk) DisplayDate() string {
	if n.PublishDateReadable != "" {
		return n.PublishDateReadable
	}
	return n.CreatedAt
}

// SortChunksBySimilarity orders chunks by similarity descending, in
// place. The sort is stable: chunks with equal similarity keep their
// insertion order, which for executor buckets is the declared order of
// the searches that produced them.
func SortChunksBySimilarity(chunks []NewsChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Similarity > chunks[j].Similarity
	})
}

// TopChunks returns at most n chunks by similarity descending without
// modifying the input slice.
func TopChunks(chunks []NewsChunk, n int) []NewsChunk {
	if n <= 0 {
		return nil
	}
	out := make([]NewsChunk, len(chunks))
	copy(out, chunks)
	SortChunksBySimilarity(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
