// Copyright (C) 2025 CoinScope AI (dev@coinscope.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/CoinScopeAI/CoinScope/services/querycore/news"
)

// NewsIngester loads crawled articles into the news vector store.
// Satisfied by *news.Ingester.
type NewsIngester interface {
	Ingest(ctx context.Context, articles []news.Article) (int, error)
}

var _ NewsIngester = (*news.Ingester)(nil)

// IngestNews serves POST /v1/admin/news: batch article ingestion into
// the vector store. Ingestion runs outside query time; the query path
// itself never writes to the store.
func IngestNews(ingester NewsIngester) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "IngestNews")
		defer span.End()

		var articles []news.Article
		if err := c.BindJSON(&articles); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if len(articles) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no articles provided"})
			return
		}

		stored, err := ingester.Ingest(ctx, articles)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ingest failed")
			slog.Error("News ingestion failed", "articles", len(articles), "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store articles"})
			return
		}

		slog.Info("Ingested news articles", "articles", len(articles), "chunks", stored)
		c.JSON(http.StatusOK, gin.H{
			"status":        "success",
			"articles":      len(articles),
			"chunks_stored": stored,
		})
	}
}
