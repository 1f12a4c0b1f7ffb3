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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/CoinScopeAI/CoinScope/services/querycore/session"
)

// GetSession serves GET /v1/sessions/:sessionId.
func GetSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		rec, found, err := store.Load(c.Request.Context(), sessionID)
		if err != nil {
			slog.Error("Failed to load session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// GetSessionMessages serves GET /v1/sessions/:sessionId/messages. The
// optional limit query parameter caps the trailing message count; the
// store default applies otherwise.
func GetSessionMessages(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		messages, err := store.Messages(c.Request.Context(), sessionID, limit)
		if err != nil {
			slog.Error("Failed to load session messages", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"messages":   messages,
		})
	}
}

// DeleteSession serves DELETE /v1/sessions/:sessionId. Deleting a
// session that does not exist succeeds; the outcome is the same.
func DeleteSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "session_id", sessionID)

		if err := store.Delete(c.Request.Context(), sessionID); err != nil {
			slog.Error("Failed to delete session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
