// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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

	"github.com/AleutianAI/GambitLocal/services/sync/cache"
)

// PositionSearcher computes position statistics against one game
// database. Implementations live with the database layer; results are
// memoized by the stats cache.
type PositionSearcher interface {
	SearchPosition(ctx context.Context, query cache.GameQuery, dbPath string) (cache.Entry, error)
}

// searchRequest is the body of a position-statistics request.
type searchRequest struct {
	Query  cache.GameQuery `json:"query" binding:"required"`
	DBPath string          `json:"db_path" binding:"required"`
}

// HandleSearchPosition serves position statistics through the
// read-through cache. Concurrent identical queries collapse into one
// computation.
func HandleSearchPosition(statsCache *cache.StatsCache, searcher PositionSearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search request: " + err.Error()})
			return
		}

		key := cache.Key{Query: req.Query, DBPath: req.DBPath}
		entry, err := statsCache.GetOrCompute(c.Request.Context(), key,
			func(ctx context.Context) (cache.Entry, error) {
				return searcher.SearchPosition(ctx, req.Query, req.DBPath)
			})
		if err != nil {
			slog.Warn("Position search failed",
				slog.String("db_path", req.DBPath),
				slog.String("fen", req.Query.FEN),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, entry)
	}
}

// HandleInvalidateCache drops every cached entry for one database
// path. Called after database writes make cached statistics stale.
func HandleInvalidateCache(statsCache *cache.StatsCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbPath := c.Query("path")
		if dbPath == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter required"})
			return
		}

		removed := statsCache.InvalidatePath(dbPath)
		slog.Info("Position cache invalidated",
			slog.String("db_path", dbPath),
			slog.Int("removed", removed),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "removed": removed})
	}
}
