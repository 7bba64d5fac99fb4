// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin HTTP handlers for the sync server.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/GambitLocal/services/sync/fen"
	"github.com/AleutianAI/GambitLocal/services/sync/notify"
	"github.com/AleutianAI/GambitLocal/services/sync/observability"
)

// HandleFen accepts a board snapshot, derives its position, and emits
// the result to the notification sink.
func HandleFen(sink notify.Sink) gin.HandlerFunc {
	return func(c *gin.Context) {
		var snap fen.BoardSnapshot
		if err := c.ShouldBindJSON(&snap); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid board snapshot: " + err.Error()})
			return
		}

		result, err := fen.Derive(snap)
		if err != nil {
			observability.DerivationDone(false)
			slog.Warn("Position derivation failed",
				slog.String("game_id", snap.GameID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		observability.DerivationDone(true)

		sink.Emit(notify.TopicFenUpdate, result.FEN)
		sink.Emit(notify.TopicBoardState, result)

		slog.Info("Position derived",
			slog.String("game_id", result.GameID),
			slog.String("fen", result.FEN),
		)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
