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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/GambitLocal/services/sync/hub"
)

var upgrader = websocket.Upgrader{
	// The server binds to loopback by default; origin filtering adds
	// nothing there and breaks local GUI shells with file:// origins.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWS upgrades the connection and hands it to the hub for its
// lifetime.
func HandleWS(h *hub.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		h.HandleConn(conn)
	}
}
