// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/GambitLocal/services/engine"
	"github.com/AleutianAI/GambitLocal/services/sync/cache"
	"github.com/AleutianAI/GambitLocal/services/sync/handlers"
	"github.com/AleutianAI/GambitLocal/services/sync/hub"
	"github.com/AleutianAI/GambitLocal/services/sync/notify"
)

// Deps carries the wired collaborators the routes need.
type Deps struct {
	Hub      *hub.Hub
	Sink     notify.Sink
	Registry *engine.Registry
	Analyzer *engine.Analyzer
	Cache    *cache.StatsCache
	Searcher handlers.PositionSearcher

	// EngineLogLines sizes each spawned engine's diagnostic ring.
	EngineLogLines int
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Legacy top-level endpoints predate the v1 group and keep their
	// original paths for client compatibility.
	router.POST("/fen", handlers.HandleFen(deps.Sink))
	router.GET("/ws", handlers.HandleWS(deps.Hub))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		engines := v1.Group("/engines")
		{
			engines.POST("/:engine/:session/go", handlers.HandleGo(deps.Analyzer, deps.EngineLogLines))
			engines.POST("/:engine/:session/stop", handlers.HandleStop(deps.Analyzer))
			engines.DELETE("/:engine/:session", handlers.HandleKill(deps.Registry))
			engines.DELETE("", handlers.HandleKillAll(deps.Registry))
			engines.GET("/:engine/:session/logs", handlers.HandleLogs(deps.Registry))
			engines.DELETE("/:engine/:session/logs", handlers.HandleClearLogs(deps.Registry))
		}

		system := v1.Group("/system")
		{
			system.GET("/features", handlers.HandleCPUFeatures)
			system.GET("/memory", handlers.HandleMemory)
		}

		positions := v1.Group("/positions")
		{
			positions.POST("/search", handlers.HandleSearchPosition(deps.Cache, deps.Searcher))
			positions.DELETE("/cache", handlers.HandleInvalidateCache(deps.Cache))
		}
	}
}
