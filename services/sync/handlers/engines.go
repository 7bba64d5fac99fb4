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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/GambitLocal/services/engine"
)

// goRequest is the body of a best-moves analysis request.
type goRequest struct {
	Command string   `json:"command" binding:"required"`
	Args    []string `json:"args"`
	FEN     string   `json:"fen"`
	Depth   int      `json:"depth"`
	MultiPV int      `json:"multipv"`
}

func engineKey(c *gin.Context) engine.Key {
	return engine.Key{
		Engine:  c.Param("engine"),
		Session: c.Param("session"),
	}
}

// HandleGo runs one admitted best-moves job and responds with the
// engine's final move. Variation updates stream to the notification
// sink while the request is in flight. logLines sizes the diagnostic
// ring when this request spawns the engine.
func HandleGo(analyzer *engine.Analyzer, logLines int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req goRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid analysis request: " + err.Error()})
			return
		}

		key := engineKey(c)
		move, err := analyzer.BestMoves(c.Request.Context(), key,
			engine.Config{Command: req.Command, Args: req.Args, LogLines: logLines},
			engine.AnalysisRequest{FEN: req.FEN, Depth: req.Depth, MultiPV: req.MultiPV},
		)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, engine.ErrAdmissionClosed),
				errors.Is(err, engine.ErrRegistryClosed):
				status = http.StatusServiceUnavailable
			case errors.Is(err, engine.ErrSpawnFailed):
				status = http.StatusBadRequest
			case errors.Is(err, context.Canceled):
				// Client went away mid-analysis.
				status = 499
			case errors.Is(err, context.DeadlineExceeded):
				status = http.StatusGatewayTimeout
			}
			slog.Warn("Analysis failed",
				slog.String("engine", key.Engine),
				slog.String("session", key.Session),
				slog.String("error", err.Error()),
			)
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"bestmove": move})
	}
}

// HandleStop asks the engine to end its current search without
// terminating the process.
func HandleStop(analyzer *engine.Analyzer) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := engineKey(c)
		if err := analyzer.Stop(key); err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	}
}

// HandleKill terminates one engine session immediately. There is no
// quit handshake; clients wanting a graceful search stop use the stop
// endpoint first.
func HandleKill(registry *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := engineKey(c)
		if err := registry.Kill(key); err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		slog.Info("Engine session killed",
			slog.String("engine", key.Engine),
			slog.String("session", key.Session),
		)
		c.JSON(http.StatusOK, gin.H{"status": "killed"})
	}
}

// HandleKillAll terminates every engine session and closes the
// registry to new spawns.
func HandleKillAll(registry *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.StopAll()
		c.JSON(http.StatusOK, gin.H{"status": "killed"})
	}
}

// HandleLogs returns the diagnostic ring for one engine session.
func HandleLogs(registry *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		lines, err := registry.Logs(engineKey(c))
		if err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lines": lines})
	}
}

// HandleClearLogs discards the diagnostic ring for one engine session.
func HandleClearLogs(registry *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := registry.ClearLogs(engineKey(c)); err != nil {
			c.JSON(engineErrStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	}
}

func engineErrStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrEngineNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrRegistryClosed),
		errors.Is(err, engine.ErrAdmissionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrProcessTerminated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
