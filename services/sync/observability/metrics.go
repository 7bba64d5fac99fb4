// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the sync
// server.
//
// # Description
//
// Counters and gauges covering the WebSocket hub (sessions, routed
// messages, broadcast fan-out) and FEN derivation. Exposed via the
// /metrics endpoint; all operations are thread-safe through
// Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "gambit"

// Subsystem for sync server metrics.
const syncSubsystem = "sync"

// SyncMetrics holds all Prometheus metrics for the sync server.
//
// Initialize once at startup via InitMetrics(); recording helpers
// no-op until then so packages stay testable without a registry.
type SyncMetrics struct {
	// ActiveSessions tracks currently connected WebSocket sessions.
	ActiveSessions prometheus.Gauge

	// MessagesTotal counts routed inbound messages.
	// Labels: type (board_update, new_game, ping, legacy, unknown, invalid)
	MessagesTotal *prometheus.CounterVec

	// BroadcastsTotal counts broadcast fan-outs (one per message, not
	// per recipient).
	BroadcastsTotal prometheus.Counter

	// BroadcastDropsTotal counts per-recipient delivery failures.
	BroadcastDropsTotal prometheus.Counter

	// DerivationsTotal counts FEN derivations by status.
	// Labels: status (ok, error)
	DerivationsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *SyncMetrics

// InitMetrics creates and registers all sync server metrics. Call once
// at application startup.
func InitMetrics() *SyncMetrics {
	if DefaultMetrics != nil {
		return DefaultMetrics
	}

	DefaultMetrics = &SyncMetrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: syncSubsystem,
			Name:      "active_sessions",
			Help:      "Currently connected WebSocket sessions.",
		}),
		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: syncSubsystem,
			Name:      "messages_total",
			Help:      "Routed inbound WebSocket messages by type.",
		}, []string{"type"}),
		BroadcastsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: syncSubsystem,
			Name:      "broadcasts_total",
			Help:      "Broadcast fan-outs performed by the hub.",
		}),
		BroadcastDropsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: syncSubsystem,
			Name:      "broadcast_drops_total",
			Help:      "Per-recipient broadcast delivery failures.",
		}),
		DerivationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: syncSubsystem,
			Name:      "fen_derivations_total",
			Help:      "FEN derivations by status.",
		}, []string{"status"}),
	}
	return DefaultMetrics
}

// =============================================================================
// Recording helpers (nil-safe)
// =============================================================================

// SessionOpened records a new hub session.
func SessionOpened() {
	if DefaultMetrics != nil {
		DefaultMetrics.ActiveSessions.Inc()
	}
}

// SessionClosed records a departed hub session.
func SessionClosed() {
	if DefaultMetrics != nil {
		DefaultMetrics.ActiveSessions.Dec()
	}
}

// MessageRouted records one routed inbound message.
func MessageRouted(msgType string) {
	if DefaultMetrics != nil {
		DefaultMetrics.MessagesTotal.WithLabelValues(msgType).Inc()
	}
}

// BroadcastSent records one broadcast fan-out.
func BroadcastSent() {
	if DefaultMetrics != nil {
		DefaultMetrics.BroadcastsTotal.Inc()
	}
}

// BroadcastDropped records a per-recipient delivery failure.
func BroadcastDropped() {
	if DefaultMetrics != nil {
		DefaultMetrics.BroadcastDropsTotal.Inc()
	}
}

// DerivationDone records a FEN derivation outcome.
func DerivationDone(ok bool) {
	if DefaultMetrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	DefaultMetrics.DerivationsTotal.WithLabelValues(status).Inc()
}
