// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for engine operations.
var (
	tracer = otel.Tracer("gambit.engine")
	meter  = otel.Meter("gambit.engine")
)

// Metrics for engine operations.
var (
	spawnTotal       metric.Int64Counter
	analysisTotal    metric.Int64Counter
	analysisDuration metric.Float64Histogram
	admissionWait    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		spawnTotal, err = meter.Int64Counter(
			"engine_spawn_total",
			metric.WithDescription("Total number of engine process spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisTotal, err = meter.Int64Counter(
			"engine_analysis_total",
			metric.WithDescription("Total number of analysis jobs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analysisDuration, err = meter.Float64Histogram(
			"engine_analysis_duration_seconds",
			metric.WithDescription("Duration of analysis jobs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		admissionWait, err = meter.Float64Histogram(
			"engine_admission_wait_seconds",
			metric.WithDescription("Time spent waiting for an analysis permit"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startAnalysisSpan creates a span for one analysis job.
func startAnalysisSpan(ctx context.Context, key Key, jobID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analyzer.BestMoves",
		trace.WithAttributes(
			attribute.String("engine.id", key.Engine),
			attribute.String("engine.session", key.Session),
			attribute.String("engine.job_id", jobID),
		),
	)
}

// recordSpawn records an engine spawn attempt.
func recordSpawn(ctx context.Context, command string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	spawnTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.Bool("success", success),
	))
}

// recordAnalysis records the outcome of one analysis job.
func recordAnalysis(ctx context.Context, key Key, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("engine", key.Engine),
		attribute.String("outcome", outcome),
	)
	analysisTotal.Add(ctx, 1, attrs)
	analysisDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordAdmissionWait records how long a job waited for a permit.
func recordAdmissionWait(ctx context.Context, wait time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	admissionWait.Record(ctx, wait.Seconds())
}
