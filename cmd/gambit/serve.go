// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/GambitLocal/services/engine"
	gambitsync "github.com/AleutianAI/GambitLocal/services/sync"
	"github.com/AleutianAI/GambitLocal/services/sync/cache"
	"github.com/AleutianAI/GambitLocal/services/sync/hub"
	"github.com/AleutianAI/GambitLocal/services/sync/notify"
	"github.com/AleutianAI/GambitLocal/services/sync/observability"
	"github.com/AleutianAI/GambitLocal/services/sync/routes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync and analysis server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

// initTracer installs the global tracer provider. OTLP over gRPC when
// a collector endpoint is configured, stdout when GAMBIT_TRACE_STDOUT
// is set, otherwise the provider stays unset and spans are no-ops.
func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	var exporter sdktrace.SpanExporter
	if otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); otelEndpoint != "" {
		conn, err := grpc.NewClient(otelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, err
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, err
		}
	} else if os.Getenv("GAMBIT_TRACE_STDOUT") != "" {
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
	} else {
		return func(context.Context) {}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("gambit-sync")))
	if err != nil {
		return nil, err
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown the tracer provider", "error", err)
		}
	}, nil
}

// initMeter installs the global meter provider. The exporter registers
// with the default prometheus registry, so the otel instruments in the
// engine package surface on /metrics alongside the promauto ones.
func initMeter() (func(context.Context), error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return func(ctx context.Context) {
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown the meter provider", "error", err)
		}
	}, nil
}

// unavailableSearcher stands in until a game database layer is
// attached. Searches fail cleanly instead of panicking on a nil
// collaborator.
type unavailableSearcher struct{}

func (unavailableSearcher) SearchPosition(context.Context, cache.GameQuery, string) (cache.Entry, error) {
	return cache.Entry{}, errors.New("no game database attached")
}

func runServe() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := gambitsync.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the tracer: %v", err)
	}
	defer cleanup(context.Background())

	meterCleanup, err := initMeter()
	if err != nil {
		log.Fatalf("failed to setup the meter provider: %v", err)
	}
	defer meterCleanup(context.Background())

	observability.InitMetrics()

	sink := notify.SlogSink{}
	registry := engine.NewRegistry()
	admission := engine.NewAdmissionController(cfg.AnalysisSlots)
	analyzer := engine.NewAnalyzer(registry, admission, sink)
	statsCache := cache.NewStatsCache()
	sessionHub := hub.New(sink)

	router := gin.Default()
	router.Use(otelgin.Middleware("gambit-sync"))
	routes.SetupRoutes(router, routes.Deps{
		Hub:            sessionHub,
		Sink:           sink,
		Registry:       registry,
		Analyzer:       analyzer,
		Cache:          statsCache,
		Searcher:       unavailableSearcher{},
		EngineLogLines: cfg.EngineLogLines,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		slog.Info("Starting the sync server", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}

	sessionHub.Close()
	admission.Close()
	registry.StopAll()
	slog.Info("Shutdown complete")
}
