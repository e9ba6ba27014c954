// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command counsel serves the legal research API.
//
// Routes:
//
//	POST /v1/research/answer - run the research graph for one question
//	POST /v1/ingest/pdi - ingest policy pages into the corpus index
//	GET  /health - liveness probe
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianCounsel/pkg/logging"
	"github.com/AleutianAI/AleutianCounsel/services/ingest"
	"github.com/AleutianAI/AleutianCounsel/services/llm"
	"github.com/AleutianAI/AleutianCounsel/services/research"
	"github.com/AleutianAI/AleutianCounsel/services/vector"
)

// initTracer wires the OTLP trace exporter. Returns a nil cleanup when no
// collector endpoint is configured; spans then stay in-process no-ops.
func initTracer(ctx context.Context) (func(context.Context), error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("counsel-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("COUNSEL_LOG_LEVEL")),
		LogDir:  os.Getenv("COUNSEL_LOG_DIR"),
		Service: "counsel",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx := context.Background()
	cleanup, err := initTracer(ctx)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	if cleanup != nil {
		defer cleanup(ctx)
	}

	researchCfg, err := research.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid research configuration: %v", err)
	}

	llmClient, err := llm.New(llm.Config{
		BaseURL:     os.Getenv("COUNSEL_LLM_BASE_URL"),
		APIKey:      os.Getenv("COUNSEL_LLM_API_KEY"),
		AnswerModel: researchCfg.Model,
		EmbedModel:  os.Getenv("COUNSEL_EMBED_MODEL"),
	})
	if err != nil {
		log.Fatalf("failed to create LLM client: %v", err)
	}

	vectorClient, err := vector.New(vector.Config{
		Host:   os.Getenv("WEAVIATE_HOST"),
		Scheme: os.Getenv("WEAVIATE_SCHEME"),
		APIKey: os.Getenv("WEAVIATE_API_KEY"),
	})
	if err != nil {
		log.Fatalf("failed to create vector client: %v", err)
	}
	if err := vectorClient.EnsureSchema(ctx); err != nil {
		slog.Warn("Corpus schema check failed; continuing, queries may fail", "error", err)
	}

	caseLaw := research.NewCaseLawClient(research.CaseLawConfig{
		BaseURL: os.Getenv("CASE_LAW_SERVICE_URL"),
	}, slog.Default())
	if !caseLaw.Enabled() {
		slog.Info("Case-law service not configured; live case-law search disabled")
	}

	retriever := research.NewVectorRetriever(llmClient, vectorClient, slog.Default())
	runner, err := research.NewRunner(research.Dependencies{
		Retriever:   retriever,
		Generator:   llmClient,
		CaseLaw:     caseLaw,
		Logger:      slog.Default(),
		TraceLogDir: researchCfg.TraceLogDir,
	})
	if err != nil {
		log.Fatalf("failed to create research runner: %v", err)
	}

	pipeline := ingest.NewPipeline(
		ingest.NewFetcher(nil),
		llmClient,
		vectorClient,
		ingest.PipelineConfig{},
		slog.Default(),
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("counsel-service"))

	router.POST("/v1/research/answer", research.HandleAnswer(runner, researchCfg))
	router.POST("/v1/ingest/pdi", ingest.HandleIngestPDI(pipeline))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	port := os.Getenv("COUNSEL_PORT")
	if port == "" {
		port = "12310"
	}
	slog.Info("Counsel service listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
