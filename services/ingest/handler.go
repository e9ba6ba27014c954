// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var handlerTracer = otel.Tracer("aleutian.counsel.ingest.handlers")

// ingestRequestBody is the POST /v1/ingest/pdi body. A single url and a
// urls list may both be supplied.
type ingestRequestBody struct {
	URL    string   `json:"url"`
	URLs   []string `json:"urls"`
	DryRun bool     `json:"dryRun"`
}

// HandleIngestPDI ingests one or more policy pages into the corpus index.
func HandleIngestPDI(pipeline *Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleIngestPDI")
		defer span.End()

		var body ingestRequestBody
		if err := c.BindJSON(&body); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ingest request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		urls := body.URLs
		if body.URL != "" {
			urls = append([]string{body.URL}, urls...)
		}
		resolved := ResolveURLs(urls)
		if len(resolved) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No valid URLs to ingest"})
			return
		}
		span.SetAttributes(
			attribute.Int("ingest.url_count", len(resolved)),
			attribute.Bool("ingest.dry_run", body.DryRun),
		)

		report := pipeline.Ingest(ctx, Request{URLs: resolved, DryRun: body.DryRun})
		span.SetAttributes(
			attribute.Int("ingest.ingested", report.Ingested),
			attribute.Int("ingest.skipped", report.Skipped),
			attribute.Int("ingest.errors", len(report.Errors)),
		)
		c.JSON(http.StatusOK, report)
	}
}
