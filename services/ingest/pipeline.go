// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest turns immigration policy pages into embedded corpus
// chunks.
//
// The pipeline is fetch -> parse -> sectionize -> chunk -> embed ->
// upsert. Per-URL failures are recorded and skipped; one bad page never
// aborts a batch.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCounsel/services/vector"
)

// SourceTypePDI marks chunks ingested from IRCC program delivery
// instruction pages.
const SourceTypePDI = "ircc_pdi_html"

// DefaultUpsertBatchSize is objects per index write.
const DefaultUpsertBatchSize = 100

// ChunkUpserter writes embedded records into the corpus index.
type ChunkUpserter interface {
	UpsertBatch(ctx context.Context, records []vector.Record, batchSize int) (int, []vector.BatchError, error)
}

// IngestError is one per-URL, per-stage failure.
type IngestError struct {
	URL     string `json:"url"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Report summarizes one ingestion run.
type Report struct {
	Status   string        `json:"status"`
	Ingested int           `json:"ingested"`
	Skipped  int           `json:"skipped"`
	Errors   []IngestError `json:"errors"`
	Stats    struct {
		TotalSections int `json:"totalSections"`
		TotalChunks   int `json:"totalChunks"`
	} `json:"stats"`
}

// Request is one ingestion request.
type Request struct {
	// URLs are the pages to ingest. Duplicates and invalid entries are
	// dropped.
	URLs []string `json:"urls"`

	// DryRun parses and chunks without embedding or writing.
	DryRun bool `json:"dryRun"`
}

// ResolveURLs normalizes and dedupes the requested URLs, preserving
// order.
func ResolveURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	resolved := make([]string, 0, len(urls))
	for _, raw := range urls {
		normalized := NormalizeURL(raw, nil)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		resolved = append(resolved, normalized)
	}
	return resolved
}

// DocHash derives the short document hash for a canonical URL.
func DocHash(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])[:12]
}

// ChunkID builds the stable chunk identifier for one chunk of a document.
func ChunkID(docHash string, sectionIndex, chunkIndex int) string {
	return fmt.Sprintf("pdi|%s|%d|%d", docHash, sectionIndex, chunkIndex)
}

// PipelineConfig tunes a Pipeline.
type PipelineConfig struct {
	Chunk           ChunkOptions
	Embed           EmbedOptions
	UpsertBatchSize int
}

func (c *PipelineConfig) applyDefaults() {
	if c.UpsertBatchSize < 1 {
		c.UpsertBatchSize = DefaultUpsertBatchSize
	}
}

// Pipeline runs the full page-to-index ingestion flow.
//
// Thread Safety: safe for concurrent use.
type Pipeline struct {
	fetcher  *Fetcher
	embedder BatchEmbedder
	index    ChunkUpserter
	cfg      PipelineConfig
	log      *slog.Logger
}

// NewPipeline wires a Pipeline from its stages.
func NewPipeline(fetcher *Fetcher, embedder BatchEmbedder, index ChunkUpserter, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	cfg.applyDefaults()
	if fetcher == nil {
		fetcher = NewFetcher(nil)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		fetcher:  fetcher,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		log:      log,
	}
}

func buildProperties(sourceURL, title, lastUpdated string, chunk SectionChunk) map[string]interface{} {
	headingPath := chunk.HeadingPath
	if len(headingPath) == 0 {
		headingPath = []string{title}
	}
	sectionID := strings.TrimPrefix(chunk.Anchor, "#")

	return map[string]interface{}{
		"text":                chunk.Text,
		"title":               title,
		"source":              SourceTypePDI,
		"section_id":          sectionID,
		"canonical_key":       "",
		"authority_level":     "policy",
		"authority_level_num": 2,
		"scope":               "default",
		"effective_date":      lastUpdated,
		"url":                 sourceURL,
		"heading_path":        strings.Join(headingPath, " > "),
		"ingested_at":         time.Now().UTC().Unix(),
	}
}

// ingestOne processes a single URL, appending to the report.
func (p *Pipeline) ingestOne(ctx context.Context, inputURL string, dryRun bool, report *Report) {
	fetched, err := p.fetcher.Fetch(ctx, inputURL)
	if err != nil {
		report.Skipped++
		report.Errors = append(report.Errors, IngestError{URL: inputURL, Stage: "fetch", Message: err.Error()})
		p.log.Error("Ingest fetch failed", "url", inputURL, "error", err)
		return
	}
	sourceURL := CanonicalizeForHash(fetched.SourceURL)
	docHash := DocHash(sourceURL)

	parsed, err := ParsePage(fetched.HTML)
	if err != nil {
		report.Skipped++
		report.Errors = append(report.Errors, IngestError{URL: sourceURL, Stage: "parse", Message: err.Error()})
		return
	}
	sections := ExtractSections(parsed.Container, parsed.Title)
	chunks := ChunkSections(sections, p.cfg.Chunk)

	report.Stats.TotalSections += len(sections)
	report.Stats.TotalChunks += len(chunks)

	p.log.Info("Ingest parsed page",
		"url", sourceURL,
		"title", parsed.Title,
		"sections", len(sections),
		"chunks", len(chunks),
		"last_updated", parsed.LastUpdated)

	if len(sections) == 0 || len(chunks) == 0 {
		report.Skipped++
		report.Errors = append(report.Errors, IngestError{
			URL:     sourceURL,
			Stage:   "extract",
			Message: "no sections or chunks extracted from page",
		})
		return
	}

	if dryRun {
		report.Ingested++
		return
	}

	embedded := EmbedChunks(ctx, p.embedder, chunks, p.cfg.Embed)
	for _, embedErr := range embedded.Errors {
		report.Errors = append(report.Errors, IngestError{
			URL:     sourceURL,
			Stage:   "embed",
			Message: fmt.Sprintf("chunks %d-%d: %s", embedErr.StartIndex, embedErr.EndIndex, embedErr.Message),
		})
	}

	records := make([]vector.Record, 0, len(chunks))
	for i, chunk := range chunks {
		if embedded.Vectors[i] == nil {
			continue
		}
		records = append(records, vector.Record{
			ChunkID:    ChunkID(docHash, chunk.SectionIndex, chunk.ChunkIndex),
			Vector:     embedded.Vectors[i],
			Properties: buildProperties(sourceURL, parsed.Title, parsed.LastUpdated, chunk),
		})
	}
	if len(records) == 0 {
		report.Skipped++
		report.Errors = append(report.Errors, IngestError{
			URL:     sourceURL,
			Stage:   "embed",
			Message: fmt.Sprintf("embedding produced no records (%d/%d embedded)", embedded.EmbeddedCount, len(chunks)),
		})
		return
	}

	written, batchErrors, err := p.index.UpsertBatch(ctx, records, p.cfg.UpsertBatchSize)
	if err != nil {
		report.Errors = append(report.Errors, IngestError{URL: sourceURL, Stage: "upsert", Message: err.Error()})
	}
	for _, batchErr := range batchErrors {
		report.Errors = append(report.Errors, IngestError{
			URL:     sourceURL,
			Stage:   "upsert",
			Message: fmt.Sprintf("%s: %s", batchErr.ChunkID, batchErr.Message),
		})
	}

	if written > 0 {
		report.Ingested++
	} else {
		report.Skipped++
	}
}

// Ingest processes every requested URL and returns the run report.
func (p *Pipeline) Ingest(ctx context.Context, req Request) *Report {
	report := &Report{Status: "ok", Errors: []IngestError{}}
	for _, inputURL := range ResolveURLs(req.URLs) {
		p.ingestOne(ctx, inputURL, req.DryRun, report)
	}
	return report
}
