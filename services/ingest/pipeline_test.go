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
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCounsel/services/vector"
)

type stubUpserter struct {
	records   []vector.Record
	batchSize int
}

func (s *stubUpserter) UpsertBatch(ctx context.Context, records []vector.Record, batchSize int) (int, []vector.BatchError, error) {
	s.records = append(s.records, records...)
	s.batchSize = batchSize
	return len(records), nil, nil
}

const testPage = `<html>
<head><title>Work permit conditions</title></head>
<body>
	<main>
		<h1 id="top">Work permit conditions</h1>
		<p>Officers must review the conditions imposed on each permit holder before deciding.</p>
		<h2 id="conditions">Imposed conditions</h2>
		<p>Conditions may restrict the type of work, the employer, and the location of work performed in Canada.</p>
		<p>Date modified: 2024-05-10</p>
	</main>
</body>
</html>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestPipeline(t *testing.T, upserter ChunkUpserter) *Pipeline {
	t.Helper()
	return NewPipeline(NewFetcher(nil), &stubEmbedder{}, upserter, PipelineConfig{}, nil)
}

func TestPipeline_Ingest(t *testing.T) {
	server := newTestServer(t)
	upserter := &stubUpserter{}
	pipeline := newTestPipeline(t, upserter)

	report := pipeline.Ingest(context.Background(), Request{URLs: []string{server.URL + "/pdi/work-permits"}})

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, 1, report.Ingested)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 2, report.Stats.TotalSections)
	assert.Equal(t, 2, report.Stats.TotalChunks)

	require.Len(t, upserter.records, 2)
	assert.Equal(t, DefaultUpsertBatchSize, upserter.batchSize)

	record := upserter.records[0]
	docHash := DocHash(CanonicalizeForHash(server.URL + "/pdi/work-permits"))
	assert.Equal(t, ChunkID(docHash, 0, 0), record.ChunkID)
	assert.NotNil(t, record.Vector)
	assert.Equal(t, "Work permit conditions", record.Properties["title"])
	assert.Equal(t, SourceTypePDI, record.Properties["source"])
	assert.Equal(t, "policy", record.Properties["authority_level"])
	assert.Equal(t, 2, record.Properties["authority_level_num"])
	assert.Equal(t, "default", record.Properties["scope"])
	assert.Equal(t, "2024-05-10", record.Properties["effective_date"])
	assert.Equal(t, "top", record.Properties["section_id"])

	second := upserter.records[1]
	assert.Equal(t, ChunkID(docHash, 1, 0), second.ChunkID)
	assert.Equal(t, "conditions", second.Properties["section_id"])
	assert.Equal(t, "Work permit conditions > Imposed conditions", second.Properties["heading_path"])
}

func TestPipeline_DryRun(t *testing.T) {
	server := newTestServer(t)
	upserter := &stubUpserter{}
	pipeline := newTestPipeline(t, upserter)

	report := pipeline.Ingest(context.Background(), Request{
		URLs:   []string{server.URL + "/pdi/work-permits"},
		DryRun: true,
	})

	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 2, report.Stats.TotalChunks)
	assert.Empty(t, upserter.records, "dry run must not write to the index")
}

type partialUpserter struct{}

func (partialUpserter) UpsertBatch(ctx context.Context, records []vector.Record, batchSize int) (int, []vector.BatchError, error) {
	errs := make([]vector.BatchError, 0, len(records)-1)
	for _, rec := range records[1:] {
		errs = append(errs, vector.BatchError{ChunkID: rec.ChunkID, Message: "batch upsert: connection reset"})
	}
	return 1, errs, nil
}

func TestPipeline_PartialUpsertStillIngests(t *testing.T) {
	server := newTestServer(t)
	pipeline := newTestPipeline(t, partialUpserter{})

	report := pipeline.Ingest(context.Background(), Request{URLs: []string{server.URL + "/pdi/work-permits"}})

	assert.Equal(t, 1, report.Ingested, "a document with any written chunk counts as ingested")
	assert.Zero(t, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "upsert", report.Errors[0].Stage)
	assert.Contains(t, report.Errors[0].Message, "connection reset")
}

func TestPipeline_FetchFailureIsRecorded(t *testing.T) {
	server := newTestServer(t)
	upserter := &stubUpserter{}
	pipeline := newTestPipeline(t, upserter)

	report := pipeline.Ingest(context.Background(), Request{URLs: []string{
		server.URL + "/pdi/missing",
		server.URL + "/pdi/work-permits",
	}})

	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "fetch", report.Errors[0].Stage)
}

func TestResolveURLs(t *testing.T) {
	resolved := ResolveURLs([]string{
		"https://example.org/a#section",
		"https://example.org/a",
		"  https://example.org/b  ",
		"not a url",
		"ftp://example.org/c",
		"",
	})
	assert.Equal(t, []string{"https://example.org/a", "https://example.org/b"}, resolved,
		"fragments drop, duplicates and non-http entries are removed")
}

func TestDocHashAndChunkID(t *testing.T) {
	hash := DocHash("https://example.org/page")
	assert.Len(t, hash, 12)
	assert.Equal(t, hash, DocHash("https://example.org/page"))
	assert.NotEqual(t, hash, DocHash("https://example.org/other"))

	assert.Equal(t, "pdi|"+hash+"|3|1", ChunkID(hash, 3, 1))
}

func TestFetcher_CanonicalLinkOverridesFetchedURL(t *testing.T) {
	page := `<html><head>
		<link rel="canonical" href="https://www.canada.ca/en/policy.html">
		<title>T</title></head><body><p>x</p></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	result, err := NewFetcher(nil).Fetch(context.Background(), server.URL+"/mirror")
	require.NoError(t, err)
	assert.Equal(t, "https://www.canada.ca/en/policy.html", result.SourceURL)
	assert.Equal(t, server.URL+"/mirror", result.FetchedURL)
}

func TestFetcher_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewFetcher(nil).Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrUnsupportedContent)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.org/a", NormalizeURL("https://example.org/a#frag", nil))
	assert.Empty(t, NormalizeURL("mailto:x@example.org", nil))
	assert.Empty(t, NormalizeURL("   ", nil))
}
