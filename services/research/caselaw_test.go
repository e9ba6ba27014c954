// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseLawClient_DisabledWithoutBaseURL(t *testing.T) {
	client := NewCaseLawClient(CaseLawConfig{}, nil)

	assert.False(t, client.Enabled())

	_, err := client.SearchDecisions(context.Background(), "detention review", 4, CaseSearchFilters{})
	assert.ErrorIs(t, err, ErrCaseLawDisabled)

	sources := []CaseLawSource{{Title: "Smith v Canada", Snippet: "original"}}
	assert.Equal(t, sources, client.EnrichDecisions(context.Background(), sources))
}

func TestCaseLawClient_SearchDecisions(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotQuery = map[string]string{
			"q":         r.URL.Query().Get("q"),
			"limit":     r.URL.Query().Get("limit"),
			"courts":    r.URL.Query().Get("courts"),
			"year_from": r.URL.Query().Get("year_from"),
			"year_to":   r.URL.Query().Get("year_to"),
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{
					"title":            "Smith v Canada",
					"court":            "FC",
					"neutral_citation": "2021 FC 123",
					"url":              "https://decisions.example.org/2021fc123",
					"snippet":          "The court held that the officer erred.",
					"year":             2021,
				},
			},
		})
	}))
	defer server.Close()

	client := NewCaseLawClient(CaseLawConfig{BaseURL: server.URL}, nil)
	require.True(t, client.Enabled())

	sources, err := client.SearchDecisions(context.Background(), "misrepresentation", 5, CaseSearchFilters{
		Courts:   []string{"fc", "fca"},
		YearFrom: 2019,
		YearTo:   2023,
	})
	require.NoError(t, err)

	assert.Equal(t, "misrepresentation", gotQuery["q"])
	assert.Equal(t, "5", gotQuery["limit"])
	assert.Equal(t, "fc,fca", gotQuery["courts"])
	assert.Equal(t, "2019", gotQuery["year_from"])
	assert.Equal(t, "2023", gotQuery["year_to"])

	require.Len(t, sources, 1)
	assert.Equal(t, "Smith v Canada", sources[0].Title)
	assert.Equal(t, "2021 FC 123", sources[0].NeutralCitation)
	assert.Equal(t, 2021, sources[0].Year)
}

func TestCaseLawClient_SearchDecisions_LimitFallback(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewCaseLawClient(CaseLawConfig{BaseURL: server.URL}, nil)
	sources, err := client.SearchDecisions(context.Background(), "q", 0, CaseSearchFilters{})
	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.Equal(t, "4", gotLimit)
}

func TestCaseLawClient_SearchDecisions_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewCaseLawClient(CaseLawConfig{BaseURL: server.URL}, nil)
	_, err := client.SearchDecisions(context.Background(), "q", 4, CaseSearchFilters{})
	assert.ErrorContains(t, err, "status 502")
}

func TestCaseLawClient_EnrichDecisions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detail", r.URL.Path)
		target := r.URL.Query().Get("url")
		if target == "https://decisions.example.org/broken" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "Full reasons for " + target})
	}))
	defer server.Close()

	client := NewCaseLawClient(CaseLawConfig{BaseURL: server.URL, FetchDetailsTopK: 2}, nil)

	sources := []CaseLawSource{
		{Title: "First", URL: "https://decisions.example.org/a", Snippet: "short a"},
		{Title: "Second", URL: "https://decisions.example.org/broken", Snippet: "short b"},
		{Title: "Third", URL: "https://decisions.example.org/c", Snippet: "short c"},
	}

	enriched := client.EnrichDecisions(context.Background(), sources)
	require.Len(t, enriched, 3)

	assert.Equal(t, "Full reasons for https://decisions.example.org/a", enriched[0].Snippet)
	assert.Equal(t, "short b", enriched[1].Snippet, "failed detail fetch keeps the snippet")
	assert.Equal(t, "short c", enriched[2].Snippet, "beyond FetchDetailsTopK is untouched")
	assert.Equal(t, "short a", sources[0].Snippet, "input slice is not mutated")
}
