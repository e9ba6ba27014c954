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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CaseLawConfig holds settings for the live case-law search service.
type CaseLawConfig struct {
	// BaseURL is the root of the case-law API.
	BaseURL string

	// Timeout bounds a single search or detail request.
	Timeout time.Duration

	// FetchDetailsTopK is how many results get a detail enrichment call.
	FetchDetailsTopK int
}

// DefaultCaseLawConfig returns production defaults.
func DefaultCaseLawConfig() CaseLawConfig {
	return CaseLawConfig{
		Timeout:          15 * time.Second,
		FetchDetailsTopK: 3,
	}
}

// CaseSearchFilters narrow a case-law search.
type CaseSearchFilters struct {
	Courts   []string
	YearFrom int
	YearTo   int
}

// ErrCaseLawDisabled indicates no base URL was configured.
var ErrCaseLawDisabled = errors.New("research: case-law client disabled")

// CaseLawClient queries an external decisions database over HTTP.
//
// All methods degrade gracefully: network failures are logged and returned
// as errors, and callers are expected to continue with corpus grounding
// only.
//
// Thread Safety: safe for concurrent use.
type CaseLawClient struct {
	cfg    CaseLawConfig
	client *http.Client
	log    *slog.Logger
}

// NewCaseLawClient creates a client from cfg. An empty BaseURL produces a
// disabled client whose searches return ErrCaseLawDisabled.
func NewCaseLawClient(cfg CaseLawConfig, log *slog.Logger) *CaseLawClient {
	def := DefaultCaseLawConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FetchDetailsTopK <= 0 {
		cfg.FetchDetailsTopK = def.FetchDetailsTopK
	}
	if log == nil {
		log = slog.Default()
	}
	return &CaseLawClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Enabled reports whether the client has a configured endpoint.
func (c *CaseLawClient) Enabled() bool {
	return strings.TrimSpace(c.cfg.BaseURL) != ""
}

type caseSearchResponse struct {
	Results []struct {
		Title           string `json:"title"`
		Court           string `json:"court"`
		NeutralCitation string `json:"neutral_citation"`
		URL             string `json:"url"`
		Snippet         string `json:"snippet"`
		Year            int    `json:"year"`
	} `json:"results"`
}

// SearchDecisions searches for decisions matching the query.
//
// Outputs:
//
//	[]CaseLawSource - Matching decisions, possibly empty
//	error - Non-nil on transport or decode failure
func (c *CaseLawClient) SearchDecisions(ctx context.Context, query string, limit int, f CaseSearchFilters) ([]CaseLawSource, error) {
	if !c.Enabled() {
		return nil, ErrCaseLawDisabled
	}
	if limit < 1 {
		limit = 4
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	if len(f.Courts) > 0 {
		params.Set("courts", strings.Join(f.Courts, ","))
	}
	if f.YearFrom > 0 {
		params.Set("year_from", strconv.Itoa(f.YearFrom))
	}
	if f.YearTo > 0 {
		params.Set("year_to", strconv.Itoa(f.YearTo))
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("research: build case-law request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research: case-law search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("research: case-law search returned status %d", resp.StatusCode)
	}

	var decoded caseSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("research: decode case-law response: %w", err)
	}

	sources := make([]CaseLawSource, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		sources = append(sources, CaseLawSource{
			Title:           r.Title,
			Court:           r.Court,
			NeutralCitation: r.NeutralCitation,
			URL:             r.URL,
			Snippet:         r.Snippet,
			Year:            r.Year,
		})
	}
	return sources, nil
}

type caseDetailResponse struct {
	Summary string `json:"summary"`
}

// EnrichDecisions fetches detail summaries for the top results.
//
// Enrichment is best effort: a failed detail fetch leaves the original
// snippet in place and the source list is always returned.
func (c *CaseLawClient) EnrichDecisions(ctx context.Context, sources []CaseLawSource) []CaseLawSource {
	if !c.Enabled() || len(sources) == 0 {
		return sources
	}

	limit := c.cfg.FetchDetailsTopK
	if limit > len(sources) {
		limit = len(sources)
	}

	enriched := make([]CaseLawSource, len(sources))
	copy(enriched, sources)

	for i := 0; i < limit; i++ {
		if enriched[i].URL == "" {
			continue
		}
		endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/detail?" +
			url.Values{"url": {enriched[i].URL}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			continue
		}
		resp, err := c.client.Do(req)
		if err != nil {
			c.log.Warn("Case-law detail fetch failed", "url", enriched[i].URL, "error", err)
			continue
		}
		var detail caseDetailResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&detail)
		resp.Body.Close()
		if decodeErr != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		if strings.TrimSpace(detail.Summary) != "" {
			enriched[i].Snippet = detail.Summary
		}
	}
	return enriched
}
