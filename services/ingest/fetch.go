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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultFetchTimeout bounds one page fetch.
const DefaultFetchTimeout = 30 * time.Second

// maxFetchBytes caps the page body read.
const maxFetchBytes = 8 << 20

// Fetch errors.
var (
	ErrInvalidURL         = errors.New("ingest: invalid url")
	ErrUnsupportedContent = errors.New("ingest: unsupported content-type")
)

// NormalizeURL resolves raw against an optional base and drops the
// fragment. Returns "" when raw is not a usable absolute URL.
func NormalizeURL(raw string, base *url.URL) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

// CanonicalizeForHash normalizes a URL for document-hash derivation,
// falling back to the trimmed raw string when the URL does not parse.
func CanonicalizeForHash(raw string) string {
	if normalized := NormalizeURL(raw, nil); normalized != "" {
		return normalized
	}
	return strings.TrimSpace(raw)
}

// findCanonicalURL extracts <link rel="canonical"> from a parsed page.
func findCanonicalURL(doc *html.Node, base *url.URL) string {
	var canonical string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if canonical != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, href string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "rel":
					rel = strings.ToLower(strings.TrimSpace(attr.Val))
				case "href":
					href = attr.Val
				}
			}
			if rel == "canonical" {
				canonical = NormalizeURL(href, base)
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return canonical
}

// FetchResult is one fetched policy page.
type FetchResult struct {
	// RequestURL is the normalized URL that was requested.
	RequestURL string

	// FetchedURL is the final URL after redirects.
	FetchedURL string

	// SourceURL is the canonical URL when the page declares one,
	// otherwise FetchedURL. Document hashes derive from it.
	SourceURL string

	// HTML is the raw page body.
	HTML string
}

// Fetcher retrieves policy pages over HTTP.
//
// Thread Safety: safe for concurrent use.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a Fetcher. A nil client gets a default with the
// standard fetch timeout.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &Fetcher{client: client}
}

// Fetch retrieves one HTML page.
//
// Description:
//
//	Follows redirects, requires an HTML content type, and resolves the
//	page's canonical URL when it declares one.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	requestURL := NormalizeURL(rawURL, nil)
	if requestURL == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingest: fetch %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("ingest: fetch %s failed (%d)", requestURL, resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("ingest: read body: %w", err)
	}

	fetchedURL := requestURL
	if resp.Request != nil && resp.Request.URL != nil {
		if final := NormalizeURL(resp.Request.URL.String(), nil); final != "" {
			fetchedURL = final
		}
	}

	sourceURL := fetchedURL
	if doc, parseErr := html.Parse(strings.NewReader(string(body))); parseErr == nil {
		if base, baseErr := url.Parse(fetchedURL); baseErr == nil {
			if canonical := findCanonicalURL(doc, base); canonical != "" {
				sourceURL = canonical
			}
		}
	}

	return &FetchResult{
		RequestURL: requestURL,
		FetchedURL: fetchedURL,
		SourceURL:  sourceURL,
		HTML:       string(body),
	}, nil
}
