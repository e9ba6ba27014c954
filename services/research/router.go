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
	"regexp"
	"strconv"
	"strings"
)

// RouteDecision says which live retrieval paths a question should use.
type RouteDecision struct {
	UseCaseLaw     bool     `json:"useCaseLaw"`
	UseLegislation bool     `json:"useLegislation"`
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	Courts         []string `json:"courts,omitempty"`
	YearFrom       int      `json:"yearFrom,omitempty"`
	YearTo         int      `json:"yearTo,omitempty"`
}

// RouteOptions carries the feature flags the router respects.
type RouteOptions struct {
	CaseLawEnabled     bool
	LegislationEnabled bool
	DefaultLimit       int
}

var (
	caseLawIntentPattern = regexp.MustCompile(`(?i)\bcase law\b|\bdecisions?\b|\bjurisprudence\b|\bprecedents?\b|\brulings?\b|\bjudicial review\b|\btribunal\b|\bappeals?\b|\bcourts?\b`)
	legislationPattern   = regexp.MustCompile(`(?i)\blegislation\b|\bstatutes?\b|\bacts?\b|\bregulations?\b`)
	yearPattern          = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

var courtMarkers = []struct {
	marker string
	code   string
}{
	{"federal court of appeal", "fca"},
	{"supreme court", "scc"},
	{"federal court", "fc"},
	{"immigration appeal division", "iad"},
	{"refugee appeal division", "rad"},
}

// RouteIntent decides whether a question needs live case-law or
// legislation retrieval on top of corpus grounding.
//
// The router is a deterministic heuristic. It extracts court names and a
// year range when present so the case-law search can be narrowed.
func RouteIntent(message string, opts RouteOptions) RouteDecision {
	text := strings.TrimSpace(message)
	limit := opts.DefaultLimit
	if limit < 1 {
		limit = 4
	}
	decision := RouteDecision{
		Query: text,
		Limit: limit,
	}
	if text == "" {
		return decision
	}

	lower := strings.ToLower(text)
	decision.UseCaseLaw = opts.CaseLawEnabled && caseLawIntentPattern.MatchString(lower)
	decision.UseLegislation = opts.LegislationEnabled && legislationPattern.MatchString(lower)

	if decision.UseCaseLaw {
		// Markers are ordered longest-first; consuming the match keeps
		// "federal court of appeal" from also registering "federal court".
		remaining := lower
		for _, entry := range courtMarkers {
			if strings.Contains(remaining, entry.marker) {
				decision.Courts = append(decision.Courts, entry.code)
				remaining = strings.Replace(remaining, entry.marker, "", 1)
			}
		}
		years := yearPattern.FindAllString(lower, -1)
		for _, raw := range years {
			year, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			if decision.YearFrom == 0 || year < decision.YearFrom {
				decision.YearFrom = year
			}
			if year > decision.YearTo {
				decision.YearTo = year
			}
		}
	}
	return decision
}
