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
	"strings"
	"time"
)

// GuardResult is the outcome of the authority guard over a drafted answer.
type GuardResult struct {
	// Text is the guarded text. The guard never rewrites content, only
	// reports issues; the text passes through unchanged.
	Text string `json:"text"`

	// Issues lists the guard issue codes that fired.
	Issues []string `json:"issues"`
}

var (
	bindingClaimPattern  = regexp.MustCompile(`(?i)\b(?:must|shall|is required to|are required to|mandatory|is obligated to)\b`)
	temporalClaimPattern = regexp.MustCompile(`(?i)\b(?:as of|currently|effective|in force|since \d{4})\b`)
)

// EnforceAuthorityGuard checks a drafted answer against its cited sources.
//
// Description:
//
//	Three checks run over the text. A binding legal claim (must/shall
//	language) needs at least one cited statute-level source. A temporal
//	claim (as of/effective language) needs at least one cited source that
//	carries an effective date. A binding claim made when the binding
//	retrieval tier came back empty flags missing binding authority.
//
// Inputs:
//
//	text - The drafted answer, already citation-validated
//	citationMap - Token to source mapping from prompt assembly
//	retrieval - Retrieval metadata, may be nil
//
// Outputs:
//
//	GuardResult - The text plus any issue codes
//
// Thread Safety: safe for concurrent use.
func EnforceAuthorityGuard(text string, citationMap map[string]CitationEntry, retrieval *RetrievalMeta) GuardResult {
	result := GuardResult{Text: text, Issues: []string{}}
	if strings.TrimSpace(text) == "" {
		return result
	}

	citedIDs := ExtractCitations(text)
	citedBinding := false
	citedEffectiveDate := false
	for _, id := range citedIDs {
		entry, ok := citationMap[id]
		if !ok {
			continue
		}
		if entry.AuthorityLevelNum >= 4 {
			citedBinding = true
		}
		if entry.EffectiveDate != "" {
			citedEffectiveDate = true
		}
	}

	if bindingClaimPattern.MatchString(text) {
		if !citedBinding {
			result.Issues = append(result.Issues, IssueBindingClaimWithoutBindingCitation)
		}
		if retrieval != nil && retrieval.Tiers.Binding == 0 {
			result.Issues = append(result.Issues, IssueNoBindingAuthorityFound)
		}
	}
	if temporalClaimPattern.MatchString(text) && !citedEffectiveDate {
		result.Issues = append(result.Issues, IssueTemporalClaimWithoutEffectiveDate)
	}
	return result
}

// =============================================================================
// Response policy
// =============================================================================

// BlockedResponseText is returned verbatim when a request is blocked by the
// prompt-injection classifier.
const BlockedResponseText = "I can only assist with RCIC-focused Canadian immigration research. " +
	"Please rephrase your question without instruction-overrides."

// Analysis date bases.
const (
	DateBasisToday        = "today"
	DateBasisExplicitAsOf = "explicit_as_of"
)

// PrependAnalysisDateHeader prefixes a response with the date basis of the
// analysis. An empty as-of date falls back to the current date.
func PrependAnalysisDateHeader(text, analysisDateBasis, asOfDate string) string {
	if strings.TrimSpace(asOfDate) == "" {
		asOfDate = time.Now().UTC().Format("2006-01-02")
	}
	if strings.TrimSpace(analysisDateBasis) == "" {
		analysisDateBasis = DateBasisToday
	}
	return "Analysis date basis: " + asOfDate + " (" + analysisDateBasis + ")\n\n" + text
}
