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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceAuthorityGuard_BindingClaimNeedsBindingCitation(t *testing.T) {
	citationMap := map[string]CitationEntry{
		"P1": {Kind: CitationKindCorpus, AuthorityLevelNum: 2},
	}

	result := EnforceAuthorityGuard("The applicant must provide biometrics [P1].", citationMap, nil)
	assert.Contains(t, result.Issues, IssueBindingClaimWithoutBindingCitation)

	citationMap["P1"] = CitationEntry{Kind: CitationKindCorpus, AuthorityLevelNum: 4}
	result = EnforceAuthorityGuard("The applicant must provide biometrics [P1].", citationMap, nil)
	assert.NotContains(t, result.Issues, IssueBindingClaimWithoutBindingCitation)
}

func TestEnforceAuthorityGuard_BindingClaimWithEmptyBindingTier(t *testing.T) {
	citationMap := map[string]CitationEntry{
		"P1": {Kind: CitationKindCorpus, AuthorityLevelNum: 4},
	}
	retrieval := &RetrievalMeta{Tiers: TierCounts{Binding: 0, Guidance: 3}}

	result := EnforceAuthorityGuard("Sponsors shall meet the income threshold [P1].", citationMap, retrieval)
	assert.Contains(t, result.Issues, IssueNoBindingAuthorityFound)

	retrieval.Tiers.Binding = 2
	result = EnforceAuthorityGuard("Sponsors shall meet the income threshold [P1].", citationMap, retrieval)
	assert.NotContains(t, result.Issues, IssueNoBindingAuthorityFound)
}

func TestEnforceAuthorityGuard_TemporalClaimNeedsEffectiveDate(t *testing.T) {
	citationMap := map[string]CitationEntry{
		"P1": {Kind: CitationKindCorpus, AuthorityLevelNum: 4},
	}

	result := EnforceAuthorityGuard("As of 2024 the fee is two hundred dollars [P1].", citationMap, nil)
	assert.Contains(t, result.Issues, IssueTemporalClaimWithoutEffectiveDate)

	citationMap["P1"] = CitationEntry{Kind: CitationKindCorpus, AuthorityLevelNum: 4, EffectiveDate: "2024-01-15"}
	result = EnforceAuthorityGuard("As of 2024 the fee is two hundred dollars [P1].", citationMap, nil)
	assert.Empty(t, result.Issues)
}

func TestEnforceAuthorityGuard_CleanText(t *testing.T) {
	result := EnforceAuthorityGuard("Processing times vary by office [P1].",
		map[string]CitationEntry{"P1": {Kind: CitationKindCorpus}}, nil)
	assert.Empty(t, result.Issues)
	assert.Equal(t, "Processing times vary by office [P1].", result.Text)

	empty := EnforceAuthorityGuard("   ", nil, nil)
	assert.Empty(t, empty.Issues)
}

func TestPrependAnalysisDateHeader(t *testing.T) {
	out := PrependAnalysisDateHeader("Answer body.", DateBasisExplicitAsOf, "2026-08-01")
	assert.Equal(t, "Analysis date basis: 2026-08-01 (explicit_as_of)\n\nAnswer body.", out)

	fallback := PrependAnalysisDateHeader("Answer body.", "", "")
	assert.True(t, strings.HasPrefix(fallback, "Analysis date basis: "))
	assert.Contains(t, fallback, "(today)")
	assert.True(t, strings.HasSuffix(fallback, "\n\nAnswer body."))
}
