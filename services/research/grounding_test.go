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
	"github.com/stretchr/testify/require"
)

func TestInferQueryProfile(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantIntent string
		wantClause string
	}{
		{"plain question", "What are the work permit conditions?", ScopeIntentDefault, ""},
		{"glossary question", "What does LMIA stand for?", ScopeIntentGlossary, ""},
		{"definition question", "definition of dual intent", ScopeIntentGlossary, ""},
		{"toc question", "show me the table of contents", ScopeIntentTOC, ""},
		{"links question", "useful links for sponsorship", ScopeIntentLinks, ""},
		{"clause shorthand", "Does A34 bar my client?", ScopeIntentDefault, "IRPA:34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := InferQueryProfile(tt.query)
			assert.Equal(t, tt.wantIntent, profile.ScopeIntent)
			assert.Equal(t, tt.wantClause, profile.ClauseKey)
		})
	}
}

func TestBuildScopeFilter(t *testing.T) {
	defaultFilter := BuildScopeFilter(QueryProfile{ScopeIntent: ScopeIntentDefault})
	assert.Equal(t, []string{"default"}, defaultFilter.Scopes)
	assert.True(t, defaultFilter.IncludeUnscoped, "default scope keeps pre-scoping corpus entries retrievable")

	glossaryFilter := BuildScopeFilter(QueryProfile{ScopeIntent: ScopeIntentGlossary})
	assert.Equal(t, []string{"glossary"}, glossaryFilter.Scopes)
	assert.False(t, glossaryFilter.IncludeUnscoped)
}

func TestBuildTierFilters(t *testing.T) {
	binding, guidance := BuildTierFilters(QueryProfile{ScopeIntent: ScopeIntentDefault})

	assert.Equal(t, 3, binding.MinAuthority)
	assert.Zero(t, binding.MaxAuthority)
	assert.Zero(t, guidance.MinAuthority)
	assert.Equal(t, 2, guidance.MaxAuthority)

	assert.True(t, binding.HasScope("default"))
	assert.True(t, guidance.HasScope("default"))
}

func TestQueryHash(t *testing.T) {
	h1 := QueryHash("what does IRPA s. 36 say")
	h2 := QueryHash("  what does IRPA s. 36 say  ")
	h3 := QueryHash("a different question")

	assert.Len(t, h1, 16)
	assert.Equal(t, h1, h2, "hash ignores surrounding whitespace")
	assert.NotEqual(t, h1, h3)
}

func TestBuildPrompt_TokensAndBlocks(t *testing.T) {
	grounding := Grounding{
		Sources: []Source{
			{ID: "chunk-1", Text: "Section 36 covers criminality.", SourceRef: "IRPA s. 36", AuthorityLevel: "statute", AuthorityLevelNum: 4},
			{ID: "chunk-2", Text: "Officers should review the record.", Title: "Enforcement manual"},
		},
		CaseLaw: []CaseLawSource{
			{Title: "Smith v Canada", Court: "FC", NeutralCitation: "2021 FC 123", Snippet: "The court held..."},
		},
		Documents: []DocumentSource{
			{ID: "doc-1", Title: "Client letter", Text: "The applicant arrived in 2019."},
		},
	}
	history := []HistoryMessage{
		{Role: "user", Content: "Tell me about inadmissibility."},
		{Role: "assistant", Content: "Inadmissibility is governed by IRPA."},
	}

	prompt := BuildPrompt("Is my client inadmissible?", grounding, history)

	require.Len(t, prompt.CitationMap, 4)
	assert.Equal(t, CitationKindCorpus, prompt.CitationMap["P1"].Kind)
	assert.Equal(t, CitationKindCorpus, prompt.CitationMap["P2"].Kind)
	assert.Equal(t, CitationKindCaseLaw, prompt.CitationMap["C1"].Kind)
	assert.Equal(t, CitationKindDocument, prompt.CitationMap["D1"].Kind)
	assert.Equal(t, 4, prompt.CitationMap["P1"].AuthorityLevelNum)

	assert.Contains(t, prompt.User, "Question: Is my client inadmissible?")
	assert.Contains(t, prompt.User, "RECENT CHAT HISTORY:")
	assert.Contains(t, prompt.User, "User: Tell me about inadmissibility.")
	assert.Contains(t, prompt.User, "Assistant: Inadmissibility is governed by IRPA.")
	assert.Contains(t, prompt.User, "CORPUS SOURCES:")
	assert.Contains(t, prompt.User, "P1. Section 36 covers criminality.")
	assert.Contains(t, prompt.User, "Source: IRPA s. 36")
	assert.Contains(t, prompt.User, "CASE LAW SOURCES:")
	assert.Contains(t, prompt.User, "Smith v Canada")
	assert.Contains(t, prompt.User, "UPLOADED DOCUMENT SOURCES:")
	assert.Contains(t, prompt.User, "D1. Client letter")

	assert.Contains(t, prompt.System, "Use ONLY the provided sources.")
}

func TestBuildPrompt_NoSources(t *testing.T) {
	prompt := BuildPrompt("anything", Grounding{}, nil)
	assert.Empty(t, prompt.CitationMap)
	assert.True(t, strings.HasSuffix(prompt.User, "No sources available."))
}

func TestExtractCitations(t *testing.T) {
	text := "Claim one [P1]. Claim two [C2] and again [P1]. Doc claim [D1]. Not a token [X9]."
	assert.Equal(t, []string{"P1", "C2", "D1"}, ExtractCitations(text))
	assert.Empty(t, ExtractCitations("no tokens here"))
}

func TestValidateCitationTokens(t *testing.T) {
	citationMap := map[string]CitationEntry{
		"P1": {Kind: CitationKindCorpus},
	}

	cleaned := ValidateCitationTokens("Valid [P1] and invented [P9] tokens.", citationMap)
	assert.Equal(t, "Valid [P1] and invented tokens.", cleaned)

	assert.Equal(t, "", ValidateCitationTokens("", citationMap))

	collapsed := ValidateCitationTokens("Line one [P7]\n\n\n\nLine two", citationMap)
	assert.Equal(t, "Line one\n\nLine two", collapsed)
}

func TestBuildCitationFromSource(t *testing.T) {
	citationMap := map[string]CitationEntry{
		"P1": {
			Kind:           CitationKindCorpus,
			Title:          "IRPA",
			Ref:            "IRPA s. 36",
			URL:            "https://laws.justice.gc.ca",
			Snippet:        "Section text",
			AuthorityLevel: "statute",
		},
	}

	citation, ok := BuildCitationFromSource("P1", citationMap)
	require.True(t, ok)
	assert.Equal(t, "P1", citation.ID)
	assert.Equal(t, "IRPA s. 36", citation.SourceRef)
	assert.Equal(t, "statute", citation.AuthorityLevel)

	_, ok = BuildCitationFromSource("C9", citationMap)
	assert.False(t, ok)
}
