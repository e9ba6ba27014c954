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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianCounsel/pkg/legalcite"
	"github.com/AleutianAI/AleutianCounsel/services/vector"
)

// Source is one retrieved corpus snippet with its authority metadata.
type Source struct {
	ID                string  `json:"id"`
	Text              string  `json:"text"`
	Title             string  `json:"title"`
	SourceRef         string  `json:"source"`
	SectionID         string  `json:"sectionId"`
	CanonicalKey      string  `json:"canonicalKey"`
	AuthorityLevel    string  `json:"authorityLevel"`
	AuthorityLevelNum int     `json:"authorityLevelNum"`
	Scope             string  `json:"scope"`
	EffectiveDate     string  `json:"effectiveDate"`
	URL               string  `json:"url"`
	Score             float64 `json:"score"`
}

// CaseLawSource is one decision retrieved from the case-law service.
type CaseLawSource struct {
	Title           string `json:"title"`
	Court           string `json:"court"`
	NeutralCitation string `json:"neutralCitation"`
	URL             string `json:"url"`
	Snippet         string `json:"snippet"`
	Year            int    `json:"year"`
}

// DocumentSource is one snippet from a user-uploaded document.
type DocumentSource struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// HistoryMessage is one prior turn of the conversation.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TierCounts records how many sources each retrieval tier produced.
type TierCounts struct {
	Binding  int `json:"binding"`
	Guidance int `json:"guidance"`
	Compare  int `json:"compare"`
}

// SourceScore identifies one retrieved source with its score.
type SourceScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// RetrievalMeta describes how a retrieval was executed.
type RetrievalMeta struct {
	QueryHash    string        `json:"queryHash"`
	ScopeIntent  string        `json:"scopeIntent"`
	Tiers        TierCounts    `json:"tiers"`
	TopSourceIDs []SourceScore `json:"topSourceIds"`
	BindingOnly  bool          `json:"bindingOnly"`
}

// Grounding bundles everything retrieved for one question.
type Grounding struct {
	Sources   []Source         `json:"sources"`
	CaseLaw   []CaseLawSource  `json:"caseLaw"`
	Documents []DocumentSource `json:"documents"`
	Retrieval *RetrievalMeta   `json:"retrieval"`
}

// =============================================================================
// Query profile and tier filters
// =============================================================================

// Scope intents for retrieval filtering.
const (
	ScopeIntentDefault  = "default"
	ScopeIntentGlossary = "glossary"
	ScopeIntentLinks    = "links"
	ScopeIntentTOC      = "toc"
)

// QueryProfile summarizes what kind of corpus content a question wants.
type QueryProfile struct {
	// ScopeIntent is one of the ScopeIntent constants.
	ScopeIntent string `json:"scopeIntent"`

	// ClauseKey is the canonical clause key named in the query, if any.
	ClauseKey string `json:"clauseKey"`
}

var (
	glossaryIntentPattern = regexp.MustCompile(`(?i)\bstand for\b|\bglossary\b|\bacronym\b|\babbreviation\b|\bdefinition of\b|\bmeaning of\b`)
	tocIntentPattern      = regexp.MustCompile(`(?i)\btable of contents\b|\btoc\b`)
	linksIntentPattern    = regexp.MustCompile(`(?i)\blinks?\b|\bresources\b|\bwebsites?\b|\burls?\b`)
)

// InferQueryProfile classifies a question into a scope intent.
//
// Glossary, table-of-contents, and links questions retrieve from their own
// corpus scopes; everything else stays in the default scope.
func InferQueryProfile(query string) QueryProfile {
	text := strings.TrimSpace(query)
	profile := QueryProfile{
		ScopeIntent: ScopeIntentDefault,
		ClauseKey:   legalcite.ExtractClauseKey(text),
	}
	switch {
	case glossaryIntentPattern.MatchString(text):
		profile.ScopeIntent = ScopeIntentGlossary
	case tocIntentPattern.MatchString(text):
		profile.ScopeIntent = ScopeIntentTOC
	case linksIntentPattern.MatchString(text):
		profile.ScopeIntent = ScopeIntentLinks
	}
	return profile
}

// BuildScopeFilter converts a profile into a corpus scope filter.
//
// The default intent also matches objects with no scope property, so legacy
// corpus entries ingested before scoping stay retrievable.
func BuildScopeFilter(profile QueryProfile) vector.Filter {
	if profile.ScopeIntent == "" || profile.ScopeIntent == ScopeIntentDefault {
		return vector.Filter{
			Scopes:          []string{ScopeIntentDefault},
			IncludeUnscoped: true,
		}
	}
	return vector.Filter{Scopes: []string{profile.ScopeIntent}}
}

// BuildTierFilters returns the binding and guidance tier filters for a
// profile. The binding tier covers authority levels 3 and above, the
// guidance tier levels 1 and 2. Both inherit the profile's scope filter.
func BuildTierFilters(profile QueryProfile) (binding vector.Filter, guidance vector.Filter) {
	scope := BuildScopeFilter(profile)

	binding = scope
	binding.MinAuthority = 3

	guidance = scope
	guidance.MaxAuthority = 2
	return binding, guidance
}

// QueryHash returns a short stable hash for a query string, used to
// correlate retrievals in the audit trace without logging the query.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])[:16]
}

// =============================================================================
// Prompt assembly
// =============================================================================

// CitationEntry is one prompt source keyed by its citation token.
type CitationEntry struct {
	Kind              string `json:"kind"`
	SourceID          string `json:"sourceId"`
	Title             string `json:"title"`
	Ref               string `json:"ref"`
	URL               string `json:"url"`
	Snippet           string `json:"snippet"`
	AuthorityLevel    string `json:"authorityLevel"`
	AuthorityLevelNum int    `json:"authorityLevelNum"`
	CanonicalKey      string `json:"canonicalKey"`
	EffectiveDate     string `json:"effectiveDate"`
}

// Citation entry kinds.
const (
	CitationKindCorpus   = "corpus"
	CitationKindCaseLaw  = "case_law"
	CitationKindDocument = "document"
)

// Prompt is a fully assembled generation request.
type Prompt struct {
	System      string                   `json:"system"`
	User        string                   `json:"user"`
	CitationMap map[string]CitationEntry `json:"citationMap"`
}

const systemPromptText = "You are a legal research assistant. " +
	"Use ONLY the provided sources. " +
	"Cite every factual claim with source IDs in square brackets, e.g., [P1] or [C1]. " +
	"Never invent citation IDs. Only use IDs present in provided sources. " +
	"If sources are insufficient, say so clearly."

// BuildPrompt assembles the system/user prompt for answer generation.
//
// Description:
//
//	Corpus sources get P-tokens, case-law sources C-tokens, and uploaded
//	document sources D-tokens. Every token is recorded in the citation map
//	so downstream validation can reject invented ids.
func BuildPrompt(query string, grounding Grounding, history []HistoryMessage) Prompt {
	citationMap := make(map[string]CitationEntry)

	var corpusBlock strings.Builder
	for i, s := range grounding.Sources {
		id := fmt.Sprintf("P%d", i+1)
		citationMap[id] = CitationEntry{
			Kind:              CitationKindCorpus,
			SourceID:          s.ID,
			Title:             s.Title,
			Ref:               firstNonEmpty(s.SourceRef, s.Title, s.ID, "corpus"),
			URL:               s.URL,
			Snippet:           s.Text,
			AuthorityLevel:    s.AuthorityLevel,
			AuthorityLevelNum: s.AuthorityLevelNum,
			CanonicalKey:      s.CanonicalKey,
			EffectiveDate:     s.EffectiveDate,
		}
		if i > 0 {
			corpusBlock.WriteString("\n\n")
		}
		fmt.Fprintf(&corpusBlock, "%s. %s\nSource: %s", id, s.Text, citationMap[id].Ref)
	}

	var caseBlock strings.Builder
	for i, c := range grounding.CaseLaw {
		id := fmt.Sprintf("C%d", i+1)
		header := joinNonEmpty(" — ", c.Title, c.Court, c.NeutralCitation, c.URL)
		if header == "" {
			header = "Case law source"
		}
		citationMap[id] = CitationEntry{
			Kind:    CitationKindCaseLaw,
			Title:   c.Title,
			Ref:     firstNonEmpty(c.NeutralCitation, c.Title, "case law"),
			URL:     c.URL,
			Snippet: c.Snippet,
		}
		if i > 0 {
			caseBlock.WriteString("\n\n")
		}
		fmt.Fprintf(&caseBlock, "%s. %s\n%s", id, header, c.Snippet)
	}

	var docBlock strings.Builder
	for i, d := range grounding.Documents {
		id := fmt.Sprintf("D%d", i+1)
		citationMap[id] = CitationEntry{
			Kind:     CitationKindDocument,
			SourceID: d.ID,
			Title:    d.Title,
			Ref:      firstNonEmpty(d.Title, d.ID, "document"),
			Snippet:  d.Text,
		}
		if i > 0 {
			docBlock.WriteString("\n\n")
		}
		fmt.Fprintf(&docBlock, "%s. %s\n%s", id, firstNonEmpty(d.Title, "Uploaded document"), d.Text)
	}

	historyBlock := ""
	if len(history) > 0 {
		lines := make([]string, 0, len(history))
		for _, m := range history {
			role := "User"
			if m.Role == "assistant" {
				role = "Assistant"
			}
			lines = append(lines, role+": "+m.Content)
		}
		historyBlock = "RECENT CHAT HISTORY:\n" + strings.Join(lines, "\n")
	}

	blocks := make([]string, 0, 4)
	if historyBlock != "" {
		blocks = append(blocks, historyBlock)
	}
	if corpusBlock.Len() > 0 {
		blocks = append(blocks, "CORPUS SOURCES:\n"+corpusBlock.String())
	}
	if caseBlock.Len() > 0 {
		blocks = append(blocks, "CASE LAW SOURCES:\n"+caseBlock.String())
	}
	if docBlock.Len() > 0 {
		blocks = append(blocks, "UPLOADED DOCUMENT SOURCES:\n"+docBlock.String())
	}

	user := "Question: " + query + "\n\nNo sources available."
	if len(blocks) > 0 {
		user = "Question: " + query + "\n\nSources:\n" + strings.Join(blocks, "\n\n")
	}

	return Prompt{
		System:      systemPromptText,
		User:        user,
		CitationMap: citationMap,
	}
}

// =============================================================================
// Citation tokens
// =============================================================================

// Citation is one resolved citation in the final response.
type Citation struct {
	ID             string `json:"id"`
	Title          string `json:"title,omitempty"`
	SourceRef      string `json:"source,omitempty"`
	URL            string `json:"url,omitempty"`
	Snippet        string `json:"snippet,omitempty"`
	AuthorityLevel string `json:"authorityLevel,omitempty"`
}

var (
	citationTokenPattern = regexp.MustCompile(`\[(P\d+|C\d+|D\d+)\]`)
	multiSpacePattern    = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlinePattern  = regexp.MustCompile(`\n{3,}`)
)

// ExtractCitations returns the unique citation ids referenced in text,
// in order of first appearance.
func ExtractCitations(text string) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, match := range citationTokenPattern.FindAllStringSubmatch(text, -1) {
		id := match[1]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// ValidateCitationTokens removes citation tokens that do not exist in the
// citation map and tidies up the whitespace left behind.
func ValidateCitationTokens(text string, citationMap map[string]CitationEntry) string {
	if text == "" {
		return ""
	}
	cleaned := citationTokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		id := token[1 : len(token)-1]
		if _, ok := citationMap[id]; ok {
			return token
		}
		return ""
	})
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = multiNewlinePattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// BuildCitationFromSource resolves a citation id against the citation map.
// Returns false when the id is unknown.
func BuildCitationFromSource(id string, citationMap map[string]CitationEntry) (Citation, bool) {
	entry, ok := citationMap[id]
	if !ok {
		return Citation{}, false
	}
	return Citation{
		ID:             id,
		Title:          entry.Title,
		SourceRef:      entry.Ref,
		URL:            entry.URL,
		Snippet:        entry.Snippet,
		AuthorityLevel: entry.AuthorityLevel,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
