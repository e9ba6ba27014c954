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
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianCounsel/pkg/legalcite"
)

// Clause recall reasons reported by the statute gate.
const (
	RecallReasonOK                     = "ok"
	RecallReasonOKWithoutCanonicalKey  = "ok_without_canonical_key"
	RecallReasonCanonicalNotInTopK     = "canonical_not_in_top_k"
	RecallReasonMissingAuthorityLevel4 = "missing_authority_level_4"
)

// GateStatus is the outcome of the statute gate.
type GateStatus string

// Gate outcomes.
const (
	GateSkipped GateStatus = "skipped"
	GatePass    GateStatus = "pass"
	GateFail    GateStatus = "fail"
)

// ClauseRecallCheck is one evaluation of statutory recall quality.
type ClauseRecallCheck struct {
	Passed       bool   `json:"passed"`
	CanonicalKey string `json:"canonicalKey"`
	Reason       string `json:"reason"`
}

// StatuteGateResult is the full outcome of enforcing the statute gate.
type StatuteGateResult struct {
	Status    GateStatus        `json:"status"`
	RerunUsed bool              `json:"rerunUsed"`
	Grounding *Grounding        `json:"-"`
	Check     ClauseRecallCheck `json:"check"`
}

// BindingRetrieveFunc reruns retrieval restricted to the binding tier.
type BindingRetrieveFunc func(ctx context.Context, query string, topK int) (*Grounding, error)

// defaultRecallTopK is the window for the exact-clause recall check.
// The rerun may retrieve more, but the named clause must surface this high.
const defaultRecallTopK = 3

// SourceAuthorityLevelNum resolves a source's authority ordinal, preferring
// the stored numeric level over the label.
func SourceAuthorityLevelNum(s Source) int {
	if s.AuthorityLevelNum > 0 {
		return s.AuthorityLevelNum
	}
	return legalcite.AuthorityLevelNum(s.AuthorityLevel)
}

// SourceCanonicalKey resolves a source's canonical clause key. Stored keys
// win over section ids; free text is probed only as a last resort.
func SourceCanonicalKey(s Source) string {
	if key := legalcite.NormalizeSectionID(s.CanonicalKey); key != "" {
		return key
	}
	if key := legalcite.NormalizeSectionID(s.SectionID); key != "" {
		return key
	}
	probe := strings.TrimSpace(strings.Join([]string{s.Text, s.Title, s.SourceRef}, " "))
	return legalcite.ProbeText(probe)
}

// HasAuthorityLevel4Source reports whether any source is statute-level.
func HasAuthorityLevel4Source(sources []Source) bool {
	for _, s := range sources {
		if SourceAuthorityLevelNum(s) == legalcite.LevelStatute {
			return true
		}
	}
	return false
}

// HasExactCanonicalInTopK reports whether a statute-level source with the
// exact canonical key appears in the top K results.
func HasExactCanonicalInTopK(sources []Source, canonicalKey string, topK int) bool {
	target := strings.ToUpper(strings.TrimSpace(canonicalKey))
	if target == "" {
		return false
	}
	if topK < 1 {
		topK = 1
	}
	if topK > len(sources) {
		topK = len(sources)
	}
	for _, s := range sources[:topK] {
		if SourceAuthorityLevelNum(s) == legalcite.LevelStatute &&
			strings.ToUpper(SourceCanonicalKey(s)) == target {
			return true
		}
	}
	return false
}

// EvaluateClauseRecall checks whether retrieval recalled the clause a
// question names.
//
// Description:
//
//	Without a canonical key in the query, recall passes as long as some
//	statute-level source was retrieved. With a key, the exact clause must
//	additionally appear at statute level within the top K results.
func EvaluateClauseRecall(query string, sources []Source, topK int) ClauseRecallCheck {
	canonicalKey := legalcite.ExtractClauseKey(query)
	authorityOK := HasAuthorityLevel4Source(sources)

	if canonicalKey == "" {
		reason := RecallReasonMissingAuthorityLevel4
		if authorityOK {
			reason = RecallReasonOKWithoutCanonicalKey
		}
		return ClauseRecallCheck{
			Passed:       authorityOK,
			CanonicalKey: "",
			Reason:       reason,
		}
	}

	topKMatch := HasExactCanonicalInTopK(sources, canonicalKey, topK)
	reason := RecallReasonMissingAuthorityLevel4
	if authorityOK {
		if topKMatch {
			reason = RecallReasonOK
		} else {
			reason = RecallReasonCanonicalNotInTopK
		}
	}
	return ClauseRecallCheck{
		Passed:       authorityOK && topKMatch,
		CanonicalKey: canonicalKey,
		Reason:       reason,
	}
}

var (
	gateInstrumentPattern = regexp.MustCompile(`(?i)\birpa\b|\birpr\b`)
	gateShorthandPattern  = regexp.MustCompile(`(?i)\ba\d{1,3}|\br\d{1,3}`)
	gateRequirementPhrase = regexp.MustCompile(`(?i)\bwhat does\b|\brequired under\b|\brequirements? under\b|\binadmissible\b`)
)

// ShouldEnforceBindingGate reports whether a question is a
// legal-requirement question that must be answered from binding authority.
func ShouldEnforceBindingGate(query string) bool {
	text := strings.TrimSpace(query)
	if text == "" {
		return false
	}
	return gateInstrumentPattern.MatchString(text) ||
		gateShorthandPattern.MatchString(text) ||
		gateRequirementPhrase.MatchString(text)
}

// EnforceStatuteGate runs the clause-recall gate over a grounding.
//
// Description:
//
//	When the gate applies and the initial check fails, retrieval is rerun
//	once restricted to the binding tier. A second failure is terminal; the
//	caller maps it to NO_BINDING_AUTHORITY.
//
// Inputs:
//
//	ctx - Context for cancellation
//	query - The effective user question
//	grounding - The initial retrieval result, may be nil
//	topK - Result count for the binding-tier rerun
//	rerun - Binding-only retrieval; must not be nil
//
// Outputs:
//
//	StatuteGateResult - Gate outcome, including the grounding to use
//	error - Non-nil only when the binding rerun itself fails
func EnforceStatuteGate(ctx context.Context, query string, grounding *Grounding, topK int, rerun BindingRetrieveFunc) (StatuteGateResult, error) {
	sources := []Source{}
	if grounding != nil {
		sources = grounding.Sources
	}

	if !ShouldEnforceBindingGate(query) {
		return StatuteGateResult{
			Status:    GateSkipped,
			Grounding: grounding,
			Check:     EvaluateClauseRecall(query, sources, defaultRecallTopK),
		}, nil
	}

	initial := EvaluateClauseRecall(query, sources, defaultRecallTopK)
	if initial.Passed {
		return StatuteGateResult{
			Status:    GatePass,
			Grounding: grounding,
			Check:     initial,
		}, nil
	}

	retried, err := rerun(ctx, query, topK)
	if err != nil {
		return StatuteGateResult{}, err
	}
	retriedSources := []Source{}
	if retried != nil {
		retriedSources = retried.Sources
	}

	retryCheck := EvaluateClauseRecall(query, retriedSources, defaultRecallTopK)
	status := GateFail
	if retryCheck.Passed {
		status = GatePass
	}
	return StatuteGateResult{
		Status:    status,
		RerunUsed: true,
		Grounding: retried,
		Check:     retryCheck,
	}, nil
}
