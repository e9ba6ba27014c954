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
)

// FailureState classifies why a run could not produce a fully grounded
// answer. NONE means the answer passed every check.
type FailureState string

// Failure state codes, ordered here by resolution precedence.
const (
	FailureNone                 FailureState = "NONE"
	FailureOutOfScopeSource     FailureState = "OUT_OF_SCOPE_SOURCE"
	FailureBudgetExceeded       FailureState = "BUDGET_EXCEEDED"
	FailureCitationMismatch     FailureState = "CITATION_MISMATCH"
	FailureStaleVolatileSource  FailureState = "STALE_VOLATILE_SOURCE"
	FailureNoBindingAuthority   FailureState = "NO_BINDING_AUTHORITY"
	FailureInsufficientEvidence FailureState = "INSUFFICIENT_EVIDENCE"
	FailureInsufficientFacts    FailureState = "INSUFFICIENT_FACTS"
)

// Guard issue codes produced by the response guard.
const (
	IssueBindingClaimWithoutBindingCitation = "binding_claim_without_binding_citation"
	IssueTemporalClaimWithoutEffectiveDate  = "temporal_claim_without_effective_date"
	IssueNoBindingAuthorityFound            = "no_binding_authority_found"
)

// Retry policies attached to failure states.
const (
	RetryNone              = "NO_RETRY"
	RetryWithBetterSources = "RETRY_WITH_BETTER_SOURCES"
	RetryWithRewrite       = "RETRY_WITH_REWRITE"
	RetryAskUserForFacts   = "ASK_USER_FOR_FACTS"
)

// FailureStateInfo carries display metadata for a failure state.
type FailureStateInfo struct {
	Code        FailureState `json:"code"`
	Severity    string       `json:"severity"`
	Description string       `json:"description"`
	RetryPolicy string       `json:"retryPolicy"`
	Notice      string       `json:"notice,omitempty"`
}

var failureStateInfos = map[FailureState]FailureStateInfo{
	FailureNone: {
		Code:        FailureNone,
		Severity:    "none",
		Description: "No failure detected.",
		RetryPolicy: RetryNone,
	},
	FailureOutOfScopeSource: {
		Code:        FailureOutOfScopeSource,
		Severity:    "error",
		Description: "The request was blocked as out of scope for RCIC research.",
		RetryPolicy: RetryNone,
	},
	FailureBudgetExceeded: {
		Code:        FailureBudgetExceeded,
		Severity:    "error",
		Description: "The run exceeded its tool-call, live-fetch, or retry budget.",
		RetryPolicy: RetryNone,
		Notice:      "This answer was produced after the research budget was exhausted and may be incomplete.",
	},
	FailureCitationMismatch: {
		Code:        FailureCitationMismatch,
		Severity:    "error",
		Description: "A binding legal claim lacks a citation to binding authority.",
		RetryPolicy: RetryWithRewrite,
		Notice:      "One or more statements could not be tied to binding authority and should be verified independently.",
	},
	FailureStaleVolatileSource: {
		Code:        FailureStaleVolatileSource,
		Severity:    "warning",
		Description: "A time-sensitive claim cites a source without an effective date.",
		RetryPolicy: RetryWithBetterSources,
		Notice:      "Time-sensitive guidance in this answer may not reflect the current state of the law.",
	},
	FailureNoBindingAuthority: {
		Code:        FailureNoBindingAuthority,
		Severity:    "error",
		Description: "No binding statute or regulation was found for a legal-requirement question.",
		RetryPolicy: RetryWithBetterSources,
		Notice:      "No binding statute or regulation supporting this answer was retrieved.",
	},
	FailureInsufficientEvidence: {
		Code:        FailureInsufficientEvidence,
		Severity:    "warning",
		Description: "Retrieval produced no usable sources and the answer carries no citations.",
		RetryPolicy: RetryWithBetterSources,
		Notice:      "The retrieved sources were insufficient to fully support this answer.",
	},
	FailureInsufficientFacts: {
		Code:        FailureInsufficientFacts,
		Severity:    "warning",
		Description: "The question is too vague to research without more facts from the user.",
		RetryPolicy: RetryAskUserForFacts,
		Notice:      "More case-specific facts are needed to give a complete answer.",
	},
}

// FailureStateCodes returns every known failure state code.
func FailureStateCodes() []FailureState {
	return []FailureState{
		FailureNone,
		FailureNoBindingAuthority,
		FailureStaleVolatileSource,
		FailureCitationMismatch,
		FailureOutOfScopeSource,
		FailureBudgetExceeded,
		FailureInsufficientFacts,
		FailureInsufficientEvidence,
	}
}

// GetFailureStateInfo returns metadata for a failure state. Unknown codes
// fall back to NONE metadata with the given code preserved.
func GetFailureStateInfo(state FailureState) FailureStateInfo {
	if info, ok := failureStateInfos[state]; ok {
		return info
	}
	info := failureStateInfos[FailureNone]
	info.Code = state
	return info
}

// FailureInput gathers the signals the resolver examines.
type FailureInput struct {
	// Query is the effective user question.
	Query string

	// OutOfScopeBlocked is set when the classifier blocked the request.
	OutOfScopeBlocked bool

	// GuardIssues are issue codes from the response guard.
	GuardIssues []string

	// Retrieval is the retrieval metadata, nil when retrieval never ran.
	Retrieval *RetrievalMeta

	// Citations are the citations extracted from the final text.
	Citations []Citation

	// Budget is the run's budget snapshot.
	Budget RuntimeBudget
}

func hasIssue(issues []string, code string) bool {
	for _, issue := range issues {
		if issue == code {
			return true
		}
	}
	return false
}

var vagueQueryMarkers = []string{
	"help me",
	"my case",
	"my situation",
	"what should i do",
	"can you help",
}

// isVagueQuery flags questions that name no researchable issue.
// A query that carries an explicit clause citation is never vague.
func isVagueQuery(query string) bool {
	text := strings.ToLower(strings.TrimSpace(query))
	if text == "" {
		return true
	}
	for _, marker := range vagueQueryMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// ResolveFailureState picks the single failure state for a run.
//
// Description:
//
//	Signals are checked in strict precedence order: out-of-scope block,
//	budget, guard issues (citation mismatch, stale source, no binding
//	authority), empty evidence, vague query. The first match wins; NONE
//	is returned when nothing matches.
func ResolveFailureState(input FailureInput) FailureState {
	if input.OutOfScopeBlocked {
		return FailureOutOfScopeSource
	}
	if input.Budget.Exceeded() {
		return FailureBudgetExceeded
	}
	if hasIssue(input.GuardIssues, IssueBindingClaimWithoutBindingCitation) {
		return FailureCitationMismatch
	}
	if hasIssue(input.GuardIssues, IssueTemporalClaimWithoutEffectiveDate) {
		return FailureStaleVolatileSource
	}
	if hasIssue(input.GuardIssues, IssueNoBindingAuthorityFound) {
		return FailureNoBindingAuthority
	}

	evidenceEmpty := (input.Retrieval == nil || len(input.Retrieval.TopSourceIDs) == 0) &&
		len(input.Citations) == 0
	if input.Retrieval != nil && evidenceEmpty {
		return FailureInsufficientEvidence
	}
	if !evidenceEmpty && isVagueQuery(input.Query) {
		return FailureInsufficientFacts
	}
	return FailureNone
}

// ApplyFailureStateNotice prepends the failure notice to the response text.
// NONE and unknown states leave the text unchanged.
func ApplyFailureStateNotice(text string, state FailureState) string {
	if state == "" || state == FailureNone {
		return text
	}
	info := GetFailureStateInfo(state)
	if info.Notice == "" {
		return text
	}
	if strings.TrimSpace(text) == "" {
		return "Note: " + info.Notice
	}
	return "Note: " + info.Notice + "\n\n" + text
}
