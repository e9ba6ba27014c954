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

func retrievalWithSources(ids ...string) *RetrievalMeta {
	meta := &RetrievalMeta{QueryHash: "abc123"}
	for _, id := range ids {
		meta.TopSourceIDs = append(meta.TopSourceIDs, SourceScore{ID: id, Score: 0.8})
	}
	return meta
}

func TestResolveFailureState_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		input FailureInput
		want  FailureState
	}{
		{
			name:  "out of scope wins over everything",
			input: FailureInput{OutOfScopeBlocked: true, GuardIssues: []string{IssueBindingClaimWithoutBindingCitation}},
			want:  FailureOutOfScopeSource,
		},
		{
			name: "budget beats guard issues",
			input: FailureInput{
				GuardIssues: []string{IssueBindingClaimWithoutBindingCitation},
				Budget:      RuntimeBudget{MaxToolCalls: 1, UsedToolCalls: 2},
			},
			want: FailureBudgetExceeded,
		},
		{
			name:  "binding claim without binding citation",
			input: FailureInput{Query: "what does IRPA s. 36 require", GuardIssues: []string{IssueBindingClaimWithoutBindingCitation}},
			want:  FailureCitationMismatch,
		},
		{
			name:  "temporal claim without effective date",
			input: FailureInput{Query: "current processing rules", GuardIssues: []string{IssueTemporalClaimWithoutEffectiveDate}},
			want:  FailureStaleVolatileSource,
		},
		{
			name:  "no binding authority issue",
			input: FailureInput{Query: "what does IRPA require", GuardIssues: []string{IssueNoBindingAuthorityFound}},
			want:  FailureNoBindingAuthority,
		},
		{
			name:  "empty retrieval and no citations",
			input: FailureInput{Query: "spousal sponsorship eligibility", Retrieval: retrievalWithSources()},
			want:  FailureInsufficientEvidence,
		},
		{
			name: "vague query with evidence present",
			input: FailureInput{
				Query:     "can you help with my case",
				Retrieval: retrievalWithSources("chunk-1"),
				Citations: []Citation{{ID: "P1"}},
			},
			want: FailureInsufficientFacts,
		},
		{
			name: "clean run",
			input: FailureInput{
				Query:     "what are the IRPR work permit conditions",
				Retrieval: retrievalWithSources("chunk-1"),
				Citations: []Citation{{ID: "P1"}},
			},
			want: FailureNone,
		},
		{
			name:  "no retrieval at all is not insufficient evidence",
			input: FailureInput{Query: "what are the IRPR work permit conditions"},
			want:  FailureNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFailureState(tt.input))
		})
	}
}

func TestGetFailureStateInfo_UnknownCodePreserved(t *testing.T) {
	info := GetFailureStateInfo(FailureState("SOMETHING_NEW"))
	assert.Equal(t, FailureState("SOMETHING_NEW"), info.Code)
	assert.Equal(t, RetryNone, info.RetryPolicy)
}

func TestGetFailureStateInfo_RetryPolicies(t *testing.T) {
	assert.Equal(t, RetryWithBetterSources, GetFailureStateInfo(FailureNoBindingAuthority).RetryPolicy)
	assert.Equal(t, RetryWithRewrite, GetFailureStateInfo(FailureCitationMismatch).RetryPolicy)
	assert.Equal(t, RetryAskUserForFacts, GetFailureStateInfo(FailureInsufficientFacts).RetryPolicy)
	assert.Equal(t, RetryNone, GetFailureStateInfo(FailureOutOfScopeSource).RetryPolicy)
}

func TestApplyFailureStateNotice(t *testing.T) {
	text := "The applicant must satisfy residency obligations [P1]."

	assert.Equal(t, text, ApplyFailureStateNotice(text, FailureNone))
	assert.Equal(t, text, ApplyFailureStateNotice(text, FailureOutOfScopeSource), "states without a notice leave text unchanged")

	withNotice := ApplyFailureStateNotice(text, FailureStaleVolatileSource)
	assert.True(t, strings.HasPrefix(withNotice, "Note: "), "notice leads the response")
	assert.True(t, strings.HasSuffix(withNotice, "\n\n"+text))

	emptyBase := ApplyFailureStateNotice("", FailureInsufficientEvidence)
	assert.True(t, strings.HasPrefix(emptyBase, "Note: "))
}

func TestFailureStateCodes_CoversAllStates(t *testing.T) {
	codes := FailureStateCodes()
	assert.Len(t, codes, 8)
	assert.Contains(t, codes, FailureNone)
	assert.Contains(t, codes, FailureBudgetExceeded)
	assert.Contains(t, codes, FailureInsufficientEvidence)
}
