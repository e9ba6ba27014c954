// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package legalcite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractClauseKey_ExplicitClausePrompts(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{"irpa section style", "What does IRPA s.34(1)(c) say?", "IRPA:34(1)(c)"},
		{"irpr bare style", "What is required under IRPR 200(1)(b)?", "IRPR:200(1)(b)"},
		{"irpa colon style", "Summarize IRPA: 40 for me", "IRPA:40"},
		{"shorthand a", "Is A34(1)(c) about security?", "IRPA:34(1)(c)"},
		{"shorthand r", "Check R216(1) requirements", "IRPR:216(1)"},
		{"dotted section", "What does IRPR 200.1 cover?", "IRPR:200.1"},
		{"no clause", "How do I apply for a study permit?", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractClauseKey(tt.query))
		})
	}
}

func TestExtractClauseKey_TerrorismHeuristic(t *testing.T) {
	assert.Equal(t, "IRPA:34(1)(c)", ExtractClauseKey("Inadmissible for terrorism under IRPA?"))
	// Terrorism without an IRPA mention stays unmapped.
	assert.Equal(t, "", ExtractClauseKey("What counts as terrorism?"))
}

func TestNormalizeSectionID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"underscore style", "IRPR_200_1_b", "IRPR:200(1)(b)"},
		{"already canonical", "irpa:34(1)(c)", "IRPA:34(1)(c)"},
		{"dot marker", "IRPR_200_dot_1", "IRPR:200.1"},
		{"unknown instrument", "ENF_4_1", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSectionID(tt.input))
		})
	}
}

func TestAuthorityLevelNum(t *testing.T) {
	assert.Equal(t, LevelStatute, AuthorityLevelNum("regulation"))
	assert.Equal(t, LevelStatute, AuthorityLevelNum("Statute"))
	assert.Equal(t, LevelInstruction, AuthorityLevelNum("ministerial_instruction"))
	assert.Equal(t, LevelManual, AuthorityLevelNum("manual"))
	assert.Equal(t, LevelReference, AuthorityLevelNum("case_law"))
	assert.Equal(t, 0, AuthorityLevelNum("blog_post"))
}

func TestBuildCanonicalKey(t *testing.T) {
	assert.Equal(t, "IRPA:34(1)(c)", BuildCanonicalKey("irpa", "34", []string{"1", "C"}))
	assert.Equal(t, "IRPR:200", BuildCanonicalKey("IRPR", "200.", nil))
	assert.Equal(t, "", BuildCanonicalKey("IRPA", "  ", []string{"a"}))
}

func TestProbeText(t *testing.T) {
	assert.Equal(t, "IRPR:179(b)", ProbeText("IRPR 179(b) requires that officers be satisfied"))
	assert.Equal(t, "", ProbeText("general guidance with no citation"))
}
