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
)

// PromptSafety is the result of screening a message for instruction
// overrides before it reaches the graph.
type PromptSafety struct {
	// Detected is true when at least one override pattern matched.
	Detected bool `json:"detected"`

	// Score is a rough severity in [0, 1] based on match count.
	Score float64 `json:"score"`

	// Matches lists the pattern names that fired.
	Matches []string `json:"matches"`
}

// injectionPatterns screen for attempts to override system instructions.
// Pattern names are stable; they appear in audit trace events.
var injectionPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"ignore_instructions", regexp.MustCompile(`(?i)\bignore\s+(?:all\s+|any\s+)?(?:previous|prior|above|earlier)\s+(?:instructions|rules|prompts?)\b`)},
	{"disregard_instructions", regexp.MustCompile(`(?i)\bdisregard\s+(?:your|the|all)\s+(?:instructions|rules|guidelines)\b`)},
	{"system_prompt_probe", regexp.MustCompile(`(?i)\b(?:reveal|show|print|repeat)\b.{0,40}\bsystem\s+prompt\b`)},
	{"role_override", regexp.MustCompile(`(?i)\byou\s+are\s+now\b|\bpretend\s+(?:to\s+be|you\s+are)\b|\bact\s+as\s+(?:a|an)\s+unrestricted\b`)},
	{"jailbreak", regexp.MustCompile(`(?i)\bjailbreak\b|\bdeveloper\s+mode\b|\bdan\s+mode\b`)},
	{"guardrail_override", regexp.MustCompile(`(?i)\b(?:override|bypass|disable)\b.{0,30}\b(?:guardrails?|safety|filters?|restrictions?)\b`)},
}

// controlCharPattern strips non-printable and zero-width characters,
// keeping newline and tab.
var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f\x{200B}-\x{200D}\x{FEFF}]`)

// ClassifyPromptSafety screens a message for instruction-override attempts.
//
// Thread Safety: safe for concurrent use.
func ClassifyPromptSafety(message string) PromptSafety {
	result := PromptSafety{Matches: []string{}}
	text := strings.TrimSpace(message)
	if text == "" {
		return result
	}
	for _, entry := range injectionPatterns {
		if entry.pattern.MatchString(text) {
			result.Matches = append(result.Matches, entry.name)
		}
	}
	if len(result.Matches) > 0 {
		result.Detected = true
		result.Score = float64(len(result.Matches)) * 0.35
		if result.Score > 1 {
			result.Score = 1
		}
	}
	return result
}

// SanitizeMessage normalizes a user message before processing: control and
// zero-width characters are removed, runs of blank lines collapse to one,
// and surrounding whitespace is trimmed.
func SanitizeMessage(message string) string {
	text := controlCharPattern.ReplaceAllString(message, "")
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// rcicTerms are topic markers for Canadian immigration practice.
var rcicTerms = []string{
	"immigration",
	"visa",
	"permit",
	"irpa",
	"irpr",
	"ircc",
	"cbsa",
	"sponsor",
	"citizenship",
	"refugee",
	"asylum",
	"express entry",
	"permanent resident",
	"study permit",
	"work permit",
	"inadmissib",
	"deportation",
	"removal order",
	"lmia",
	"crs",
	"pnp",
	"rcic",
	"humanitarian and compassionate",
}

// IsRCICRelated reports whether a message is plausibly about Canadian
// immigration practice. A question that names a clause shorthand such as
// A34 or R216 counts as related even without topic keywords.
func IsRCICRelated(message string) bool {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return false
	}
	for _, term := range rcicTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return clauseShorthandPattern.MatchString(text)
}

var (
	blankRunPattern        = regexp.MustCompile(`\n{3,}`)
	clauseShorthandPattern = regexp.MustCompile(`(?i)\b[ar]\d{1,3}\b`)
)
