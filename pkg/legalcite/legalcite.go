// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package legalcite provides canonical clause keys and authority levels for
// Canadian immigration instruments (IRPA/IRPR).
//
// A canonical clause key identifies one statutory or regulatory sub-provision,
// e.g. "IRPR:200(1)(b)". Keys are produced from free-form question text, from
// indexed section ids ("IRPR_200_1_b"), or from source metadata, and compared
// case-insensitively by callers.
//
// Extraction is heuristic pattern matching, not a statutory-citation grammar.
// Callers must treat a missing key as "no specific clause named", never as an
// error.
package legalcite

import (
	"regexp"
	"strings"
)

// Authority level ordinals. Higher binds harder.
const (
	LevelReference   = 1 // case law, jurisprudence, reference material
	LevelManual      = 2 // policy, manuals, VOI
	LevelInstruction = 3 // ministerial instructions, public policies
	LevelStatute     = 4 // statutes and regulations
)

// authorityNumByLabel maps source-metadata authority labels to ordinals.
var authorityNumByLabel = map[string]int{
	"statute":                 LevelStatute,
	"regulation":              LevelStatute,
	"ministerial_instruction": LevelInstruction,
	"public_policy":           LevelInstruction,
	"policy":                  LevelManual,
	"manual":                  LevelManual,
	"voi":                     LevelManual,
	"jurisprudence":           LevelReference,
	"case_law":                LevelReference,
	"reference":               LevelReference,
	"provincial_program":      LevelReference,
}

// AuthorityLevelNum returns the ordinal for an authority label, or 0 when the
// label is unknown.
func AuthorityLevelNum(label string) int {
	return authorityNumByLabel[strings.ToLower(strings.TrimSpace(label))]
}

var (
	irpaPattern      = instrumentPattern("IRPA")
	irprPattern      = instrumentPattern("IRPR")
	shorthandPattern = regexp.MustCompile(`(?i)\b([AR])\s*(\d+(?:\.\d+)*)((?:\s*\([a-z0-9]+\))*)\b`)
	labelPattern     = regexp.MustCompile(`(?i)\(([a-z0-9]+)\)`)
	canonicalPattern = regexp.MustCompile(`(?i)^(IRPA|IRPR):`)
	terrorismPattern = regexp.MustCompile(`(?i)\bterrorism\b`)
	irpaWordPattern  = regexp.MustCompile(`(?i)\birpa\b`)
)

func instrumentPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?i)\b` + prefix + `\b\s*(?:(?:s|sec|section)\.?\s*)?(?:[:#-]\s*)?(\d+(?:\.\d+)*)((?:\s*\([a-z0-9]+\))*)`,
	)
}

// BuildCanonicalKey assembles "PREFIX:section(label)(label)" from parts.
// Returns "" when the section is empty. Labels are lowercased; a trailing dot
// on the section is dropped.
func BuildCanonicalKey(prefix, section string, labels []string) string {
	cleanSection := strings.TrimSuffix(strings.TrimSpace(section), ".")
	if cleanSection == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToUpper(prefix))
	b.WriteString(":")
	b.WriteString(cleanSection)
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		b.WriteString("(")
		b.WriteString(label)
		b.WriteString(")")
	}
	return b.String()
}

func parseLabels(raw string) []string {
	matches := labelPattern.FindAllStringSubmatch(raw, -1)
	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		labels = append(labels, m[1])
	}
	return labels
}

func parseInstrument(text string, prefix string, pattern *regexp.Regexp) string {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return BuildCanonicalKey(prefix, m[1], parseLabels(m[2]))
}

func parseShorthand(text string) string {
	m := shorthandPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	prefix := "IRPR"
	if strings.EqualFold(m[1], "A") {
		prefix = "IRPA"
	}
	return BuildCanonicalKey(prefix, m[2], parseLabels(m[3]))
}

// ExtractClauseKey parses a canonical clause key out of free-form question
// text. Instrument mentions win over A/R shorthand. The terrorism heuristic
// maps "terrorism" + "IRPA" to IRPA:34(1)(c) when no explicit clause is named.
// Returns "" when no clause can be extracted.
func ExtractClauseKey(query string) string {
	text := strings.TrimSpace(query)
	if text == "" {
		return ""
	}

	if key := parseInstrument(text, "IRPA", irpaPattern); key != "" {
		return key
	}
	if key := parseInstrument(text, "IRPR", irprPattern); key != "" {
		return key
	}
	if key := parseShorthand(text); key != "" {
		return key
	}

	if terrorismPattern.MatchString(text) && irpaWordPattern.MatchString(text) {
		return "IRPA:34(1)(c)"
	}

	return ""
}

// NormalizeSectionID converts stored section identifiers into canonical keys.
//
// Accepted forms:
//   - already-canonical "IRPR:200(1)(b)" (instrument uppercased)
//   - underscore style "IRPR_200_1_b" -> "IRPR:200(1)(b)"
//
// Returns "" for anything else.
func NormalizeSectionID(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}

	if canonicalPattern.MatchString(text) {
		parts := strings.SplitN(text, ":", 2)
		return strings.ToUpper(parts[0]) + ":" + parts[1]
	}

	parts := make([]string, 0, 8)
	for _, p := range strings.Split(text, "_") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 2 && (strings.EqualFold(parts[0], "IRPA") || strings.EqualFold(parts[0], "IRPR")) {
		section := strings.ReplaceAll(parts[1], "_dot_", ".")
		labels := make([]string, 0, len(parts)-2)
		for _, p := range parts[2:] {
			labels = append(labels, strings.ReplaceAll(p, "_dot_", "."))
		}
		return BuildCanonicalKey(parts[0], section, labels)
	}

	return ""
}

// ProbeText extracts a clause key from arbitrary source text (snippet, title),
// trying instrument patterns then shorthand. Used as a last resort when source
// metadata carries no section id.
func ProbeText(text string) string {
	probe := strings.TrimSpace(text)
	if probe == "" {
		return ""
	}
	if key := parseInstrument(probe, "IRPA", irpaPattern); key != "" {
		return key
	}
	if key := parseInstrument(probe, "IRPR", irprPattern); key != "" {
		return key
	}
	return parseShorthand(probe)
}
