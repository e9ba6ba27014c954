// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseBody(t *testing.T, fragment string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body>" + fragment + "</body></html>"))
	require.NoError(t, err)
	body := findFirst(doc, func(n *html.Node) bool { return isElement(n, "body") })
	require.NotNil(t, body)
	return body
}

func TestExtractSections_HeadingHierarchy(t *testing.T) {
	body := parseBody(t, `
		<h1 id="top">Study Permits</h1>
		<p>Intro text.</p>
		<h2 id="eligibility">Eligibility</h2>
		<p>You must be accepted.</p>
		<ul>
			<li>Passport</li>
			<li>Letter
				<ul><li>Nested item</li></ul>
			</li>
		</ul>
		<h3 id="docs">Documents</h3>
		<p>Bring documents.</p>
		<h2 id="fees">Fees</h2>
		<p>Fee details.</p>`)

	sections := ExtractSections(body, "fallback title")
	require.Len(t, sections, 4)

	assert.Equal(t, []string{"Study Permits"}, sections[0].HeadingPath)
	assert.Equal(t, "#top", sections[0].Anchor)
	assert.Equal(t, "Intro text.", sections[0].Text)

	assert.Equal(t, []string{"Study Permits", "Eligibility"}, sections[1].HeadingPath)
	assert.Equal(t, "#eligibility", sections[1].Anchor)
	assert.Contains(t, sections[1].Text, "You must be accepted.")
	assert.Contains(t, sections[1].Text, "- Passport")
	assert.Contains(t, sections[1].Text, "- Letter")
	assert.Contains(t, sections[1].Text, "- Nested item")

	assert.Equal(t, []string{"Study Permits", "Eligibility", "Documents"}, sections[2].HeadingPath)
	assert.Equal(t, "#docs", sections[2].Anchor)

	assert.Equal(t, []string{"Study Permits", "Fees"}, sections[3].HeadingPath,
		"an h2 after an h3 truncates the breadcrumb")
	assert.Equal(t, "Study Permits", sections[3].TopHeading)
}

func TestExtractSections_NoHeadingsFallsBackToSinglePage(t *testing.T) {
	body := parseBody(t, `<p>Only paragraph content here.</p>`)

	sections := ExtractSections(body, "Page Title")
	require.Len(t, sections, 1)
	assert.Equal(t, []string{"Page Title"}, sections[0].HeadingPath)
	assert.Equal(t, "Only paragraph content here.", sections[0].Text)
	assert.Empty(t, sections[0].Anchor)
}

func TestExtractSections_EmptyTitleUsesFallback(t *testing.T) {
	body := parseBody(t, `<p>Body text.</p>`)

	sections := ExtractSections(body, "")
	require.Len(t, sections, 1)
	assert.Equal(t, fallbackTitle, sections[0].TopHeading)
}

func TestExtractSections_SkipsScriptAndStyle(t *testing.T) {
	body := parseBody(t, `
		<h2 id="s">Section</h2>
		<p>Visible text.</p>
		<script>var hidden = true;</script>
		<style>.x { color: red; }</style>`)

	sections := ExtractSections(body, "Title")
	require.Len(t, sections, 1)
	assert.NotContains(t, sections[0].Text, "hidden")
	assert.NotContains(t, sections[0].Text, "color")
}

func TestLinearizeTable_WithHeaders(t *testing.T) {
	body := parseBody(t, `
		<table>
			<caption>Fee schedule</caption>
			<thead><tr><th>Item</th><th>Cost</th></tr></thead>
			<tbody>
				<tr><td>Study permit</td><td>$150</td></tr>
				<tr><td>Biometrics</td><td>$85</td></tr>
			</tbody>
		</table>`)
	table := findFirst(body, func(n *html.Node) bool { return isElement(n, "table") })
	require.NotNil(t, table)

	text := LinearizeTable(table)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Table: Fee schedule", lines[0])
	assert.Equal(t, "Item: Study permit | Cost: $150", lines[1])
	assert.Equal(t, "Item: Biometrics | Cost: $85", lines[2])
}

func TestLinearizeTable_NoHeaders(t *testing.T) {
	body := parseBody(t, `
		<table>
			<tr><td>alpha</td><td>beta</td></tr>
		</table>`)
	table := findFirst(body, func(n *html.Node) bool { return isElement(n, "table") })
	require.NotNil(t, table)

	text := LinearizeTable(table)
	lines := strings.Split(text, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Table:", lines[0])
	assert.Equal(t, "alpha | beta", lines[1])
}

func TestUpsertHeadingPath(t *testing.T) {
	path := []string{"Top"}
	path = upsertHeadingPath(path, "Top", 2, "Sub")
	assert.Equal(t, []string{"Top", "Sub"}, path)

	path = upsertHeadingPath(path, "Top", 3, "Deep")
	assert.Equal(t, []string{"Top", "Sub", "Deep"}, path)

	path = upsertHeadingPath(path, "Top", 2, "Other")
	assert.Equal(t, []string{"Top", "Other"}, path, "a shallower heading truncates deeper levels")

	path = upsertHeadingPath(path, "Top", 1, "New Top")
	assert.Equal(t, []string{"New Top"}, path)
}
