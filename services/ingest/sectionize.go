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
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Section is one heading-delimited span of page text.
type Section struct {
	// HeadingPath is the h1..h4 breadcrumb leading to this section.
	HeadingPath []string

	// TopHeading is HeadingPath[0].
	TopHeading string

	// Anchor is the "#id" of the section heading, "" when absent.
	Anchor string

	// Text is the linearized section text. Lines are paragraphs, list
	// items, or table rows.
	Text string
}

var (
	headingTagPattern  = regexp.MustCompile(`^h([1-4])$`)
	spaceRunPattern    = regexp.MustCompile(`[ \t]{2,}`)
	newlineRunPattern  = regexp.MustCompile(`\n{3,}`)
	skippedSectionTags = map[string]bool{
		"script":   true,
		"style":    true,
		"noscript": true,
		"template": true,
		"svg":      true,
	}
)

func headingLevel(tag string) int {
	m := headingTagPattern.FindStringSubmatch(strings.ToLower(tag))
	if m == nil {
		return 0
	}
	return int(m[1][0] - '0')
}

// upsertHeadingPath splices a subheading into the breadcrumb at its level.
// Levels deeper than the current path extend it; shallower levels truncate
// back before appending.
func upsertHeadingPath(path []string, topHeading string, level int, headingText string) []string {
	currentTop := topHeading
	if currentTop == "" && len(path) > 0 {
		currentTop = path[0]
	}
	if currentTop == "" {
		currentTop = fallbackTitle
	}
	if level == 1 {
		if headingText == "" {
			headingText = currentTop
		}
		return []string{headingText}
	}

	var existingSub []string
	if len(path) > 1 {
		existingSub = path[1:]
	}
	targetDepth := level - 1
	if targetDepth < 1 {
		targetDepth = 1
	}

	nextSub := make([]string, 0, targetDepth)
	keep := targetDepth - 1
	if keep > len(existingSub) {
		keep = len(existingSub)
	}
	nextSub = append(nextSub, existingSub[:keep]...)
	for len(nextSub) < targetDepth {
		nextSub = append(nextSub, "")
	}
	nextSub[targetDepth-1] = headingText

	result := []string{currentTop}
	for _, part := range nextSub {
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// textExcludingNestedLists returns a list item's own text, with nested
// sublists removed so their items become separate lines.
func textExcludingNestedLists(li *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && (n.Data == "ul" || n.Data == "ol") {
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for child := li.FirstChild; child != nil; child = child.NextSibling {
		walk(child)
	}
	return sb.String()
}

func rowHeaderCells(row *html.Node) []string {
	var ths []*html.Node
	findAll(row, func(n *html.Node) bool { return isElement(n, "th") }, &ths)
	headers := make([]string, 0, len(ths))
	for _, th := range ths {
		if text := normalizeWhitespace(nodeText(th)); text != "" {
			headers = append(headers, text)
		}
	}
	return headers
}

func rowCells(row *html.Node) []string {
	var cellNodes []*html.Node
	findAll(row, func(n *html.Node) bool { return isElement(n, "th") || isElement(n, "td") }, &cellNodes)
	cells := make([]string, 0, len(cellNodes))
	for _, cell := range cellNodes {
		cells = append(cells, normalizeWhitespace(nodeText(cell)))
	}
	return cells
}

// LinearizeTable flattens a table into labeled text rows.
//
// Description:
//
//	The first line is "Table: <caption>". When the table has headers, each
//	data row becomes "Header: cell | Header: cell"; otherwise cells are
//	joined with " | ".
func LinearizeTable(table *html.Node) string {
	lines := []string{}
	caption := ""
	if captionNode := findFirst(table, func(n *html.Node) bool { return isElement(n, "caption") }); captionNode != nil {
		caption = normalizeWhitespace(nodeText(captionNode))
	}
	if caption != "" {
		lines = append(lines, "Table: "+caption)
	} else {
		lines = append(lines, "Table:")
	}

	var rows []*html.Node
	findAll(table, func(n *html.Node) bool { return isElement(n, "tr") }, &rows)
	if len(rows) == 0 {
		return strings.Join(lines, "\n")
	}

	var headers []string
	if thead := findFirst(table, func(n *html.Node) bool { return isElement(n, "thead") }); thead != nil {
		headers = rowHeaderCells(thead)
	}
	if len(headers) == 0 {
		headers = rowHeaderCells(rows[0])
	}

	startIdx := 0
	if len(headers) > 0 && len(rowHeaderCells(rows[0])) > 0 {
		startIdx = 1
	}
	for _, row := range rows[startIdx:] {
		cells := rowCells(row)
		if len(cells) == 0 {
			continue
		}
		if len(headers) > 0 {
			labeled := make([]string, len(headers))
			for i, header := range headers {
				cell := ""
				if i < len(cells) {
					cell = cells[i]
				}
				labeled[i] = strings.TrimSpace(header + ": " + cell)
			}
			lines = append(lines, strings.Join(labeled, " | "))
		} else {
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type sectionizerState struct {
	topHeading    string
	path          []string
	currentAnchor string
	current       *sectionDraft
	sections      []Section
}

type sectionDraft struct {
	headingPath []string
	topHeading  string
	anchor      string
	textParts   []string
}

func newSectionDraft(path []string, anchor string) *sectionDraft {
	safePath := path
	if len(safePath) == 0 {
		safePath = []string{fallbackTitle}
	}
	copied := make([]string, len(safePath))
	copy(copied, safePath)
	return &sectionDraft{
		headingPath: copied,
		topHeading:  copied[0],
		anchor:      anchor,
		textParts:   []string{},
	}
}

func (s *sectionizerState) finalize() {
	if s.current == nil {
		return
	}
	text := strings.Join(s.current.textParts, "\n")
	text = spaceRunPattern.ReplaceAllString(text, " ")
	text = newlineRunPattern.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text != "" {
		s.sections = append(s.sections, Section{
			HeadingPath: s.current.headingPath,
			TopHeading:  s.current.topHeading,
			Anchor:      s.current.anchor,
			Text:        text,
		})
	}
	s.current = nil
}

func (s *sectionizerState) ensure() {
	if s.current == nil {
		s.current = newSectionDraft(s.path, s.currentAnchor)
	}
	if s.current.headingPath[0] == "" {
		s.current.headingPath[0] = s.topHeading
		s.current.topHeading = s.topHeading
	}
}

func (s *sectionizerState) pushLine(value string) {
	line := normalizeWhitespace(value)
	if line == "" {
		return
	}
	s.ensure()
	s.current.textParts = append(s.current.textParts, line)
}

// pushBlock appends pre-linearized multi-line text such as a table.
func (s *sectionizerState) pushBlock(value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	s.ensure()
	s.current.textParts = append(s.current.textParts, value)
}

func (s *sectionizerState) handleHeading(n *html.Node) {
	level := headingLevel(n.Data)
	if level == 0 {
		return
	}

	headingText := normalizeWhitespace(nodeText(n))
	anchor := ""
	if id := normalizeWhitespace(attrValue(n, "id")); id != "" {
		anchor = "#" + id
	}

	if level == 1 {
		s.finalize()
		if headingText != "" {
			s.topHeading = headingText
		}
		s.path = []string{s.topHeading}
		s.currentAnchor = anchor
		return
	}

	if headingText == "" {
		headingText = "Section H" + string(rune('0'+level))
	}
	s.path = upsertHeadingPath(s.path, s.topHeading, level, headingText)
	s.currentAnchor = anchor

	s.finalize()
	s.current = newSectionDraft(s.path, anchor)
}

func (s *sectionizerState) walk(n *html.Node) {
	if n == nil {
		return
	}
	if n.Type == html.TextNode {
		s.pushLine(n.Data)
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	tag := strings.ToLower(n.Data)
	if skippedSectionTags[tag] {
		return
	}

	if headingLevel(tag) > 0 {
		s.handleHeading(n)
		return
	}

	switch tag {
	case "table":
		s.pushBlock(LinearizeTable(n))
		return
	case "li":
		if text := normalizeWhitespace(textExcludingNestedLists(n)); text != "" {
			s.pushLine("- " + text)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if isElement(child, "ul") || isElement(child, "ol") {
				for item := child.FirstChild; item != nil; item = item.NextSibling {
					s.walk(item)
				}
			}
		}
		return
	case "p", "blockquote":
		s.pushLine(nodeText(n))
		return
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		s.walk(child)
	}
}

// ExtractSections splits a cleaned content subtree into sections.
//
// Description:
//
//	Walks the container in document order, starting a new section at each
//	heading and carrying the heading breadcrumb along. A page without
//	headings yields one section holding all its text.
func ExtractSections(container *html.Node, title string) []Section {
	pageTitle := normalizeWhitespace(title)
	if pageTitle == "" {
		pageTitle = fallbackTitle
	}

	topHeading := pageTitle
	if h1 := findFirst(container, func(n *html.Node) bool { return isElement(n, "h1") }); h1 != nil {
		if text := normalizeWhitespace(nodeText(h1)); text != "" {
			topHeading = text
		}
	}

	state := &sectionizerState{
		topHeading: topHeading,
		path:       []string{topHeading},
		sections:   []Section{},
	}
	for child := container.FirstChild; child != nil; child = child.NextSibling {
		state.walk(child)
	}
	state.finalize()

	if len(state.sections) == 0 {
		if fallback := normalizeWhitespace(nodeText(container)); fallback != "" {
			state.sections = append(state.sections, Section{
				HeadingPath: []string{topHeading},
				TopHeading:  topHeading,
				Anchor:      "",
				Text:        fallback,
			})
		}
	}

	for i := range state.sections {
		if len(state.sections[i].HeadingPath) == 0 {
			state.sections[i].HeadingPath = []string{topHeading}
		}
		state.sections[i].TopHeading = state.sections[i].HeadingPath[0]
	}
	return state.sections
}
