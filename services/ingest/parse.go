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
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// fallbackTitle is used when a page exposes neither an h1 nor a title tag.
const fallbackTitle = "Untitled PDI"

var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses runs of whitespace to single spaces.
func normalizeWhitespace(value string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
}

var junkTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"svg":      true,
	"nav":      true,
	"header":   true,
	"footer":   true,
}

var junkAttrMarkers = []string{"cookie", "banner", "consent"}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClassToken(n *html.Node, token string) bool {
	for _, field := range strings.Fields(attrValue(n, "class")) {
		if field == token {
			return true
		}
	}
	return false
}

// isJunkNode flags navigation chrome, consent banners, and non-content
// embeds that would pollute extracted sections.
func isJunkNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if junkTags[n.Data] {
		return true
	}
	if strings.EqualFold(attrValue(n, "role"), "navigation") {
		return true
	}
	classAttr := strings.ToLower(attrValue(n, "class"))
	idAttr := strings.ToLower(attrValue(n, "id"))
	for _, marker := range junkAttrMarkers {
		if strings.Contains(classAttr, marker) || strings.Contains(idAttr, marker) {
			return true
		}
	}
	return false
}

// removeJunk prunes junk nodes from the subtree in place.
func removeJunk(n *html.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if isJunkNode(child) {
			n.RemoveChild(child)
		} else {
			removeJunk(child)
		}
		child = next
	}
}

// nodeText collects the concatenated text of a subtree.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteByte(' ')
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

func textLength(n *html.Node) int {
	return len(normalizeWhitespace(nodeText(n)))
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, pred); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, pred func(*html.Node) bool, out *[]*html.Node) {
	if pred(n) {
		*out = append(*out, n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		findAll(child, pred, out)
	}
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

// pickContentContainer finds the node most likely to hold the page body.
//
// Preferred containers win outright when they carry enough text; otherwise
// the largest of the generic candidates is used, falling back to body.
func pickContentContainer(doc *html.Node) *html.Node {
	preferred := []func(*html.Node) bool{
		func(n *html.Node) bool { return isElement(n, "main") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && attrValue(n, "id") == "main-content" },
		func(n *html.Node) bool { return n.Type == html.ElementNode && hasClassToken(n, "main-content") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && hasClassToken(n, "content") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && hasClassToken(n, "field--name-body") },
		func(n *html.Node) bool {
			return n.Type == html.ElementNode && strings.EqualFold(attrValue(n, "role"), "main")
		},
	}
	for _, pred := range preferred {
		if node := findFirst(doc, pred); node != nil && textLength(node) > 120 {
			return node
		}
	}

	fallbacks := []func(*html.Node) bool{
		func(n *html.Node) bool { return isElement(n, "article") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && attrValue(n, "id") == "content" },
		func(n *html.Node) bool { return n.Type == html.ElementNode && hasClassToken(n, "container") },
		func(n *html.Node) bool { return n.Type == html.ElementNode && hasClassToken(n, "region-content") },
		func(n *html.Node) bool { return isElement(n, "body") },
	}

	best := findFirst(doc, func(n *html.Node) bool { return isElement(n, "body") })
	bestLength := 0
	if best != nil {
		bestLength = textLength(best)
	} else {
		best = doc
	}
	for _, pred := range fallbacks {
		var candidates []*html.Node
		findAll(doc, pred, &candidates)
		for _, node := range candidates {
			if length := textLength(node); length > bestLength {
				best = node
				bestLength = length
			}
		}
	}
	return best
}

var (
	isoDatePattern          = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	monthDayYearPattern     = regexp.MustCompile(`\b([A-Za-z]{3,9})\s+(\d{1,2}),\s*(\d{4})\b`)
	dayMonthYearPattern     = regexp.MustCompile(`\b(\d{1,2})\s+([A-Za-z]{3,9})\s+(\d{4})\b`)
	lastUpdatedLabelPattern = regexp.MustCompile(`(?i)(date\s+modified|last\s+updated|date\s+updated)`)
)

func parseMonthName(month, day, year string) string {
	raw := fmt.Sprintf("%s %s, %s", month, day, year)
	for _, layout := range []string{"January 2, 2006", "Jan 2, 2006"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	return ""
}

// ParseLooseDate extracts an ISO date from free text. Returns "" when no
// recognizable date is present.
func ParseLooseDate(raw string) string {
	value := normalizeWhitespace(raw)
	if value == "" {
		return ""
	}
	if m := isoDatePattern.FindStringSubmatch(value); m != nil {
		return m[1]
	}
	if m := monthDayYearPattern.FindStringSubmatch(value); m != nil {
		if parsed := parseMonthName(m[1], m[2], m[3]); parsed != "" {
			return parsed
		}
	}
	if m := dayMonthYearPattern.FindStringSubmatch(value); m != nil {
		if parsed := parseMonthName(m[2], m[1], m[3]); parsed != "" {
			return parsed
		}
	}
	return ""
}

var lastUpdatedCandidateTags = map[string]bool{
	"time":   true,
	"p":      true,
	"div":    true,
	"span":   true,
	"li":     true,
	"strong": true,
}

// extractLastUpdated finds the page's "Date modified" style stamp,
// preferring matches inside the content container.
func extractLastUpdated(doc, container *html.Node) string {
	collect := func(root *html.Node) []string {
		var nodes []*html.Node
		findAll(root, func(n *html.Node) bool {
			return n.Type == html.ElementNode && lastUpdatedCandidateTags[n.Data]
		}, &nodes)
		var texts []string
		for _, node := range nodes {
			text := normalizeWhitespace(nodeText(node))
			if lastUpdatedLabelPattern.MatchString(text) {
				texts = append(texts, text)
			}
		}
		return texts
	}

	candidates := collect(container)
	if len(candidates) == 0 {
		candidates = collect(doc)
	}
	for _, text := range candidates {
		if parsed := ParseLooseDate(text); parsed != "" {
			return parsed
		}
	}
	return ""
}

// ParsedPage is the cleaned page ready for sectionizing.
type ParsedPage struct {
	// Doc is the full parsed document after junk removal.
	Doc *html.Node

	// Container is the content subtree sections are extracted from.
	Container *html.Node

	// Title is the page h1, falling back to the title tag.
	Title string

	// LastUpdated is the ISO page modification date, "" when absent.
	LastUpdated string
}

// ParsePage parses and cleans one fetched HTML page.
func ParsePage(rawHTML string) (*ParsedPage, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("ingest: parse html: %w", err)
	}

	removeJunk(doc)
	container := pickContentContainer(doc)
	removeJunk(container)

	title := ""
	if h1 := findFirst(container, func(n *html.Node) bool { return isElement(n, "h1") }); h1 != nil {
		title = normalizeWhitespace(nodeText(h1))
	}
	if title == "" {
		if titleTag := findFirst(doc, func(n *html.Node) bool { return isElement(n, "title") }); titleTag != nil {
			title = normalizeWhitespace(nodeText(titleTag))
		}
	}
	if title == "" {
		title = fallbackTitle
	}

	return &ParsedPage{
		Doc:         doc,
		Container:   container,
		Title:       title,
		LastUpdated: extractLastUpdated(doc, container),
	}, nil
}
