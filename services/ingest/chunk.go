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

import "strings"

// Default chunking parameters.
const (
	DefaultChunkMaxChars     = 3200
	DefaultChunkOverlapChars = 500
)

// ChunkOptions tunes the sliding-window chunker.
type ChunkOptions struct {
	// MaxChars is the window size. Values < 1 use DefaultChunkMaxChars.
	MaxChars int

	// OverlapChars is the window overlap. Values < 1 use
	// DefaultChunkOverlapChars; the overlap is capped at MaxChars/2.
	OverlapChars int
}

func (o ChunkOptions) resolve() (int, int) {
	maxChars := o.MaxChars
	if maxChars < 1 {
		maxChars = DefaultChunkMaxChars
	}
	overlap := o.OverlapChars
	if overlap < 1 {
		overlap = DefaultChunkOverlapChars
	}
	if overlap > maxChars/2 {
		overlap = maxChars / 2
	}
	return maxChars, overlap
}

// TextChunk is one window of chunked text with its source offsets.
type TextChunk struct {
	Text  string
	Start int
	End   int
}

// findBoundary picks the cut point for a window ending at targetEnd.
// A newline wins over a space; either must fall in the last 40% of the
// window, otherwise the window is cut hard at targetEnd.
func findBoundary(text string, start, targetEnd int) int {
	if targetEnd >= len(text) {
		return len(text)
	}

	minBoundary := start + (targetEnd-start)*6/10
	if idx := strings.LastIndexByte(text[:targetEnd+1], '\n'); idx >= minBoundary {
		return idx
	}
	if idx := strings.LastIndexByte(text[:targetEnd+1], ' '); idx >= minBoundary {
		return idx
	}
	return targetEnd
}

// ChunkText splits text into overlapping windows.
//
// Description:
//
//	Windows prefer to end at a newline or space boundary. Each next window
//	starts overlap characters before the previous end; when the overlap
//	would stall the walk, the window advances by at least one character.
func ChunkText(text string, opts ChunkOptions) []TextChunk {
	value := strings.TrimSpace(text)
	if value == "" {
		return []TextChunk{}
	}
	maxChars, overlap := opts.resolve()

	chunks := []TextChunk{}
	start := 0
	for start < len(value) {
		targetEnd := start + maxChars
		if targetEnd > len(value) {
			targetEnd = len(value)
		}
		end := findBoundary(value, start, targetEnd)

		chunkText := strings.TrimSpace(value[start:end])
		if chunkText != "" {
			chunks = append(chunks, TextChunk{Text: chunkText, Start: start, End: end})
		}

		if end >= len(value) {
			break
		}

		nextStart := end - overlap
		if nextStart < 0 {
			nextStart = 0
		}
		if nextStart <= start {
			advance := maxChars - overlap
			if advance < 1 {
				advance = 1
			}
			nextStart = start + advance
		}
		start = nextStart
	}
	return chunks
}

// SectionChunk is one chunk of one document section.
type SectionChunk struct {
	SectionIndex int
	ChunkIndex   int
	HeadingPath  []string
	TopHeading   string
	Anchor       string
	Text         string
	StartChar    int
	EndChar      int
}

// ChunkSections chunks every section of a document in order.
func ChunkSections(sections []Section, opts ChunkOptions) []SectionChunk {
	chunks := []SectionChunk{}
	for sectionIndex, section := range sections {
		for chunkIndex, chunk := range ChunkText(section.Text, opts) {
			topHeading := section.TopHeading
			if topHeading == "" && len(section.HeadingPath) > 0 {
				topHeading = section.HeadingPath[0]
			}
			chunks = append(chunks, SectionChunk{
				SectionIndex: sectionIndex,
				ChunkIndex:   chunkIndex,
				HeadingPath:  section.HeadingPath,
				TopHeading:   topHeading,
				Anchor:       section.Anchor,
				Text:         chunk.Text,
				StartChar:    chunk.Start,
				EndChar:      chunk.End,
			})
		}
	}
	return chunks
}
