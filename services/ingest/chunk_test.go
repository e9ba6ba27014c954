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
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("A short section.", ChunkOptions{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short section.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
}

func TestChunkText_Empty(t *testing.T) {
	assert.Empty(t, ChunkText("", ChunkOptions{}))
	assert.Empty(t, ChunkText("   \n  ", ChunkOptions{}))
}

func TestChunkText_PrefersNewlineBoundary(t *testing.T) {
	// A newline at position 80 sits in the last 40% of a 100-char window,
	// so the first chunk must end there instead of mid-word.
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)
	chunks := ChunkText(text, ChunkOptions{MaxChars: 100, OverlapChars: 10})

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 80), chunks[0].Text)
	assert.Equal(t, 80, chunks[0].End)
}

func TestChunkText_SpaceBoundaryWhenNoNewline(t *testing.T) {
	text := strings.Repeat("a", 80) + " " + strings.Repeat("b", 80)
	chunks := ChunkText(text, ChunkOptions{MaxChars: 100, OverlapChars: 10})

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 80), chunks[0].Text)
}

func TestChunkText_HardCutWithoutBoundary(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := ChunkText(text, ChunkOptions{MaxChars: 100, OverlapChars: 10})

	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, chunks[0].End)
}

func TestChunkText_OverlapAndProgress(t *testing.T) {
	text := strings.Repeat("y", 1000)
	chunks := ChunkText(text, ChunkOptions{MaxChars: 100, OverlapChars: 20})

	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start, "each window must advance")
		assert.Equal(t, chunks[i-1].End-20, chunks[i].Start, "windows overlap by the configured amount")
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End, "final window reaches the end")
}

func TestChunkOptions_OverlapCappedAtHalfWindow(t *testing.T) {
	maxChars, overlap := ChunkOptions{MaxChars: 100, OverlapChars: 90}.resolve()
	assert.Equal(t, 100, maxChars)
	assert.Equal(t, 50, overlap)

	maxChars, overlap = ChunkOptions{}.resolve()
	assert.Equal(t, DefaultChunkMaxChars, maxChars)
	assert.Equal(t, DefaultChunkOverlapChars, overlap)
}

func TestChunkSections(t *testing.T) {
	sections := []Section{
		{HeadingPath: []string{"Guide", "Eligibility"}, TopHeading: "Guide", Anchor: "#eligibility", Text: "Applicants need a valid passport."},
		{HeadingPath: []string{"Guide", "Fees"}, TopHeading: "Guide", Anchor: "#fees", Text: ""},
		{HeadingPath: []string{"Guide", "Processing"}, TopHeading: "Guide", Anchor: "#processing", Text: "Processing takes weeks."},
	}

	chunks := ChunkSections(sections, ChunkOptions{})
	require.Len(t, chunks, 2, "empty sections produce no chunks")

	assert.Equal(t, 0, chunks[0].SectionIndex)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "#eligibility", chunks[0].Anchor)
	assert.Equal(t, "Guide", chunks[0].TopHeading)

	assert.Equal(t, 2, chunks[1].SectionIndex)
	assert.Equal(t, "Processing takes weeks.", chunks[1].Text)
}
