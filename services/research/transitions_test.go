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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphNode_String(t *testing.T) {
	assert.Equal(t, "classify", NodeClassify.String())
	assert.Equal(t, "retrieve_binding_tier", NodeRetrieveBindingTier.String())
	assert.Equal(t, "finalize_response", NodeFinalizeResponse.String())
	assert.Equal(t, "unknown", GraphNode(-1).String())
	assert.Equal(t, "unknown", GraphNode(99).String())
}

func TestDefaultNextNode(t *testing.T) {
	next, ok := DefaultNextNode(NodeClassify)
	require.True(t, ok)
	assert.Equal(t, NodeParseCitationQuery, next)

	next, ok = DefaultNextNode(NodeRewriteOrFail)
	require.True(t, ok)
	assert.Equal(t, NodeFinalizeResponse, next)

	_, ok = DefaultNextNode(NodeFinalizeResponse)
	assert.False(t, ok)

	_, ok = DefaultNextNode(GraphNode(-1))
	assert.False(t, ok)
}

func TestResolveNextNode_TerminateJumpsToFinalize(t *testing.T) {
	next, ok := ResolveNextNode(NodeClassify, true)
	require.True(t, ok)
	assert.Equal(t, NodeFinalizeResponse, next)

	next, ok = ResolveNextNode(NodeVerifierGate, true)
	require.True(t, ok)
	assert.Equal(t, NodeFinalizeResponse, next)

	_, ok = ResolveNextNode(NodeFinalizeResponse, true)
	assert.False(t, ok, "terminating at finalize_response ends the walk")
}

func TestResolveNextNode_SequentialWithoutTerminate(t *testing.T) {
	node := InitialGraphNode()
	visited := []GraphNode{node}
	for {
		next, ok := ResolveNextNode(node, false)
		if !ok {
			break
		}
		visited = append(visited, next)
		node = next
	}

	require.Len(t, visited, 11)
	assert.Equal(t, NodeClassify, visited[0])
	assert.Equal(t, NodeFinalizeResponse, visited[10])
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name      string
		from      GraphNode
		to        GraphNode
		hasNext   bool
		terminate bool
		want      bool
	}{
		{"sequential step", NodeClassify, NodeParseCitationQuery, true, false, true},
		{"skipping a node is illegal", NodeClassify, NodeRetrieveBindingTier, true, false, false},
		{"terminate shortcut to finalize", NodeRetrieveBindingTier, NodeFinalizeResponse, true, true, true},
		{"terminate shortcut elsewhere is illegal", NodeClassify, NodeVerifierGate, true, true, false},
		{"done only from finalize", NodeFinalizeResponse, 0, false, false, true},
		{"done from any other node is illegal", NodeVerifierGate, 0, false, false, false},
		{"invalid from", GraphNode(-1), NodeClassify, true, false, false},
		{"invalid to", NodeClassify, GraphNode(99), true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTransition(tt.from, tt.to, tt.hasNext, tt.terminate))
		})
	}
}
