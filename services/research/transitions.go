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

// GraphNode identifies one node of the research graph.
//
// The node set is closed: nodes are a compile-time enum and dispatch is a
// switch, so an unknown node cannot be registered at runtime.
type GraphNode int

// Graph nodes in execution order.
const (
	NodeClassify GraphNode = iota
	NodeParseCitationQuery
	NodeRetrieveExactCiteLookup
	NodeRetrieveBindingTier
	NodeRetrieveGuidanceTier
	NodeMaybeAgenticSearchAndFetch
	NodeAssembleEvidenceBundle
	NodeDraftAnswerAndClaimLedger
	NodeVerifierGate
	NodeRewriteOrFail
	NodeFinalizeResponse

	nodeCount
)

var graphNodeNames = [...]string{
	NodeClassify:                   "classify",
	NodeParseCitationQuery:         "parse_citation_query",
	NodeRetrieveExactCiteLookup:    "retrieve_exact_cite_lookup",
	NodeRetrieveBindingTier:        "retrieve_binding_tier",
	NodeRetrieveGuidanceTier:       "retrieve_guidance_tier",
	NodeMaybeAgenticSearchAndFetch: "maybe_agentic_search_and_fetch",
	NodeAssembleEvidenceBundle:     "assemble_evidence_bundle",
	NodeDraftAnswerAndClaimLedger:  "draft_answer_and_claim_ledger",
	NodeVerifierGate:               "verifier_gate",
	NodeRewriteOrFail:              "rewrite_or_fail",
	NodeFinalizeResponse:           "finalize_response",
}

// String returns the stable wire name of the node.
func (n GraphNode) String() string {
	if n < 0 || n >= nodeCount {
		return "unknown"
	}
	return graphNodeNames[n]
}

// Valid reports whether n is a known graph node.
func (n GraphNode) Valid() bool {
	return n >= 0 && n < nodeCount
}

// InitialGraphNode returns the entry node of the graph.
func InitialGraphNode() GraphNode {
	return NodeClassify
}

// DefaultNextNode returns the sequential successor of a node. The second
// return is false when the node is the last one or unknown.
func DefaultNextNode(n GraphNode) (GraphNode, bool) {
	if !n.Valid() || n+1 >= nodeCount {
		return 0, false
	}
	return n + 1, true
}

// ResolveNextNode picks the next node to run.
//
// When a run is terminating, every node jumps straight to finalization;
// only finalize_response itself ends the walk.
func ResolveNextNode(current GraphNode, terminate bool) (GraphNode, bool) {
	if !current.Valid() {
		return 0, false
	}
	if terminate && current != NodeFinalizeResponse {
		return NodeFinalizeResponse, true
	}
	return DefaultNextNode(current)
}

// IsValidTransition reports whether moving from one node to the next is
// legal. A transition to "done" (hasNext false) is legal only from
// finalize_response. The terminate shortcut to finalize_response is legal
// from any other node.
func IsValidTransition(from, to GraphNode, hasNext, terminate bool) bool {
	if !from.Valid() {
		return false
	}
	if !hasNext {
		return from == NodeFinalizeResponse
	}
	if !to.Valid() {
		return false
	}
	if terminate && from != NodeFinalizeResponse && to == NodeFinalizeResponse {
		return true
	}
	next, ok := DefaultNextNode(from)
	return ok && next == to
}
