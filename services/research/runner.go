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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Runner errors.
var (
	// ErrMissingNodeHandler is returned when the walk reaches a node the
	// dispatch switch does not cover.
	ErrMissingNodeHandler = errors.New("research: missing node handler")

	// ErrInvalidTransition is returned when the walk attempts an edge the
	// graph does not define.
	ErrInvalidTransition = errors.New("research: invalid graph transition")

	// ErrNoPayload is returned when the walk completes without the
	// finalize node producing outputs.
	ErrNoPayload = errors.New("research: graph run completed without payload")

	// ErrNilRetriever is returned by NewRunner when no retriever is wired.
	ErrNilRetriever = errors.New("research: retriever must not be nil")

	// ErrNilGenerator is returned by NewRunner when no generator is wired.
	ErrNilGenerator = errors.New("research: generator must not be nil")
)

// AnswerGenerator produces a grounded answer from the assembled prompts.
type AnswerGenerator interface {
	Answer(ctx context.Context, systemPrompt, userPrompt, model string) (string, error)
}

// CaseLawSearcher searches and enriches live case-law decisions.
type CaseLawSearcher interface {
	Enabled() bool
	SearchDecisions(ctx context.Context, query string, limit int, f CaseSearchFilters) ([]CaseLawSource, error)
	EnrichDecisions(ctx context.Context, sources []CaseLawSource) []CaseLawSource
}

// Dependencies are the collaborators a Runner needs. Retriever and
// Generator are required; CaseLaw and Logger are optional.
type Dependencies struct {
	Retriever   GroundingRetriever
	Generator   AnswerGenerator
	CaseLaw     CaseLawSearcher
	Documents   DocumentLoader
	Logger      *slog.Logger
	TraceLogDir string
}

// Runner executes the research graph for one request at a time.
//
// Description:
//
//	The graph is a fixed walk from classify to finalize_response. Each
//	node mutates shared run state; transitions are validated against the
//	closed node set, and a terminating node jumps straight to
//	finalization. The finalize node always runs, so every walk that
//	returns nil produced a payload.
//
// Thread Safety: safe for concurrent use; all per-run state lives in the
// GraphState passed between nodes.
type Runner struct {
	deps        Dependencies
	traceLogDir string
}

// NewRunner validates the dependency set and builds a Runner.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Retriever == nil {
		return nil, ErrNilRetriever
	}
	if deps.Generator == nil {
		return nil, ErrNilGenerator
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	traceLogDir := deps.TraceLogDir
	if traceLogDir == "" {
		traceLogDir = "logs/audit"
	}
	return &Runner{deps: deps, traceLogDir: traceLogDir}, nil
}

// dispatch runs the handler for one node.
func (r *Runner) dispatch(ctx context.Context, node GraphNode, state *GraphState) error {
	switch node {
	case NodeClassify:
		return r.runClassify(ctx, state)
	case NodeParseCitationQuery:
		return r.runParseCitationQuery(ctx, state)
	case NodeRetrieveExactCiteLookup:
		return r.runRetrieveExactCiteLookup(ctx, state)
	case NodeRetrieveBindingTier:
		return r.runRetrieveBindingTier(ctx, state)
	case NodeRetrieveGuidanceTier:
		return r.runRetrieveGuidanceTier(ctx, state)
	case NodeMaybeAgenticSearchAndFetch:
		return r.runMaybeAgenticSearchAndFetch(ctx, state)
	case NodeAssembleEvidenceBundle:
		return r.runAssembleEvidenceBundle(ctx, state)
	case NodeDraftAnswerAndClaimLedger:
		return r.runDraftAnswerAndClaimLedger(ctx, state)
	case NodeVerifierGate:
		return r.runVerifierGate(ctx, state)
	case NodeRewriteOrFail:
		return r.runRewriteOrFail(ctx, state)
	case NodeFinalizeResponse:
		return r.runFinalizeResponse(ctx, state)
	default:
		return fmt.Errorf("%w: %s", ErrMissingNodeHandler, node)
	}
}

// Run walks the research graph for one request.
func (r *Runner) Run(ctx context.Context, input GraphInput) (*GraphOutputs, error) {
	tracer := otel.Tracer("aleutian.counsel.research")
	ctx, span := tracer.Start(ctx, "research.graph.run")
	defer span.End()

	state := NewGraphState(input)
	if state.LoadDocuments == nil {
		state.LoadDocuments = r.deps.Documents
	}
	span.SetAttributes(
		attribute.String("research.session_id", state.Request.SessionID),
		attribute.Int("research.top_k", state.Request.TopK),
	)
	if state.RunTrace != nil {
		span.SetAttributes(attribute.String("research.run_id", state.RunTrace.RunID))
	}

	for {
		node := state.Graph.CurrentNode

		if err := r.dispatch(ctx, node, state); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "node failed")
			span.SetAttributes(attribute.String("research.failed_node", node.String()))
			return nil, fmt.Errorf("node %s: %w", node, err)
		}
		state.Graph.CompletedNodes = append(state.Graph.CompletedNodes, node)

		next, hasNext := ResolveNextNode(node, state.Control.Terminate)
		if !IsValidTransition(node, next, hasNext, state.Control.Terminate) {
			err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, node, next)
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid transition")
			return nil, err
		}
		if !hasNext {
			break
		}
		state.Graph.CurrentNode = next
	}

	if state.Outputs == nil {
		span.RecordError(ErrNoPayload)
		span.SetStatus(codes.Error, "no payload")
		return nil, ErrNoPayload
	}

	span.SetAttributes(
		attribute.Int("research.status_code", state.Outputs.StatusCode),
		attribute.Int("research.citation_count", len(state.Outputs.Citations)),
		attribute.Bool("research.blocked", state.Control.Blocked),
	)
	return state.Outputs, nil
}
