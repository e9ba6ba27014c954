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
	"strings"
)

// DocumentLoader fetches user-document grounding for a query.
type DocumentLoader func(ctx context.Context, query string) ([]DocumentSource, error)

// GraphFlags are the feature switches honored by a run.
type GraphFlags struct {
	DebugEnabled                   bool
	PromptInjectionBlockingEnabled bool
	CaseLawEnabled                 bool
	CaseLawSearchEnabled           bool
	LegislationSearchEnabled       bool
	AuditTraceEnabled              bool
	AuditTracePersistLog           bool
	AuditTraceSampleRate           float64
}

// DefaultGraphFlags returns the standard flag set.
func DefaultGraphFlags() GraphFlags {
	return GraphFlags{
		PromptInjectionBlockingEnabled: true,
		CaseLawEnabled:                 true,
		CaseLawSearchEnabled:           true,
		AuditTraceEnabled:              true,
		AuditTracePersistLog:           true,
		AuditTraceSampleRate:           1,
	}
}

// GraphInput is everything a run starts from.
type GraphInput struct {
	Message            string
	EffectiveMessage   string
	SanitizedMessage   string
	PromptSafety       PromptSafety
	RCICRelated        bool
	SessionID          string
	UserID             string
	History            []HistoryMessage
	TopK               int
	AnalysisDateBasis  string
	AsOfDate           string
	RuntimeBudget      RuntimeBudget
	RunTrace           *RunTrace
	DefaultCaseLawTopK int
	Model              string
	Flags              GraphFlags
	LoadDocuments      DocumentLoader
}

// GraphState is the mutable state threaded through the graph nodes.
type GraphState struct {
	Graph struct {
		CurrentNode    GraphNode
		CompletedNodes []GraphNode
	}

	Request struct {
		Message           string
		EffectiveMessage  string
		SanitizedMessage  string
		PromptSafety      PromptSafety
		RCICRelated       bool
		SessionID         string
		UserID            string
		History           []HistoryMessage
		TopK              int
		AnalysisDateBasis string
		AsOfDate          string
	}

	Flags GraphFlags

	Defaults struct {
		CaseLawTopK int
		Model       string
	}

	LoadDocuments DocumentLoader

	RunTrace      *RunTrace
	RuntimeBudget RuntimeBudget

	Routing struct {
		Decision *RouteDecision
	}

	CitationQuery struct {
		Detected   bool
		SectionKey string
		SectionID  string
	}

	Retrieval struct {
		Grounding        *Grounding
		ExactCitationHit *Source
	}

	Sources struct {
		CaseLaw   []CaseLawSource
		Documents []DocumentSource
	}

	Prompt Prompt

	Generation struct {
		Text string
	}

	Guard struct {
		Text         string
		Issues       []string
		FailureState FailureState
	}

	Response struct {
		Text             string
		Citations        []Citation
		CitationIDs      []string
		FailureState     FailureState
		FailureStateInfo *FailureStateInfo
		BlockedText      string
	}

	Metrics struct {
		CaseLawSearchCount int
		CaseLawEnrichTried bool
	}

	Control struct {
		Terminate bool
		Blocked   bool
	}

	Outputs *GraphOutputs
}

// GraphOutputs is the result of a completed run.
type GraphOutputs struct {
	StatusCode int                    `json:"statusCode"`
	Text       string                 `json:"text"`
	Citations  []Citation             `json:"citations"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewGraphState normalizes a GraphInput into the initial run state.
func NewGraphState(input GraphInput) *GraphState {
	state := &GraphState{}

	state.Graph.CurrentNode = InitialGraphNode()
	state.Graph.CompletedNodes = []GraphNode{}

	message := strings.TrimSpace(input.Message)
	effective := strings.TrimSpace(input.EffectiveMessage)
	if effective == "" {
		effective = message
	}
	state.Request.Message = message
	state.Request.EffectiveMessage = effective
	state.Request.SanitizedMessage = strings.TrimSpace(input.SanitizedMessage)
	state.Request.PromptSafety = input.PromptSafety
	state.Request.RCICRelated = input.RCICRelated
	state.Request.SessionID = strings.TrimSpace(input.SessionID)
	state.Request.UserID = strings.TrimSpace(input.UserID)
	state.Request.History = input.History
	state.Request.TopK = input.TopK
	if state.Request.TopK < 1 {
		state.Request.TopK = 6
	}
	state.Request.AnalysisDateBasis = strings.TrimSpace(input.AnalysisDateBasis)
	if state.Request.AnalysisDateBasis == "" {
		state.Request.AnalysisDateBasis = DateBasisToday
	}
	state.Request.AsOfDate = strings.TrimSpace(input.AsOfDate)

	state.Flags = input.Flags

	state.Defaults.CaseLawTopK = input.DefaultCaseLawTopK
	if state.Defaults.CaseLawTopK < 1 {
		state.Defaults.CaseLawTopK = 4
	}
	state.Defaults.Model = strings.TrimSpace(input.Model)

	state.LoadDocuments = input.LoadDocuments
	state.RunTrace = input.RunTrace
	state.RuntimeBudget = NewRuntimeBudget(input.RuntimeBudget)

	state.Sources.CaseLaw = []CaseLawSource{}
	state.Sources.Documents = []DocumentSource{}
	state.Guard.FailureState = FailureNone
	state.Response.FailureState = FailureNone
	state.Response.Citations = []Citation{}
	state.Response.CitationIDs = []string{}

	return state
}
