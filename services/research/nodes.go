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
	"fmt"
	"time"
)

// runClassify screens the request for instruction overrides. A detected
// injection on a non-immigration question blocks the run.
func (r *Runner) runClassify(ctx context.Context, state *GraphState) error {
	state.RunTrace.AppendEvent("input_safety", map[string]interface{}{
		"detected":    state.Request.PromptSafety.Detected,
		"rcicRelated": state.Request.RCICRelated,
		"sanitized":   state.Request.SanitizedMessage != state.Request.Message,
	})

	promptBlocked := state.Flags.PromptInjectionBlockingEnabled &&
		state.Request.PromptSafety.Detected &&
		!state.Request.RCICRelated
	if !promptBlocked {
		return nil
	}

	state.RunTrace.StartPhase(PhaseRouting, map[string]interface{}{
		"prompt_injection_detected": true,
		"rcic_related":              state.Request.RCICRelated,
	})
	state.RunTrace.CompletePhase(PhaseRouting, PhaseResult{
		Status: PhaseFailed,
		Outputs: map[string]interface{}{
			"blocked": true,
			"reason":  "prompt_injection_out_of_scope",
		},
	})

	state.Control.Terminate = true
	state.Control.Blocked = true
	state.Response.BlockedText = BlockedResponseText
	return nil
}

// runParseCitationQuery exists as an explicit graph step but stays
// passive; exact-cite parsing is handled by the statute gate downstream.
func (r *Runner) runParseCitationQuery(ctx context.Context, state *GraphState) error {
	state.CitationQuery.Detected = false
	state.CitationQuery.SectionKey = ""
	state.CitationQuery.SectionID = ""
	return nil
}

// runRetrieveExactCiteLookup is the reserved slot for a direct section-id
// lookup. Passive until the corpus carries exact-cite keys end to end.
func (r *Runner) runRetrieveExactCiteLookup(ctx context.Context, state *GraphState) error {
	state.Retrieval.ExactCitationHit = nil
	return nil
}

// runRetrieveBindingTier runs tiered corpus retrieval and enforces the
// statute gate, with one binding-only rerun before hard failure.
func (r *Runner) runRetrieveBindingTier(ctx context.Context, state *GraphState) error {
	if state.Control.Terminate {
		return nil
	}

	state.RunTrace.StartPhase(PhaseRetrieval, map[string]interface{}{
		"top_k":               state.Request.TopK,
		"analysis_date_basis": state.Request.AnalysisDateBasis,
		"as_of_date":          state.Request.AsOfDate,
	})

	state.RuntimeBudget.Increment(BudgetToolCalls, 1)
	grounding, err := r.deps.Retriever.Retrieve(ctx, state.Request.EffectiveMessage, state.Request.TopK)
	if err != nil {
		state.RunTrace.CompletePhase(PhaseRetrieval, PhaseResult{
			Status: PhaseFailed,
			Errors: []PhaseError{{Code: "RETRIEVAL_ERROR", Message: err.Error()}},
		})
		return fmt.Errorf("research: retrieval: %w", err)
	}
	state.Retrieval.Grounding = grounding

	gateResult, err := EnforceStatuteGate(ctx, state.Request.EffectiveMessage, grounding, state.Request.TopK,
		func(ctx context.Context, query string, topK int) (*Grounding, error) {
			state.RuntimeBudget.Increment(BudgetToolCalls, 1)
			return r.deps.Retriever.RetrieveBinding(ctx, query, topK)
		})
	if err != nil {
		state.RunTrace.CompletePhase(PhaseRetrieval, PhaseResult{
			Status: PhaseFailed,
			Errors: []PhaseError{{Code: "STATUTE_GATE_ERROR", Message: err.Error()}},
		})
		return fmt.Errorf("research: statute gate: %w", err)
	}

	state.RunTrace.AppendEvent("statute_gate", map[string]interface{}{
		"status":       string(gateResult.Status),
		"rerunUsed":    gateResult.RerunUsed,
		"reason":       gateResult.Check.Reason,
		"canonicalKey": gateResult.Check.CanonicalKey,
	})
	if gateResult.RerunUsed && gateResult.Grounding != nil {
		state.Retrieval.Grounding = gateResult.Grounding
	}

	if gateResult.Status == GateFail {
		failureState := FailureNoBindingAuthority
		info := GetFailureStateInfo(failureState)
		state.Response.Text = PrependAnalysisDateHeader(
			"No binding statute/regulation authority found for this legal-requirement question after binding-only retrieval.",
			state.Request.AnalysisDateBasis,
			state.Request.AsOfDate,
		)
		state.Response.Citations = []Citation{}
		state.Response.FailureState = failureState
		state.Response.FailureStateInfo = &info
		state.Control.Terminate = true
		state.RunTrace.AppendEvent("failure_state", map[string]interface{}{
			"failureState": string(failureState),
		})
	}

	outputs := map[string]interface{}{
		"source_count":  0,
		"tier_a_count":  0,
		"tier_b_count":  0,
		"binding_rerun": gateResult.RerunUsed,
		"gate_status":   string(gateResult.Status),
	}
	if g := state.Retrieval.Grounding; g != nil {
		outputs["source_count"] = len(g.Sources)
		if g.Retrieval != nil {
			outputs["tier_a_count"] = g.Retrieval.Tiers.Binding
			outputs["tier_b_count"] = g.Retrieval.Tiers.Guidance
		}
	}
	state.RunTrace.CompletePhase(PhaseRetrieval, PhaseResult{Outputs: outputs})
	return nil
}

// runRetrieveGuidanceTier is passive: the guidance tier is queried as part
// of the combined tiered retrieval in the binding node.
func (r *Runner) runRetrieveGuidanceTier(ctx context.Context, state *GraphState) error {
	return nil
}

// runMaybeAgenticSearchAndFetch routes the question and, when warranted,
// searches the live case-law service and enriches the top hits.
func (r *Runner) runMaybeAgenticSearchAndFetch(ctx context.Context, state *GraphState) error {
	if state.Control.Terminate {
		return nil
	}

	state.RunTrace.StartPhase(PhaseRouting, map[string]interface{}{
		"case_law_enabled":        state.Flags.CaseLawEnabled,
		"case_law_search_enabled": state.Flags.CaseLawSearchEnabled,
		"legislation_enabled":     state.Flags.LegislationSearchEnabled,
	})

	state.RuntimeBudget.Increment(BudgetToolCalls, 1)
	decision := RouteIntent(state.Request.EffectiveMessage, RouteOptions{
		CaseLawEnabled:     state.Flags.CaseLawEnabled && state.Flags.CaseLawSearchEnabled,
		LegislationEnabled: state.Flags.LegislationSearchEnabled,
		DefaultLimit:       state.Defaults.CaseLawTopK,
	})
	state.Routing.Decision = &decision

	state.RunTrace.CompletePhase(PhaseRouting, PhaseResult{
		Outputs: map[string]interface{}{
			"use_case_law":    decision.UseCaseLaw,
			"use_legislation": decision.UseLegislation,
			"route_limit":     decision.Limit,
		},
	})

	retrievalEvent := map[string]interface{}{
		"routeDecision": decision,
	}
	if g := state.Retrieval.Grounding; g != nil && g.Retrieval != nil {
		ids := make([]string, 0, len(g.Retrieval.TopSourceIDs))
		for _, entry := range g.Retrieval.TopSourceIDs {
			if entry.ID != "" {
				ids = append(ids, entry.ID)
			}
		}
		retrievalEvent["queryHash"] = g.Retrieval.QueryHash
		retrievalEvent["scopeIntent"] = g.Retrieval.ScopeIntent
		retrievalEvent["tiers"] = g.Retrieval.Tiers
		retrievalEvent["topSourceIds"] = ids
	}
	state.RunTrace.AppendEvent("retrieval_complete", retrievalEvent)

	var caseLawSources []CaseLawSource
	searchCount := 0
	enrichTried := false

	if decision.UseCaseLaw && r.deps.CaseLaw != nil && r.deps.CaseLaw.Enabled() {
		state.RuntimeBudget.Increment(BudgetToolCalls, 1)
		state.RuntimeBudget.Increment(BudgetLiveFetch, 1)
		results, err := r.deps.CaseLaw.SearchDecisions(ctx, decision.Query, decision.Limit, CaseSearchFilters{
			Courts:   decision.Courts,
			YearFrom: decision.YearFrom,
			YearTo:   decision.YearTo,
		})
		if err != nil {
			r.deps.Logger.Warn("Case-law retrieval failed; continuing with corpus-only grounding", "error", err)
		} else {
			if len(results) > decision.Limit {
				results = results[:decision.Limit]
			}
			searchCount = len(results)

			enrichTried = true
			state.RuntimeBudget.Increment(BudgetToolCalls, 1)
			caseLawSources = r.deps.CaseLaw.EnrichDecisions(ctx, results)
		}
	}

	if len(caseLawSources) > 0 {
		state.RunTrace.AppendEvent("live_fetch_complete", map[string]interface{}{
			"source":      "case_law",
			"retrievedAt": time.Now().UTC().Format(time.RFC3339),
			"count":       len(caseLawSources),
		})
	}

	state.Sources.CaseLaw = caseLawSources
	if state.Sources.CaseLaw == nil {
		state.Sources.CaseLaw = []CaseLawSource{}
	}
	state.Metrics.CaseLawSearchCount = searchCount
	state.Metrics.CaseLawEnrichTried = enrichTried
	return nil
}

// runAssembleEvidenceBundle gathers document grounding and assembles the
// generation prompt over every evidence channel.
func (r *Runner) runAssembleEvidenceBundle(ctx context.Context, state *GraphState) error {
	if state.Control.Terminate {
		return nil
	}

	var documents []DocumentSource
	if state.LoadDocuments != nil {
		loaded, err := state.LoadDocuments(ctx, state.Request.EffectiveMessage)
		if err != nil {
			r.deps.Logger.Warn("Document grounding failed; continuing without document sources", "error", err)
		} else {
			documents = loaded
		}
	}
	if documents == nil {
		documents = []DocumentSource{}
	}
	state.Sources.Documents = documents

	state.RunTrace.StartPhase(PhaseGrounding, map[string]interface{}{
		"history_count":        len(state.Request.History),
		"prior_case_law_count": len(state.Sources.CaseLaw),
		"prior_document_count": len(state.Sources.Documents),
	})

	grounding := Grounding{
		CaseLaw:   state.Sources.CaseLaw,
		Documents: state.Sources.Documents,
	}
	if state.Retrieval.Grounding != nil {
		grounding.Sources = state.Retrieval.Grounding.Sources
		grounding.Retrieval = state.Retrieval.Grounding.Retrieval
	}
	state.Prompt = BuildPrompt(state.Request.EffectiveMessage, grounding, state.Request.History)

	state.RunTrace.CompletePhase(PhaseGrounding, PhaseResult{
		Outputs: map[string]interface{}{
			"citation_map_size": len(state.Prompt.CitationMap),
			"case_law_count":    len(state.Sources.CaseLaw),
			"document_count":    len(state.Sources.Documents),
		},
	})
	state.RunTrace.AppendEvent("prompt_built", BuildPromptHashes(state.Prompt.System, state.Prompt.User))
	return nil
}

// runDraftAnswerAndClaimLedger generates the draft answer.
func (r *Runner) runDraftAnswerAndClaimLedger(ctx context.Context, state *GraphState) error {
	if state.Control.Terminate {
		return nil
	}

	state.RunTrace.StartPhase(PhaseGeneration, map[string]interface{}{
		"model": state.Defaults.Model,
	})

	state.RuntimeBudget.Increment(BudgetToolCalls, 1)
	text, err := r.deps.Generator.Answer(ctx, state.Prompt.System, state.Prompt.User, state.Defaults.Model)
	if err != nil {
		state.RunTrace.CompletePhase(PhaseGeneration, PhaseResult{
			Status: PhaseFailed,
			Errors: []PhaseError{{Code: "GENERATION_ERROR", Message: err.Error()}},
		})
		return fmt.Errorf("research: answer generation: %w", err)
	}
	state.Generation.Text = text

	state.RunTrace.CompletePhase(PhaseGeneration, PhaseResult{
		Outputs: map[string]interface{}{
			"response_chars": len(state.Generation.Text),
		},
	})
	return nil
}

// runVerifierGate validates citation tokens and runs the authority guard
// over the draft.
func (r *Runner) runVerifierGate(ctx context.Context, state *GraphState) error {
	if state.Control.Terminate {
		return nil
	}

	state.RunTrace.StartPhase(PhaseResponseGuard, nil)

	validated := ValidateCitationTokens(state.Generation.Text, state.Prompt.CitationMap)
	var retrieval *RetrievalMeta
	if state.Retrieval.Grounding != nil {
		retrieval = state.Retrieval.Grounding.Retrieval
	}
	guardResult := EnforceAuthorityGuard(validated, state.Prompt.CitationMap, retrieval)

	guardFailure := ResolveFailureState(FailureInput{
		Query:       state.Request.EffectiveMessage,
		GuardIssues: guardResult.Issues,
		Retrieval:   retrieval,
		Citations:   nil,
		Budget:      state.RuntimeBudget,
	})

	state.Guard.Text = guardResult.Text
	state.Guard.Issues = guardResult.Issues
	state.Guard.FailureState = guardFailure

	status := PhaseSuccess
	if guardFailure != FailureNone {
		status = PhasePartial
	}
	state.RunTrace.CompletePhase(PhaseResponseGuard, PhaseResult{
		Status: status,
		Outputs: map[string]interface{}{
			"guard_issue_count": len(guardResult.Issues),
			"failure_state":     string(guardFailure),
		},
	})
	return nil
}

// runRewriteOrFail resolves the final failure state, builds citations, and
// applies the failure notice and the analysis-date header.
func (r *Runner) runRewriteOrFail(ctx context.Context, state *GraphState) error {
	if state.Control.Terminate {
		return nil
	}

	state.RunTrace.StartPhase(PhaseValidation, nil)

	guardedText := ValidateCitationTokens(state.Guard.Text, state.Prompt.CitationMap)
	citationIDs := ExtractCitations(guardedText)
	citations := make([]Citation, 0, len(citationIDs))
	for _, id := range citationIDs {
		if citation, ok := BuildCitationFromSource(id, state.Prompt.CitationMap); ok {
			citations = append(citations, citation)
		}
	}

	var retrieval *RetrievalMeta
	if state.Retrieval.Grounding != nil {
		retrieval = state.Retrieval.Grounding.Retrieval
	}
	failureState := ResolveFailureState(FailureInput{
		Query:       state.Request.EffectiveMessage,
		GuardIssues: state.Guard.Issues,
		Retrieval:   retrieval,
		Citations:   citations,
		Budget:      state.RuntimeBudget,
	})
	info := GetFailureStateInfo(failureState)

	withNotice := ApplyFailureStateNotice(guardedText, failureState)
	finalText := PrependAnalysisDateHeader(withNotice, state.Request.AnalysisDateBasis, state.Request.AsOfDate)

	state.Response.Text = finalText
	state.Response.Citations = citations
	state.Response.CitationIDs = citationIDs
	state.Response.FailureState = failureState
	state.Response.FailureStateInfo = &info

	state.RunTrace.CompletePhase(PhaseValidation, PhaseResult{
		Outputs: map[string]interface{}{
			"citation_id_count": len(citationIDs),
			"citation_count":    len(citations),
		},
	})
	state.RunTrace.AppendEvent("validation_complete", map[string]interface{}{
		"guardIssues":  state.Guard.Issues,
		"citationIds":  citationIDs,
		"failureState": string(failureState),
	})
	if failureState != FailureNone {
		state.RunTrace.AppendEvent("failure_state", map[string]interface{}{
			"failureState": string(failureState),
		})
	}
	return nil
}

// runFinalizeResponse assembles the response payload, stamps the audit
// trace, and validates the audit contract.
func (r *Runner) runFinalizeResponse(ctx context.Context, state *GraphState) error {
	finalText := state.Response.Text
	citations := state.Response.Citations
	if citations == nil {
		citations = []Citation{}
	}
	failureState := state.Response.FailureState
	if failureState == "" {
		failureState = FailureNone
	}
	info := state.Response.FailureStateInfo
	if info == nil {
		resolved := GetFailureStateInfo(failureState)
		info = &resolved
	}

	traceStatus := "ok"
	if state.Control.Blocked {
		finalText = PrependAnalysisDateHeader(state.Response.BlockedText,
			state.Request.AnalysisDateBasis, state.Request.AsOfDate)
		citations = []Citation{}
		failureState = ResolveFailureState(FailureInput{
			Query:             state.Request.EffectiveMessage,
			OutOfScopeBlocked: true,
			Budget:            state.RuntimeBudget,
		})
		resolved := GetFailureStateInfo(failureState)
		info = &resolved
		state.Response.FailureState = failureState
		state.Response.FailureStateInfo = info
		state.RunTrace.AppendEvent("failure_state", map[string]interface{}{
			"failureState": string(failureState),
		})
		traceStatus = "blocked"
	}

	state.RunTrace.Finalize(traceStatus, finalText, citations)

	contract := state.RunTrace.BuildContract()
	var contractValidation *ContractValidation
	if contract != nil {
		validation := ValidateAuditContract(contract)
		contractValidation = &validation
	}
	if state.RunTrace != nil && state.Flags.AuditTraceEnabled && state.Flags.AuditTracePersistLog {
		if err := state.RunTrace.PersistLog(r.traceLogDir, state.Flags.AuditTraceSampleRate); err != nil {
			r.deps.Logger.Warn("Audit trace persistence failed", "error", err)
		}
	}

	payload := map[string]interface{}{
		"text":      finalText,
		"citations": citations,
		"sessionId": state.Request.SessionID,
	}
	if state.Flags.DebugEnabled {
		if state.Control.Blocked {
			payload["debug"] = r.buildBlockedDebugPayload(state, failureState, info, contract, contractValidation)
		} else {
			payload["debug"] = r.buildSuccessDebugPayload(state, contract, contractValidation)
		}
	}

	state.Outputs = &GraphOutputs{
		StatusCode: 200,
		Text:       finalText,
		Citations:  citations,
		Payload:    payload,
	}
	return nil
}

func (r *Runner) buildBlockedDebugPayload(state *GraphState, failureState FailureState, info *FailureStateInfo, contract *AuditContract, validation *ContractValidation) map[string]interface{} {
	return map[string]interface{}{
		"promptSafety": state.Request.PromptSafety,
		"rcicRelated":  state.Request.RCICRelated,
		"analysisDate": map[string]interface{}{
			"basis": state.Request.AnalysisDateBasis,
			"asOf":  state.Request.AsOfDate,
		},
		"failureState":                 failureState,
		"failureStateInfo":             info,
		"auditTrace":                   state.RunTrace.Summarize(),
		"auditTraceContract":           contract,
		"auditTraceContractValidation": validation,
	}
}

func (r *Runner) buildSuccessDebugPayload(state *GraphState, contract *AuditContract, validation *ContractValidation) map[string]interface{} {
	sourceCount := 0
	var retrieval *RetrievalMeta
	if state.Retrieval.Grounding != nil {
		sourceCount = len(state.Retrieval.Grounding.Sources)
		retrieval = state.Retrieval.Grounding.Retrieval
	}
	return map[string]interface{}{
		"routeDecision": state.Routing.Decision,
		"promptSafety":  state.Request.PromptSafety,
		"rcicRelated":   state.Request.RCICRelated,
		"analysisDate": map[string]interface{}{
			"basis": state.Request.AnalysisDateBasis,
			"asOf":  state.Request.AsOfDate,
		},
		"failureState":     state.Response.FailureState,
		"failureStateInfo": state.Response.FailureStateInfo,
		"budget":           state.RuntimeBudget,
		"sourceCount":      sourceCount,
		"caseLawCount":     len(state.Sources.CaseLaw),
		"documentCount":    len(state.Sources.Documents),
		"retrieval":        retrieval,
		"guardIssues":      state.Guard.Issues,
		"caseLawMetrics": map[string]interface{}{
			"searchCount":     state.Metrics.CaseLawSearchCount,
			"enrichAttempted": state.Metrics.CaseLawEnrichTried,
		},
		"auditTrace":                   state.RunTrace.Summarize(),
		"auditTraceContract":           contract,
		"auditTraceContractValidation": validation,
	}
}
