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
	crand "crypto/rand"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonschema"
	"github.com/oklog/ulid"
)

// TracePhaseName identifies one phase of a research run.
type TracePhaseName string

// Run phases, in their usual execution order.
const (
	PhaseRetrieval     TracePhaseName = "RETRIEVAL"
	PhaseRouting       TracePhaseName = "ROUTING"
	PhaseGrounding     TracePhaseName = "GROUNDING"
	PhaseGeneration    TracePhaseName = "GENERATION"
	PhaseResponseGuard TracePhaseName = "RESPONSE_GUARD"
	PhaseValidation    TracePhaseName = "VALIDATION"
)

// PhaseStatus is the outcome of one phase.
type PhaseStatus string

// Phase outcomes.
const (
	PhaseSuccess PhaseStatus = "SUCCESS"
	PhaseFailed  PhaseStatus = "FAILED"
	PhasePartial PhaseStatus = "PARTIAL"
)

// PhaseError is one structured error recorded inside a phase.
type PhaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TracePhase is one recorded phase of a run.
type TracePhase struct {
	Name        TracePhaseName         `json:"name"`
	Status      PhaseStatus            `json:"status"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt time.Time              `json:"completedAt"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Errors      []PhaseError           `json:"errors,omitempty"`
}

// TraceEvent is one point-in-time event recorded during a run.
type TraceEvent struct {
	Name   string                 `json:"name"`
	At     time.Time              `json:"at"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// RunTrace accumulates the audit record of one research run.
//
// A nil *RunTrace is valid everywhere: every method no-ops, so callers
// never need to check whether tracing is enabled.
//
// Thread Safety: NOT safe for concurrent use. A trace belongs to one run.
type RunTrace struct {
	TraceID           string
	RunID             string
	SessionID         string
	UserID            string
	Query             string
	RedactedQuery     string
	AnalysisDateBasis string
	AsOf              string
	TopK              int
	Budgets           RuntimeBudget
	ModelVersion      string
	StartedAt         time.Time
	CompletedAt       time.Time
	Status            string
	ResponseChars     int
	CitationCount     int
	Phases            []*TracePhase
	Events            []TraceEvent
}

// RunTraceOptions configures a new trace.
type RunTraceOptions struct {
	SessionID         string
	UserID            string
	Message           string
	AnalysisDateBasis string
	AsOfDate          string
	IncludeRedacted   bool
	TopK              int
	Budgets           RuntimeBudget
	ModelVersion      string
}

// NewRunID generates a 26-character Crockford base-32 ULID.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.Monotonic(crand.Reader, 0)).String()
}

// redactDigitsPattern masks digit runs in the redacted query copy.
var redactDigitsPattern = regexp.MustCompile(`\d{4,}`)

// StartRunTrace begins an audit trace for one run.
func StartRunTrace(opts RunTraceOptions) *RunTrace {
	asOf := strings.TrimSpace(opts.AsOfDate)
	if asOf == "" {
		asOf = time.Now().UTC().Format("2006-01-02")
	}
	basis := strings.TrimSpace(opts.AnalysisDateBasis)
	if basis == "" {
		basis = DateBasisToday
	}
	trace := &RunTrace{
		TraceID:           uuid.NewString(),
		RunID:             NewRunID(),
		SessionID:         opts.SessionID,
		UserID:            opts.UserID,
		Query:             opts.Message,
		AnalysisDateBasis: basis,
		AsOf:              asOf,
		TopK:              opts.TopK,
		Budgets:           opts.Budgets,
		ModelVersion:      opts.ModelVersion,
		StartedAt:         time.Now().UTC(),
		Status:            "in_progress",
	}
	if opts.IncludeRedacted {
		trace.RedactedQuery = redactDigitsPattern.ReplaceAllString(opts.Message, "####")
	}
	return trace
}

// AppendEvent records a named event with arbitrary fields.
func (t *RunTrace) AppendEvent(name string, fields map[string]interface{}) {
	if t == nil {
		return
	}
	t.Events = append(t.Events, TraceEvent{
		Name:   name,
		At:     time.Now().UTC(),
		Fields: fields,
	})
}

// StartPhase opens a phase record.
func (t *RunTrace) StartPhase(name TracePhaseName, inputs map[string]interface{}) {
	if t == nil {
		return
	}
	t.Phases = append(t.Phases, &TracePhase{
		Name:      name,
		StartedAt: time.Now().UTC(),
		Inputs:    inputs,
	})
}

// PhaseResult closes out a phase.
type PhaseResult struct {
	// Status defaults to SUCCESS when empty.
	Status  PhaseStatus
	Outputs map[string]interface{}
	Errors  []PhaseError
}

// CompletePhase closes the most recent open phase with the given name.
// Completing a phase that was never started records a standalone phase.
func (t *RunTrace) CompletePhase(name TracePhaseName, result PhaseResult) {
	if t == nil {
		return
	}
	status := result.Status
	if status == "" {
		status = PhaseSuccess
	}

	for i := len(t.Phases) - 1; i >= 0; i-- {
		phase := t.Phases[i]
		if phase.Name == name && phase.CompletedAt.IsZero() {
			phase.Status = status
			phase.CompletedAt = time.Now().UTC()
			phase.Outputs = result.Outputs
			phase.Errors = result.Errors
			return
		}
	}

	now := time.Now().UTC()
	t.Phases = append(t.Phases, &TracePhase{
		Name:        name,
		Status:      status,
		StartedAt:   now,
		CompletedAt: now,
		Outputs:     result.Outputs,
		Errors:      result.Errors,
	})
}

// Finalize stamps the trace with the run outcome.
func (t *RunTrace) Finalize(status, responseText string, citations []Citation) {
	if t == nil {
		return
	}
	t.Status = status
	t.ResponseChars = len(responseText)
	t.CitationCount = len(citations)
	t.CompletedAt = time.Now().UTC()
}

// BuildPromptHashes returns stable hashes of the prompts for the audit
// record. Prompts themselves are never stored in the trace.
func BuildPromptHashes(systemPrompt, userPrompt string) map[string]interface{} {
	return map[string]interface{}{
		"system_prompt_sha256": hashText(systemPrompt),
		"user_prompt_sha256":   hashText(userPrompt),
	}
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Audit contract
// =============================================================================

// ContractPhase is the wire form of one phase.
type ContractPhase struct {
	PhaseName   string                 `json:"phase_name"`
	Status      string                 `json:"status,omitempty"`
	StartedAt   string                 `json:"started_at,omitempty"`
	CompletedAt string                 `json:"completed_at,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Errors      []PhaseError           `json:"errors,omitempty"`
}

// ContractEvent is the wire form of one event.
type ContractEvent struct {
	Name   string                 `json:"name"`
	At     string                 `json:"at"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// ContractMetadata carries run-level settings in the contract.
type ContractMetadata struct {
	RetrievalTopK int           `json:"retrieval_top_k"`
	Budget        RuntimeBudget `json:"budget"`
}

// ContractResponse summarizes the response in the contract.
type ContractResponse struct {
	Chars         int `json:"chars"`
	CitationCount int `json:"citation_count"`
}

// AuditContract is the schema-validated audit record for one run.
type AuditContract struct {
	TraceID           string           `json:"trace_id"`
	RunID             string           `json:"run_id"`
	SessionID         string           `json:"session_id,omitempty"`
	UserID            string           `json:"user_id,omitempty"`
	Query             string           `json:"query"`
	RedactedQuery     string           `json:"redacted_query,omitempty"`
	AsOf              string           `json:"as_of"`
	AnalysisDateBasis string           `json:"analysis_date_basis,omitempty"`
	ModelVersion      string           `json:"model_version,omitempty"`
	Status            string           `json:"status,omitempty"`
	StartedAt         string           `json:"started_at,omitempty"`
	CompletedAt       string           `json:"completed_at,omitempty"`
	Phases            []ContractPhase  `json:"phases"`
	Events            []ContractEvent  `json:"events,omitempty"`
	Metadata          ContractMetadata `json:"metadata"`
	Response          ContractResponse `json:"response"`
}

// BuildContract converts the trace into its wire contract.
func (t *RunTrace) BuildContract() *AuditContract {
	if t == nil {
		return nil
	}

	phases := make([]ContractPhase, 0, len(t.Phases))
	for _, p := range t.Phases {
		cp := ContractPhase{
			PhaseName: string(p.Name),
			Status:    string(p.Status),
			Inputs:    p.Inputs,
			Outputs:   p.Outputs,
			Errors:    p.Errors,
		}
		if !p.StartedAt.IsZero() {
			cp.StartedAt = p.StartedAt.Format(time.RFC3339Nano)
		}
		if !p.CompletedAt.IsZero() {
			cp.CompletedAt = p.CompletedAt.Format(time.RFC3339Nano)
		}
		phases = append(phases, cp)
	}

	events := make([]ContractEvent, 0, len(t.Events))
	for _, e := range t.Events {
		events = append(events, ContractEvent{
			Name:   e.Name,
			At:     e.At.Format(time.RFC3339Nano),
			Fields: e.Fields,
		})
	}

	contract := &AuditContract{
		TraceID:           t.TraceID,
		RunID:             t.RunID,
		SessionID:         t.SessionID,
		UserID:            t.UserID,
		Query:             t.Query,
		RedactedQuery:     t.RedactedQuery,
		AsOf:              t.AsOf,
		AnalysisDateBasis: t.AnalysisDateBasis,
		ModelVersion:      t.ModelVersion,
		Status:            t.Status,
		Phases:            phases,
		Events:            events,
		Metadata: ContractMetadata{
			RetrievalTopK: t.TopK,
			Budget:        t.Budgets,
		},
		Response: ContractResponse{
			Chars:         t.ResponseChars,
			CitationCount: t.CitationCount,
		},
	}
	if !t.StartedAt.IsZero() {
		contract.StartedAt = t.StartedAt.Format(time.RFC3339Nano)
	}
	if !t.CompletedAt.IsZero() {
		contract.CompletedAt = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return contract
}

//go:embed trace_schema.json
var traceSchemaJSON []byte

var (
	traceSchemaOnce sync.Once
	traceSchema     *jsonschema.Schema
	traceSchemaErr  error
)

func compiledTraceSchema() (*jsonschema.Schema, error) {
	traceSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		traceSchema, traceSchemaErr = compiler.Compile(traceSchemaJSON)
	})
	return traceSchema, traceSchemaErr
}

// ContractValidation is the result of validating an audit contract.
type ContractValidation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

var (
	runIDPattern = regexp.MustCompile(`^[0-9A-Z]{26}$`)
	asOfPattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

var validPhaseNames = map[string]bool{
	string(PhaseRetrieval):     true,
	string(PhaseRouting):       true,
	string(PhaseGrounding):     true,
	string(PhaseGeneration):    true,
	string(PhaseResponseGuard): true,
	string(PhaseValidation):    true,
}

var validPhaseStatuses = map[string]bool{
	string(PhaseSuccess): true,
	string(PhaseFailed):  true,
	string(PhasePartial): true,
}

// ValidateAuditContract checks a contract against the audit schema.
//
// Description:
//
//	Field-level checks run first so errors name the offending field, then
//	the full JSON Schema runs as a backstop for anything the field checks
//	miss. A nil contract is invalid.
func ValidateAuditContract(contract *AuditContract) ContractValidation {
	validation := ContractValidation{Errors: []string{}}
	if contract == nil {
		validation.Errors = append(validation.Errors, "contract: must not be nil")
		return validation
	}

	if strings.TrimSpace(contract.TraceID) == "" {
		validation.Errors = append(validation.Errors, "trace_id: must not be empty")
	}
	if !runIDPattern.MatchString(contract.RunID) {
		validation.Errors = append(validation.Errors, "run_id: must be a 26-character base-32 ULID")
	}
	if strings.TrimSpace(contract.Query) == "" {
		validation.Errors = append(validation.Errors, "query: must not be empty")
	}
	if !asOfPattern.MatchString(contract.AsOf) {
		validation.Errors = append(validation.Errors, "as_of: must be formatted YYYY-MM-DD")
	}
	for i, phase := range contract.Phases {
		if !validPhaseNames[phase.PhaseName] {
			validation.Errors = append(validation.Errors,
				fmt.Sprintf("phases[%d].phase_name: unknown phase %q", i, phase.PhaseName))
		}
		if phase.Status != "" && !validPhaseStatuses[phase.Status] {
			validation.Errors = append(validation.Errors,
				fmt.Sprintf("phases[%d].status: unknown status %q", i, phase.Status))
		}
	}

	schema, err := compiledTraceSchema()
	if err != nil {
		validation.Errors = append(validation.Errors, "schema: "+err.Error())
		return validation
	}
	data, err := json.Marshal(contract)
	if err != nil {
		validation.Errors = append(validation.Errors, "contract: "+err.Error())
		return validation
	}
	result := schema.ValidateJSON(data)
	if !result.IsValid() && len(validation.Errors) == 0 {
		validation.Errors = append(validation.Errors, fmt.Sprintf("schema: %v", result.Errors))
	}

	validation.Valid = len(validation.Errors) == 0 && result.IsValid()
	return validation
}

// TraceSummary is the compact view of a trace for debug payloads.
type TraceSummary struct {
	RunID              string             `json:"runId"`
	TraceID            string             `json:"traceId"`
	Status             string             `json:"status"`
	PhaseStatuses      []string           `json:"phaseStatuses"`
	EventCount         int                `json:"eventCount"`
	ContractValidation ContractValidation `json:"contractValidation"`
}

// Summarize builds the compact trace view, including a validation snapshot
// of the contract the trace would produce.
func (t *RunTrace) Summarize() *TraceSummary {
	if t == nil {
		return nil
	}
	statuses := make([]string, 0, len(t.Phases))
	for _, p := range t.Phases {
		statuses = append(statuses, string(p.Name)+":"+string(p.Status))
	}
	return &TraceSummary{
		RunID:              t.RunID,
		TraceID:            t.TraceID,
		Status:             t.Status,
		PhaseStatuses:      statuses,
		EventCount:         len(t.Events),
		ContractValidation: ValidateAuditContract(t.BuildContract()),
	}
}

// PersistLog writes the contract to dir as <run_id>.json, subject to
// sampling. A sample rate of 1 always writes; 0 never writes.
func (t *RunTrace) PersistLog(dir string, sampleRate float64) error {
	if t == nil {
		return nil
	}
	if sampleRate <= 0 {
		return nil
	}
	if sampleRate < 1 && rand.Float64() >= sampleRate {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("research: create trace log dir: %w", err)
	}
	data, err := json.MarshalIndent(t.BuildContract(), "", "  ")
	if err != nil {
		return fmt.Errorf("research: marshal trace contract: %w", err)
	}
	path := filepath.Join(dir, t.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("research: write trace log: %w", err)
	}
	return nil
}
