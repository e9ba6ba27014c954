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
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var handlerTracer = otel.Tracer("aleutian.counsel.research.handlers")

// AnswerRequest is the POST /v1/research/answer body.
type AnswerRequest struct {
	Message           string           `json:"message" binding:"required"`
	SessionID         string           `json:"sessionId"`
	UserID            string           `json:"userId"`
	History           []HistoryMessage `json:"history"`
	TopK              int              `json:"topK"`
	AnalysisDateBasis string           `json:"analysisDateBasis"`
	AsOfDate          string           `json:"asOfDate"`
}

// HandleAnswer runs the research graph for one question.
//
// Description:
//
//	Prompt safety is classified before the graph starts so the trace
//	carries the sanitized query from its first event. The graph's payload
//	is returned as-is; graph errors surface as a 500 with no partial
//	answer.
func HandleAnswer(runner *Runner, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleAnswer")
		defer span.End()

		var request AnswerRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind research answer request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		sessionID := strings.TrimSpace(request.SessionID)
		if sessionID == "" {
			sessionID = uuid.New().String()
			span.SetAttributes(attribute.String("session_id_new", sessionID))
		}
		span.SetAttributes(attribute.String("session_id", sessionID))

		topK := request.TopK
		if topK < 1 {
			topK = cfg.TopK
		}

		message := strings.TrimSpace(request.Message)
		safety := ClassifyPromptSafety(message)
		sanitized := SanitizeMessage(message)
		effective := message
		if safety.Detected {
			effective = sanitized
		}
		rcicRelated := IsRCICRelated(message)

		budget := cfg.Budget()
		var runTrace *RunTrace
		if cfg.Flags.AuditTraceEnabled {
			runTrace = StartRunTrace(RunTraceOptions{
				SessionID:         sessionID,
				UserID:            strings.TrimSpace(request.UserID),
				Message:           effective,
				AnalysisDateBasis: request.AnalysisDateBasis,
				AsOfDate:          request.AsOfDate,
				IncludeRedacted:   true,
				TopK:              topK,
				Budgets:           budget,
				ModelVersion:      cfg.Model,
			})
			span.SetAttributes(attribute.String("run_id", runTrace.RunID))
		}

		outputs, err := runner.Run(ctx, GraphInput{
			Message:            message,
			EffectiveMessage:   effective,
			SanitizedMessage:   sanitized,
			PromptSafety:       safety,
			RCICRelated:        rcicRelated,
			SessionID:          sessionID,
			UserID:             strings.TrimSpace(request.UserID),
			History:            request.History,
			TopK:               topK,
			AnalysisDateBasis:  request.AnalysisDateBasis,
			AsOfDate:           request.AsOfDate,
			RuntimeBudget:      budget,
			RunTrace:           runTrace,
			DefaultCaseLawTopK: cfg.CaseLawTopK,
			Model:              cfg.Model,
			Flags:              cfg.Flags,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Research graph run failed", "error", err, "session_id", sessionID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Research run failed"})
			return
		}

		c.JSON(outputs.StatusCode, outputs.Payload)
	}
}
