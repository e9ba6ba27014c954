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
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the graph-level settings for the research service.
//
// Configuration is resolved once at process start; a running service never
// re-reads the environment.
type Config struct {
	// TopK is the default corpus retrieval depth.
	TopK int

	// CaseLawTopK is the default live case-law result count.
	CaseLawTopK int

	// Model is the answer-generation model identifier.
	Model string

	// MaxToolCalls, MaxLiveFetches, and MaxRetries cap the per-run budget.
	// Zero disables enforcement for that counter.
	MaxToolCalls   int
	MaxLiveFetches int
	MaxRetries     int

	// TraceLogDir is where audit contracts are persisted.
	TraceLogDir string

	// Flags are the feature switches applied to every run.
	Flags GraphFlags
}

// DefaultConfig returns the standard research configuration.
func DefaultConfig() Config {
	return Config{
		TopK:           6,
		CaseLawTopK:    4,
		Model:          "llama-3.3-70b-versatile",
		MaxToolCalls:   12,
		MaxLiveFetches: 3,
		MaxRetries:     2,
		TraceLogDir:    "logs/audit",
		Flags:          DefaultGraphFlags(),
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("research: top_k must be positive, got %d", c.TopK)
	}
	if c.CaseLawTopK < 1 {
		return fmt.Errorf("research: case_law_top_k must be positive, got %d", c.CaseLawTopK)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("research: model must not be empty")
	}
	if c.Flags.AuditTraceSampleRate < 0 || c.Flags.AuditTraceSampleRate > 1 {
		return fmt.Errorf("research: trace sample rate must be in [0,1], got %v", c.Flags.AuditTraceSampleRate)
	}
	return nil
}

// Budget builds the per-run budget from the configured limits.
func (c Config) Budget() RuntimeBudget {
	return NewRuntimeBudget(RuntimeBudget{
		MaxToolCalls:   c.MaxToolCalls,
		MaxLiveFetches: c.MaxLiveFetches,
		MaxRetries:     c.MaxRetries,
	})
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadConfigFromEnv resolves the research configuration from the
// environment over the defaults. Call it once from main.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.TopK = envInt("COUNSEL_TOP_K", cfg.TopK)
	cfg.CaseLawTopK = envInt("COUNSEL_CASE_LAW_TOP_K", cfg.CaseLawTopK)
	if model := strings.TrimSpace(os.Getenv("COUNSEL_ANSWER_MODEL")); model != "" {
		cfg.Model = model
	}
	cfg.MaxToolCalls = envInt("COUNSEL_MAX_TOOL_CALLS", cfg.MaxToolCalls)
	cfg.MaxLiveFetches = envInt("COUNSEL_MAX_LIVE_FETCHES", cfg.MaxLiveFetches)
	cfg.MaxRetries = envInt("COUNSEL_MAX_RETRIES", cfg.MaxRetries)
	if dir := strings.TrimSpace(os.Getenv("COUNSEL_TRACE_LOG_DIR")); dir != "" {
		cfg.TraceLogDir = dir
	}

	cfg.Flags.DebugEnabled = envBool("COUNSEL_DEBUG", cfg.Flags.DebugEnabled)
	cfg.Flags.PromptInjectionBlockingEnabled = envBool("COUNSEL_PROMPT_INJECTION_BLOCKING", cfg.Flags.PromptInjectionBlockingEnabled)
	cfg.Flags.CaseLawEnabled = envBool("COUNSEL_CASE_LAW_ENABLED", cfg.Flags.CaseLawEnabled)
	cfg.Flags.CaseLawSearchEnabled = envBool("COUNSEL_CASE_LAW_SEARCH_ENABLED", cfg.Flags.CaseLawSearchEnabled)
	cfg.Flags.LegislationSearchEnabled = envBool("COUNSEL_LEGISLATION_SEARCH_ENABLED", cfg.Flags.LegislationSearchEnabled)
	cfg.Flags.AuditTraceEnabled = envBool("COUNSEL_AUDIT_TRACE_ENABLED", cfg.Flags.AuditTraceEnabled)
	cfg.Flags.AuditTracePersistLog = envBool("COUNSEL_AUDIT_TRACE_PERSIST", cfg.Flags.AuditTracePersistLog)
	cfg.Flags.AuditTraceSampleRate = envFloat("COUNSEL_AUDIT_TRACE_SAMPLE_RATE", cfg.Flags.AuditTraceSampleRate)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
