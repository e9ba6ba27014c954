// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command counselctl is the operator CLI for the counsel service.
//
// Usage:
//
//	# Ingest policy pages into the corpus index
//	counselctl ingest https://www.canada.ca/.../some-pdi-page.html
//
//	# Parse and chunk without writing anything
//	counselctl ingest --dry-run https://...
//
//	# Validate a persisted audit trace contract
//	counselctl validate-trace logs/audit/01JABCDEF0123456789ABCDEF0.json
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCounsel/pkg/logging"
	"github.com/AleutianAI/AleutianCounsel/services/ingest"
	"github.com/AleutianAI/AleutianCounsel/services/llm"
	"github.com/AleutianAI/AleutianCounsel/services/research"
	"github.com/AleutianAI/AleutianCounsel/services/vector"
)

var dryRun bool

var rootCmd = &cobra.Command{
	Use:           "counselctl",
	Short:         "Operator tooling for the counsel research service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [urls...]",
	Short: "Ingest policy pages into the corpus index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, err := buildPipeline()
		if err != nil {
			return err
		}

		report := pipeline.Ingest(cmd.Context(), ingest.Request{URLs: args, DryRun: dryRun})
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Println(string(out))

		if report.Ingested == 0 {
			return fmt.Errorf("no pages ingested (%d skipped)", report.Skipped)
		}
		return nil
	},
}

var validateTraceCmd = &cobra.Command{
	Use:   "validate-trace [file]",
	Short: "Validate a persisted audit trace contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read trace file: %w", err)
		}

		var contract research.AuditContract
		if err := json.Unmarshal(data, &contract); err != nil {
			return fmt.Errorf("parse trace file: %w", err)
		}

		validation := research.ValidateAuditContract(&contract)
		if validation.Valid {
			fmt.Printf("OK: %s (run %s)\n", args[0], contract.RunID)
			return nil
		}
		for _, msg := range validation.Errors {
			fmt.Fprintf(os.Stderr, "invalid: %s\n", msg)
		}
		return fmt.Errorf("trace contract failed validation with %d error(s)", len(validation.Errors))
	},
}

// buildPipeline wires an ingestion pipeline from the environment. Dry
// runs never embed or write, but the wiring is identical so a dry run
// exercises the same configuration.
func buildPipeline() (*ingest.Pipeline, error) {
	llmClient, err := llm.New(llm.Config{
		BaseURL:    os.Getenv("COUNSEL_LLM_BASE_URL"),
		APIKey:     os.Getenv("COUNSEL_LLM_API_KEY"),
		EmbedModel: os.Getenv("COUNSEL_EMBED_MODEL"),
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	vectorClient, err := vector.New(vector.Config{
		Host:   os.Getenv("WEAVIATE_HOST"),
		Scheme: os.Getenv("WEAVIATE_SCHEME"),
		APIKey: os.Getenv("WEAVIATE_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("create vector client: %w", err)
	}

	return ingest.NewPipeline(
		ingest.NewFetcher(nil),
		llmClient,
		vectorClient,
		ingest.PipelineConfig{},
		slog.Default(),
	), nil
}

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("COUNSEL_LOG_LEVEL")),
		Service: "counselctl",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ingestCmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and chunk without embedding or writing")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(validateTraceCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
