// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps an OpenAI-compatible chat and embedding endpoint.
//
// The client targets any provider that speaks the OpenAI wire protocol
// (Groq, OpenAI, local gateways). The base URL and model names are fixed
// at construction; callers never read the environment at request time.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Sentinel errors returned by the client.
var (
	// ErrEmptyPrompt indicates a chat call with no user content.
	ErrEmptyPrompt = errors.New("llm: empty prompt")

	// ErrNoChoices indicates the provider returned no completion choices.
	ErrNoChoices = errors.New("llm: no completion choices returned")

	// ErrEmbeddingCountMismatch indicates the provider returned a different
	// number of vectors than inputs.
	ErrEmbeddingCountMismatch = errors.New("llm: embedding count mismatch")
)

// Config holds connection and model settings for the client.
type Config struct {
	// BaseURL is the OpenAI-compatible API root,
	// e.g. "https://api.groq.com/openai/v1".
	BaseURL string

	// APIKey authenticates requests. Required.
	APIKey string

	// AnswerModel is the model used for drafting answers.
	AnswerModel string

	// RouterModel is the smaller model used for routing decisions.
	RouterModel string

	// EmbedModel is the model used for text embeddings.
	EmbedModel string

	// Timeout bounds a single API call.
	Timeout time.Duration
}

// DefaultConfig returns production defaults for a Groq deployment.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.groq.com/openai/v1",
		AnswerModel: "llama-3.3-70b-versatile",
		RouterModel: "llama-3.1-8b-instant",
		EmbedModel:  "text-embedding-3-small",
		Timeout:     60 * time.Second,
	}
}

// Validate checks that required fields are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("llm: APIKey is required")
	}
	if strings.TrimSpace(c.AnswerModel) == "" {
		return errors.New("llm: AnswerModel is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.AnswerModel == "" {
		c.AnswerModel = def.AnswerModel
	}
	if c.RouterModel == "" {
		c.RouterModel = def.RouterModel
	}
	if c.EmbedModel == "" {
		c.EmbedModel = def.EmbedModel
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
}

// Client is a thin wrapper over the OpenAI-compatible API.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	api *openai.Client
	cfg Config
}

// New creates a Client from cfg.
//
// Outputs:
//
//	*Client - The configured client
//	error - Non-nil when required config is missing
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	return &Client{
		api: openai.NewClientWithConfig(apiCfg),
		cfg: cfg,
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Answer runs a chat completion with a system and user prompt.
//
// Inputs:
//
//	ctx - Context for cancellation
//	systemPrompt - System instructions, may be empty
//	userPrompt - User content. Must not be empty.
//	model - Model override; empty uses the configured AnswerModel
//
// Outputs:
//
//	string - The completion text, trimmed
//	error - Non-nil on API failure or empty response
func (c *Client) Answer(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", ErrEmptyPrompt
	}
	if model == "" {
		model = c.cfg.AnswerModel
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// EmbedBatch embeds a batch of texts in one API call.
//
// Inputs:
//
//	ctx - Context for cancellation
//	texts - Input texts. Empty input returns an empty result.
//
// Outputs:
//
//	[][]float32 - One vector per input, in order
//	error - Non-nil on API failure or count mismatch
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.EmbedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs",
			ErrEmbeddingCountMismatch, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrEmbeddingCountMismatch, item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
