// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Default embedding parameters.
const (
	DefaultEmbedBatchSize   = 32
	DefaultEmbedConcurrency = 2
	DefaultEmbedRetries     = 1
)

// BatchEmbedder produces embeddings for a batch of texts, index-aligned
// with the input.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOptions tunes chunk embedding.
type EmbedOptions struct {
	// BatchSize is texts per embedding request. Values < 1 use the
	// default; values > 128 are capped.
	BatchSize int

	// Concurrency is the number of in-flight embedding requests.
	// Values < 1 use the default; values > 8 are capped.
	Concurrency int

	// Retries is extra attempts per failed batch. Negative values use
	// the default; values > 3 are capped.
	Retries int
}

func (o EmbedOptions) resolve() (int, int, int) {
	batchSize := o.BatchSize
	if batchSize < 1 {
		batchSize = DefaultEmbedBatchSize
	}
	if batchSize > 128 {
		batchSize = 128
	}
	concurrency := o.Concurrency
	if concurrency < 1 {
		concurrency = DefaultEmbedConcurrency
	}
	if concurrency > 8 {
		concurrency = 8
	}
	retries := o.Retries
	if retries < 0 {
		retries = DefaultEmbedRetries
	}
	if retries > 3 {
		retries = 3
	}
	return batchSize, concurrency, retries
}

// EmbedError describes one failed embedding batch.
type EmbedError struct {
	StartIndex int
	EndIndex   int
	Message    string
}

// EmbedResult carries the vectors for a chunk set. Vectors is
// index-aligned with the input; entries from failed batches are nil.
type EmbedResult struct {
	Vectors       [][]float32
	Errors        []EmbedError
	EmbeddedCount int
}

// EmbedChunks embeds chunk texts in bounded-concurrency batches.
//
// Description:
//
//	Batches run concurrently up to the configured limit; each failed batch
//	is retried before being recorded as an error. A batch failure never
//	fails the whole call, the affected vector slots just stay nil.
func EmbedChunks(ctx context.Context, embedder BatchEmbedder, chunks []SectionChunk, opts EmbedOptions) EmbedResult {
	result := EmbedResult{Vectors: make([][]float32, len(chunks))}
	if len(chunks) == 0 {
		return result
	}
	batchSize, concurrency, retries := opts.resolve()

	var mu sync.Mutex
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		group.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}

			var vectors [][]float32
			var err error
			for attempt := 0; attempt <= retries; attempt++ {
				vectors, err = embedder.EmbedBatch(ctx, texts)
				if err == nil {
					break
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, EmbedError{
					StartIndex: start,
					EndIndex:   end - 1,
					Message:    err.Error(),
				})
				return nil
			}
			for i, vector := range vectors {
				if start+i < len(result.Vectors) {
					result.Vectors[start+i] = vector
				}
			}
			return nil
		})
	}

	// Workers never return errors; waiting just synchronizes.
	_ = group.Wait()

	for _, vector := range result.Vectors {
		if vector != nil {
			result.EmbeddedCount++
		}
	}
	return result
}
