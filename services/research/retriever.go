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
	"log/slog"
	"sort"

	"github.com/AleutianAI/AleutianCounsel/pkg/legalcite"
	"github.com/AleutianAI/AleutianCounsel/services/vector"
)

// QueryEmbedder turns a query into an embedding vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchIndex runs a similarity search over the corpus index.
type SearchIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter vector.Filter) ([]vector.Hit, error)
}

// GroundingRetriever retrieves corpus grounding for a question.
type GroundingRetriever interface {
	// Retrieve runs tiered retrieval across binding and guidance sources.
	Retrieve(ctx context.Context, query string, topK int) (*Grounding, error)

	// RetrieveBinding retrieves from the binding tier only.
	RetrieveBinding(ctx context.Context, query string, topK int) (*Grounding, error)
}

// VectorRetriever is the production GroundingRetriever over the Weaviate
// corpus index.
//
// Retrieval failures degrade to an empty grounding rather than failing the
// run; an unanswerable question is better than a dead request.
//
// Thread Safety: safe for concurrent use.
type VectorRetriever struct {
	embedder QueryEmbedder
	index    SearchIndex
	log      *slog.Logger
}

// NewVectorRetriever wires a retriever from its dependencies.
func NewVectorRetriever(embedder QueryEmbedder, index SearchIndex, log *slog.Logger) *VectorRetriever {
	if log == nil {
		log = slog.Default()
	}
	return &VectorRetriever{embedder: embedder, index: index, log: log}
}

func hitToSource(hit vector.Hit) Source {
	levelNum := hit.AuthorityLevelNum
	if levelNum == 0 {
		levelNum = legalcite.AuthorityLevelNum(hit.AuthorityLevel)
	}
	return Source{
		ID:                hit.ID,
		Text:              hit.Text,
		Title:             hit.Title,
		SourceRef:         hit.Source,
		SectionID:         hit.SectionID,
		CanonicalKey:      hit.CanonicalKey,
		AuthorityLevel:    hit.AuthorityLevel,
		AuthorityLevelNum: levelNum,
		Scope:             hit.Scope,
		EffectiveDate:     hit.EffectiveDate,
		URL:               hit.URL,
		Score:             hit.Certainty,
	}
}

func buildRetrievalMeta(query string, profile QueryProfile, sources []Source, bindingOnly bool) *RetrievalMeta {
	meta := &RetrievalMeta{
		QueryHash:    QueryHash(query),
		ScopeIntent:  profile.ScopeIntent,
		TopSourceIDs: make([]SourceScore, 0, len(sources)),
		BindingOnly:  bindingOnly,
	}
	for _, s := range sources {
		if SourceAuthorityLevelNum(s) >= 3 {
			meta.Tiers.Binding++
		} else {
			meta.Tiers.Guidance++
		}
		meta.TopSourceIDs = append(meta.TopSourceIDs, SourceScore{ID: s.ID, Score: s.Score})
	}
	return meta
}

// Retrieve runs tiered retrieval: the binding and guidance tiers are
// queried separately with the profile's scope filter, merged by score, and
// truncated to topK.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int) (*Grounding, error) {
	if topK < 1 {
		topK = 6
	}
	profile := InferQueryProfile(query)
	bindingFilter, guidanceFilter := BuildTierFilters(profile)

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.log.Warn("Query embedding failed; returning empty grounding", "error", err)
		return &Grounding{Sources: []Source{}, Retrieval: buildRetrievalMeta(query, profile, nil, false)}, nil
	}

	bindingHits, err := r.index.Search(ctx, queryVector, topK, bindingFilter)
	if err != nil {
		r.log.Warn("Binding tier search failed", "error", err)
		bindingHits = nil
	}
	guidanceHits, err := r.index.Search(ctx, queryVector, topK, guidanceFilter)
	if err != nil {
		r.log.Warn("Guidance tier search failed", "error", err)
		guidanceHits = nil
	}

	sources := make([]Source, 0, len(bindingHits)+len(guidanceHits))
	for _, hit := range bindingHits {
		sources = append(sources, hitToSource(hit))
	}
	for _, hit := range guidanceHits {
		sources = append(sources, hitToSource(hit))
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
	if len(sources) > topK {
		sources = sources[:topK]
	}

	return &Grounding{
		Sources:   sources,
		Retrieval: buildRetrievalMeta(query, profile, sources, false),
	}, nil
}

// RetrieveBinding retrieves from the binding tier only. Used by the
// statute gate's single rerun.
func (r *VectorRetriever) RetrieveBinding(ctx context.Context, query string, topK int) (*Grounding, error) {
	if topK < 1 {
		topK = 6
	}
	profile := InferQueryProfile(query)
	bindingFilter, _ := BuildTierFilters(profile)

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.log.Warn("Query embedding failed; returning empty grounding", "error", err)
		return &Grounding{Sources: []Source{}, Retrieval: buildRetrievalMeta(query, profile, nil, true)}, nil
	}

	hits, err := r.index.Search(ctx, queryVector, topK, bindingFilter)
	if err != nil {
		r.log.Warn("Binding-only search failed", "error", err)
		hits = nil
	}

	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, hitToSource(hit))
	}
	return &Grounding{
		Sources:   sources,
		Retrieval: buildRetrievalMeta(query, profile, sources, true),
	}, nil
}
