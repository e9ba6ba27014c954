// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vector provides the Weaviate-backed corpus index.
//
// The index holds one object per ingested chunk of an immigration policy
// document. Object ids are derived deterministically from the chunk id so
// that re-ingesting the same page updates objects in place instead of
// duplicating them.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultClassName is the Weaviate class holding corpus chunks.
const DefaultClassName = "CorpusChunk"

// Sentinel errors returned by the client.
var (
	// ErrNotConnected indicates the underlying client was not initialized.
	ErrNotConnected = errors.New("vector: client not connected")

	// ErrQueryFailed indicates Weaviate returned GraphQL-level errors.
	ErrQueryFailed = errors.New("vector: query failed")
)

// Config holds connection settings for the vector index.
type Config struct {
	// Host is the Weaviate host:port, e.g. "localhost:8080".
	Host string

	// Scheme is "http" or "https".
	Scheme string

	// APIKey is optional; empty disables auth.
	APIKey string

	// ClassName is the Weaviate class name for corpus chunks.
	ClassName string

	// StartupTimeout bounds the initial readiness check.
	StartupTimeout time.Duration
}

// DefaultConfig returns defaults for a local Weaviate instance.
func DefaultConfig() Config {
	return Config{
		Host:           "localhost:8080",
		Scheme:         "http",
		ClassName:      DefaultClassName,
		StartupTimeout: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Scheme == "" {
		c.Scheme = def.Scheme
	}
	if c.ClassName == "" {
		c.ClassName = def.ClassName
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = def.StartupTimeout
	}
}

// Filter narrows a search by authority level and corpus scope.
//
// A zero Filter matches everything. Scope matching is an OR across the
// listed scopes; IncludeUnscoped additionally matches objects that carry
// no scope property at all.
type Filter struct {
	// MinAuthority is the inclusive lower bound on authority_level_num.
	// Zero means unset.
	MinAuthority int

	// MaxAuthority is the inclusive upper bound on authority_level_num.
	// Zero means unset.
	MaxAuthority int

	// Scopes lists scope values to match.
	Scopes []string

	// IncludeUnscoped also matches objects with a null scope.
	IncludeUnscoped bool
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.MinAuthority == 0 && f.MaxAuthority == 0 &&
		len(f.Scopes) == 0 && !f.IncludeUnscoped
}

// HasScope reports whether the filter includes the given scope value.
func (f Filter) HasScope(scope string) bool {
	for _, s := range f.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Hit is one search result from the corpus index.
type Hit struct {
	ID                string
	Text              string
	Title             string
	Source            string
	SectionID         string
	CanonicalKey      string
	AuthorityLevel    string
	AuthorityLevelNum int
	Scope             string
	EffectiveDate     string
	URL               string
	Certainty         float64
}

// Record is one object to upsert into the corpus index.
type Record struct {
	// ChunkID is the stable ingestion id, e.g. "pdi|ab12cd34ef56|0|2".
	// The Weaviate object id is derived from it.
	ChunkID string

	// Vector is the embedding for the chunk text.
	Vector []float32

	// Properties holds the object properties to store.
	Properties map[string]interface{}
}

// BatchError describes one failed object in a batch upsert.
type BatchError struct {
	ChunkID string
	Message string
}

// Client wraps a Weaviate connection for the corpus index.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	conn      *weaviate.Client
	className string
}

// New connects to Weaviate and returns a corpus index client.
//
// Description:
//
//	Builds the underlying Weaviate client. No network call is made here;
//	use EnsureSchema or a query to verify connectivity.
//
// Outputs:
//
//	*Client - The configured client
//	error - Non-nil when the client cannot be constructed
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	clientCfg := weaviate.Config{
		Host:           cfg.Host,
		Scheme:         cfg.Scheme,
		StartupTimeout: cfg.StartupTimeout,
	}
	if cfg.APIKey != "" {
		clientCfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	conn, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("vector: create weaviate client: %w", err)
	}
	return &Client{conn: conn, className: cfg.ClassName}, nil
}

// NewWithConn wraps an existing Weaviate client. Used in tests.
func NewWithConn(conn *weaviate.Client, className string) *Client {
	if className == "" {
		className = DefaultClassName
	}
	return &Client{conn: conn, className: className}
}

// ObjectID derives the deterministic Weaviate object id for a chunk id.
//
// The id is a v5 UUID over the chunk id, so the same chunk always maps to
// the same object and re-ingestion is idempotent.
func ObjectID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// EnsureSchema creates the corpus class if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	exists, err := c.conn.Schema().ClassExistenceChecker().
		WithClassName(c.className).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("vector: check class %s: %w", c.className, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      c.className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "chunk_id", DataType: []string{"text"}},
			{Name: "text", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "section_id", DataType: []string{"text"}},
			{Name: "canonical_key", DataType: []string{"text"}},
			{Name: "authority_level", DataType: []string{"text"}},
			{Name: "authority_level_num", DataType: []string{"int"}},
			{Name: "scope", DataType: []string{"text"}},
			{Name: "effective_date", DataType: []string{"text"}},
			{Name: "url", DataType: []string{"text"}},
			{Name: "heading_path", DataType: []string{"text"}},
			{Name: "ingested_at", DataType: []string{"int"}},
		},
	}
	if err := c.conn.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("vector: create class %s: %w", c.className, err)
	}
	slog.Info("Created corpus class", "class", c.className)
	return nil
}

// buildWhere converts a Filter into a Weaviate where clause.
// Returns nil for a zero filter.
func buildWhere(f Filter) *filters.WhereBuilder {
	operands := make([]*filters.WhereBuilder, 0, 3)

	if f.MinAuthority > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"authority_level_num"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueInt(int64(f.MinAuthority)))
	}
	if f.MaxAuthority > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{"authority_level_num"}).
			WithOperator(filters.LessThanEqual).
			WithValueInt(int64(f.MaxAuthority)))
	}

	scopeOperands := make([]*filters.WhereBuilder, 0, len(f.Scopes)+1)
	for _, scope := range f.Scopes {
		scopeOperands = append(scopeOperands, filters.Where().
			WithPath([]string{"scope"}).
			WithOperator(filters.Equal).
			WithValueString(scope))
	}
	if f.IncludeUnscoped {
		scopeOperands = append(scopeOperands, filters.Where().
			WithPath([]string{"scope"}).
			WithOperator(filters.IsNull).
			WithValueBoolean(true))
	}
	if len(scopeOperands) == 1 {
		operands = append(operands, scopeOperands[0])
	} else if len(scopeOperands) > 1 {
		operands = append(operands, filters.Where().
			WithOperator(filters.Or).
			WithOperands(scopeOperands))
	}

	if len(operands) == 0 {
		return nil
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

// Search runs a nearVector query against the corpus index.
//
// Inputs:
//
//	ctx - Context for cancellation
//	queryVector - The embedded query. Must not be empty.
//	limit - Maximum results; values < 1 become 1.
//	filter - Authority/scope narrowing; zero filter matches all.
//
// Outputs:
//
//	[]Hit - Results ordered by similarity
//	error - Non-nil on transport or GraphQL failure
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int, filter Filter) ([]Hit, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if limit < 1 {
		limit = 1
	}

	nearVector := c.conn.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "chunk_id"},
		{Name: "text"},
		{Name: "title"},
		{Name: "source"},
		{Name: "section_id"},
		{Name: "canonical_key"},
		{Name: "authority_level"},
		{Name: "authority_level_num"},
		{Name: "scope"},
		{Name: "effective_date"},
		{Name: "url"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	query := c.conn.GraphQL().Get().
		WithClassName(c.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)
	if where := buildWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, result.Errors[0].Message)
	}

	return c.parseHits(result), nil
}

func (c *Client) parseHits(result *models.GraphQLResponse) []Hit {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []Hit{}
	}
	objects, ok := data[c.className].([]interface{})
	if !ok {
		return []Hit{}
	}

	hits := make([]Hit, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		hit := Hit{
			ID:                getString(m, "chunk_id"),
			Text:              getString(m, "text"),
			Title:             getString(m, "title"),
			Source:            getString(m, "source"),
			SectionID:         getString(m, "section_id"),
			CanonicalKey:      getString(m, "canonical_key"),
			AuthorityLevel:    getString(m, "authority_level"),
			AuthorityLevelNum: getInt(m, "authority_level_num"),
			Scope:             getString(m, "scope"),
			EffectiveDate:     getString(m, "effective_date"),
			URL:               getString(m, "url"),
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				hit.Certainty = certainty
			}
		}
		hits = append(hits, hit)
	}
	return hits
}

// UpsertBatch writes records to the index in sequential batches.
//
// Description:
//
//	Each record gets a deterministic object id from its chunk id, so the
//	call is an upsert. Batches are sent sequentially; a failed batch is
//	reported per object and processing continues with the next batch.
//
// Inputs:
//
//	ctx - Context for cancellation
//	records - Records to write
//	batchSize - Objects per request; values < 1 become 100
//
// Outputs:
//
//	int - Number of objects written successfully
//	[]BatchError - Per-object failures, possibly empty
//	error - Non-nil only when no connection is configured
func (c *Client) UpsertBatch(ctx context.Context, records []Record, batchSize int) (int, []BatchError, error) {
	if c.conn == nil {
		return 0, nil, ErrNotConnected
	}
	if batchSize < 1 {
		batchSize = 100
	}

	written := 0
	var batchErrors []BatchError
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		objects := make([]*models.Object, len(batch))
		for i, rec := range batch {
			props := make(map[string]interface{}, len(rec.Properties)+1)
			for k, v := range rec.Properties {
				props[k] = v
			}
			props["chunk_id"] = rec.ChunkID
			objects[i] = &models.Object{
				Class:      c.className,
				ID:         strfmt.UUID(ObjectID(rec.ChunkID)),
				Vector:     rec.Vector,
				Properties: props,
			}
		}

		resp, err := c.conn.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			// A failed request loses one batch, not the whole document.
			for _, rec := range batch {
				batchErrors = append(batchErrors, BatchError{
					ChunkID: rec.ChunkID,
					Message: fmt.Sprintf("batch upsert: %v", err),
				})
			}
			continue
		}
		for i, item := range resp {
			if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
				written++
				continue
			}
			msg := "unknown batch failure"
			if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
				msg = item.Result.Errors.Error[0].Message
			}
			chunkID := ""
			if i < len(batch) {
				chunkID = batch[i].ChunkID
			}
			batchErrors = append(batchErrors, BatchError{ChunkID: chunkID, Message: msg})
		}
	}
	return written, batchErrors, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
