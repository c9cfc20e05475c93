// Package contentstore defines the port for the external document store: a
// parameterized query capability with per-query caching hints, plus the
// narrow mutation surface needed by the dependent-link repair pass.
package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueryOptions carries per-query cache-control hints. A zero TTL disables
// result caching for the query. Tags name invalidation groups; a tagged
// cached result is dropped when any of its tags is invalidated.
type QueryOptions struct {
	TTL  time.Duration
	Tags []string
}

// Mutation is a single store mutation. Only field patches are needed here;
// document creation and deletion belong to the authoring tools.
type Mutation struct {
	Patch Patch `json:"patch"`
}

// Patch sets fields on one document by ID.
type Patch struct {
	ID  string         `json:"id"`
	Set map[string]any `json:"set"`
}

// Gateway is the port interface to the external document store.
type Gateway interface {
	// Query executes a structured query with named parameters and returns the
	// raw JSON result. Transport and query failures surface as errors; a
	// query that matches nothing returns JSON null (single) or [] (list).
	Query(ctx context.Context, query string, params map[string]any, opts QueryOptions) (json.RawMessage, error)

	// Mutate applies mutations in a single store round trip.
	Mutate(ctx context.Context, mutations []Mutation) error

	// InvalidateTag drops every cached query result carrying the tag.
	InvalidateTag(ctx context.Context, tag string) error
}

// One runs a single-document query and decodes the result into T.
// A null result yields (nil, nil).
func One[T any](ctx context.Context, g Gateway, query string, params map[string]any, opts QueryOptions) (*T, error) {
	raw, err := g.Query(ctx, query, params, opts)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return &v, nil
}

// All runs a list query and decodes the result into a slice of T.
func All[T any](ctx context.Context, g Gateway, query string, params map[string]any, opts QueryOptions) ([]T, error) {
	raw, err := g.Query(ctx, query, params, opts)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}
	var vs []T
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	return vs, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
