package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/brighttutors/multisite/internal/port/cache"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

// Ensure the mocks implement their ports at compile time.
var (
	_ contentstore.Gateway = (*mockGateway)(nil)
	_ cache.Cache          = (*memCache)(nil)
)

type queryCall struct {
	query  string
	params map[string]any
}

// mockGateway is a scriptable in-memory implementation of the store gateway.
// Set handle to answer queries; unanswered queries return JSON null.
type mockGateway struct {
	mu sync.Mutex

	handle    func(query string, params map[string]any) (json.RawMessage, error)
	mutateErr func(m contentstore.Mutation) error

	calls       []queryCall
	mutations   []contentstore.Mutation
	invalidated []string
}

func (g *mockGateway) Query(_ context.Context, query string, params map[string]any, _ contentstore.QueryOptions) (json.RawMessage, error) {
	g.mu.Lock()
	g.calls = append(g.calls, queryCall{query: query, params: params})
	handle := g.handle
	g.mu.Unlock()

	if handle != nil {
		return handle(query, params)
	}
	return json.RawMessage("null"), nil
}

func (g *mockGateway) Mutate(_ context.Context, mutations []contentstore.Mutation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range mutations {
		if g.mutateErr != nil {
			if err := g.mutateErr(m); err != nil {
				return err
			}
		}
		g.mutations = append(g.mutations, m)
	}
	return nil
}

func (g *mockGateway) InvalidateTag(_ context.Context, tag string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidated = append(g.invalidated, tag)
	return nil
}

func (g *mockGateway) queryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *mockGateway) invalidatedTags() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.invalidated...)
}

// memCache is a simple in-memory cache for testing.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func (m *memCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// cloneDoc builds the JSON shape the clone-by-domain query projects.
func cloneDoc(id, slug string, baseline bool, domains ...string) json.RawMessage {
	doc := map[string]any{
		"id":       id,
		"slug":     slug,
		"name":     slug,
		"domains":  domains,
		"active":   true,
		"baseline": baseline,
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// contentDoc builds a raw store document for the content candidate queries.
func contentDoc(id, kind, slug, cloneRef string) json.RawMessage {
	doc := map[string]any{
		"_id":      id,
		"_type":    kind,
		"isActive": true,
		"slug":     map[string]any{"current": slug},
		"title":    "Title " + slug,
	}
	if cloneRef != "" {
		doc["clone"] = map[string]any{"_ref": cloneRef}
	}
	raw, _ := json.Marshal(doc)
	return raw
}
