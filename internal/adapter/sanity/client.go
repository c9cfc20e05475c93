// Package sanity implements the content store gateway port against a
// Sanity-style HTTP query API. Query results are cached through the cache
// port per the caller's TTL hint, with named tags for targeted invalidation.
package sanity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	otelx "github.com/brighttutors/multisite/internal/adapter/otel"
	"github.com/brighttutors/multisite/internal/port/cache"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

// Config holds connection settings for the store's HTTP API.
type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	// BaseURL overrides the derived https://<project>.api.sanity.io origin.
	// Used by tests and self-hosted deployments.
	BaseURL string
}

// Client talks to the document store's query and mutate endpoints.
type Client struct {
	baseURL    string
	dataset    string
	version    string
	token      string
	httpClient *http.Client
	cache      cache.Cache
	metrics    *otelx.Metrics

	// tags maps an invalidation tag to the cache keys carrying it.
	mu   sync.Mutex
	tags map[string]map[string]struct{}
}

// Ensure Client implements the gateway port at compile time.
var _ contentstore.Gateway = (*Client)(nil)

// New creates a store client. queryCache may not be nil; pass a tiered cache
// in production so warm results survive process restarts.
func New(cfg Config, queryCache cache.Cache, metrics *otelx.Metrics) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID)
	}
	return &Client{
		baseURL: base,
		dataset: cfg.Dataset,
		version: cfg.APIVersion,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:   queryCache,
		metrics: metrics,
		tags:    make(map[string]map[string]struct{}),
	}
}

// Query executes a parameterized query. With a positive TTL hint the result
// is served from and written to the query cache; tags are recorded for
// targeted invalidation.
func (c *Client) Query(ctx context.Context, query string, params map[string]any, opts contentstore.QueryOptions) (json.RawMessage, error) {
	key := queryKey(query, params)

	if opts.TTL > 0 {
		if val, found, err := c.cache.Get(ctx, key); err == nil && found {
			c.metrics.QueryCacheHit(ctx)
			return val, nil
		}
		c.metrics.QueryCacheMiss(ctx)
	}

	result, err := c.fetch(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if opts.TTL > 0 {
		if err := c.cache.Set(ctx, key, result, opts.TTL); err != nil {
			slog.Warn("query cache write failed", "key", key, "error", err)
		} else {
			c.remember(key, opts.Tags)
		}
	}
	return result, nil
}

// Mutate applies field patches in a single store round trip.
func (c *Client) Mutate(ctx context.Context, mutations []contentstore.Mutation) error {
	body, err := json.Marshal(map[string]any{"mutations": mutations})
	if err != nil {
		return fmt.Errorf("marshal mutations: %w", err)
	}

	u := fmt.Sprintf("%s/v%s/data/mutate/%s", c.baseURL, c.version, c.dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mutate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.metrics.StoreQuery(ctx)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mutate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mutate: store returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// InvalidateTag drops every cached query result carrying the tag.
func (c *Client) InvalidateTag(ctx context.Context, tag string) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.tags[tag]))
	for key := range c.tags[tag] {
		keys = append(keys, key)
	}
	delete(c.tags, tag)
	c.mu.Unlock()

	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			return fmt.Errorf("invalidate tag %s: %w", tag, err)
		}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, query string, params map[string]any) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("query", query)
	for name, value := range params {
		enc, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode param %s: %w", name, err)
		}
		q.Set("$"+name, string(enc))
	}

	u := fmt.Sprintf("%s/v%s/data/query/%s?%s", c.baseURL, c.version, c.dataset, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.metrics.StoreQuery(ctx)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("query: store returned %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return out.Result, nil
}

// remember indexes a cache key under each tag.
func (c *Client) remember(key string, tags []string) {
	if len(tags) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tag := range tags {
		if c.tags[tag] == nil {
			c.tags[tag] = make(map[string]struct{})
		}
		c.tags[tag][key] = struct{}{}
	}
}

// queryKey derives a stable cache key from the query text and its parameters.
// The "q." prefix plus hex digest keeps the key within the JetStream KV
// character set, since the cache may be backed by a NATS bucket.
func queryKey(query string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(query))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		enc, _ := json.Marshal(params[name])
		fmt.Fprintf(h, "|%s=%s", name, enc)
	}

	return "q." + hex.EncodeToString(h.Sum(nil))
}
