package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brighttutors/multisite/internal/domain/content"
	"github.com/brighttutors/multisite/internal/port/cache"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

// slugSnapshotKey is the fixed durable-store key for the warm-start snapshot.
// JetStream KV keys only allow [-/_=.a-zA-Z0-9], so no colon.
const slugSnapshotKey = "slugcache.v1"

const (
	querySlugIndex = `*[_type in ["subject", "curriculum"] && isActive == true]{_id, _type, title, "slug": slug.current}`

	querySlugByKey = `*[_type == $kind && isActive == true && (lower(title) == $key || _id == $key)][0]{_id, _type, title, "slug": slug.current}`
)

// slugSnapshot is the persisted form of the cache: a flat key to slug map
// plus an absolute expiry in epoch milliseconds.
type slugSnapshot struct {
	Data   map[string]string `json:"data"`
	Expiry int64             `json:"expiry"`
}

// slugDoc is the projection used by the slug index queries.
type slugDoc struct {
	ID    string       `json:"_id"`
	Type  content.Kind `json:"_type"`
	Title string       `json:"title"`
	Slug  string       `json:"slug"`
}

// SlugCache maps logical content keys (lower-cased subject or curriculum
// name, or a document ID) to URL slugs so internal links render without a
// store round trip. The in-memory map is authoritative for the session; the
// durable snapshot is a warm-start optimization only and self-heals through
// its expiry and per-key patching.
type SlugCache struct {
	store   contentstore.Gateway
	durable cache.Cache
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]string
	expiry  time.Time
}

// NewSlugCache creates a slug cache. ttl is the snapshot lifetime (24h in
// production). The clock is injectable for tests via SetClock.
func NewSlugCache(store contentstore.Gateway, durable cache.Cache, ttl time.Duration) *SlugCache {
	return &SlugCache{
		store:   store,
		durable: durable,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the cache's clock. Tests only.
func (s *SlugCache) SetClock(now func() time.Time) {
	s.now = now
}

// URL returns the internal URL for a content key, with an optional fragment.
// Subject URLs are /<slug>; curriculum URLs nest under /curriculum/<slug>.
// On any failure it degrades to "/" (plus the fragment) with a warning;
// rendering a link never fails the page.
func (s *SlugCache) URL(ctx context.Context, kind content.Kind, key, fragment string) string {
	norm := slugKey(kind, key)

	s.ensure(ctx)

	s.mu.RLock()
	slug, ok := s.entries[norm]
	s.mu.RUnlock()

	if !ok {
		slug, ok = s.fetchAndPatch(ctx, kind, key)
	}
	if !ok || slug == "" {
		slog.Warn("slug lookup failed", "kind", kind, "key", key)
		return "/" + fragmentSuffix(fragment)
	}

	path := "/" + slug
	if kind == content.KindCurriculum {
		path = "/curriculum/" + slug
	}
	return path + fragmentSuffix(fragment)
}

// Refresh bulk-loads every subject and curriculum slug, replacing the
// in-memory map and the durable snapshot.
func (s *SlugCache) Refresh(ctx context.Context) error {
	docs, err := contentstore.All[slugDoc](ctx, s.store, querySlugIndex, nil, contentstore.QueryOptions{})
	if err != nil {
		return err
	}

	entries := make(map[string]string, len(docs)*2)
	for _, doc := range docs {
		if doc.Slug == "" {
			continue
		}
		entries[slugKey(doc.Type, doc.Title)] = doc.Slug
		entries[slugKey(doc.Type, doc.ID)] = doc.Slug
	}
	expiry := s.now().Add(s.ttl)

	s.mu.Lock()
	s.entries = entries
	s.expiry = expiry
	s.mu.Unlock()

	s.persist(ctx, entries, expiry)
	return nil
}

// Patch updates the slug for the given keys in place, both in memory and in
// the durable snapshot, without touching other entries. Used by the
// revalidation dispatcher when a single document's slug changes.
func (s *SlugCache) Patch(ctx context.Context, kind content.Kind, slug string, keys ...string) {
	if slug == "" || len(keys) == 0 {
		return
	}

	s.mu.Lock()
	if s.entries == nil {
		s.entries = make(map[string]string)
		s.expiry = s.now().Add(s.ttl)
	}
	for _, key := range keys {
		s.entries[slugKey(kind, key)] = slug
	}
	s.mu.Unlock()

	s.patchDurable(ctx, kind, slug, keys)
}

// Invalidate drops the in-memory map and the durable snapshot. The next
// lookup triggers a full refresh.
func (s *SlugCache) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.entries = nil
	s.expiry = time.Time{}
	s.mu.Unlock()

	if err := s.durable.Delete(ctx, slugSnapshotKey); err != nil {
		slog.Warn("slug snapshot delete failed", "error", err)
	}
}

// ensure makes the in-memory map usable: still-valid session map, else an
// unexpired durable snapshot, else a full refresh.
func (s *SlugCache) ensure(ctx context.Context) {
	now := s.now()

	s.mu.RLock()
	valid := s.entries != nil && now.Before(s.expiry)
	s.mu.RUnlock()
	if valid {
		return
	}

	if snap := s.loadSnapshot(ctx, now); snap != nil {
		s.mu.Lock()
		s.entries = snap.Data
		s.expiry = time.UnixMilli(snap.Expiry)
		s.mu.Unlock()
		return
	}

	if err := s.Refresh(ctx); err != nil {
		slog.Warn("slug cache refresh failed", "error", err)
	}
}

func (s *SlugCache) loadSnapshot(ctx context.Context, now time.Time) *slugSnapshot {
	val, found, err := s.durable.Get(ctx, slugSnapshotKey)
	if err != nil || !found {
		if err != nil {
			slog.Warn("slug snapshot read failed", "error", err)
		}
		return nil
	}

	var snap slugSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		slog.Warn("corrupt slug snapshot", "error", err)
		return nil
	}
	if snap.Data == nil || !now.Before(time.UnixMilli(snap.Expiry)) {
		return nil
	}
	return &snap
}

// fetchAndPatch performs the single targeted query on a lookup miss and
// patches both the in-memory map and the durable snapshot entry.
func (s *SlugCache) fetchAndPatch(ctx context.Context, kind content.Kind, key string) (string, bool) {
	doc, err := contentstore.One[slugDoc](ctx, s.store, querySlugByKey,
		map[string]any{"kind": string(kind), "key": strings.ToLower(key)},
		contentstore.QueryOptions{})
	if err != nil {
		slog.Warn("targeted slug query failed", "kind", kind, "key", key, "error", err)
		return "", false
	}
	if doc == nil || doc.Slug == "" {
		return "", false
	}

	s.Patch(ctx, kind, doc.Slug, doc.Title, doc.ID)
	return doc.Slug, true
}

// persist writes a full snapshot to the durable store. Failures are logged;
// the durable tier is never authoritative.
func (s *SlugCache) persist(ctx context.Context, entries map[string]string, expiry time.Time) {
	blob, err := json.Marshal(slugSnapshot{Data: entries, Expiry: expiry.UnixMilli()})
	if err != nil {
		slog.Warn("slug snapshot encode failed", "error", err)
		return
	}
	if err := s.durable.Set(ctx, slugSnapshotKey, blob, s.ttl); err != nil {
		slog.Warn("slug snapshot write failed", "error", err)
	}
}

// patchDurable read-modify-writes single entries into the stored snapshot,
// preserving its expiry and every other entry.
func (s *SlugCache) patchDurable(ctx context.Context, kind content.Kind, slug string, keys []string) {
	val, found, err := s.durable.Get(ctx, slugSnapshotKey)
	if err != nil {
		slog.Warn("slug snapshot read failed", "error", err)
		return
	}

	snap := slugSnapshot{Data: make(map[string]string)}
	if found {
		if err := json.Unmarshal(val, &snap); err != nil || snap.Data == nil {
			snap = slugSnapshot{Data: make(map[string]string)}
		}
	}
	if snap.Expiry == 0 {
		snap.Expiry = s.now().Add(s.ttl).UnixMilli()
	}
	for _, key := range keys {
		snap.Data[slugKey(kind, key)] = slug
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		slog.Warn("slug snapshot encode failed", "error", err)
		return
	}
	if err := s.durable.Set(ctx, slugSnapshotKey, blob, s.ttl); err != nil {
		slog.Warn("slug snapshot write failed", "error", err)
	}
}

func slugKey(kind content.Kind, key string) string {
	return string(kind) + ":" + strings.ToLower(strings.TrimSpace(key))
}

func fragmentSuffix(fragment string) string {
	if fragment == "" {
		return ""
	}
	return "#" + strings.TrimPrefix(fragment, "#")
}
