package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	otelx "github.com/brighttutors/multisite/internal/adapter/otel"
	"github.com/brighttutors/multisite/internal/domain/tenant"
	"github.com/brighttutors/multisite/internal/port/cache"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

// queryCloneByDomain finds the active clone owning a normalized domain.
// Ordering by slug keeps resolution deterministic if two clones ever claim
// the same domain; that invariant is enforced by authoring validation, not
// here.
const queryCloneByDomain = `*[_type == "clone" && isActive == true && $domain in domains] | order(slug.current asc) [0]{
	"id": _id,
	"slug": slug.current,
	name,
	domains,
	"active": isActive,
	"baseline": isBaseline,
	scope
}`

// negativeEntry marks a cached "no clone owns this domain" result, so
// repeated misses for unknown hosts do not hammer the store.
var negativeEntry = []byte("null")

// DomainResolver maps request hostnames to clone identities through an
// in-process cache in front of the content store.
type DomainResolver struct {
	store   contentstore.Gateway
	cache   cache.Cache
	ttl     time.Duration
	metrics *otelx.Metrics
	group   singleflight.Group
}

// NewDomainResolver creates a domain resolver. ttl bounds the staleness of
// both positive and negative cache entries.
func NewDomainResolver(store contentstore.Gateway, c cache.Cache, ttl time.Duration, metrics *otelx.Metrics) *DomainResolver {
	return &DomainResolver{store: store, cache: c, ttl: ttl, metrics: metrics}
}

// Resolve maps a request hostname to the clone owning it, or nil for the
// global site. Hostnames differing only by case or a www prefix resolve
// identically. Store failures degrade to nil with a logged error; the read
// path never returns an error to callers.
func (r *DomainResolver) Resolve(ctx context.Context, hostname string) *tenant.Tenant {
	domain := tenant.NormalizeDomain(hostname)
	if domain == "" {
		return nil
	}
	key := "domain:" + domain

	if val, found, err := r.cache.Get(ctx, key); err == nil && found {
		t := decodeCachedClone(val)
		// A cached clone must still claim the domain it is keyed under;
		// a mismatched entry is treated as a miss and refetched.
		if t == nil || t.OwnsDomain(domain) {
			r.metrics.DomainCacheHit(ctx)
			return t
		}
	}
	r.metrics.DomainCacheMiss(ctx)

	// Coalesce concurrent lookups for the same cold domain into one store
	// round trip. Results for the same key are identical, so last-write-wins
	// on the cache is fine.
	v, err, _ := r.group.Do(domain, func() (any, error) {
		t, err := contentstore.One[tenant.Tenant](ctx, r.store, queryCloneByDomain,
			map[string]any{"domain": domain}, contentstore.QueryOptions{})
		if err != nil {
			return nil, err
		}

		entry := negativeEntry
		if t != nil {
			entry, _ = json.Marshal(t)
		}
		if cerr := r.cache.Set(ctx, key, entry, r.ttl); cerr != nil {
			slog.Warn("domain cache write failed", "domain", domain, "error", cerr)
		}
		return t, nil
	})
	if err != nil {
		slog.Error("clone lookup failed", "domain", domain, "error", err)
		return nil
	}

	t, _ := v.(*tenant.Tenant)
	return t
}

// Flush drops all cached domain mappings, positive and negative.
func (r *DomainResolver) Flush(ctx context.Context) error {
	return r.cache.Flush(ctx)
}

func decodeCachedClone(val []byte) *tenant.Tenant {
	if bytes.Equal(val, negativeEntry) {
		return nil
	}
	var t tenant.Tenant
	if err := json.Unmarshal(val, &t); err != nil {
		slog.Warn("corrupt domain cache entry", "error", err)
		return nil
	}
	return &t
}
