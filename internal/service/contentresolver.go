package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brighttutors/multisite/internal/domain/content"
	"github.com/brighttutors/multisite/internal/domain/tenant"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

// Candidate queries, one per specificity tier. Projections are the raw
// document; decoding into the typed payload union happens in DecodeRecord.
const (
	queryCloneContent = `*[_type == $kind && slug.current == $slug && isActive == true && clone._ref == $clone][0]`

	queryBaselineContent = `*[_type == $kind && slug.current == $slug && isActive == true && clone->isBaseline == true][0]`

	queryDefaultContent = `*[_type == $kind && slug.current == $slug && isActive == true && !defined(clone)][0]`
)

// ContentResolver selects the single applicable content record for a
// (kind, slug) pair by walking the specificity order: clone-specific, then
// baseline, then unscoped default.
type ContentResolver struct {
	store contentstore.Gateway
	ttl   time.Duration
}

// NewContentResolver creates a content resolver. ttl is the gateway cache
// hint applied to candidate queries.
func NewContentResolver(store contentstore.Gateway, ttl time.Duration) *ContentResolver {
	return &ContentResolver{store: store, ttl: ttl}
}

// Resolve returns the winning record for the clone (nil clone = global site)
// plus fallback diagnostics. For strict kinds a clone request is answered
// only from clone-specific content; baseline and default candidates are still
// computed and reported but never returned, so one clone's pages can never
// bleed onto another clone's domain.
//
// Candidates are queried concurrently; the selection order is fixed and
// independent of which query returns first. A failed candidate query never
// blocks the others.
func (r *ContentResolver) Resolve(ctx context.Context, kind content.Kind, slug string, tn *tenant.Tenant) *content.Resolution {
	type candidate struct {
		query  string
		params map[string]any
	}

	base := map[string]any{"kind": string(kind), "slug": slug}
	candidates := []candidate{
		{}, // clone-specific, set below when a clone is present
		{query: queryBaselineContent, params: base},
		{query: queryDefaultContent, params: base},
	}
	if tn != nil {
		params := map[string]any{"kind": string(kind), "slug": slug, "clone": tn.ID}
		candidates[0] = candidate{query: queryCloneContent, params: params}
	}

	opts := contentstore.QueryOptions{
		TTL:  r.ttl,
		Tags: []string{"content", string(kind)},
	}

	var (
		records [3]*content.Record
		errs    [3]error
		g       errgroup.Group
	)
	for i, c := range candidates {
		if c.query == "" {
			continue
		}
		g.Go(func() error {
			records[i], errs[i] = r.fetchCandidate(ctx, c.query, c.params, opts)
			return nil
		})
	}
	_ = g.Wait()

	attempted, failed := 0, 0
	for i := range candidates {
		if candidates[i].query == "" {
			continue
		}
		attempted++
		if errs[i] != nil {
			failed++
			slog.Warn("candidate query failed", "kind", kind, "slug", slug, "tier", i, "error", errs[i])
		}
	}
	if attempted > 0 && failed == attempted {
		slog.Error("all candidate queries failed", "kind", kind, "slug", slug)
		return &content.Resolution{}
	}

	res := &content.Resolution{
		HasBaseline: records[1] != nil,
		HasDefault:  records[2] != nil,
	}

	switch {
	case records[0] != nil:
		res.Record, res.Origin = records[0], content.OriginClone
	case kind.Strict() && tn != nil:
		// Strict suppression: a clone domain gets no subject/curriculum page
		// unless the clone has its own. Diagnostics above still show what
		// fallback would have served.
	case records[1] != nil:
		res.Record, res.Origin = records[1], content.OriginBaseline
	case records[2] != nil:
		res.Record, res.Origin = records[2], content.OriginDefault
	}
	return res
}

func (r *ContentResolver) fetchCandidate(ctx context.Context, query string, params map[string]any, opts contentstore.QueryOptions) (*content.Record, error) {
	raw, err := r.store.Query(ctx, query, params, opts)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return content.DecodeRecord(raw)
}
