package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	otelx "github.com/brighttutors/multisite/internal/adapter/otel"
	"github.com/brighttutors/multisite/internal/domain/content"
	"github.com/brighttutors/multisite/internal/domain/revalidation"
	"github.com/brighttutors/multisite/internal/port/bus"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

const busSubjectPrefix = "revalidate."

const (
	queryDocTitle = `*[_id == $id][0]{title}`

	queryStaleTutorLinks = `*[_type == "tutor" && subject._ref == $subject && subjectLink != $link]{_id, subjectLink}`
)

// busEnvelope wraps a notification for cross-instance fan-out. Origin lets an
// instance skip the copy of a message it published itself, since it already
// applied the invalidation synchronously.
type busEnvelope struct {
	Origin       string                    `json:"origin"`
	Notification revalidation.Notification `json:"notification"`
}

// Revalidator reacts to content-change notifications from the external store
// and keeps the derived caches (domain mappings, slug index, query cache)
// within the bounded staleness window. All invalidations are set-based, so
// re-delivering a notification is safe.
type Revalidator struct {
	store      contentstore.Gateway
	domains    *DomainResolver
	slugs      *SlugCache
	bus        bus.Bus
	metrics    *otelx.Metrics
	instanceID string
}

// NewRevalidator creates a revalidation dispatcher. b may be nil in
// single-instance deployments; fan-out is then skipped.
func NewRevalidator(store contentstore.Gateway, domains *DomainResolver, slugs *SlugCache, b bus.Bus, metrics *otelx.Metrics) *Revalidator {
	return &Revalidator{
		store:      store,
		domains:    domains,
		slugs:      slugs,
		bus:        b,
		metrics:    metrics,
		instanceID: uuid.NewString(),
	}
}

// Dispatch applies a notification to this instance's caches and fans it out
// to peers. Fan-out failure is logged but does not fail the webhook: local
// state is already correct and peer caches self-heal through their TTLs.
func (s *Revalidator) Dispatch(ctx context.Context, n revalidation.Notification) error {
	if err := s.apply(ctx, n); err != nil {
		return err
	}

	if s.bus == nil {
		return nil
	}
	data, err := json.Marshal(busEnvelope{Origin: s.instanceID, Notification: n})
	if err != nil {
		return fmt.Errorf("encode fan-out envelope: %w", err)
	}
	if err := s.bus.Publish(ctx, busSubjectPrefix+n.Type, data); err != nil {
		slog.Error("revalidation fan-out failed", "type", n.Type, "id", n.ID, "error", err)
	}
	return nil
}

// StartSubscriber consumes peer-published notifications and applies them to
// this instance's caches. The returned function stops the subscription.
func (s *Revalidator) StartSubscriber(ctx context.Context) (func(), error) {
	if s.bus == nil {
		return func() {}, nil
	}
	return s.bus.Subscribe(ctx, busSubjectPrefix+">", func(_ string, data []byte) error {
		var env busEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("dropping malformed fan-out message", "error", err)
			return nil
		}
		if env.Origin == s.instanceID {
			return nil
		}
		return s.apply(ctx, env.Notification)
	})
}

// apply runs the dispatch table for one notification. Safe to call any number
// of times with the same notification.
func (s *Revalidator) apply(ctx context.Context, n revalidation.Notification) error {
	s.metrics.Revalidation(ctx)
	slog.Info("revalidation", "type", n.Type, "id", n.ID)

	switch n.Type {
	case "clone":
		// Clone edits can change domain ownership, baseline status and every
		// derived URL; drop all of it.
		if err := s.domains.Flush(ctx); err != nil {
			return fmt.Errorf("flush domain cache: %w", err)
		}
		s.slugs.Invalidate(ctx)
		for _, tag := range []string{"clone", "content"} {
			if err := s.store.InvalidateTag(ctx, tag); err != nil {
				return err
			}
		}

	case string(content.KindSubject):
		if err := s.store.InvalidateTag(ctx, string(content.KindSubject)); err != nil {
			return err
		}
		s.patchSlug(ctx, content.KindSubject, n)
		if n.Slug != nil && n.Slug.Current != "" {
			report := s.repairTutorLinks(ctx, n.ID, n.Slug.Current)
			slog.Info("tutor link repair finished",
				"report", report.ID, "subject", n.ID, "patched", report.Patched, "failed", report.Failed)
		}

	case string(content.KindCurriculum):
		if err := s.store.InvalidateTag(ctx, string(content.KindCurriculum)); err != nil {
			return err
		}
		s.patchSlug(ctx, content.KindCurriculum, n)

	case string(content.KindHero), string(content.KindFAQ), string(content.KindAdvert),
		string(content.KindTestimonial), string(content.KindFooter):
		// Section content affects no derived caches beyond the tagged query
		// results; the domain resolver is deliberately untouched.
		if err := s.store.InvalidateTag(ctx, n.Type); err != nil {
			return err
		}

	default:
		slog.Debug("no invalidation mapped for kind", "type", n.Type)
	}
	return nil
}

// patchSlug patches the changed document's slug cache entries in place. The
// title is fetched so the name-keyed entry updates alongside the ID-keyed
// one; a fetch failure degrades to patching the ID key only.
func (s *Revalidator) patchSlug(ctx context.Context, kind content.Kind, n revalidation.Notification) {
	if n.Slug == nil || n.Slug.Current == "" {
		return
	}

	keys := []string{n.ID}
	doc, err := contentstore.One[struct {
		Title string `json:"title"`
	}](ctx, s.store, queryDocTitle, map[string]any{"id": n.ID}, contentstore.QueryOptions{})
	if err != nil {
		slog.Warn("title lookup for slug patch failed", "id", n.ID, "error", err)
	} else if doc != nil && doc.Title != "" {
		keys = append(keys, doc.Title)
	}

	s.slugs.Patch(ctx, kind, n.Slug.Current, keys...)
}

// repairTutorLinks rewrites tutor records whose stored subject link does not
// match the subject's current slug. Best effort: each record is patched
// independently and failures never abort the pass.
func (s *Revalidator) repairTutorLinks(ctx context.Context, subjectID, newSlug string) *revalidation.RepairReport {
	report := &revalidation.RepairReport{
		ID:      uuid.NewString(),
		Subject: subjectID,
		NewSlug: newSlug,
	}
	link := "/" + newSlug

	stale, err := contentstore.All[struct {
		ID string `json:"_id"`
	}](ctx, s.store, queryStaleTutorLinks,
		map[string]any{"subject": subjectID, "link": link}, contentstore.QueryOptions{})
	if err != nil {
		slog.Error("stale tutor link query failed", "subject", subjectID, "error", err)
		return report
	}

	for _, doc := range stale {
		err := s.store.Mutate(ctx, []contentstore.Mutation{{
			Patch: contentstore.Patch{
				ID:  doc.ID,
				Set: map[string]any{"subjectLink": link},
			},
		}})
		if err != nil {
			s.metrics.RepairFailure(ctx)
			slog.Error("tutor link patch failed", "tutor", doc.ID, "error", err)
		}
		report.Add(doc.ID, err)
	}
	return report
}
