package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brighttutors/multisite/internal/domain/content"
	"github.com/brighttutors/multisite/internal/domain/tenant"
)

var qatarTutors = &tenant.Tenant{ID: "clone-qa", Slug: "qatar-tutors", Domains: []string{"onlinetutors.qa"}, Active: true}

// tiers scripts which specificity tiers have a candidate for the query.
func tiers(clone, baseline, def bool) func(string, map[string]any) (json.RawMessage, error) {
	return func(query string, params map[string]any) (json.RawMessage, error) {
		kind, _ := params["kind"].(string)
		slug, _ := params["slug"].(string)
		switch query {
		case queryCloneContent:
			if clone {
				return contentDoc("doc-clone", kind, slug, "clone-qa"), nil
			}
		case queryBaselineContent:
			if baseline {
				return contentDoc("doc-baseline", kind, slug, "clone-baseline"), nil
			}
		case queryDefaultContent:
			if def {
				return contentDoc("doc-default", kind, slug, ""), nil
			}
		}
		return json.RawMessage("null"), nil
	}
}

func TestContentResolver_FallbackOrdering(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name                 string
		clone, baseline, def bool
		wantID               string
		wantOrigin           content.Origin
	}{
		{"AllTiers", true, true, true, "doc-clone", content.OriginClone},
		{"BaselineAndDefault", false, true, true, "doc-baseline", content.OriginBaseline},
		{"DefaultOnly", false, false, true, "doc-default", content.OriginDefault},
		{"Nothing", false, false, false, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &mockGateway{handle: tiers(tc.clone, tc.baseline, tc.def)}
			r := NewContentResolver(g, time.Minute)

			// Hero is a permissive kind: full fallback applies.
			res := r.Resolve(ctx, content.KindHero, "welcome", qatarTutors)

			if tc.wantID == "" {
				if res.Record != nil {
					t.Fatalf("expected no content, got %s", res.Record.ID)
				}
				return
			}
			if res.Record == nil {
				t.Fatalf("expected %s, got no content", tc.wantID)
			}
			if res.Record.ID != tc.wantID {
				t.Fatalf("expected %s, got %s", tc.wantID, res.Record.ID)
			}
			if res.Origin != tc.wantOrigin {
				t.Fatalf("expected origin %s, got %s", tc.wantOrigin, res.Origin)
			}
		})
	}
}

func TestContentResolver_StrictSuppression(t *testing.T) {
	// Baseline and default subject pages exist, but the clone has none.
	g := &mockGateway{handle: tiers(false, true, true)}
	r := NewContentResolver(g, time.Minute)

	res := r.Resolve(context.Background(), content.KindSubject, "maths", qatarTutors)

	if res.Record != nil {
		t.Fatalf("strict kind must not fall back across clones, got %s", res.Record.ID)
	}
	// Diagnostics still report what fallback would have served.
	if !res.HasBaseline || !res.HasDefault {
		t.Fatalf("expected fallback diagnostics, got baseline=%v default=%v", res.HasBaseline, res.HasDefault)
	}
}

func TestContentResolver_StrictServesCloneContent(t *testing.T) {
	g := &mockGateway{handle: tiers(true, true, true)}
	r := NewContentResolver(g, time.Minute)

	res := r.Resolve(context.Background(), content.KindSubject, "maths", qatarTutors)

	if res.Record == nil || res.Record.ID != "doc-clone" {
		t.Fatalf("expected the clone-specific record, got %+v", res.Record)
	}
	if res.Origin != content.OriginClone {
		t.Fatalf("expected clone origin, got %s", res.Origin)
	}
}

func TestContentResolver_GlobalSiteServesDefault(t *testing.T) {
	// No clone identity: the global site still serves strict kinds from the
	// fallback tiers, since there is no clone to bleed across.
	g := &mockGateway{handle: tiers(false, false, true)}
	r := NewContentResolver(g, time.Minute)

	res := r.Resolve(context.Background(), content.KindSubject, "maths", nil)

	if res.Record == nil || res.Record.ID != "doc-default" {
		t.Fatalf("expected default record on the global site, got %+v", res.Record)
	}
	if res.Origin != content.OriginDefault {
		t.Fatalf("expected default origin, got %s", res.Origin)
	}
}

func TestContentResolver_CandidateFailureIsolated(t *testing.T) {
	g := &mockGateway{handle: func(query string, params map[string]any) (json.RawMessage, error) {
		switch query {
		case queryCloneContent, queryBaselineContent:
			return nil, errors.New("query timeout")
		default:
			kind, _ := params["kind"].(string)
			slug, _ := params["slug"].(string)
			return contentDoc("doc-default", kind, slug, ""), nil
		}
	}}
	r := NewContentResolver(g, time.Minute)

	res := r.Resolve(context.Background(), content.KindHero, "welcome", qatarTutors)

	if res.Record == nil || res.Record.ID != "doc-default" {
		t.Fatalf("expected default despite failed candidates, got %+v", res.Record)
	}
}

func TestContentResolver_AllCandidatesFail(t *testing.T) {
	g := &mockGateway{handle: func(string, map[string]any) (json.RawMessage, error) {
		return nil, errors.New("store down")
	}}
	r := NewContentResolver(g, time.Minute)

	res := r.Resolve(context.Background(), content.KindHero, "welcome", qatarTutors)

	if res.Record != nil {
		t.Fatalf("expected no content when every candidate fails, got %+v", res.Record)
	}
}

func TestContentResolver_DecodesTypedPayload(t *testing.T) {
	g := &mockGateway{handle: tiers(false, false, true)}
	r := NewContentResolver(g, time.Minute)

	res := r.Resolve(context.Background(), content.KindHero, "welcome", nil)
	if res.Record == nil {
		t.Fatal("expected a record")
	}
	if _, ok := res.Record.Payload.(*content.HeroSection); !ok {
		t.Fatalf("expected *content.HeroSection payload, got %T", res.Record.Payload)
	}
}
