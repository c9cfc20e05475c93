package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brighttutors/multisite/internal/port/cache"
	"github.com/brighttutors/multisite/internal/port/contentstore"
	"github.com/brighttutors/multisite/internal/service"
)

const testWebhookSecret = "webhook-secret"

// fixtureStore answers the store queries the API exercises from fixed data:
// one clone (qatar-tutors on onlinetutors.qa) and a subject "maths" that
// exists only as an unscoped default document.
type fixtureStore struct {
	mu        sync.Mutex
	mutations []contentstore.Mutation
}

var _ contentstore.Gateway = (*fixtureStore)(nil)

func (s *fixtureStore) Query(_ context.Context, query string, params map[string]any, _ contentstore.QueryOptions) (json.RawMessage, error) {
	if domain, ok := params["domain"].(string); ok {
		if domain == "onlinetutors.qa" {
			return json.RawMessage(`{
				"id": "clone-qa",
				"slug": "qatar-tutors",
				"name": "Qatar Tutors",
				"domains": ["onlinetutors.qa"],
				"active": true,
				"baseline": false
			}`), nil
		}
		return json.RawMessage("null"), nil
	}

	if kind, ok := params["kind"].(string); ok && params["slug"] == "maths" && kind == "subject" {
		// Only the unscoped default tier has this subject.
		if strings.Contains(query, "!defined(clone)") {
			return json.RawMessage(`{
				"_id": "subject-maths",
				"_type": "subject",
				"isActive": true,
				"title": "Maths",
				"slug": {"current": "maths"}
			}`), nil
		}
		return json.RawMessage("null"), nil
	}

	if strings.Contains(query, "linkSettings") {
		return json.RawMessage(`{"defaultNofollow": false, "nofollowDomains": ["spammy.example"], "followDomains": []}`), nil
	}

	if strings.Contains(query, `_type in ["subject", "curriculum"]`) {
		return json.RawMessage(`[
			{"_id": "subject-maths", "_type": "subject", "title": "Maths", "slug": "maths"},
			{"_id": "curriculum-igcse", "_type": "curriculum", "title": "IGCSE", "slug": "igcse"}
		]`), nil
	}

	return json.RawMessage("null"), nil
}

func (s *fixtureStore) Mutate(_ context.Context, mutations []contentstore.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations = append(s.mutations, mutations...)
	return nil
}

func (s *fixtureStore) InvalidateTag(context.Context, string) error { return nil }

type passCache struct{}

var _ cache.Cache = passCache{}

func (passCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (passCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (passCache) Delete(context.Context, string) error { return nil }
func (passCache) Flush(context.Context) error { return nil }

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	store := &fixtureStore{}

	domains := service.NewDomainResolver(store, passCache{}, 10*time.Minute, nil)
	slugs := service.NewSlugCache(store, passCache{}, 24*time.Hour)

	h := &Handlers{
		Domains: domains,
		Content: service.NewContentResolver(store, time.Minute),
		Slugs:   slugs,
		Links:   service.NewLinkPolicy(store, 5*time.Minute),
		Reval:   service.NewRevalidator(store, domains, slugs, nil, nil),
	}

	r := chi.NewRouter()
	MountRoutes(r, h, testWebhookSecret)
	return r
}

func doRequest(t *testing.T, router chi.Router, method, host, path string, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Host = host
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestGetTenant(t *testing.T) {
	router := newTestRouter(t)

	t.Run("CloneHost", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "www.onlinetutors.qa", "/api/v1/tenant", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		got := decodeBody[map[string]any](t, rec)
		if got["slug"] != "qatar-tutors" {
			t.Fatalf("expected qatar-tutors, got %v", got)
		}
		if h := rec.Header().Get("X-Clone-ID"); h != "qatar-tutors" {
			t.Fatalf("expected X-Clone-ID header, got %q", h)
		}
	})

	t.Run("GlobalHost", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "brighttutors.com", "/api/v1/tenant", "", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for the global site, got %d", rec.Code)
		}
	})
}

// A subject that exists only as an unscoped default must 404 on a clone
// domain (strict suppression) while the same path serves it on the global
// site. The 404 body carries the diagnostics.
func TestGetContent_StrictSuppressionAcrossHosts(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "onlinetutors.qa", "/api/v1/content/subject/maths", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on the clone host, got %d: %s", rec.Code, rec.Body.String())
	}
	nf := decodeBody[map[string]any](t, rec)
	if nf["hasDefault"] != true {
		t.Fatalf("expected hasDefault diagnostic, got %v", nf)
	}

	rec = doRequest(t, router, http.MethodGet, "brighttutors.com", "/api/v1/content/subject/maths", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on the global site, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]any](t, rec)
	if got["origin"] != "default" {
		t.Fatalf("expected default origin, got %v", got["origin"])
	}
}

func TestGetContent_UnknownKind(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "brighttutors.com", "/api/v1/content/banner/maths", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestGetURL(t *testing.T) {
	router := newTestRouter(t)

	cases := []struct {
		name string
		path string
		want string
	}{
		{"SubjectDefault", "/api/v1/url?key=Maths", "/maths"},
		{"Curriculum", "/api/v1/url?kind=curriculum&key=IGCSE", "/curriculum/igcse"},
		{"WithFragment", "/api/v1/url?key=Maths&fragment=pricing", "/maths#pricing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, "brighttutors.com", tc.path, "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			got := decodeBody[map[string]string](t, rec)
			if got["url"] != tc.want {
				t.Fatalf("url = %q, want %q", got["url"], tc.want)
			}
		})
	}

	t.Run("MissingKey", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "brighttutors.com", "/api/v1/url", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("BadKind", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodGet, "brighttutors.com", "/api/v1/url?key=x&kind=hero", "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGetLinkRel(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "brighttutors.com",
		"/api/v1/link/rel?url="+url.QueryEscape("https://spammy.example/offer"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]any](t, rec)
	if got["nofollow"] != true {
		t.Fatalf("expected nofollow for a denied domain, got %v", got)
	}
	rel, _ := got["rel"].(string)
	for _, tok := range []string{"noopener", "noreferrer", "nofollow"} {
		if !strings.Contains(rel, tok) {
			t.Fatalf("rel %q missing %q", rel, tok)
		}
	}
}

func signWebhook(body string) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestRevalidateWebhook(t *testing.T) {
	router := newTestRouter(t)
	const path = "/api/v1/webhooks/revalidate"

	t.Run("Accepted", func(t *testing.T) {
		body := `{"_type": "hero", "_id": "hero-1", "_rev": "rev-2"}`
		rec := doRequest(t, router, http.MethodPost, "brighttutors.com", path, body,
			map[string]string{SignatureHeader: signWebhook(body)})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		got := decodeBody[map[string]any](t, rec)
		if got["revalidated"] != true {
			t.Fatalf("expected revalidated ack, got %v", got)
		}
		if _, ok := got["now"].(float64); !ok {
			t.Fatalf("expected a numeric timestamp, got %v", got["now"])
		}
	})

	t.Run("MissingSignature", func(t *testing.T) {
		rec := doRequest(t, router, http.MethodPost, "brighttutors.com", path,
			`{"_type": "hero", "_id": "hero-1"}`, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		body := `{"_type": "hero"}`
		rec := doRequest(t, router, http.MethodPost, "brighttutors.com", path, body,
			map[string]string{SignatureHeader: signWebhook(body)})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		body := `{not json`
		rec := doRequest(t, router, http.MethodPost, "brighttutors.com", path, body,
			map[string]string{SignatureHeader: signWebhook(body)})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRefreshSlugs(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "brighttutors.com", "/api/v1/slugs/refresh", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]bool](t, rec)
	if !got["refreshed"] {
		t.Fatalf("expected refreshed ack, got %v", got)
	}
}
