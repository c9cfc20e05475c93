package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brighttutors/multisite/internal/domain/content"
	"github.com/brighttutors/multisite/internal/domain/revalidation"
	"github.com/brighttutors/multisite/internal/middleware"
	"github.com/brighttutors/multisite/internal/service"
)

// Handlers bundles the resolution services behind the HTTP API.
type Handlers struct {
	Domains *service.DomainResolver
	Content *service.ContentResolver
	Slugs   *service.SlugCache
	Links   *service.LinkPolicy
	Reval   *service.Revalidator
}

// GetTenant returns the clone resolved for the request host, or 404 for the
// global site.
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	t := middleware.CloneFromContext(r.Context())
	if t == nil {
		writeError(w, http.StatusNotFound, "no clone owns this host")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// notFoundResponse carries fallback diagnostics alongside the 404, so the
// frontend can distinguish "nothing exists" from strict-mode suppression.
type notFoundResponse struct {
	Message     string `json:"message"`
	HasBaseline bool   `json:"hasBaseline"`
	HasDefault  bool   `json:"hasDefault"`
}

// GetContent resolves content for the request host's clone through the
// specificity fallback. Callers render a not-found state on 404; resolution
// failures never surface as 5xx on this read path.
func (h *Handlers) GetContent(w http.ResponseWriter, r *http.Request) {
	kind := content.Kind(chi.URLParam(r, "kind"))
	slug := chi.URLParam(r, "slug")
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown content kind")
		return
	}

	clone := middleware.CloneFromContext(r.Context())
	if clone != nil && !clone.Serves(kind) {
		writeError(w, http.StatusNotFound, "content kind not served by this clone")
		return
	}

	res := h.Content.Resolve(r.Context(), kind, slug, clone)
	if res.Record == nil {
		writeJSON(w, http.StatusNotFound, notFoundResponse{
			Message:     "no content found",
			HasBaseline: res.HasBaseline,
			HasDefault:  res.HasDefault,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetURL builds an internal URL from the slug cache.
func (h *Handlers) GetURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	kind := content.KindSubject
	if k := r.URL.Query().Get("kind"); k != "" {
		kind = content.Kind(k)
		if kind != content.KindSubject && kind != content.KindCurriculum {
			writeError(w, http.StatusBadRequest, "kind must be subject or curriculum")
			return
		}
	}

	url := h.Slugs.URL(r.Context(), kind, key, r.URL.Query().Get("fragment"))
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GetLinkRel computes the rel attribute and nofollow decision for a link.
func (h *Handlers) GetLinkRel(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rel":      h.Links.RelAttribute(r.Context(), url, r.URL.Query().Get("rel")),
		"nofollow": h.Links.Nofollow(r.Context(), url),
	})
}

// Revalidate handles store change webhooks. Signature verification happens in
// middleware before this handler runs.
func (h *Handlers) Revalidate(w http.ResponseWriter, r *http.Request) {
	n, ok := readJSON[revalidation.Notification](w, r, 1<<20)
	if !ok {
		return
	}
	if n.Type == "" || n.ID == "" {
		writeError(w, http.StatusBadRequest, "_type and _id are required")
		return
	}

	if err := h.Reval.Dispatch(r.Context(), n); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"revalidated": true,
		"now":         time.Now().UnixMilli(),
	})
}

// RefreshSlugs forces a full slug cache rebuild. Operational endpoint.
func (h *Handlers) RefreshSlugs(w http.ResponseWriter, r *http.Request) {
	if err := h.Slugs.Refresh(r.Context()); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}
