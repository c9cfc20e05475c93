package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brighttutors/multisite/internal/middleware"
)

// SignatureHeader carries the store webhook's HMAC-SHA256 signature.
const SignatureHeader = "X-Sanity-Signature"

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, webhookSecret string) {
	// Store webhook: HMAC-verified, no clone resolution needed.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.WebhookHMAC(webhookSecret, SignatureHeader)).
			Post("/revalidate", h.Revalidate)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ResolveClone(h.Domains))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Get("/tenant", h.GetTenant)
		r.Get("/content/{kind}/{slug}", h.GetContent)
		r.Get("/url", h.GetURL)
		r.Get("/link/rel", h.GetLinkRel)
		r.Post("/slugs/refresh", h.RefreshSlugs)
	})
}
