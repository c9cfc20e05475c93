// Package middleware provides request middleware for clone resolution and
// webhook authentication.
package middleware

import (
	"context"
	"net/http"

	"github.com/brighttutors/multisite/internal/domain/tenant"
	"github.com/brighttutors/multisite/internal/service"
)

// CloneHeader is the well-known response header carrying the resolved clone
// slug for downstream consumers (edge caches, the rendering frontend).
const CloneHeader = "X-Clone-ID"

type cloneCtxKey struct{}

// ResolveClone is middleware that classifies the request Host into a clone
// identity and stores it in the request context. No match means the global
// site: the context key is simply absent.
func ResolveClone(domains *service.DomainResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if t := domains.Resolve(r.Context(), r.Host); t != nil {
				ctx := context.WithValue(r.Context(), cloneCtxKey{}, t)
				w.Header().Set(CloneHeader, t.Slug)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CloneFromContext returns the clone stored in ctx, or nil for the global site.
func CloneFromContext(ctx context.Context) *tenant.Tenant {
	t, _ := ctx.Value(cloneCtxKey{}).(*tenant.Tenant)
	return t
}
