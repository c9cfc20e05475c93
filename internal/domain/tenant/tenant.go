// Package tenant defines the clone domain model. A clone is one branded site
// variant served from the shared deployment, identified by the domains it owns.
package tenant

import (
	"strings"

	"github.com/brighttutors/multisite/internal/domain/content"
)

// Scope restricts which content kinds a clone may serve. The values are
// mutually exclusive by construction in the authoring schema.
type Scope string

// Clone content scopes.
const (
	ScopeAll           Scope = "all"
	ScopeHomepageOnly  Scope = "homepage"
	ScopeSubjectsOnly  Scope = "subjects"
	ScopeCurriculaOnly Scope = "curricula"
)

// Tenant is a clone: one branded website variant. Records are authored in the
// external content store and are read-only to this core, except for the
// dependent-link repair side effect run by the revalidation dispatcher.
type Tenant struct {
	ID       string   `json:"id"`
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Domains  []string `json:"domains"`
	Active   bool     `json:"active"`
	Baseline bool     `json:"baseline"`
	Scope    Scope    `json:"scope,omitempty"`
}

// Serves reports whether the clone's scope permits serving the given kind.
// Section kinds (hero, FAQ, adverts, testimonials, footers) render on every
// page and are always allowed; the scope only gates page kinds.
func (t *Tenant) Serves(kind content.Kind) bool {
	switch t.Scope {
	case ScopeHomepageOnly:
		return kind != content.KindSubject && kind != content.KindCurriculum
	case ScopeSubjectsOnly:
		return kind != content.KindCurriculum
	case ScopeCurriculaOnly:
		return kind != content.KindSubject
	default:
		return true
	}
}

// OwnsDomain reports whether the clone claims the given normalized domain.
func (t *Tenant) OwnsDomain(domain string) bool {
	norm := NormalizeDomain(domain)
	for _, d := range t.Domains {
		if NormalizeDomain(d) == norm {
			return true
		}
	}
	return false
}

// NormalizeDomain lowercases a hostname, strips a single leading "www." and
// drops any port. Two hosts differing only in case or a www prefix normalize
// identically.
func NormalizeDomain(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i >= 0 && isDigits(h[i+1:]) {
		h = h[:i]
	}
	h = strings.TrimPrefix(h, "www.")
	return h
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
