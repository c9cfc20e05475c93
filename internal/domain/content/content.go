// Package content defines the content record model shared by every clone site.
package content

// Kind identifies a content document type in the external store.
type Kind string

// Document kinds served by the resolution core.
const (
	KindSubject     Kind = "subject"
	KindCurriculum  Kind = "curriculum"
	KindHero        Kind = "hero"
	KindFAQ         Kind = "faqSet"
	KindAdvert      Kind = "advert"
	KindTestimonial Kind = "testimonial"
	KindFooter      Kind = "footer"
	KindTutor       Kind = "tutor"
)

// Valid reports whether k is a known document kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSubject, KindCurriculum, KindHero, KindFAQ, KindAdvert, KindTestimonial, KindFooter, KindTutor:
		return true
	}
	return false
}

// Strict reports whether k forbids fallback beyond clone-specific content.
// Subject and curriculum pages must never bleed another clone's (or the
// global site's) content onto a clone domain.
func (k Kind) Strict() bool {
	return k == KindSubject || k == KindCurriculum
}

// Record is a single content document, decoded at the store boundary.
// CloneID is empty for unscoped (global default) records.
type Record struct {
	ID      string  `json:"id"`
	Kind    Kind    `json:"kind"`
	Slug    string  `json:"slug"`
	CloneID string  `json:"cloneId,omitempty"`
	Active  bool    `json:"active"`
	Payload Payload `json:"payload,omitempty"`
}

// Origin says which specificity tier a resolved record came from.
type Origin string

// Specificity tiers, most specific first.
const (
	OriginClone    Origin = "clone"
	OriginBaseline Origin = "baseline"
	OriginDefault  Origin = "default"
)

// Resolution is the outcome of a fallback resolution: the winning record (nil
// when nothing applies) plus diagnostics about which tiers had candidates.
// Under strict kinds Record may be nil while HasBaseline or HasDefault is
// true; that is the deliberate cross-clone bleed suppression.
type Resolution struct {
	Record      *Record `json:"record,omitempty"`
	Origin      Origin  `json:"origin,omitempty"`
	HasBaseline bool    `json:"hasBaseline"`
	HasDefault  bool    `json:"hasDefault"`
}

// LinkSettings holds the global (clone-independent) outbound link policy.
type LinkSettings struct {
	DefaultNofollow bool     `json:"defaultNofollow"`
	NofollowDomains []string `json:"nofollowDomains"`
	FollowDomains   []string `json:"followDomains"`
}
