package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brighttutors/multisite/internal/domain/content"
	"github.com/brighttutors/multisite/internal/port/contentstore"
)

const queryLinkSettings = `*[_type == "linkSettings"][0]{defaultNofollow, nofollowDomains, followDomains}`

// LinkPolicy decides, per outbound URL, whether nofollow applies and composes
// rel attributes. Settings are global (not clone-scoped) and cached
// in-process for a fixed window.
type LinkPolicy struct {
	store contentstore.Gateway
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	settings content.LinkSettings
	fetched  time.Time
}

// NewLinkPolicy creates a link policy engine. ttl is the settings cache
// window (5 minutes in production).
func NewLinkPolicy(store contentstore.Gateway, ttl time.Duration) *LinkPolicy {
	return &LinkPolicy{store: store, ttl: ttl, now: time.Now}
}

// SetClock replaces the engine's clock. Tests only.
func (p *LinkPolicy) SetClock(now func() time.Time) {
	p.now = now
}

// Nofollow reports whether the URL should carry rel=nofollow. Same-site URLs
// (leading "/" or "#") never do. For external URLs the allow list wins over
// the deny list, which wins over the global default.
func (p *LinkPolicy) Nofollow(ctx context.Context, rawURL string) bool {
	if isSameSite(rawURL) {
		return false
	}

	settings := p.currentSettings(ctx)
	host := linkHost(rawURL)

	for _, entry := range settings.FollowDomains {
		if entry != "" && strings.Contains(host, strings.ToLower(entry)) {
			return false
		}
	}
	for _, entry := range settings.NofollowDomains {
		if entry != "" && strings.Contains(host, strings.ToLower(entry)) {
			return true
		}
	}
	return settings.DefaultNofollow
}

// RelAttribute composes the rel attribute for a link. Existing tokens are
// preserved, noopener/noreferrer are added once for external links, and
// nofollow is added or removed to match the policy decision. The composition
// is idempotent.
func (p *LinkPolicy) RelAttribute(ctx context.Context, rawURL, existingRel string) string {
	sameSite := isSameSite(rawURL)
	nofollow := p.Nofollow(ctx, rawURL)

	tokens := make([]string, 0, 4)
	seen := make(map[string]bool)
	add := func(tok string) {
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, tok := range strings.Fields(existingRel) {
		if tok == "nofollow" {
			continue // re-added below iff the decision says so
		}
		add(tok)
	}
	if !sameSite {
		add("noopener")
		add("noreferrer")
	}
	if nofollow {
		add("nofollow")
	}

	return strings.Join(tokens, " ")
}

// currentSettings returns the cached settings, refetching after the window
// elapses. A fetch failure degrades to the permissive default for one window
// so link rendering never fails a page render.
func (p *LinkPolicy) currentSettings(ctx context.Context) content.LinkSettings {
	p.mu.Lock()
	if !p.fetched.IsZero() && p.now().Sub(p.fetched) < p.ttl {
		s := p.settings
		p.mu.Unlock()
		return s
	}
	p.mu.Unlock()

	// Fetch outside the lock; concurrent refreshes write identical data.
	settings := content.LinkSettings{}
	fetched, err := contentstore.One[content.LinkSettings](ctx, p.store, queryLinkSettings, nil, contentstore.QueryOptions{})
	if err != nil {
		slog.Warn("link settings fetch failed, using permissive defaults", "error", err)
	} else if fetched != nil {
		settings = *fetched
	}

	p.mu.Lock()
	p.settings = settings
	p.fetched = p.now()
	p.mu.Unlock()
	return settings
}

func isSameSite(rawURL string) bool {
	return strings.HasPrefix(rawURL, "/") || strings.HasPrefix(rawURL, "#")
}

// linkHost extracts a lowercased hostname for substring matching. Unparsable
// URLs fall back to the lowercased raw string.
func linkHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}
