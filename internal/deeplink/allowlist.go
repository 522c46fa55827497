package deeplink

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// AllowlistEntry is a URL allowed to open in the wallet browser. A nil
// OpenInApp means true.
type AllowlistEntry struct {
	URL       string `json:"url" yaml:"url"`
	OpenInApp *bool  `json:"openInApp,omitempty" yaml:"open_in_app"`
}

func (e AllowlistEntry) openInApp() bool {
	return e.OpenInApp == nil || *e.OpenInApp
}

type Allowlist struct {
	Entries []AllowlistEntry `json:"allowedUrls"`
}

// AllowlistSource supplies the current allowlist. Implementations may be
// refreshed at runtime, the parser reads it once per URL.
type AllowlistSource interface {
	Allowlist() Allowlist
}

// StaticAllowlist is an AllowlistSource that never changes.
type StaticAllowlist Allowlist

func (s StaticAllowlist) Allowlist() Allowlist {
	return Allowlist(s)
}

// Loader fetches a fresh allowlist, e.g. a document kept in S3.
type Loader func(ctx context.Context) (Allowlist, error)

// RefreshingAllowlist keeps the last successfully loaded allowlist and
// falls back to the initial one until the first load succeeds.
type RefreshingAllowlist struct {
	mu      sync.RWMutex
	current Allowlist
	load    Loader
}

func NewRefreshingAllowlist(initial Allowlist, load Loader) *RefreshingAllowlist {
	return &RefreshingAllowlist{current: initial, load: load}
}

func (r *RefreshingAllowlist) Allowlist() Allowlist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Refresh replaces the allowlist with a freshly loaded one. On error the
// previous list stays in place.
func (r *RefreshingAllowlist) Refresh(ctx context.Context) error {
	next, err := r.load(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.current = next
	r.mu.Unlock()
	return nil
}

// Match reports whether raw may be opened in the wallet browser and with
// which openInApp flag. Only https URLs are considered. An entry matches on
// the exact URL, on scheme://host/path, or on its hostname alone.
func (a Allowlist) Match(raw string) (allowed bool, openInApp bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false, false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	toCheck := u.Scheme + "://" + u.Hostname() + path

	for _, entry := range a.Entries {
		if entry.URL == raw || entry.URL == toCheck {
			return true, entry.openInApp()
		}
		allowed := entry.URL
		if !strings.HasPrefix(allowed, "https://") {
			allowed = "https://" + allowed
		}
		au, err := url.Parse(allowed)
		if err != nil || au.Hostname() == "" {
			continue
		}
		if strings.EqualFold(u.Hostname(), au.Hostname()) {
			return true, entry.openInApp()
		}
	}
	return false, false
}
