// Package policy implements the operational checks applied to every
// download request: the domain allow-list, the transfer size guard, and
// input sanitation. Everything here is stateless and safe for
// concurrent use.
package policy

import (
	"net/url"
	"strings"
)

// AllowList validates request URLs against a configured set of domains.
type AllowList struct {
	domains []string
}

// NewAllowList creates an allow-list from domain names. Entries are
// matched against the URL host with subdomain awareness, so an entry
// "instagram.com" also admits "www.instagram.com".
func NewAllowList(domains []string) *AllowList {
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			cleaned = append(cleaned, d)
		}
	}
	return &AllowList{domains: cleaned}
}

// Allows reports whether the URL's host is on the allow-list. A URL
// that cannot be parsed, has no host, or uses a non-HTTP scheme is
// never allowed.
func (a *AllowList) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, d := range a.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
