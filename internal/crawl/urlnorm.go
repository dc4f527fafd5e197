package crawl

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeURL canonicalizes a URL for visited-set membership: fragment
// stripped, host and path lowercased, trailing slash stripped except at the
// root.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.ToLower(u.Path)
	if u.Path == "" {
		u.Path = "/"
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// SameRegistrableDomain reports whether candidate belongs to the same
// registrable domain as seed; subdomains are allowed.
func SameRegistrableDomain(seed, candidate string) bool {
	seedDomain, err := registrableDomain(seed)
	if err != nil {
		return false
	}
	candDomain, err := registrableDomain(candidate)
	if err != nil {
		return false
	}
	return seedDomain == candDomain
}

func registrableDomain(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// Hosts without a public suffix (localhost, bare IPs) compare as
		// themselves.
		return host, nil
	}
	return domain, nil
}
