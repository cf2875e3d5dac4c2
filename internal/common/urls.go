package common

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL returns the canonical form of an absolute http(s) URL.
// Canonical form lowercases the scheme and host, drops the fragment and
// rewrites an empty path as "/" so that visited-set lookups treat
// trivially different spellings of the same page as equal. The query
// string is preserved because it can select distinct content.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	return NormalizeParsed(u)
}

// NormalizeParsed canonicalizes an already parsed URL. The URL is
// modified in place and its canonical string form returned.
func NormalizeParsed(u *url.URL) (string, error) {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL has no host")
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// SameHost reports whether two URLs point at the same host,
// ignoring case and port.
func SameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname())
}

// IsTestHost reports whether the host refers to a local test target.
// Production deployments reject these seed URLs.
func IsTestHost(host string) bool {
	h := strings.ToLower(host)
	return h == "localhost" || h == "127.0.0.1" || h == "::1" || h == "0.0.0.0" ||
		strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local")
}
