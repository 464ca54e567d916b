// Package urlutil provides URL normalization and classification for the scan engine.
package urlutil

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultExcludedSchemes are URL scheme prefixes that never produce crawlable URLs.
var DefaultExcludedSchemes = []string{"javascript:", "mailto:", "tel:", "data:", "blob:"}

// staticExtensions marks path suffixes that identify non-HTML content.
var staticExtensions = []string{
	".js", ".mjs", ".css", ".map",
	".jpg", ".jpeg", ".png", ".gif", ".ico", ".svg", ".webp", ".avif", ".bmp",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".mp3", ".mp4", ".wav", ".avi", ".mov", ".webm", ".mkv", ".flac", ".ogg",
	".zip", ".tar", ".gz", ".rar", ".7z", ".bz2",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
}

// staticSegments marks well-known static directory segments.
var staticSegments = []string{
	"/static/", "/assets/", "/public/", "/_next/static/", "/dist/", "/build/",
	"/vendor/", "/node_modules/", "/fonts/", "/images/", "/img/", "/media/",
}

// staticHostPrefixes marks hostnames that serve only static content.
var staticHostPrefixes = []string{"cdn.", "static.", "assets.", "media."}

// Normalize resolves href against base and canonicalizes it for crawl identity.
// The fragment and query string are cleared. It returns false for empty or
// whitespace-only refs and for refs starting with a default-excluded scheme.
func Normalize(href string, base *url.URL) (*url.URL, bool) {
	return NormalizeWith(href, base, DefaultExcludedSchemes)
}

// NormalizeWith is Normalize with a caller-supplied excluded scheme list.
func NormalizeWith(href string, base *url.URL, excludedSchemes []string) (*url.URL, bool) {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" {
		return nil, false
	}

	lower := strings.ToLower(trimmed)
	for _, scheme := range excludedSchemes {
		if strings.HasPrefix(lower, strings.ToLower(scheme)) {
			return nil, false
		}
	}

	ref, err := url.Parse(trimmed)
	if err != nil {
		return nil, false
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return nil, false
	}
	if resolved.Host == "" {
		return nil, false
	}

	resolved.Fragment = ""
	resolved.RawFragment = ""
	resolved.RawQuery = ""
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	if resolved.Path == "" {
		resolved.Path = "/"
	}

	return resolved, true
}

// SameOrigin reports whether u and base share a hostname, case-insensitively.
// Scheme and port are not compared.
func SameOrigin(u, base *url.URL) bool {
	return strings.EqualFold(u.Hostname(), base.Hostname())
}

// IsStaticAsset reports whether u points at non-HTML content that should
// never be scanned.
func IsStaticAsset(u *url.URL) bool {
	path := strings.ToLower(u.Path)

	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	for _, seg := range staticSegments {
		if strings.Contains(path, seg) {
			return true
		}
	}

	host := strings.ToLower(u.Hostname())
	for _, prefix := range staticHostPrefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}

	return false
}

// PathFilter applies a case-insensitive regex to URL paths.
type PathFilter struct {
	re      *regexp.Regexp
	invalid bool
}

// NewPathFilter compiles expr into a path filter. An empty expression matches
// every URL; an invalid expression matches none.
func NewPathFilter(expr string) *PathFilter {
	if expr == "" {
		return &PathFilter{}
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return &PathFilter{invalid: true}
	}
	return &PathFilter{re: re}
}

// Matches reports whether the path of u passes the filter.
func (f *PathFilter) Matches(u *url.URL) bool {
	if f.invalid {
		return false
	}
	if f.re == nil {
		return true
	}
	return f.re.MatchString(u.Path)
}
