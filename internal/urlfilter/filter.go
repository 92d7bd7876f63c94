// Package urlfilter decides which URLs are worth analyzing. The same
// predicate is applied at sitemap ingestion, after LLM page selection, and
// immediately before the capture engine opens a page; it is idempotent.
package urlfilter

import (
	"net/url"
	"strings"
)

// Verdict is the filter decision for one URL.
type Verdict struct {
	Keep   bool
	Reason string
}

// downloadableExtensions are file types that never render as HTML pages.
var downloadableExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".7z", ".tar", ".gz",
	".mp3", ".mp4", ".mov", ".avi", ".wmv",
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico",
	".csv", ".json",
}

// excludePaths are known non-content path fragments.
var excludePaths = []string{
	"/login", "/signin", "/sign-in",
	"/cart", "/checkout",
	"/admin", "/wp-admin", "/wp-login",
	"/api/",
	"/oauth", "/auth/",
	"/logout", "/register", "/signup",
}

// Options tunes filter behavior per call site.
type Options struct {
	// AllowQuery keeps URLs with query strings. Discovery rejects them;
	// downstream callers may reintroduce specific query URLs.
	AllowQuery bool
}

// Check evaluates a single URL.
func Check(rawURL string, opts Options) Verdict {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Verdict{Keep: false, Reason: "unparseable URL"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Verdict{Keep: false, Reason: "non-HTTP(S) scheme"}
	}
	if parsed.Host == "" {
		return Verdict{Keep: false, Reason: "missing host"}
	}

	pathLower := strings.ToLower(parsed.Path)
	for _, ext := range downloadableExtensions {
		if strings.HasSuffix(pathLower, ext) {
			return Verdict{Keep: false, Reason: "downloadable extension " + ext}
		}
	}

	for _, frag := range excludePaths {
		if strings.Contains(pathLower, frag) {
			return Verdict{Keep: false, Reason: "excluded path " + frag}
		}
	}

	if !opts.AllowQuery && parsed.RawQuery != "" {
		return Verdict{Keep: false, Reason: "query string"}
	}

	return Verdict{Keep: true}
}

// Keep is a convenience wrapper returning only the boolean decision.
func Keep(rawURL string, opts Options) bool {
	return Check(rawURL, opts).Keep
}

// Apply filters a URL list in place order, returning kept URLs.
func Apply(urls []string, opts Options) []string {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if Keep(u, opts) {
			kept = append(kept, u)
		}
	}
	return kept
}

// Canonicalize normalizes a URL for deduplication: lowercased scheme and
// host, fragment removed, trailing slash stripped.
func Canonicalize(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	// The root collapses to the bare origin so "/" and "" dedupe to one form.
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	return parsed.String(), nil
}
