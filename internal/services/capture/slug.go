package capture

import (
	"net/url"
	"strings"
)

// PageSlug derives a filesystem-safe name from a page URL. The homepage
// becomes "home"; other pages join their path segments with dashes.
func PageSlug(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Path == "" || parsed.Path == "/" {
		return "home"
	}

	slug := strings.Trim(parsed.Path, "/")
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, slug)

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "home"
	}
	if len(slug) > 80 {
		slug = slug[:80]
	}
	return slug
}
