package discovery

import (
	"strings"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// pathHints maps path keywords to page type hints. First match wins; order
// matters for paths carrying multiple keywords.
var pathHints = []struct {
	keyword string
	hint    domain.PageTypeHint
}{
	{"blog", domain.PageTypeBlog},
	{"news", domain.PageTypeBlog},
	{"article", domain.PageTypeBlog},
	{"insights", domain.PageTypeBlog},
	{"pricing", domain.PageTypePricing},
	{"plans", domain.PageTypePricing},
	{"team", domain.PageTypeTeam},
	{"people", domain.PageTypeTeam},
	{"staff", domain.PageTypeTeam},
	{"about", domain.PageTypeAbout},
	{"company", domain.PageTypeAbout},
	{"who-we-are", domain.PageTypeAbout},
	{"contact", domain.PageTypeContact},
	{"service", domain.PageTypeServices},
	{"product", domain.PageTypeServices},
	{"solution", domain.PageTypeServices},
	{"what-we-do", domain.PageTypeServices},
	{"menu", domain.PageTypeServices},
}

// ClassifyPath assigns a page type hint from path keywords.
func ClassifyPath(path string, isSeed bool) domain.PageTypeHint {
	if isSeed || path == "/" || path == "" {
		return domain.PageTypeHomepage
	}

	lower := strings.ToLower(path)
	for _, h := range pathHints {
		if strings.Contains(lower, h.keyword) {
			return h.hint
		}
	}
	return domain.PageTypeOther
}
