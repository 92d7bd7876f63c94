package analyzers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// PageContext is the record one analyzed page contributes to later pages.
type PageContext struct {
	URL      string
	Module   domain.Module
	Scores   map[string]int
	Findings []domain.Finding
}

// CrossPageBuilder accumulates findings from already-analyzed pages and
// renders them as an instruction block for the next page's prompt, so the
// model avoids restating known issues.
//
// Writes come only from the sequential visual path; concurrent writes are a
// contract violation. Entries are appended in page-index order and never
// removed, so readers see a monotonically growing set.
type CrossPageBuilder struct {
	entries []PageContext
}

// NewCrossPageBuilder creates an empty builder.
func NewCrossPageBuilder() *CrossPageBuilder {
	return &CrossPageBuilder{}
}

// AddPageContext appends one page's results.
func (b *CrossPageBuilder) AddPageContext(entry PageContext) {
	b.entries = append(b.entries, entry)
}

// PageCount returns how many pages have contributed.
func (b *CrossPageBuilder) PageCount() int {
	return len(b.entries)
}

// Entries returns the accumulated records in insertion order.
func (b *CrossPageBuilder) Entries() []PageContext {
	return b.entries
}

// GetPageContext renders the instruction block for the page at pageIndex:
// how many pages were already reviewed and their distinct issue titles
// grouped by category, with the directive to avoid restating them.
func (b *CrossPageBuilder) GetPageContext(url string, pageIndex int) string {
	if len(b.entries) == 0 {
		return "No earlier pages of this site have been reviewed yet."
	}

	byCategory := make(map[string][]string)
	seen := make(map[string]bool)
	for _, entry := range b.entries {
		for _, f := range entry.Findings {
			key := f.Category + "\x00" + f.Title
			if seen[key] {
				continue
			}
			seen[key] = true
			byCategory[f.Category] = append(byCategory[f.Category], f.Title)
		}
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d page(s) of this site were already reviewed. Issues already reported:\n", len(b.entries))
	for _, c := range categories {
		fmt.Fprintf(&sb, "- %s: %s\n", c, strings.Join(byCategory[c], "; "))
	}
	sb.WriteString("Do not restate these for the current page unless it exhibits them in a qualitatively different way.")

	return sb.String()
}
