package analyzers

import (
	"strings"
	"testing"

	"github.com/sitegrader/sitegrader/internal/domain"
)

func TestCrossPageBuilderEmpty(t *testing.T) {
	b := NewCrossPageBuilder()
	if b.PageCount() != 0 {
		t.Errorf("PageCount = %d", b.PageCount())
	}
	ctx := b.GetPageContext("https://x.example", 0)
	if !strings.Contains(ctx, "No earlier pages") {
		t.Errorf("empty context = %q", ctx)
	}
}

func TestCrossPageBuilderMonotone(t *testing.T) {
	b := NewCrossPageBuilder()

	b.AddPageContext(PageContext{
		URL:    "https://x.example",
		Module: domain.ModuleVisual,
		Findings: []domain.Finding{
			{Category: "typography", Title: "Inconsistent font sizes"},
		},
	})
	first := b.GetPageContext("https://x.example/about", 1)

	b.AddPageContext(PageContext{
		URL:    "https://x.example/about",
		Module: domain.ModuleVisual,
		Findings: []domain.Finding{
			{Category: "layout", Title: "Cramped hero section"},
		},
	})
	second := b.GetPageContext("https://x.example/services", 2)

	// Monotone: everything visible at page i is visible at page i+1.
	if !strings.Contains(first, "Inconsistent font sizes") {
		t.Error("first context missing page-1 finding")
	}
	if !strings.Contains(second, "Inconsistent font sizes") || !strings.Contains(second, "Cramped hero section") {
		t.Error("second context must be a superset of the first")
	}
	if !strings.Contains(second, "2 page(s)") {
		t.Errorf("context should count pages: %q", second)
	}
}

func TestCrossPageBuilderDedupesTitles(t *testing.T) {
	b := NewCrossPageBuilder()
	for i := 0; i < 3; i++ {
		b.AddPageContext(PageContext{
			Findings: []domain.Finding{{Category: "cta", Title: "Weak call to action"}},
		})
	}

	ctx := b.GetPageContext("u", 3)
	if strings.Count(ctx, "Weak call to action") != 1 {
		t.Errorf("duplicate titles should collapse: %q", ctx)
	}
}
