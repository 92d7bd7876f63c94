// Package selection chooses a bounded per-module page set from discovered
// candidates, via an LLM prompt with a deterministic fallback.
package selection

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
	"github.com/sitegrader/sitegrader/internal/urlfilter"
)

// moduleAffinities order the page type hints each module prefers when the
// deterministic fallback fills its list.
var moduleAffinities = map[string][]domain.PageTypeHint{
	"seo":     {domain.PageTypeHomepage, domain.PageTypeServices, domain.PageTypeAbout},
	"content": {domain.PageTypeBlog, domain.PageTypeAbout, domain.PageTypeServices},
	"visual":  {domain.PageTypeHomepage, domain.PageTypeServices, domain.PageTypePricing},
	"social":  {domain.PageTypeHomepage, domain.PageTypeContact, domain.PageTypeAbout},
}

// Selector chooses per-module page sets.
type Selector struct {
	llm     llm.Client
	catalog *prompts.Catalog
	logger  *zap.Logger
}

// New creates a Selector.
func New(client llm.Client, catalog *prompts.Catalog, logger *zap.Logger) *Selector {
	return &Selector{llm: client, catalog: catalog, logger: logger}
}

// llmSelection is the structured output schema for the selection prompt.
type llmSelection struct {
	SEOPages     []string `json:"seo_pages"`
	ContentPages []string `json:"content_pages"`
	VisualPages  []string `json:"visual_pages"`
	SocialPages  []string `json:"social_pages"`
}

// Select partitions discovered pages into per-module sets of at most quota
// URLs. The LLM path is tried first; invalid output or a failed call drops to
// the deterministic fallback. The URL filter is re-applied to the output to
// guard against the LLM reintroducing rejected URLs.
func (s *Selector) Select(ctx context.Context, discovery *domain.DiscoveryResult, target domain.Company, homepage string, quota int) (*domain.PageSelection, error) {
	if quota < 1 {
		return nil, domain.ErrInput(fmt.Sprintf("page quota must be positive, got %d", quota))
	}

	sel, err := s.selectWithLLM(ctx, discovery, target, homepage, quota)
	if err != nil {
		s.logger.Warn("llm selection failed, using deterministic fallback", zap.Error(err))
		sel = s.selectFallback(discovery, homepage, quota)
	}

	if err := Validate(sel, discovery, homepage, quota); err != nil {
		s.logger.Warn("llm selection invalid, using deterministic fallback", zap.Error(err))
		sel = s.selectFallback(discovery, homepage, quota)
		if err := Validate(sel, discovery, homepage, quota); err != nil {
			return nil, domain.ErrInvariant("fallback selection failed validation").WithCause(err)
		}
	}

	return sel, nil
}

func (s *Selector) selectWithLLM(ctx context.Context, discovery *domain.DiscoveryResult, target domain.Company, homepage string, quota int) (*domain.PageSelection, error) {
	var candidates strings.Builder
	for _, p := range discovery.Pages {
		fmt.Fprintf(&candidates, "%s — %s\n", p.URL, p.PageTypeHint)
	}

	prompt, err := s.catalog.Load(prompts.Selection, map[string]string{
		"quota":      fmt.Sprintf("%d", quota),
		"company":    target.Name,
		"industry":   target.Industry,
		"url":        homepage,
		"candidates": candidates.String(),
	})
	if err != nil {
		return nil, err
	}

	var out llmSelection
	if _, err := s.llm.CallJSON(ctx, llm.Request{
		Model:       prompt.Model,
		System:      prompt.System,
		User:        prompt.User,
		Temperature: prompt.Temperature,
	}, &out); err != nil {
		return nil, err
	}

	sel := &domain.PageSelection{
		SEOPages:     sanitize(out.SEOPages, quota),
		ContentPages: sanitize(out.ContentPages, quota),
		VisualPages:  sanitize(out.VisualPages, quota),
		SocialPages:  sanitize(out.SocialPages, quota),
		Strategy:     domain.StrategyLLM,
	}
	return sel, nil
}

// sanitize canonicalizes, re-filters, dedupes, and truncates one module list.
func sanitize(urls []string, quota int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range urls {
		u, err := urlfilter.Canonicalize(raw)
		if err != nil || !urlfilter.Keep(u, urlfilter.Options{}) || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == quota {
			break
		}
	}
	return out
}

// selectFallback applies the deterministic rule: for each module, pages whose
// hint matches the module's affinity list in affinity order, then remaining
// discovered pages in discovery order, up to quota. The homepage leads every
// list.
func (s *Selector) selectFallback(discovery *domain.DiscoveryResult, homepage string, quota int) *domain.PageSelection {
	pick := func(module string) []string {
		chosen := []string{homepage}
		used := map[string]bool{homepage: true}

		for _, hint := range moduleAffinities[module] {
			for _, p := range discovery.Pages {
				if len(chosen) == quota {
					return chosen
				}
				if p.PageTypeHint == hint && !used[p.URL] {
					used[p.URL] = true
					chosen = append(chosen, p.URL)
				}
			}
		}

		for _, p := range discovery.Pages {
			if len(chosen) == quota {
				break
			}
			if !used[p.URL] {
				used[p.URL] = true
				chosen = append(chosen, p.URL)
			}
		}

		return chosen
	}

	return &domain.PageSelection{
		SEOPages:     pick("seo"),
		ContentPages: pick("content"),
		VisualPages:  pick("visual"),
		SocialPages:  pick("social"),
		Strategy:     domain.StrategyFallback,
	}
}

// Validate enforces the selection invariants: every URL appears in discovery,
// no module exceeds its quota, and the homepage is present in every non-empty
// list.
func Validate(sel *domain.PageSelection, discovery *domain.DiscoveryResult, homepage string, quota int) error {
	lists := map[string][]string{
		"seo_pages":     sel.SEOPages,
		"content_pages": sel.ContentPages,
		"visual_pages":  sel.VisualPages,
		"social_pages":  sel.SocialPages,
	}

	nonEmpty := 0
	for name, list := range lists {
		if len(list) > quota {
			return fmt.Errorf("%s has %d pages, quota is %d", name, len(list), quota)
		}
		if len(list) == 0 {
			continue
		}
		nonEmpty++

		hasHome := false
		for _, u := range list {
			if !discovery.Contains(u) {
				return fmt.Errorf("%s references undiscovered URL %s", name, u)
			}
			if u == homepage {
				hasHome = true
			}
		}
		if !hasHome {
			return fmt.Errorf("%s is missing the homepage", name)
		}
	}

	if nonEmpty == 0 {
		return fmt.Errorf("selection is empty")
	}

	return nil
}
