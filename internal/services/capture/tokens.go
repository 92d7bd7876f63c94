package capture

import (
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// lazyLoadScrollScript scrolls to the bottom in steps so lazy-loaded images
// fire, then returns to the top for a clean full-page screenshot.
const lazyLoadScrollScript = `async () => {
	await new Promise((resolve) => {
		let total = 0;
		const distance = 600;
		const timer = setInterval(() => {
			window.scrollBy(0, distance);
			total += distance;
			if (total >= document.body.scrollHeight) {
				clearInterval(timer);
				resolve();
			}
		}, 100);
	});
	window.scrollTo(0, 0);
}`

// designTokenScript enumerates computed font-family and color values of
// visible elements, most frequent first.
const designTokenScript = `() => {
	const fonts = new Map();
	const colors = new Map();
	const bump = (map, value) => {
		if (!value) return;
		map.set(value, (map.get(value) || 0) + 1);
	};
	for (const el of document.querySelectorAll('body *')) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) continue;
		const style = window.getComputedStyle(el);
		bump(fonts, style.fontFamily);
		bump(colors, style.color);
		bump(colors, style.backgroundColor);
	}
	const top = (map) => [...map.entries()]
		.sort((a, b) => b[1] - a[1])
		.map(([value]) => value);
	return { fonts: top(fonts), colors: top(colors) };
}`

// extractTokens evaluates the token script against a live page. Extraction is
// best-effort; a script failure yields empty tokens, not a capture error.
func (e *Engine) extractTokens(page playwright.Page) domain.DesignTokens {
	raw, err := page.Evaluate(designTokenScript)
	if err != nil {
		return domain.DesignTokens{}
	}
	return parseTokens(raw, e.config.TopTokens)
}

// parseTokens converts the Evaluate result into DesignTokens, keeping the top
// K distinct values per kind.
func parseTokens(raw any, topK int) domain.DesignTokens {
	obj, ok := raw.(map[string]any)
	if !ok {
		return domain.DesignTokens{}
	}

	toStrings := func(v any) []string {
		list, ok := v.([]any)
		if !ok {
			return nil
		}
		var out []string
		for _, item := range list {
			if len(out) == topK {
				break
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	}

	return domain.DesignTokens{
		Fonts:  toStrings(obj["fonts"]),
		Colors: toStrings(obj["colors"]),
	}
}
