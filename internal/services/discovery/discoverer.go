// Package discovery enumerates the candidate pages of a target site from its
// sitemap, robots.txt directives, and homepage links.
package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/urlfilter"
)

// Config bounds the discovery crawl.
type Config struct {
	FetchTimeout     time.Duration
	MaxSitemapDepth  int
	MaxPages         int
	MaxHomepageLinks int
	UserAgent        string
}

// DefaultConfig returns the documented discovery bounds.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:     10 * time.Second,
		MaxSitemapDepth:  3,
		MaxPages:         200,
		MaxHomepageLinks: 50,
		UserAgent:        "Mozilla/5.0 (compatible; SiteGrader/1.0)",
	}
}

// Discoverer finds candidate pages for a target site.
type Discoverer struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Discoverer.
func New(config Config, logger *zap.Logger) *Discoverer {
	if config.FetchTimeout == 0 {
		config = DefaultConfig()
	}
	return &Discoverer{
		config:     config,
		httpClient: &http.Client{Timeout: config.FetchTimeout},
		logger:     logger,
	}
}

// Discover enumerates candidate pages for seedURL. Any single fetch failure
// is non-fatal; the seed page itself must be reachable when nothing else is
// harvested, otherwise the run fails with DISCOVERY_EMPTY.
func (d *Discoverer) Discover(ctx context.Context, seedURL string) (*domain.DiscoveryResult, error) {
	seed, err := urlfilter.Canonicalize(seedURL)
	if err != nil {
		return nil, domain.ErrInvalidURL(seedURL, err)
	}
	base, err := url.Parse(seed)
	if err != nil {
		return nil, domain.ErrInvalidURL(seedURL, err)
	}

	result := &domain.DiscoveryResult{}
	found := make(map[string]domain.PageSource)

	// 1. Standard sitemap locations, recursively to a bounded depth.
	for _, path := range []string{"/sitemap.xml", "/sitemap_index.xml"} {
		urls, err := d.fetchSitemap(ctx, base.Scheme+"://"+base.Host+path, 0)
		if err != nil {
			if !result.HasSitemap {
				result.SitemapError = err.Error()
			}
			continue
		}
		result.HasSitemap = true
		result.SitemapError = ""
		for _, u := range urls {
			if _, ok := found[u]; !ok {
				found[u] = domain.SourceSitemap
			}
		}
	}

	// 2. robots.txt Sitemap directives.
	robotsURLs, hasRobots, err := d.fetchRobots(ctx, base)
	if err != nil {
		result.RobotsError = err.Error()
	}
	result.HasRobots = hasRobots
	for _, u := range robotsURLs {
		if _, ok := found[u]; !ok {
			found[u] = domain.SourceRobots
		}
	}

	// 3. Homepage link fan-out when nothing was harvested.
	if len(found) == 0 {
		links, err := d.fetchHomepageLinks(ctx, base)
		if err != nil {
			d.logger.Warn("homepage fetch failed", zap.String("url", seed), zap.Error(err))
			return nil, domain.ErrDiscoveryEmpty(seed).WithCause(err)
		}
		for _, u := range links {
			if _, ok := found[u]; !ok {
				found[u] = domain.SourceCrawl
			}
		}
	}

	// The seed itself is always a candidate.
	if _, ok := found[seed]; !ok {
		found[seed] = domain.SourceSeed
	}

	now := time.Now().UTC()
	for u, source := range found {
		if !sameOrigin(u, base) {
			continue
		}
		if !urlfilter.Keep(u, urlfilter.Options{}) {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil {
			continue
		}
		result.Pages = append(result.Pages, domain.DiscoveredPage{
			URL:          u,
			Path:         pathOf(parsed),
			Source:       source,
			PageTypeHint: ClassifyPath(parsed.Path, u == seed),
			DiscoveredAt: now,
		})
	}

	// Deterministic ordering: seed first, then by path.
	sort.Slice(result.Pages, func(i, j int) bool {
		if (result.Pages[i].URL == seed) != (result.Pages[j].URL == seed) {
			return result.Pages[i].URL == seed
		}
		return result.Pages[i].Path < result.Pages[j].Path
	})

	if len(result.Pages) > d.config.MaxPages {
		result.Pages = result.Pages[:d.config.MaxPages]
	}

	if len(result.Pages) == 0 {
		return nil, domain.ErrDiscoveryEmpty(seed)
	}

	d.logger.Info("discovery complete",
		zap.Int("pages", len(result.Pages)),
		zap.Bool("has_sitemap", result.HasSitemap),
		zap.Bool("has_robots", result.HasRobots),
	)

	return result, nil
}

// sitemap XML shapes; a document is either a urlset or a sitemapindex.
type sitemapDoc struct {
	XMLName  xml.Name     `xml:""`
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

func (d *Discoverer) fetchSitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth > d.config.MaxSitemapDepth {
		return nil, nil
	}

	body, err := d.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing sitemap %s: %w", sitemapURL, err)
	}
	if doc.XMLName.Local != "urlset" && doc.XMLName.Local != "sitemapindex" {
		return nil, fmt.Errorf("sitemap %s: unexpected root element %q", sitemapURL, doc.XMLName.Local)
	}

	var urls []string
	for _, entry := range doc.URLs {
		u, err := urlfilter.Canonicalize(entry.Loc)
		if err != nil {
			continue
		}
		urls = append(urls, u)
		if len(urls) >= d.config.MaxPages {
			return urls, nil
		}
	}

	// Index documents recurse into child sitemaps.
	for _, child := range doc.Sitemaps {
		childURLs, err := d.fetchSitemap(ctx, strings.TrimSpace(child.Loc), depth+1)
		if err != nil {
			d.logger.Debug("child sitemap fetch failed", zap.String("url", child.Loc), zap.Error(err))
			continue
		}
		urls = append(urls, childURLs...)
		if len(urls) >= d.config.MaxPages {
			return urls[:d.config.MaxPages], nil
		}
	}

	return urls, nil
}

func (d *Discoverer) fetchRobots(ctx context.Context, base *url.URL) ([]string, bool, error) {
	body, err := d.fetch(ctx, base.Scheme+"://"+base.Host+"/robots.txt")
	if err != nil {
		return nil, false, err
	}

	robots, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, true, fmt.Errorf("parsing robots.txt: %w", err)
	}

	var urls []string
	for _, sitemapURL := range robots.Sitemaps {
		sitemapURLs, err := d.fetchSitemap(ctx, strings.TrimSpace(sitemapURL), 0)
		if err != nil {
			d.logger.Debug("robots sitemap fetch failed", zap.String("url", sitemapURL), zap.Error(err))
			continue
		}
		urls = append(urls, sitemapURLs...)
	}

	return urls, true, nil
}

func (d *Discoverer) fetchHomepageLinks(ctx context.Context, base *url.URL) ([]string, error) {
	body, err := d.fetch(ctx, base.String())
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing homepage: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		resolved := resolveHref(base, href)
		if resolved == "" || seen[resolved] {
			return true
		}
		if !sameOrigin(resolved, base) {
			return true
		}
		seen[resolved] = true
		links = append(links, resolved)
		return len(links) < d.config.MaxHomepageLinks
	})

	return links, nil
}

func (d *Discoverer) fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.config.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", fetchURL, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)

	canonical, err := urlfilter.Canonicalize(resolved.String())
	if err != nil {
		return ""
	}
	return canonical
}

func sameOrigin(rawURL string, base *url.URL) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, base.Host)
}

func pathOf(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
