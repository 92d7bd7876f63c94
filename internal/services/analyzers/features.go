package analyzers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageFeatures are the deterministic signals extracted from one rendered
// page's HTML. Analyzers consume these instead of re-parsing the DOM.
type PageFeatures struct {
	URL             string
	Title           string
	MetaDescription string

	HeadingCounts   [6]int
	HeadingSequence []int

	ImageCount     int
	ImagesWithAlt  int
	HasSchema      bool
	OGTagCount     int
	HasCanonical   bool
	HasViewport    bool
	HasLang        bool
	CTACount       int
	WordCount      int
	HasTestimonial bool
	BlogHints      int

	SocialLinks map[string]string

	FormInputCount   int
	LabelledInputs   int
	PositiveTabindex int
	AriaAttrCount    int
	LandmarkCount    int
	HasSkipLink      bool
}

var ctaPattern = regexp.MustCompile(`(?i)\b(get started|contact us|book|schedule|request|sign up|subscribe|buy|order|quote|call now|learn more|free consultation|get a demo)\b`)

var testimonialPattern = regexp.MustCompile(`(?i)\b(testimonial|review|what our (clients|customers) say|5 stars|★)\b`)

var socialHosts = map[string]string{
	"facebook.com":  "facebook",
	"instagram.com": "instagram",
	"linkedin.com":  "linkedin",
	"twitter.com":   "twitter",
	"x.com":         "twitter",
	"youtube.com":   "youtube",
	"tiktok.com":    "tiktok",
	"pinterest.com": "pinterest",
	"yelp.com":      "yelp",
}

// ExtractFeatures parses rendered HTML into deterministic signals. Parse
// failures yield zero-valued features rather than an error; the analyzers
// treat an unparseable page as an empty one.
func ExtractFeatures(pageURL, html string) PageFeatures {
	f := PageFeatures{URL: pageURL, SocialLinks: make(map[string]string)}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return f
	}

	f.Title = strings.TrimSpace(doc.Find("title").First().Text())
	f.MetaDescription, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
	f.MetaDescription = strings.TrimSpace(f.MetaDescription)

	for level := 1; level <= 6; level++ {
		tag := "h" + strconv.Itoa(level)
		doc.Find(tag).Each(func(i int, s *goquery.Selection) {
			f.HeadingCounts[level-1]++
			f.HeadingSequence = append(f.HeadingSequence, level)
		})
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		f.ImageCount++
		if alt, ok := s.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			f.ImagesWithAlt++
		}
	})

	f.HasSchema = doc.Find(`script[type="application/ld+json"]`).Length() > 0 ||
		doc.Find("[itemscope]").Length() > 0
	f.OGTagCount = doc.Find(`meta[property^="og:"]`).Length()
	f.HasCanonical = doc.Find(`link[rel="canonical"]`).Length() > 0
	f.HasViewport = doc.Find(`meta[name="viewport"]`).Length() > 0

	if lang, ok := doc.Find("html").First().Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		f.HasLang = true
	}

	bodyText := doc.Find("body").Text()
	f.WordCount = len(strings.Fields(bodyText))
	f.HasTestimonial = testimonialPattern.MatchString(bodyText)

	doc.Find("a, button").Each(func(i int, s *goquery.Selection) {
		if ctaPattern.MatchString(s.Text()) {
			f.CTACount++
		}
	})

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		lower := strings.ToLower(href)
		for host, platform := range socialHosts {
			if strings.Contains(lower, host) {
				if _, ok := f.SocialLinks[platform]; !ok {
					f.SocialLinks[platform] = href
				}
			}
		}
		if strings.Contains(lower, "/blog") || strings.Contains(lower, "/news") {
			f.BlogHints++
		}
	})

	doc.Find("input, select, textarea").Each(func(i int, s *goquery.Selection) {
		inputType, _ := s.Attr("type")
		if inputType == "hidden" || inputType == "submit" || inputType == "button" {
			return
		}
		f.FormInputCount++

		id, hasID := s.Attr("id")
		if hasID && doc.Find(`label[for="`+id+`"]`).Length() > 0 {
			f.LabelledInputs++
			return
		}
		if _, ok := s.Attr("aria-label"); ok {
			f.LabelledInputs++
			return
		}
		if _, ok := s.Attr("aria-labelledby"); ok {
			f.LabelledInputs++
			return
		}
		if s.ParentsFiltered("label").Length() > 0 {
			f.LabelledInputs++
		}
	})

	doc.Find("[tabindex]").Each(func(i int, s *goquery.Selection) {
		raw, _ := s.Attr("tabindex")
		if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
			f.PositiveTabindex++
		}
	})

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		for _, attr := range s.Nodes[0].Attr {
			if strings.HasPrefix(attr.Key, "aria-") {
				f.AriaAttrCount++
			}
		}
	})

	f.LandmarkCount = doc.Find("header, nav, main, footer, aside, [role=banner], [role=navigation], [role=main], [role=contentinfo]").Length()

	doc.Find(`a[href^="#"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := strings.ToLower(s.Text())
		if strings.Contains(text, "skip") {
			f.HasSkipLink = true
			return false
		}
		return true
	})

	return f
}

// HeadingSkips counts places where the heading sequence jumps more than one
// level down (h2 directly to h4 and the like).
func (f PageFeatures) HeadingSkips() int {
	skips := 0
	for i := 1; i < len(f.HeadingSequence); i++ {
		if f.HeadingSequence[i] > f.HeadingSequence[i-1]+1 {
			skips++
		}
	}
	return skips
}

// AltTextRatio is the share of images carrying alt text; 1.0 when a page has
// no images.
func (f PageFeatures) AltTextRatio() float64 {
	if f.ImageCount == 0 {
		return 1.0
	}
	return float64(f.ImagesWithAlt) / float64(f.ImageCount)
}
