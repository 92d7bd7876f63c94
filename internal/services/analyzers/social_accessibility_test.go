package analyzers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/prompts"
)

const pageWithSocial = `<html><body>
<footer>
  <a href="https://facebook.com/acme">FB</a>
  <a href="https://instagram.com/acme">IG</a>
</footer>
</body></html>`

const pageWithoutSocial = `<html><body><p>plain</p></body></html>`

func TestSocialAnalyzerFlagsInconsistentIntegration(t *testing.T) {
	captures := []domain.Capture{
		{URL: "https://acme.example", HTML: pageWithSocial},
		{URL: "https://acme.example/about", HTML: pageWithoutSocial},
	}

	client := &scriptedClient{responses: []string{
		`{"score":55,"issues":[{"title":"No posting cadence visible","description":"d","impact":"i","recommendation":"r","severity":"low","difficulty":"medium","category":"activity"}],
		  "positives":["profiles exist"],"platformAssessments":[]}`,
	}}

	a := NewSocialAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	result := a.Analyze(context.Background(), Input{
		Target:    domain.Company{Name: "Acme"},
		TargetURL: "https://acme.example",
		Selection: &domain.PageSelection{SocialPages: []string{"https://acme.example", "https://acme.example/about"}},
		Captures:  captures,
		SocialProfiles: []ExternalProfile{
			{Platform: "facebook", URL: "https://facebook.com/acme", Followers: 1200},
		},
	})

	if result.Failed() {
		t.Fatalf("error: %s", result.Error)
	}
	if result.Score != 55 {
		t.Errorf("score = %d", result.Score)
	}

	var inconsistency bool
	for _, f := range result.Findings {
		if f.SourceType == "social-integration" {
			inconsistency = true
			if !strings.Contains(f.Description, "facebook") {
				t.Errorf("inconsistency description = %q", f.Description)
			}
		}
	}
	if !inconsistency {
		t.Error("expected inconsistent-integration finding")
	}

	// External profile data must reach the prompt (authoritative for counts).
	if len(client.requests) != 1 || !strings.Contains(client.requests[0].User, "followers: 1200") {
		t.Error("external profile data missing from prompt")
	}
}

func TestSocialAnalyzerErrorFallback(t *testing.T) {
	client := &scriptedClient{err: errors.New("down")}
	a := NewSocialAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	result := a.Analyze(context.Background(), Input{
		Target:    domain.Company{Name: "Acme"},
		TargetURL: "https://acme.example",
		Selection: &domain.PageSelection{SocialPages: []string{"https://acme.example"}},
		Captures:  []domain.Capture{{URL: "https://acme.example", HTML: pageWithoutSocial}},
	})

	if !result.Failed() {
		t.Fatal("expected error result")
	}
	if result.Score != FallbackScore(domain.ModuleSocial) {
		t.Errorf("fallback = %d, want %d", result.Score, FallbackScore(domain.ModuleSocial))
	}
}

const inaccessiblePage = `<html><head><title>x</title></head><body>
<h1>Top</h1><h4>Skipped</h4>
<img src="a.jpg"><img src="b.jpg">
<input type="text" name="q">
<div tabindex="5">x</div>
</body></html>`

func TestAccessibilityDeterministicSignals(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"score":48,"issues":[{"title":"Low color contrast likely","description":"d","impact":"i","recommendation":"r","severity":"medium","difficulty":"medium","category":"contrast","wcagCriterion":"1.4.3"}],"positives":[]}`,
	}}

	a := NewAccessibilityAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	result := a.Analyze(context.Background(), Input{
		Target:    domain.Company{Name: "Acme"},
		TargetURL: "https://acme.example",
		Captures:  []domain.Capture{{URL: "https://acme.example", HTML: inaccessiblePage}},
	})

	if result.Failed() {
		t.Fatalf("error: %s", result.Error)
	}
	if result.Score != 48 {
		t.Errorf("score = %d, want llm-interpreted 48", result.Score)
	}

	wcagRefs := make(map[string]bool)
	titles := make(map[string]bool)
	for _, f := range result.Findings {
		titles[f.Title] = true
		for _, ref := range f.EvidenceRefs {
			wcagRefs[ref] = true
		}
	}

	for _, want := range []string{
		"Images without text alternatives",
		"Form inputs without labels",
		"Heading levels skipped",
		"Missing language attribute",
		"Positive tabindex values in use",
		"No landmark regions",
	} {
		if !titles[want] {
			t.Errorf("missing deterministic finding %q", want)
		}
	}
	if !wcagRefs["wcag:1.1.1"] || !wcagRefs["wcag:2.4.3"] {
		t.Errorf("wcag refs = %v", wcagRefs)
	}
	if !titles["Low color contrast likely"] {
		t.Error("llm augmentation finding missing")
	}
}

func TestAccessibilityLLMFailureKeepsSignalScore(t *testing.T) {
	client := &scriptedClient{err: errors.New("down")}
	a := NewAccessibilityAnalyzer(client, prompts.NewCatalog("m"), zap.NewNop())
	result := a.Analyze(context.Background(), Input{
		Target:    domain.Company{Name: "Acme"},
		TargetURL: "https://acme.example",
		Captures:  []domain.Capture{{URL: "https://acme.example", HTML: inaccessiblePage}},
	})

	if len(result.Findings) == 0 {
		t.Fatal("deterministic findings must survive an LLM failure")
	}
	if result.Score <= 0 || result.Score >= 100 {
		t.Errorf("signal score = %d", result.Score)
	}
}
