package analyzers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/llm"
	"github.com/sitegrader/sitegrader/internal/prompts"
	"github.com/sitegrader/sitegrader/internal/services/capture"
)

// scriptedClient returns queued JSON responses in call order.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llm.Request
}

func (c *scriptedClient) Call(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return c.CallJSON(ctx, req, &map[string]any{})
}

func (c *scriptedClient) CallJSON(ctx context.Context, req llm.Request, out any) (*llm.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("%w: script exhausted", llm.ErrInvalidResponse)
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]

	if err := json.Unmarshal([]byte(resp), out); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidResponse, err)
	}
	return &llm.Result{Content: resp, Usage: domain.Usage{InputTokens: 100, OutputTokens: 50}, Cost: 0.01}, nil
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// testCapture builds a successful capture with on-disk screenshots.
func testCapture(t *testing.T, dir, url, slug, html string) domain.Capture {
	t.Helper()
	desktop := filepath.Join(dir, slug+"-desktop.png")
	mobile := filepath.Join(dir, slug+"-mobile.png")
	writePNG(t, desktop, 40, 60)
	writePNG(t, mobile, 20, 40)

	return domain.Capture{
		URL:        url,
		FinalURL:   url,
		HTTPStatus: 200,
		Title:      slug,
		HTML:       html,
		Screenshots: domain.ScreenshotSet{
			Desktop: desktop,
			Mobile:  mobile,
		},
		Tokens: map[domain.Viewport]domain.DesignTokens{
			domain.ViewportDesktop: {Fonts: []string{"Inter"}, Colors: []string{"#111"}},
		},
	}
}

func visualJSON(desktop, mobile, responsive int, issueTitle string) string {
	issues := "[]"
	if issueTitle != "" {
		issues = fmt.Sprintf(`[{"title":%q,"description":"d","impact":"i","recommendation":"r","severity":"high","difficulty":"quick-win","category":"layout"}]`, issueTitle)
	}
	return fmt.Sprintf(`{"desktopScore":%d,"mobileScore":%d,"responsiveScore":%d,
		"desktopIssues":%s,"mobileIssues":[],"responsiveIssues":[],"sharedIssues":[],
		"positives":["clean hero"]}`, desktop, mobile, responsive, issues)
}

func visualInput(t *testing.T, dir string, captures []domain.Capture, crossPage bool) Input {
	urls := make([]string, len(captures))
	for i, c := range captures {
		urls[i] = c.URL
	}
	input := Input{
		Target:    domain.Company{Name: "Acme", Industry: "tools"},
		TargetURL: urls[0],
		Selection: &domain.PageSelection{VisualPages: urls, Strategy: domain.StrategyFallback},
		Captures:  captures,
		Options:   domain.RunOptions{EnableCrossPageContext: crossPage},
		RunDir:    dir,
	}
	if crossPage {
		input.CrossPage = NewCrossPageBuilder()
	}
	return input
}

func newVisual(client llm.Client) *VisualAnalyzer {
	return NewVisualAnalyzer(client, prompts.NewCatalog("m"),
		capture.NewPostProcessor(capture.DefaultPostProcessorConfig()), "vision-m", zap.NewNop())
}

func TestVisualAnalyzerAggregatesPages(t *testing.T) {
	dir := t.TempDir()
	captures := []domain.Capture{
		testCapture(t, dir, "https://acme.example", "home", "<html></html>"),
		testCapture(t, dir, "https://acme.example/services", "services", "<html></html>"),
	}

	client := &scriptedClient{responses: []string{
		visualJSON(80, 70, 90, "Low-contrast CTA"),
		visualJSON(80, 70, 90, ""),
	}}

	result := newVisual(client).Analyze(context.Background(), visualInput(t, dir, captures, false))

	if result.Failed() {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	// Composite per page: 0.4*80 + 0.4*70 + 0.2*90 = 78.
	if result.Score != 78 {
		t.Errorf("score = %d, want 78", result.Score)
	}
	if result.SubScores["desktop"] != 80 || result.SubScores["mobile"] != 70 || result.SubScores["responsive"] != 90 {
		t.Errorf("sub scores = %v", result.SubScores)
	}

	found := false
	for _, f := range result.Findings {
		if f.Title == "Low-contrast CTA" {
			found = true
			if len(f.AffectedPages) != 1 {
				t.Errorf("issue not tagged with its page: %v", f.AffectedPages)
			}
			if f.Viewport != domain.ViewportDesktop {
				t.Errorf("viewport = %s", f.Viewport)
			}
			if len(f.EvidenceRefs) == 0 {
				t.Error("issue missing evidence refs")
			}
		}
		if f.Title == "Inconsistent UX quality across pages" {
			t.Error("consistency finding must not fire with only 2 pages")
		}
	}
	if !found {
		t.Error("page issue missing from module result")
	}
	if len(result.Positives) != 2 {
		t.Errorf("positives = %v", result.Positives)
	}
}

func TestVisualAnalyzerConsistencyFinding(t *testing.T) {
	dir := t.TempDir()
	captures := []domain.Capture{
		testCapture(t, dir, "https://a.example", "home", ""),
		testCapture(t, dir, "https://a.example/b", "b", ""),
		testCapture(t, dir, "https://a.example/c", "c", ""),
	}

	// Wildly varying page quality: composites 90, 90, 30.
	client := &scriptedClient{responses: []string{
		visualJSON(90, 90, 90, ""),
		visualJSON(90, 90, 90, ""),
		visualJSON(30, 30, 30, ""),
	}}

	result := newVisual(client).Analyze(context.Background(), visualInput(t, dir, captures, true))

	var gotConsistency bool
	for _, f := range result.Findings {
		if f.SourceType == "visual-consistency" {
			gotConsistency = true
			if len(f.AffectedPages) != 3 {
				t.Errorf("consistency finding pages = %v", f.AffectedPages)
			}
		}
	}
	if !gotConsistency {
		t.Error("expected inconsistent-UX finding for high score variance across 3 pages")
	}
}

func TestVisualAnalyzerResponsiveFinding(t *testing.T) {
	dir := t.TempDir()
	captures := []domain.Capture{testCapture(t, dir, "https://a.example", "home", "")}
	client := &scriptedClient{responses: []string{visualJSON(85, 80, 40, "")}}

	result := newVisual(client).Analyze(context.Background(), visualInput(t, dir, captures, false))

	var got bool
	for _, f := range result.Findings {
		if f.SourceType == "visual-responsive" {
			got = true
		}
	}
	if !got {
		t.Error("expected poor-responsive finding for responsive mean below 60")
	}
}

func TestVisualAnalyzerSequentialSeedsCrossPageContext(t *testing.T) {
	dir := t.TempDir()
	captures := []domain.Capture{
		testCapture(t, dir, "https://a.example", "home", ""),
		testCapture(t, dir, "https://a.example/about", "about", ""),
	}

	client := &scriptedClient{responses: []string{
		visualJSON(80, 80, 80, "Cluttered navigation"),
		visualJSON(80, 80, 80, ""),
	}}

	input := visualInput(t, dir, captures, true)
	result := newVisual(client).Analyze(context.Background(), input)
	if result.Failed() {
		t.Fatalf("error: %s", result.Error)
	}

	if input.CrossPage.PageCount() != 2 {
		t.Errorf("cross-page entries = %d, want 2", input.CrossPage.PageCount())
	}

	// The second call must use the context-aware variant carrying page 1's
	// finding.
	if len(client.requests) != 2 {
		t.Fatalf("llm calls = %d", len(client.requests))
	}
	second := client.requests[1].System
	if !contains(second, "Cluttered navigation") {
		t.Error("second page's prompt missing the first page's findings")
	}
}

func TestVisualAnalyzerInvalidScoresIsolated(t *testing.T) {
	dir := t.TempDir()
	captures := []domain.Capture{testCapture(t, dir, "https://a.example", "home", "")}
	client := &scriptedClient{responses: []string{visualJSON(140, 80, 80, "")}}

	result := newVisual(client).Analyze(context.Background(), visualInput(t, dir, captures, false))

	if !result.Failed() {
		t.Fatal("out-of-range score must fail the module")
	}
	if result.Score != FallbackScore(domain.ModuleVisual) {
		t.Errorf("fallback score = %d", result.Score)
	}
	if len(result.Findings) != 1 || result.Findings[0].SourceType != "analysis-error" {
		t.Errorf("expected one self-describing error finding, got %v", result.Findings)
	}
}

func contains(s, sub string) bool {
	return bytes.Contains([]byte(s), []byte(sub))
}
