package analyzers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
)

func pagespeedServer(t *testing.T, mobileScore, desktopScore float64, lcpMS, cls float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runPagespeed" {
			http.NotFound(w, r)
			return
		}
		score := desktopScore
		if r.URL.Query().Get("strategy") == "mobile" {
			score = mobileScore
		}
		fmt.Fprintf(w, `{
			"lighthouseResult": {
				"categories": {"performance": {"score": %f}},
				"audits": {
					"largest-contentful-paint": {"numericValue": %f},
					"cumulative-layout-shift": {"numericValue": %f},
					"interaction-to-next-paint": {"numericValue": 150},
					"first-contentful-paint": {"numericValue": 1200},
					"server-response-time": {"numericValue": 300}
				}
			}
		}`, score, lcpMS, cls)
	}))
}

func TestPerformanceAnalyzer(t *testing.T) {
	server := pagespeedServer(t, 0.42, 0.88, 4200, 0.25)
	defer server.Close()

	a := NewPerformanceAnalyzer(PageSpeedConfig{BaseURL: server.URL}, zap.NewNop())
	result := a.Analyze(context.Background(), Input{TargetURL: "https://acme.example"})

	if result.Failed() {
		t.Fatalf("error: %s", result.Error)
	}
	if result.Score != 65 {
		t.Errorf("score = %d, want mean of 42 and 88 = 65", result.Score)
	}
	if result.SubScores["mobile"] != 42 || result.SubScores["desktop"] != 88 {
		t.Errorf("sub scores = %v", result.SubScores)
	}

	var lcpMobile, lcpDesktop, clsAny bool
	for _, f := range result.Findings {
		switch {
		case f.Category == "lcp" && f.Viewport == domain.ViewportMobile:
			lcpMobile = true
			if f.Severity != domain.SeverityHigh {
				t.Errorf("lcp 4.2s should be high severity, got %s", f.Severity)
			}
		case f.Category == "lcp" && f.Viewport == domain.ViewportDesktop:
			lcpDesktop = true
		case f.Category == "cls":
			clsAny = true
		case f.Category == "inp":
			t.Error("inp of 150ms is under the good threshold; no finding expected")
		}
	}
	if !lcpMobile || !lcpDesktop || !clsAny {
		t.Errorf("expected LCP findings on both strategies and a CLS finding: %v/%v/%v", lcpMobile, lcpDesktop, clsAny)
	}
}

func TestPerformanceAnalyzerPartialFailure(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("strategy") == "mobile" {
			http.Error(w, "quota", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"lighthouseResult":{"categories":{"performance":{"score":0.9}},"audits":{}}}`)
	}))
	defer server.Close()

	a := NewPerformanceAnalyzer(PageSpeedConfig{BaseURL: server.URL}, zap.NewNop())
	result := a.Analyze(context.Background(), Input{TargetURL: "https://acme.example"})

	if result.Failed() {
		t.Fatalf("one working strategy should still produce a result: %s", result.Error)
	}
	if result.Score != 90 {
		t.Errorf("score = %d", result.Score)
	}
}

func TestPerformanceAnalyzerTotalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a := NewPerformanceAnalyzer(PageSpeedConfig{BaseURL: server.URL}, zap.NewNop())
	result := a.Analyze(context.Background(), Input{TargetURL: "https://acme.example"})

	if !result.Failed() {
		t.Fatal("expected error result")
	}
	if result.Score != FallbackScore(domain.ModulePerformance) {
		t.Errorf("fallback = %d", result.Score)
	}
}
