package domain

import (
	"encoding/json"
	"testing"
)

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		severity Severity
		want     int
	}{
		{SeverityCritical, 4},
		{SeverityHigh, 3},
		{SeverityMedium, 2},
		{SeverityLow, 1},
		{Severity("bogus"), 0},
	}

	for _, tt := range tests {
		if got := tt.severity.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.severity, got, tt.want)
		}
	}
}

func TestFindingOrderKey(t *testing.T) {
	tests := []struct {
		name    string
		finding Finding
		want    int
	}{
		{"accessibility first", Finding{Module: ModuleAccessibility}, 0},
		{"performance second", Finding{Module: ModulePerformance}, 1},
		{"seo third", Finding{Module: ModuleSEO}, 2},
		{"visual mobile before desktop", Finding{Module: ModuleVisual, Viewport: ViewportMobile}, 3},
		{"visual desktop", Finding{Module: ModuleVisual, Viewport: ViewportDesktop}, 4},
		{"visual no viewport treated as desktop", Finding{Module: ModuleVisual}, 4},
		{"content", Finding{Module: ModuleContent}, 5},
		{"social last", Finding{Module: ModuleSocial}, 6},
		{"unknown module sorts after all", Finding{Module: Module("mystery")}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.finding.OrderKey(); got != tt.want {
				t.Errorf("OrderKey() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindingWireFormat(t *testing.T) {
	f := Finding{
		Module:         ModuleSEO,
		Category:       "meta",
		Title:          "Missing meta description",
		Description:    "The homepage has no meta description tag.",
		Impact:         "Search engines substitute arbitrary page text in results.",
		Recommendation: "Add a 150-160 character meta description.",
		Severity:       SeverityHigh,
		Priority:       PriorityHigh,
		Difficulty:     DifficultyQuickWin,
		AffectedPages:  []string{"https://example.com"},
		SourceModule:   ModuleSEO,
		SourceType:     "seo-meta",
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"module", "category", "title", "description", "impact", "recommendation", "severity", "priority", "difficulty", "source_module", "source_type"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("wire format missing key %q", key)
		}
	}
	if _, ok := decoded["viewport"]; ok {
		t.Error("empty viewport should be omitted")
	}
}

func TestModuleResultFailed(t *testing.T) {
	ok := ModuleResult{Module: ModuleSEO, Score: 70}
	if ok.Failed() {
		t.Error("result without error reported as failed")
	}

	bad := ModuleResult{Module: ModuleSEO, Score: 30, Error: "llm call failed"}
	if !bad.Failed() {
		t.Error("result with error not reported as failed")
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 100, OutputTokens: 50}
	u.Add(Usage{InputTokens: 10, OutputTokens: 5})
	if u.InputTokens != 110 || u.OutputTokens != 55 {
		t.Errorf("Add() = %+v, want 110/55", u)
	}
}
