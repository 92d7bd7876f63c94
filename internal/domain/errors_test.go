package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuditErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrCaptureFailure("https://example.com/about", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	var ae *AuditError
	if !errors.As(err, &ae) {
		t.Fatal("expected errors.As to extract AuditError")
	}
	if ae.Code != ErrCodeCaptureFailure {
		t.Errorf("code = %s, want %s", ae.Code, ErrCodeCaptureFailure)
	}
	if ae.Stage != StageCapture {
		t.Errorf("stage = %s, want %s", ae.Stage, StageCapture)
	}
}

func TestAuditErrorIsComparesByCode(t *testing.T) {
	a := ErrDiscoveryEmpty("https://a.example")
	b := ErrDiscoveryEmpty("https://b.example")
	if !errors.Is(a, b) {
		t.Error("same-code errors should match with errors.Is")
	}
	if errors.Is(a, ErrAllAnalyzersFailed()) {
		t.Error("different-code errors should not match")
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		err   *AuditError
		fatal bool
	}{
		{ErrInput("empty company name"), true},
		{ErrDiscoveryEmpty("x"), true},
		{ErrAllCapturesFailed(3), true},
		{ErrAllAnalyzersFailed(), true},
		{ErrCancelled(), true},
		{ErrInvariant("selection references undiscovered URL"), true},
		{ErrCaptureFailure("x", nil), false},
		{ErrAnalyzer(ModuleSEO, nil), false},
		{ErrBenchmarkUnavailable(nil), false},
		{ErrSynthesisTimeout(nil), false},
	}

	for _, tt := range tests {
		if got := tt.err.Fatal(); got != tt.fatal {
			t.Errorf("Fatal(%s) = %v, want %v", tt.err.Code, got, tt.fatal)
		}
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(ErrAnalyzer(ModuleVisual, nil)); got != ErrCodeAnalyzer {
		t.Errorf("ErrorCode = %s, want %s", got, ErrCodeAnalyzer)
	}
	if got := ErrorCode(fmt.Errorf("plain")); got != ErrCodeInvariant {
		t.Errorf("ErrorCode(plain) = %s, want %s", got, ErrCodeInvariant)
	}
}
