package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestRecorderWritesNumberedArtifacts(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(true, dir, zap.NewNop())
	if r == nil {
		t.Fatal("recorder should be enabled")
	}

	r.RecordText("analysis", "prompt", "system prompt text")
	r.RecordJSON("analysis", "parsed", map[string]int{"score": 70})

	entries, err := os.ReadDir(filepath.Join(dir, "debug"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("artifacts = %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "01-analysis-prompt") {
		t.Errorf("first artifact = %s", entries[0].Name())
	}
	if !strings.HasSuffix(entries[1].Name(), ".json") {
		t.Errorf("second artifact = %s", entries[1].Name())
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.RecordText("x", "y", "z") // must not panic
	r.RecordJSON("x", "y", 1)
	if r.Dir() != "" {
		t.Error("nil recorder dir should be empty")
	}
}

func TestDisabledRecorder(t *testing.T) {
	if r := NewRecorder(false, t.TempDir(), zap.NewNop()); r != nil {
		t.Error("disabled recorder should be nil")
	}
}
