// Package debug captures per-run artifacts (prompts, raw responses, parsed
// intermediates) when debug mode is on. The recorder is an explicit component
// owned by the run, never a global.
package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Recorder writes numbered artifact files under {run-dir}/debug. A nil
// Recorder is valid and records nothing, so call sites need no guards.
type Recorder struct {
	dir    string
	logger *zap.Logger

	mu  sync.Mutex
	seq int
}

// NewRecorder creates a Recorder rooted at runDir, or nil when disabled.
func NewRecorder(enabled bool, runDir string, logger *zap.Logger) *Recorder {
	if !enabled {
		return nil
	}
	dir := filepath.Join(runDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("debug dir creation failed, debug recording disabled", zap.Error(err))
		return nil
	}
	return &Recorder{dir: dir, logger: logger}
}

// RecordText writes a text artifact: {NN}-{stage}-{kind}.txt.
func (r *Recorder) RecordText(stage, kind, content string) {
	if r == nil {
		return
	}
	r.write(stage, kind, "txt", []byte(content))
}

// RecordJSON writes a JSON artifact: {NN}-{stage}-{kind}.json.
func (r *Recorder) RecordJSON(stage, kind string, value any) {
	if r == nil {
		return
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		r.logger.Warn("debug artifact marshal failed", zap.String("stage", stage), zap.Error(err))
		return
	}
	r.write(stage, kind, "json", data)
}

// Dir returns the debug directory, empty when disabled.
func (r *Recorder) Dir() string {
	if r == nil {
		return ""
	}
	return r.dir
}

func (r *Recorder) write(stage, kind, ext string, data []byte) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	name := fmt.Sprintf("%02d-%s-%s.%s", seq, stage, kind, ext)
	if err := os.WriteFile(filepath.Join(r.dir, name), data, 0o644); err != nil {
		r.logger.Warn("debug artifact write failed", zap.String("file", name), zap.Error(err))
	}
}
