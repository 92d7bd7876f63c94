package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// writeTestPNG persists a width x height gradient image and returns its path.
func writeTestPNG(t *testing.T, dir string, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessPassesSmallImageThrough(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 100, 200)

	p := NewPostProcessor(DefaultPostProcessorConfig())
	sections, err := p.Process(path, dir, "home", domain.ViewportDesktop)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(sections))
	}
	if sections[0].MediaType != "image/png" {
		t.Errorf("media type = %s", sections[0].MediaType)
	}
	if sections[0].Label != "" {
		t.Errorf("small image should be unlabelled, got %q", sections[0].Label)
	}
}

func TestProcessSplitsTallImage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 60, 1000)

	p := NewPostProcessor(PostProcessorConfig{
		MaxBytes:      1, // force past the fast path
		MaxHeight:     400,
		JPEGQualities: []int{85},
	})

	sections, err := p.Process(path, dir, "home", domain.ViewportMobile)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(sections))
	}

	wantLabels := []string{"TOP", "MIDDLE", "BOTTOM"}
	totalHeight := 0
	for i, s := range sections {
		if s.Label != wantLabels[i] {
			t.Errorf("label[%d] = %q, want %q", i, s.Label, wantLabels[i])
		}
		if s.Path == "" {
			t.Errorf("section %d missing persisted path", i)
		}
		if _, err := os.Stat(s.Path); err != nil {
			t.Errorf("section %d not on disk: %v", i, err)
		}

		img, err := png.Decode(bytes.NewReader(s.Data))
		if err != nil {
			t.Fatalf("section %d decode: %v", i, err)
		}
		totalHeight += img.Bounds().Dy()
		if img.Bounds().Dy() > 400 {
			t.Errorf("section %d height %d exceeds cap", i, img.Bounds().Dy())
		}
	}
	if totalHeight != 1000 {
		t.Errorf("sections cover %d rows, want 1000", totalHeight)
	}
}

func TestProcessRecompressesHeavyImage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 500, 500)

	info, _ := os.Stat(path)
	p := NewPostProcessor(PostProcessorConfig{
		MaxBytes:      int(info.Size()) - 1,
		MaxHeight:     10000,
		JPEGQualities: []int{85, 40},
	})

	sections, err := p.Process(path, dir, "home", domain.ViewportDesktop)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(sections))
	}
	if sections[0].MediaType != "image/jpeg" {
		t.Errorf("media type = %s, want jpeg after recompression", sections[0].MediaType)
	}
}

func TestSectionLabel(t *testing.T) {
	tests := []struct {
		i, count int
		want     string
	}{
		{0, 1, "FULL"},
		{0, 2, "TOP"},
		{1, 2, "BOTTOM"},
		{1, 3, "MIDDLE"},
		{2, 3, "BOTTOM"},
		{1, 5, "MIDDLE 1"},
		{3, 5, "MIDDLE 3"},
		{4, 5, "BOTTOM"},
	}
	for _, tt := range tests {
		if got := SectionLabel(tt.i, tt.count); got != tt.want {
			t.Errorf("SectionLabel(%d,%d) = %q, want %q", tt.i, tt.count, got, tt.want)
		}
	}
}

func TestPageSlug(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com", "home"},
		{"https://example.com/", "home"},
		{"https://example.com/about", "about"},
		{"https://example.com/blog/2026/My-Post", "blog-2026-my-post"},
		{"https://example.com/a//b", "a-b"},
	}
	for _, tt := range tests {
		if got := PageSlug(tt.url); got != tt.want {
			t.Errorf("PageSlug(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParseTokens(t *testing.T) {
	raw := map[string]any{
		"fonts":  []any{"Inter, sans-serif", "Georgia, serif", "Courier"},
		"colors": []any{"rgb(0, 0, 0)", "rgb(255, 255, 255)"},
	}

	tokens := parseTokens(raw, 2)
	if len(tokens.Fonts) != 2 {
		t.Errorf("fonts = %v, want top 2", tokens.Fonts)
	}
	if len(tokens.Colors) != 2 {
		t.Errorf("colors = %v", tokens.Colors)
	}

	empty := parseTokens("not a map", 5)
	if len(empty.Fonts) != 0 || len(empty.Colors) != 0 {
		t.Error("malformed input should yield empty tokens")
	}
}
