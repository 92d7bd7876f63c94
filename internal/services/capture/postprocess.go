package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/sitegrader/sitegrader/internal/domain"
)

// Section is one unit of post-processed screenshot handed to a vision call.
// A screenshot that fits the model limits yields a single unlabelled section;
// an oversize one yields an ordered labelled list.
type Section struct {
	Label     string
	MediaType string
	Data      []byte

	// Path is the file the section came from: the original screenshot, or for
	// split sections the section file persisted under the run's sections dir;
	// it doubles as the finding evidence ref.
	Path string
}

// PostProcessorConfig carries the vision model's per-image limits.
type PostProcessorConfig struct {
	// MaxBytes is the size threshold above which an image is recompressed
	// or split.
	MaxBytes int

	// MaxHeight is the tallest image the model accepts; taller screenshots
	// are split into equal labelled sections.
	MaxHeight int

	// JPEGQualities are tried in order when recompressing.
	JPEGQualities []int
}

// DefaultPostProcessorConfig matches the Claude vision limits.
func DefaultPostProcessorConfig() PostProcessorConfig {
	return PostProcessorConfig{
		MaxBytes:      5 * 1024 * 1024,
		MaxHeight:     7900,
		JPEGQualities: []int{85, 70, 55, 40},
	}
}

// PostProcessor prepares screenshots for vision calls.
type PostProcessor struct {
	config PostProcessorConfig
}

// NewPostProcessor creates a PostProcessor.
func NewPostProcessor(config PostProcessorConfig) *PostProcessor {
	if config.MaxBytes == 0 {
		config = DefaultPostProcessorConfig()
	}
	return &PostProcessor{config: config}
}

// Process loads a persisted screenshot and returns the ordered section list
// for a vision call. Small images pass through untouched; tall images are
// split; merely heavy images are recompressed.
func (p *PostProcessor) Process(screenshotPath, runDir, slug string, viewport domain.Viewport) ([]Section, error) {
	data, err := os.ReadFile(screenshotPath)
	if err != nil {
		return nil, fmt.Errorf("reading screenshot: %w", err)
	}

	if len(data) <= p.config.MaxBytes {
		img, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding screenshot config: %w", err)
		}
		if img.Height <= p.config.MaxHeight {
			return []Section{{MediaType: "image/png", Data: data, Path: screenshotPath}}, nil
		}
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dy() > p.config.MaxHeight {
		return p.split(img, runDir, slug, viewport)
	}

	compressed, err := p.recompress(img)
	if err != nil {
		return nil, err
	}
	return []Section{{MediaType: "image/jpeg", Data: compressed, Path: screenshotPath}}, nil
}

// subImager is satisfied by the stdlib image types returned by png.Decode.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// split cuts a tall image into equal labelled sections and persists each one
// under {run-dir}/sections.
func (p *PostProcessor) split(img image.Image, runDir, slug string, viewport domain.Viewport) ([]Section, error) {
	src, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("screenshot image type %T does not support cropping", img)
	}

	bounds := img.Bounds()
	height := bounds.Dy()
	count := (height + p.config.MaxHeight - 1) / p.config.MaxHeight
	sectionHeight := (height + count - 1) / count

	sectionsDir := filepath.Join(runDir, "sections")
	if err := os.MkdirAll(sectionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sections dir: %w", err)
	}

	sections := make([]Section, 0, count)
	for i := 0; i < count; i++ {
		top := bounds.Min.Y + i*sectionHeight
		bottom := top + sectionHeight
		if bottom > bounds.Max.Y {
			bottom = bounds.Max.Y
		}

		cropped := src.SubImage(image.Rect(bounds.Min.X, top, bounds.Max.X, bottom))

		var buf bytes.Buffer
		if err := png.Encode(&buf, cropped); err != nil {
			return nil, fmt.Errorf("encoding section %d: %w", i+1, err)
		}

		label := SectionLabel(i, count)
		path := filepath.Join(sectionsDir, fmt.Sprintf("%s-screenshot-%d-%s-%s.png",
			slug, i+1, viewport, strings.ToLower(strings.ReplaceAll(label, " ", "-"))))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return nil, fmt.Errorf("persisting section %d: %w", i+1, err)
		}

		sections = append(sections, Section{
			Label:     label,
			MediaType: "image/png",
			Data:      buf.Bytes(),
			Path:      path,
		})
	}

	return sections, nil
}

// recompress re-encodes as JPEG, stepping down quality until the image fits
// the size threshold. The last quality step is returned even if still over.
func (p *PostProcessor) recompress(img image.Image) ([]byte, error) {
	var out []byte
	for _, quality := range p.config.JPEGQualities {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode at q%d: %w", quality, err)
		}
		out = buf.Bytes()
		if len(out) <= p.config.MaxBytes {
			return out, nil
		}
	}
	return out, nil
}

// SectionLabel names the i-th of count sections: TOP, MIDDLE (numbered when
// several), BOTTOM.
func SectionLabel(i, count int) string {
	switch {
	case count == 1:
		return "FULL"
	case i == 0:
		return "TOP"
	case i == count-1:
		return "BOTTOM"
	case count == 3:
		return "MIDDLE"
	default:
		return fmt.Sprintf("MIDDLE %d", i)
	}
}
