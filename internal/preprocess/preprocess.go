// Package preprocess converts an uploaded artifact into an ordered
// sequence of page images suitable for vision input: a configurable,
// quality-adaptive enhancement pipeline, extended to accept PDF input
// via a pluggable Rasterizer.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
)

// Page is one normalized page image ready for the vision client.
type Page struct {
	Index     int // 0-based source page index, order-preserving
	Data      []byte
	MimeType  string
	Width     int
	Height    int
}

// Options configure the preprocessor; all fields are optional and
// default sensibly.
type Options struct {
	Enable       bool
	MaxDimension int
	Greyscale    bool
	Deskew       bool
	Contrast     bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Enable:       true,
		MaxDimension: 2000,
		Greyscale:    true,
		Deskew:       false,
		Contrast:     true,
	}
}

// Rasterizer turns a PDF byte stream into one raster image per page.
// It is left as an injectable seam — Process returns InputRejected
// for PDF input when no Rasterizer is configured, rather than
// silently dropping the format.
type Rasterizer interface {
	Rasterize(pdf []byte, dpi int) ([]image.Image, error)
}

// Preprocessor preserves page order, never silently drops pages, and
// fails totally on rejection.
type Preprocessor struct {
	opts Options
	dpi  int
	raster Rasterizer
}

func New(opts Options, dpi int, raster Rasterizer) *Preprocessor {
	return &Preprocessor{opts: opts, dpi: dpi, raster: raster}
}

const maxSupportedBytes = 50 * 1024 * 1024

// Process normalizes an uploaded artifact into ordered page images.
// mime must be one of "application/pdf", "image/jpeg", "image/png".
func (p *Preprocessor) Process(data []byte, mime string) ([]Page, error) {
	if len(data) == 0 {
		return nil, apperr.InputRejected("empty artifact")
	}
	if int64(len(data)) > maxSupportedBytes {
		return nil, apperr.InputRejected("artifact exceeds maximum supported size")
	}

	switch {
	case mime == "application/pdf":
		return p.processPDF(data)
	case strings.HasPrefix(mime, "image/"):
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, apperr.InputRejected(fmt.Sprintf("unreadable image: %v", err))
		}
		page, err := p.normalizePage(0, img)
		if err != nil {
			return nil, apperr.InputRejected(fmt.Sprintf("failed to normalize page: %v", err))
		}
		return []Page{page}, nil
	default:
		return nil, apperr.InputRejected(fmt.Sprintf("unsupported mime type %q", mime))
	}
}

func (p *Preprocessor) processPDF(data []byte) ([]Page, error) {
	if p.raster == nil {
		return nil, apperr.InputRejected("PDF rasterization is not configured on this deployment")
	}
	images, err := p.raster.Rasterize(data, p.dpi)
	if err != nil {
		return nil, apperr.InputRejected(fmt.Sprintf("PDF rasterization failed: %v", err))
	}
	if len(images) == 0 {
		return nil, apperr.InputRejected("PDF produced no pages")
	}
	pages := make([]Page, 0, len(images))
	for i, img := range images {
		page, err := p.normalizePage(i, img)
		if err != nil {
			// Failure is total, not partial.
			return nil, apperr.InputRejected(fmt.Sprintf("failed to normalize page %d: %v", i, err))
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (p *Preprocessor) normalizePage(index int, img image.Image) (Page, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if p.opts.Enable {
		img = p.enhance(img)
		bounds = img.Bounds()
		width, height = bounds.Dx(), bounds.Dy()
	}

	data, mimeType, err := encode(img)
	if err != nil {
		return Page{}, err
	}
	return Page{Index: index, Data: data, MimeType: mimeType, Width: width, Height: height}, nil
}

// enhance applies a quality-adaptive pipeline: resize to the
// configured bound, then scale sharpen/contrast/gamma strength to the
// measured quality score.
func (p *Preprocessor) enhance(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if max := p.opts.MaxDimension; max > 0 && (width > max || height > max) {
		if width > height {
			img = imaging.Resize(img, max, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, max, imaging.Lanczos)
		}
	}

	quality := measureQuality(img)
	switch {
	case quality < 50:
		img = imaging.Sharpen(img, 4.0)
		img = imaging.AdjustContrast(img, 60)
		img = imaging.AdjustBrightness(img, 25)
	case quality < 75:
		img = imaging.Sharpen(img, 3.0)
		img = imaging.AdjustContrast(img, 45)
		img = imaging.AdjustBrightness(img, 15)
	default:
		img = imaging.Sharpen(img, 2.0)
		img = imaging.AdjustContrast(img, 30)
	}

	if p.opts.Greyscale {
		img = imaging.Grayscale(img)
		if p.opts.Contrast {
			img = imaging.AdjustContrast(img, 25)
			img = imaging.AdjustGamma(img, 1.1)
		}
	}

	if p.opts.Deskew {
		img = deskew(img)
	}

	return img
}

// measureQuality scores 0-100 from sampled brightness/contrast.
func measureQuality(img image.Image) float64 {
	bounds := img.Bounds()
	var total, min, max float64
	min = 255
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0
			total += brightness
			if brightness < min {
				min = brightness
			}
			if brightness > max {
				max = brightness
			}
			count++
		}
	}
	if count == 0 {
		return 100
	}
	avg := total / float64(count)
	contrast := max - min

	brightnessScore := 100.0 - math.Abs(avg-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)
	return brightnessScore*0.4 + contrastScore*0.6
}

// deskew is a placeholder hook: none of the example repos carry a
// deskew implementation, so it is a no-op unless/until a rotation
// estimator is wired in. Kept as an explicit, named step rather than
// removed, since SPEC_FULL names deskew as a configurable enhancement.
func deskew(img image.Image) image.Image {
	return img
}

func encode(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, "", fmt.Errorf("failed to encode page image: %w", err)
	}
	return buf.Bytes(), "image/png", nil
}
