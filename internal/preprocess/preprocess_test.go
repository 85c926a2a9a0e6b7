package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosocmputer/invoice-vision-pipeline/internal/apperr"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessRejectsEmptyInput(t *testing.T) {
	p := New(Options{}, 0, nil)
	_, err := p.Process(nil, "image/png")
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInputRejected, appErr.Kind)
}

func TestProcessRejectsUnsupportedMime(t *testing.T) {
	p := New(Options{}, 0, nil)
	_, err := p.Process([]byte("hello"), "text/plain")
	require.Error(t, err)
}

func TestProcessRejectsPDFWithoutRasterizer(t *testing.T) {
	p := New(Options{}, 0, nil)
	_, err := p.Process([]byte("%PDF-1.4"), "application/pdf")
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInputRejected, appErr.Kind)
}

func TestProcessPassesThroughImageWithoutEnhancement(t *testing.T) {
	p := New(Options{Enable: false}, 0, nil)
	pages, err := p.Process(samplePNG(t, 10, 10), "image/png")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Index)
	assert.Equal(t, "image/png", pages[0].MimeType)
	assert.Equal(t, 10, pages[0].Width)
}

func TestProcessEnhancesAndResizesToMaxDimension(t *testing.T) {
	p := New(Options{Enable: true, MaxDimension: 20, Greyscale: true, Contrast: true}, 0, nil)
	pages, err := p.Process(samplePNG(t, 100, 40), "image/png")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.LessOrEqual(t, pages[0].Width, 20)
}

type fakeRasterizer struct {
	images []image.Image
	err    error
}

func (f *fakeRasterizer) Rasterize(pdf []byte, dpi int) ([]image.Image, error) {
	return f.images, f.err
}

func TestProcessPDFWithRasterizerPreservesPageOrder(t *testing.T) {
	img1 := image.NewRGBA(image.Rect(0, 0, 5, 5))
	img2 := image.NewRGBA(image.Rect(0, 0, 5, 5))
	p := New(Options{Enable: false}, 150, &fakeRasterizer{images: []image.Image{img1, img2}})

	pages, err := p.Process([]byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 0, pages[0].Index)
	assert.Equal(t, 1, pages[1].Index)
}

func TestMeasureQualityRangeIsBounded(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	q := measureQuality(img)
	assert.GreaterOrEqual(t, q, 0.0)
	assert.LessOrEqual(t, q, 100.0)
}
