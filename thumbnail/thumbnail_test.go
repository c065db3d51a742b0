package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/filegate/errs"
	"github.com/ValentinKolb/filegate/ownership"
	"github.com/ValentinKolb/filegate/pathgate"
)

func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 40, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestThumb(t *testing.T, base string) *Service {
	t.Helper()
	return New(pathgate.New([]string{base}, ownership.NewApplier(nil, nil)))
}

func TestParamsNormalize(t *testing.T) {
	p := &Params{}
	require.NoError(t, p.Normalize())
	assert.Equal(t, 200, p.Width)
	assert.Equal(t, 200, p.Height)
	assert.Equal(t, "cover", p.Fit)
	assert.Equal(t, "center", p.Position)
	assert.Equal(t, "webp", p.Format)
	assert.Equal(t, 80, p.Quality)

	for _, bad := range []*Params{
		{Width: 5000},
		{Fit: "stretch"},
		{Position: "corner"},
		{Format: "bmp"},
		{Quality: 101},
	} {
		assert.Error(t, bad.Normalize())
	}
}

func TestRenderPNG(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "img.png")
	writeTestImage(t, src, 400, 300)
	svc := newTestThumb(t, base)

	res, err := svc.Render(context.Background(), src, &Params{Width: 100, Height: 100, Format: "png"}, "", "")
	require.NoError(t, err)
	require.False(t, res.NotModified)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Len(t, res.ETag, 16)

	img, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestRenderContainKeepsAspect(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "img.png")
	writeTestImage(t, src, 400, 200)
	svc := newTestThumb(t, base)

	res, err := svc.Render(context.Background(), src, &Params{Width: 100, Height: 100, Fit: "contain", Format: "png"}, "", "")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestRenderETagAndConditional(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "img.png")
	writeTestImage(t, src, 50, 50)
	svc := newTestThumb(t, base)
	p := &Params{Width: 10, Height: 10, Format: "png"}

	res, err := svc.Render(context.Background(), src, p, "", "")
	require.NoError(t, err)

	again, err := svc.Render(context.Background(), src, &Params{Width: 10, Height: 10, Format: "png"}, res.ETag, "")
	require.NoError(t, err)
	assert.True(t, again.NotModified)
	assert.Equal(t, res.ETag, again.ETag)

	since := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	byTime, err := svc.Render(context.Background(), src, &Params{Width: 10, Height: 10, Format: "png"}, "", since)
	require.NoError(t, err)
	assert.True(t, byTime.NotModified)

	// different params produce a different tag
	other, err := svc.Render(context.Background(), src, &Params{Width: 20, Height: 20, Format: "png"}, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, res.ETag, other.ETag)
}

func TestRenderErrors(t *testing.T) {
	base := t.TempDir()
	svc := newTestThumb(t, base)
	ctx := context.Background()
	p := &Params{Format: "png"}

	_, err := svc.Render(ctx, filepath.Join(base, "missing.png"), p, "", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errs.CodeOf(err))

	notImage := filepath.Join(base, "plain.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("not an image"), 0o644))
	_, err = svc.Render(ctx, notImage, &Params{Format: "png"}, "", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errs.CodeOf(err))

	_, err = svc.Render(ctx, "/outside/img.png", &Params{Format: "png"}, "", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, errs.CodeOf(err))
}
