package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func makeSolidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func mustEncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	return img
}

func TestThumbnail_ResizesWideImage(t *testing.T) {
	data := mustEncodePNG(t, makeSolidNRGBA(1200, 800, color.NRGBA{R: 20, G: 50, B: 200, A: 255}))

	out, err := Thumbnail(data, 300)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	b := decodeJPEG(t, out).Bounds()
	if b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("got %dx%d, want 300x200", b.Dx(), b.Dy())
	}
}

func TestThumbnail_KeepsNarrowImage(t *testing.T) {
	data := mustEncodePNG(t, makeSolidNRGBA(120, 90, color.NRGBA{R: 100, G: 120, B: 140, A: 255}))

	out, err := Thumbnail(data, 300)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	b := decodeJPEG(t, out).Bounds()
	if b.Dx() != 120 || b.Dy() != 90 {
		t.Errorf("got %dx%d, want 120x90", b.Dx(), b.Dy())
	}
}

func TestThumbnail_DefaultWidth(t *testing.T) {
	data := mustEncodePNG(t, makeSolidNRGBA(600, 600, color.NRGBA{A: 255}))

	out, err := Thumbnail(data, 0)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	if b := decodeJPEG(t, out).Bounds(); b.Dx() != defaultThumbnailWidth {
		t.Errorf("width = %d, want %d", b.Dx(), defaultThumbnailWidth)
	}
}

func TestThumbnail_InvalidData(t *testing.T) {
	if _, err := Thumbnail([]byte("not an image"), 300); err == nil {
		t.Errorf("Thumbnail() with garbage should fail")
	}
}
