package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

const (
	defaultThumbnailWidth = 300
	thumbnailJPEGQuality  = 85
	maxThumbnailPixels    = 100 * 1000 * 1000 // 100 megapixels
)

// Thumbnail scales an image down to width pixels (keeping the aspect ratio)
// and encodes it as JPEG. Images narrower than width are only re-encoded.
func Thumbnail(input []byte, width int) ([]byte, error) {
	if width <= 0 {
		width = defaultThumbnailWidth
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); pixels > maxThumbnailPixels {
		return nil, fmt.Errorf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
	}

	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	processed := src
	if src.Bounds().Dx() > width {
		processed = imaging.Resize(src, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, processed, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("image encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
