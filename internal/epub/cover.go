package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	MediaType       string
	DetectionMethod string // "properties", "meta", "filename"
}

// DetectCover detects the cover image from the manifest.
// Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. filename pattern (basename contains "cover", case-insensitive, SVG excluded)
//
// Returns nil if no cover image is found.
func (b *Book) DetectCover() *CoverInfo {
	for _, id := range b.ManifestOrder {
		item := b.Manifest[id]
		for _, prop := range item.Properties {
			if prop == "cover-image" {
				return newCoverInfo(item, "properties")
			}
		}
	}

	if b.Metadata.CoverID != "" {
		if item, ok := b.Manifest[b.Metadata.CoverID]; ok && isImageMediaType(item.MediaType) {
			return newCoverInfo(item, "meta")
		}
	}

	for _, id := range b.ManifestOrder {
		item := b.Manifest[id]
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			return newCoverInfo(item, "filename")
		}
	}

	return nil
}

func newCoverInfo(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
