package epub

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content represents a parsed chapter document
type Content struct {
	Path     string            // slash-separated path relative to the archive root
	Document *goquery.Document // Parsed HTML document
	Links    []string          // href values of <a> elements, as written
}

// LoadContent loads and parses an XHTML chapter document.
// path: file path within the archive (used for relative path resolution)
func LoadContent(path string, content []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	c := &Content{
		Path:     path,
		Document: doc,
		Links:    []string{},
	}

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		c.Links = append(c.Links, href)
	})

	return c, nil
}

// ResolvePath resolves a relative path against a base directory
// baseDir: base directory (e.g., "text" for "text/chapter1.xhtml")
// relPath: relative path (e.g., "../images/photo.jpg")
// returns: resolved path (e.g., "images/photo.jpg")
func ResolvePath(baseDir, relPath string) string {
	if strings.HasPrefix(relPath, "/") {
		return path.Clean(strings.TrimPrefix(relPath, "/"))
	}
	return path.Clean(path.Join(baseDir, relPath))
}

func dirOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
