// Package render prepares book content for the browser: chapter documents get
// the reader stylesheet and have their links routed back to the reader, and
// cover images are scaled down to thumbnails.
package render

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/yuanying/epubread/internal/epub"
)

// ChapterOptions controls PrepareChapter.
type ChapterOptions struct {
	// Stylesheet is injected as the last <style> element of <head>.
	Stylesheet string
	// LinkEndpoint receives every rewritten link as its "href" query
	// parameter, e.g. "/link".
	LinkEndpoint string
}

// PrepareChapter rewrites a chapter document for display.
// chapterPath is the slash-separated path of the chapter relative to the
// archive root; relative links are resolved against its directory so the
// link endpoint always receives archive-root-relative paths. Fragment-only
// links stay in the page.
func PrepareChapter(content []byte, chapterPath string, opts ChapterOptions) ([]byte, error) {
	c, err := epub.LoadContent(chapterPath, content)
	if err != nil {
		return nil, err
	}
	doc := c.Document

	if opts.LinkEndpoint != "" {
		chapterDir := path.Dir(chapterPath)
		anchors := doc.Find("a[href]")
		for i, href := range c.Links {
			if target, ok := linkTarget(chapterDir, href); ok {
				anchors.Eq(i).SetAttr("href", opts.LinkEndpoint+"?href="+url.QueryEscape(target))
			}
		}
	}

	if opts.Stylesheet != "" {
		head := doc.Find("head")
		if head.Length() == 0 {
			doc.Find("html").PrependHtml("<head></head>")
			head = doc.Find("head")
		}
		head.AppendHtml("<style></style>")
		head.Find("style").Last().SetText(escapeStyle(opts.Stylesheet))
	}

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("rendering chapter: %w", err)
	}
	return []byte(html), nil
}

// escapeStyle keeps a stylesheet from closing its <style> element. Style
// content is raw text, so "</" is written as the CSS escape "<\/".
func escapeStyle(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}

// linkTarget returns what the reader should be told about a clicked href:
// absolute URLs as written, relative ones resolved against chapterDir.
func linkTarget(chapterDir, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != "" || u.Host != "" {
		return href, true
	}

	if chapterDir == "." {
		chapterDir = ""
	}
	target := epub.ResolvePath(chapterDir, u.Path)
	if u.Fragment != "" {
		target += "#" + u.Fragment
	}
	return target, true
}
