package epub

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
)

const ncxMediaType = "application/x-dtbncx+xml"

// NCX represents the parsed navigation control structure from NCX or NAV document.
type NCX struct {
	UID       string
	Depth     int
	DocTitle  string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // fragment-free, decoded, relative to the package directory
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

// LoadNavigation reads the table of contents of the book from BaseDir. The
// EPUB 3 navigation document is preferred; otherwise the NCX is used. A book
// declaring neither returns nil.
func (b *Book) LoadNavigation() (*NCX, error) {
	if item, ok := b.itemWith(func(it ManifestItem) bool { return slices.Contains(it.Properties, "nav") }); ok {
		content, err := b.readItem(item)
		if err != nil {
			return nil, err
		}
		return ParseNavDocument(content, item.Href)
	}
	if item, ok := b.itemWith(func(it ManifestItem) bool { return it.MediaType == ncxMediaType }); ok {
		content, err := b.readItem(item)
		if err != nil {
			return nil, err
		}
		return ParseNCX(content, item.Href)
	}
	return nil, nil
}

// SpineLabels maps spine positions to the label of the first navigation
// point referring to them, in reading order of the table of contents.
func (n *NCX) SpineLabels(b *Book) map[int]string {
	byPath := make(map[string]int, len(b.Spine))
	for _, id := range b.ManifestOrder {
		pos, ok := b.SpineIndex(id)
		if !ok {
			continue
		}
		p := path.Clean(decodePath(b.Manifest[id].Href))
		if _, seen := byPath[p]; !seen {
			byPath[p] = pos
		}
	}

	labels := make(map[int]string)
	var walk func(points []NavPoint)
	walk = func(points []NavPoint) {
		for _, np := range points {
			if pos, ok := byPath[np.ContentPath]; ok && np.Label != "" {
				if _, seen := labels[pos]; !seen {
					labels[pos] = np.Label
				}
			}
			walk(np.Children)
		}
	}
	if n != nil {
		walk(n.NavPoints)
	}
	return labels
}

// ParseNCX parses an EPUB 2 NCX document. href is the manifest href of the
// document; navPoint sources are resolved against its directory.
func ParseNCX(content []byte, href string) (*NCX, error) {
	doc := newDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("parsing NCX: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parsing NCX: no root element")
	}
	ns := root.NamespaceURI()

	ncx := &NCX{}
	if head := findQualified(root, ns, "head"); head != nil {
		for _, meta := range childrenQualified(head, ns, "meta") {
			switch meta.SelectAttrValue("name", "") {
			case "dtb:uid":
				ncx.UID = meta.SelectAttrValue("content", "")
			case "dtb:depth":
				ncx.Depth, _ = strconv.Atoi(meta.SelectAttrValue("content", ""))
			}
		}
	}
	if title := findQualified(root, ns, "docTitle"); title != nil {
		ncx.DocTitle = ncxText(title, ns)
	}
	if navMap := findQualified(root, ns, "navMap"); navMap != nil {
		ncx.NavPoints = parseNavPoints(navMap, ns, dirOf(decodePath(href)))
	}
	return ncx, nil
}

func parseNavPoints(parent *etree.Element, ns, dir string) []NavPoint {
	var points []NavPoint
	for _, el := range childrenQualified(parent, ns, "navPoint") {
		np := NavPoint{ID: el.SelectAttrValue("id", "")}
		np.PlayOrder, _ = strconv.Atoi(el.SelectAttrValue("playOrder", ""))
		if label := childQualified(el, ns, "navLabel"); label != nil {
			np.Label = ncxText(label, ns)
		}
		if c := childQualified(el, ns, "content"); c != nil {
			np.ContentPath, np.Fragment = navTarget(dir, c.SelectAttrValue("src", ""))
		}
		np.Children = parseNavPoints(el, ns, dir)
		points = append(points, np)
	}
	return points
}

func ncxText(el *etree.Element, ns string) string {
	if text := findQualified(el, ns, "text"); text != nil {
		return strings.TrimSpace(text.Text())
	}
	return ""
}

// ParseNavDocument parses an EPUB 3 navigation document. The nav element
// typed "toc" is used, or the first nav element when none is typed.
func ParseNavDocument(content []byte, href string) (*NCX, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing navigation document: %w", err)
	}

	navs := doc.Find("nav")
	toc := navs.FilterFunction(func(i int, s *goquery.Selection) bool {
		return slices.Contains(strings.Fields(s.AttrOr("epub:type", "")), "toc")
	}).First()
	if toc.Length() == 0 {
		toc = navs.First()
	}

	ncx := &NCX{DocTitle: strings.TrimSpace(doc.Find("title").First().Text())}
	dir := dirOf(decodePath(href))
	ncx.NavPoints = parseNavList(toc.ChildrenFiltered("ol").First(), dir)
	return ncx, nil
}

func parseNavList(ol *goquery.Selection, dir string) []NavPoint {
	var points []NavPoint
	ol.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		np := NavPoint{ID: li.AttrOr("id", "")}
		if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
			np.Label = strings.Join(strings.Fields(a.Text()), " ")
			np.ContentPath, np.Fragment = navTarget(dir, a.AttrOr("href", ""))
		} else {
			np.Label = strings.Join(strings.Fields(li.ChildrenFiltered("span").First().Text()), " ")
		}
		np.Children = parseNavList(li.ChildrenFiltered("ol").First(), dir)
		points = append(points, np)
	})
	return points
}

// navTarget resolves a navigation link against dir, both relative to the
// package directory.
func navTarget(dir, src string) (contentPath, fragment string) {
	p, fragment := splitFragment(strings.TrimSpace(src))
	if p == "" {
		return "", fragment
	}
	return path.Clean(path.Join(dir, decodePath(p))), fragment
}

func (b *Book) itemWith(match func(ManifestItem) bool) (ManifestItem, bool) {
	for _, id := range b.ManifestOrder {
		if item := b.Manifest[id]; match(item) {
			return item, true
		}
	}
	return ManifestItem{}, false
}

func (b *Book) readItem(item ManifestItem) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(b.BaseDir, filepath.FromSlash(decodePath(item.Href))))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", item.Href, err)
	}
	return content, nil
}

func childrenQualified(el *etree.Element, space, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == space {
			out = append(out, child)
		}
	}
	return out
}

func childQualified(el *etree.Element, space, tag string) *etree.Element {
	if children := childrenQualified(el, space, tag); len(children) > 0 {
		return children[0]
	}
	return nil
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

func decodePath(p string) string {
	if u, err := url.PathUnescape(p); err == nil {
		return u
	}
	return p
}
