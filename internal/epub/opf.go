package epub

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// dcNamespace is the Dublin Core namespace used by title and creator metadata.
const dcNamespace = "http://purl.org/dc/elements/1.1/"

// ParsePackage parses a package document into a Book.
// baseDir is the directory containing the package document; hrefs are kept
// relative to it and resolved later by the navigator.
//
// The package namespace is read off the root element rather than assumed,
// and every manifest, spine and metadata lookup is qualified with it.
func ParsePackage(content []byte, baseDir string) (*Book, error) {
	doc := newDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("%w: parsing XML: %v", ErrMalformedPackage, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedPackage)
	}
	ns := root.NamespaceURI()

	manifestEl := findQualified(root, ns, "manifest")
	if manifestEl == nil {
		return nil, fmt.Errorf("%w: missing manifest", ErrMalformedPackage)
	}
	spineEl := findQualified(root, ns, "spine")
	if spineEl == nil {
		return nil, fmt.Errorf("%w: missing spine", ErrMalformedPackage)
	}

	book := &Book{
		BaseDir:  baseDir,
		Manifest: make(map[string]ManifestItem),
	}

	if err := parseManifest(book, manifestEl, ns); err != nil {
		return nil, err
	}
	if err := parseSpine(book, spineEl, ns); err != nil {
		return nil, err
	}

	metadataEl := findQualified(root, ns, "metadata")
	title, err := parseTitle(metadataEl, ns)
	if err != nil {
		return nil, err
	}
	book.Title = title
	if metadataEl != nil {
		book.Metadata = parseMetadata(metadataEl, root.SelectAttrValue("unique-identifier", ""))
	}

	return book, nil
}

func parseManifest(book *Book, manifestEl *etree.Element, ns string) error {
	for _, el := range manifestEl.ChildElements() {
		if el.Tag != "item" || el.NamespaceURI() != ns {
			continue
		}

		id := el.SelectAttrValue("id", "")
		if id == "" {
			return fmt.Errorf("%w: manifest item without id", ErrMalformedPackage)
		}
		if _, dup := book.Manifest[id]; dup {
			return fmt.Errorf("%w: duplicate manifest id %q", ErrMalformedPackage, id)
		}

		item := ManifestItem{
			ID:        id,
			Href:      el.SelectAttrValue("href", ""),
			MediaType: el.SelectAttrValue("media-type", ""),
		}

		// Parse properties (space-separated)
		if props := el.SelectAttrValue("properties", ""); props != "" {
			item.Properties = strings.Fields(props)
		}

		book.Manifest[id] = item
		book.ManifestOrder = append(book.ManifestOrder, id)
	}
	return nil
}

func parseSpine(book *Book, spineEl *etree.Element, ns string) error {
	for _, el := range spineEl.ChildElements() {
		if el.Tag != "itemref" || el.NamespaceURI() != ns {
			continue
		}

		idref := el.SelectAttrValue("idref", "")
		if _, ok := book.Manifest[idref]; !ok {
			return fmt.Errorf("%w: itemref %q has no manifest entry", ErrDanglingSpineReference, idref)
		}

		book.Spine = append(book.Spine, SpineItem{
			IDRef:  idref,
			Linear: el.SelectAttrValue("linear", "") != "no",
		})
	}

	if len(book.Spine) == 0 {
		return fmt.Errorf("%w: empty spine", ErrMalformedPackage)
	}
	return nil
}

// parseTitle requires exactly one title element. Dublin Core is the declared
// home of the title, the package namespace covers old OEB-style documents.
func parseTitle(metadataEl *etree.Element, ns string) (string, error) {
	var titles []*etree.Element
	if metadataEl != nil {
		titles = findAll(metadataEl, func(el *etree.Element) bool {
			if el.Tag != "title" {
				return false
			}
			space := el.NamespaceURI()
			return space == dcNamespace || space == ns
		})
	}

	if len(titles) != 1 {
		return "", fmt.Errorf("%w: expected exactly one title, found %d", ErrAmbiguousMetadata, len(titles))
	}
	return strings.TrimSpace(titles[0].Text()), nil
}

// parseMetadata collects the optional metadata. Missing fields stay empty.
func parseMetadata(metadataEl *etree.Element, uniqueID string) Metadata {
	md := Metadata{}
	creatorIDs := make(map[string]int)

	for _, el := range findAll(metadataEl, func(*etree.Element) bool { return true }) {
		switch {
		case el.Tag == "language" && el.NamespaceURI() == dcNamespace:
			if md.Language == "" {
				md.Language = strings.TrimSpace(el.Text())
			}
		case el.Tag == "identifier" && el.NamespaceURI() == dcNamespace:
			// Prefer the identifier named by unique-identifier, else the first one.
			value := strings.TrimSpace(el.Text())
			if uniqueID != "" && el.SelectAttrValue("id", "") == uniqueID {
				md.Identifier = value
			} else if md.Identifier == "" {
				md.Identifier = value
			}
		case el.Tag == "creator" && el.NamespaceURI() == dcNamespace:
			if id := el.SelectAttrValue("id", ""); id != "" {
				creatorIDs["#"+id] = len(md.Creators)
			}
			md.Creators = append(md.Creators, Creator{
				Name: strings.TrimSpace(el.Text()),
				Role: attrValue(el, "role"),
			})
		case el.Tag == "meta":
			if el.SelectAttrValue("name", "") == "cover" && md.CoverID == "" {
				md.CoverID = el.SelectAttrValue("content", "")
			}
		}
	}

	// EPUB 3.0 refines creator roles with <meta property="role" refines="#id">
	for _, el := range findAll(metadataEl, func(el *etree.Element) bool { return el.Tag == "meta" }) {
		if el.SelectAttrValue("property", "") != "role" {
			continue
		}
		if idx, ok := creatorIDs[el.SelectAttrValue("refines", "")]; ok {
			if v := strings.TrimSpace(el.Text()); v != "" {
				md.Creators[idx].Role = v
			} else {
				md.Creators[idx].Role = el.SelectAttrValue("content", "")
			}
		}
	}

	return md
}

// findQualified returns the first descendant of el, in document order, with
// the given namespace URI and local name.
func findQualified(el *etree.Element, space, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == space {
			return child
		}
		if found := findQualified(child, space, tag); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant of el, in document order, accepted by match.
func findAll(el *etree.Element, match func(*etree.Element) bool) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if match(child) {
			out = append(out, child)
		}
		out = append(out, findAll(child, match)...)
	}
	return out
}

// attrValue returns the value of the first attribute with the given local
// name, whatever its prefix (opf:role and role are both accepted).
func attrValue(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}
