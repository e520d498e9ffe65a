package epub

import (
	"errors"
	"testing"

	"github.com/yuanying/epubread/internal/testbook"
)

func TestParsePackage_EPUB20(t *testing.T) {
	book, err := ParsePackage([]byte(testbook.Package), "OEBPS")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}

	if book.Title != "Test Book" {
		t.Errorf("Title = %q, want %q", book.Title, "Test Book")
	}
	if book.BaseDir != "OEBPS" {
		t.Errorf("BaseDir = %q, want %q", book.BaseDir, "OEBPS")
	}

	if len(book.Manifest) != 5 {
		t.Fatalf("Manifest count = %d, want 5", len(book.Manifest))
	}

	c1, ok := book.Manifest["c1"]
	if !ok {
		t.Fatal("c1 not found in manifest")
	}
	// Hrefs stay relative to the package directory.
	if c1.Href != "text/chapter1.xhtml" {
		t.Errorf("c1.Href = %q, want %q", c1.Href, "text/chapter1.xhtml")
	}
	if c1.MediaType != "application/xhtml+xml" {
		t.Errorf("c1.MediaType = %q, want %q", c1.MediaType, "application/xhtml+xml")
	}

	wantOrder := []string{"c1", "c2", "c3", "css", "cover-image"}
	if len(book.ManifestOrder) != len(wantOrder) {
		t.Fatalf("ManifestOrder count = %d, want %d", len(book.ManifestOrder), len(wantOrder))
	}
	for i, id := range wantOrder {
		if book.ManifestOrder[i] != id {
			t.Errorf("ManifestOrder[%d] = %q, want %q", i, book.ManifestOrder[i], id)
		}
	}

	wantSpine := []string{"c1", "c2", "c3"}
	if len(book.Spine) != len(wantSpine) {
		t.Fatalf("Spine count = %d, want %d", len(book.Spine), len(wantSpine))
	}
	for i, id := range wantSpine {
		if book.Spine[i].IDRef != id {
			t.Errorf("Spine[%d].IDRef = %q, want %q", i, book.Spine[i].IDRef, id)
		}
		if !book.Spine[i].Linear {
			t.Errorf("Spine[%d].Linear = false, want true", i)
		}
	}

	if book.Metadata.Language != "en" {
		t.Errorf("Language = %q, want %q", book.Metadata.Language, "en")
	}
	if book.Metadata.Identifier != "urn:uuid:test-book" {
		t.Errorf("Identifier = %q, want %q", book.Metadata.Identifier, "urn:uuid:test-book")
	}
	if len(book.Metadata.Creators) != 1 {
		t.Fatalf("Creators count = %d, want 1", len(book.Metadata.Creators))
	}
	if book.Metadata.Creators[0].Name != "John Doe" || book.Metadata.Creators[0].Role != "aut" {
		t.Errorf("Creators[0] = %+v, want John Doe/aut", book.Metadata.Creators[0])
	}
	if book.Metadata.CoverID != "cover-image" {
		t.Errorf("CoverID = %q, want %q", book.Metadata.CoverID, "cover-image")
	}
}

func TestParsePackage_EPUB30(t *testing.T) {
	opfContent := `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="isbn">urn:isbn:000</dc:identifier>
    <dc:identifier id="pub-id">urn:uuid:1234</dc:identifier>
    <dc:title>  EPUB 3 Book  </dc:title>
    <dc:creator id="creator01">Jane Author</dc:creator>
    <meta refines="#creator01" property="role" scheme="marc:relators">aut</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="cover" href="images/cover.jpg" media-type="image/jpeg" properties="cover-image"/>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="nav" linear="no"/>
    <itemref idref="ch1"/>
  </spine>
</package>`

	book, err := ParsePackage([]byte(opfContent), "")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}

	if book.Title != "EPUB 3 Book" {
		t.Errorf("Title = %q, want %q", book.Title, "EPUB 3 Book")
	}
	if book.Metadata.Identifier != "urn:uuid:1234" {
		t.Errorf("Identifier = %q, want %q", book.Metadata.Identifier, "urn:uuid:1234")
	}
	if len(book.Metadata.Creators) != 1 || book.Metadata.Creators[0].Role != "aut" {
		t.Errorf("Creators = %+v, want one creator with role aut", book.Metadata.Creators)
	}
	if book.Spine[0].Linear {
		t.Error("Spine[0].Linear = true, want false")
	}

	nav := book.Manifest["nav"]
	if len(nav.Properties) != 1 || nav.Properties[0] != "nav" {
		t.Errorf("nav.Properties = %v, want [nav]", nav.Properties)
	}
}

func TestParsePackage_PrefixedNamespace(t *testing.T) {
	opfContent := `<?xml version="1.0" encoding="UTF-8"?>
<opf:package xmlns:opf="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="2.0">
  <opf:metadata>
    <dc:title>Prefixed</dc:title>
  </opf:metadata>
  <opf:manifest>
    <opf:item id="a" href="a.html" media-type="application/xhtml+xml"/>
  </opf:manifest>
  <opf:spine>
    <opf:itemref idref="a"/>
  </opf:spine>
</opf:package>`

	book, err := ParsePackage([]byte(opfContent), "")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	if book.Title != "Prefixed" {
		t.Errorf("Title = %q, want %q", book.Title, "Prefixed")
	}
	if len(book.Spine) != 1 || book.Spine[0].IDRef != "a" {
		t.Errorf("Spine = %+v, want [a]", book.Spine)
	}
}

func TestParsePackage_DeclaredNamespaceIsUsed(t *testing.T) {
	// A manifest in a foreign namespace comes first and must be ignored.
	opfContent := `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="urn:example:package" xmlns:x="urn:example:other" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <x:manifest>
    <x:item id="wrong" href="wrong.html" media-type="application/xhtml+xml"/>
  </x:manifest>
  <metadata><dc:title>Custom Namespace</dc:title></metadata>
  <manifest>
    <item id="right" href="right.html" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="right"/></spine>
</package>`

	book, err := ParsePackage([]byte(opfContent), "")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	if _, ok := book.Manifest["wrong"]; ok {
		t.Error("manifest from a foreign namespace was used")
	}
	if _, ok := book.Manifest["right"]; !ok {
		t.Error("manifest from the declared namespace was not used")
	}
}

func TestParsePackage_NoNamespace(t *testing.T) {
	opfContent := `<package>
  <metadata><title>Plain</title></metadata>
  <manifest><item id="a" href="a.html" media-type="text/html"/></manifest>
  <spine><itemref idref="a"/></spine>
</package>`

	book, err := ParsePackage([]byte(opfContent), "")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	if book.Title != "Plain" {
		t.Errorf("Title = %q, want %q", book.Title, "Plain")
	}
}

func TestParsePackage_Charset(t *testing.T) {
	opfContent := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		`<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		"<metadata><dc:title>Caf\xe9</dc:title></metadata>" +
		`<manifest><item id="a" href="a.html" media-type="application/xhtml+xml"/></manifest>` +
		`<spine><itemref idref="a"/></spine></package>`

	book, err := ParsePackage([]byte(opfContent), "")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}
	if book.Title != "Café" {
		t.Errorf("Title = %q, want %q", book.Title, "Café")
	}
}

func TestParsePackage_Errors(t *testing.T) {
	const header = `<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/">`
	const title = `<metadata><dc:title>T</dc:title></metadata>`
	const manifest = `<manifest><item id="a" href="a.html" media-type="application/xhtml+xml"/></manifest>`
	const spine = `<spine><itemref idref="a"/></spine>`

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"invalid XML", `<package><manifest></package>`, ErrMalformedPackage},
		{"empty document", ``, ErrMalformedPackage},
		{"missing manifest", header + title + spine + `</package>`, ErrMalformedPackage},
		{"missing spine", header + title + manifest + `</package>`, ErrMalformedPackage},
		{"empty spine", header + title + manifest + `<spine></spine></package>`, ErrMalformedPackage},
		{
			"manifest item without id",
			header + title + `<manifest><item href="a.html"/></manifest>` + spine + `</package>`,
			ErrMalformedPackage,
		},
		{
			"duplicate manifest id",
			header + title + `<manifest><item id="a" href="a.html"/><item id="a" href="b.html"/></manifest>` + spine + `</package>`,
			ErrMalformedPackage,
		},
		{
			"dangling spine reference",
			header + title + manifest + `<spine><itemref idref="a"/><itemref idref="missing"/></spine></package>`,
			ErrDanglingSpineReference,
		},
		{"no title", header + `<metadata></metadata>` + manifest + spine + `</package>`, ErrAmbiguousMetadata},
		{"no metadata", header + manifest + spine + `</package>`, ErrAmbiguousMetadata},
		{
			"two titles",
			header + `<metadata><dc:title>A</dc:title><dc:title>B</dc:title></metadata>` + manifest + spine + `</package>`,
			ErrAmbiguousMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePackage([]byte(tt.content), "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("ParsePackage() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBook_SpineIndex(t *testing.T) {
	book, err := ParsePackage([]byte(testbook.Package), "OEBPS")
	if err != nil {
		t.Fatalf("ParsePackage failed: %v", err)
	}

	if pos, ok := book.SpineIndex("c3"); !ok || pos != 2 {
		t.Errorf("SpineIndex(c3) = %d, %v, want 2, true", pos, ok)
	}
	if _, ok := book.SpineIndex("css"); ok {
		t.Error("SpineIndex(css) = true, want false")
	}

	item, ok := book.SpineItemAt(1)
	if !ok || item.ID != "c2" {
		t.Errorf("SpineItemAt(1) = %+v, %v, want c2", item, ok)
	}
	if _, ok := book.SpineItemAt(3); ok {
		t.Error("SpineItemAt(3) = true, want false")
	}
	if _, ok := book.SpineItemAt(-1); ok {
		t.Error("SpineItemAt(-1) = true, want false")
	}
}
