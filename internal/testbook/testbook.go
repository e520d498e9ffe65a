// Package testbook builds small EPUB fixtures for tests.
package testbook

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Container is a container descriptor pointing at OEBPS/content.opf.
const Container = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// Package is an EPUB 2.0 package document with a three chapter spine
// (c1, c2, c3), a stylesheet and a cover image.
const Package = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>Test Book</dc:title>
    <dc:creator opf:role="aut">John Doe</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:test-book</dc:identifier>
    <meta name="cover" content="cover-image"/>
  </metadata>
  <manifest>
    <item id="c1" href="text/chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/chapter2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c3" href="text/chapter3.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="css/style.css" media-type="text/css"/>
    <item id="cover-image" href="images/cover.png" media-type="image/png"/>
  </manifest>
  <spine>
    <itemref idref="c1"/>
    <itemref idref="c2"/>
    <itemref idref="c3"/>
  </spine>
</package>`

// NCX is a table of contents labelling chapters one and three.
const NCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="urn:uuid:test-book"/>
    <meta name="dtb:depth" content="2"/>
  </head>
  <docTitle><text>Test Book</text></docTitle>
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>Chapter One</text></navLabel>
      <content src="text/chapter1.xhtml"/>
      <navPoint id="np2" playOrder="2">
        <navLabel><text>The End</text></navLabel>
        <content src="text/chapter3.xhtml#end"/>
      </navPoint>
    </navPoint>
  </navMap>
</ncx>`

// Chapter returns a minimal XHTML chapter with the given title and body markup.
func Chapter(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>` + title + `</title><link rel="stylesheet" href="../css/style.css"/></head>
<body>` + body + `</body>
</html>`
}

// Files returns the archive entries of the default three chapter book.
// Chapter 1 links to chapter 3 and to an external site.
func Files() map[string]string {
	return map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": Container,
		"OEBPS/content.opf":      Package,
		"OEBPS/text/chapter1.xhtml": Chapter("One",
			`<h1>One</h1><p><a href="chapter3.xhtml#end">Go to three</a> <a href="https://example.com">Web</a></p>`),
		"OEBPS/text/chapter2.xhtml": Chapter("Two", `<h1>Two</h1>`),
		"OEBPS/text/chapter3.xhtml": Chapter("Three", `<h1 id="end">Three</h1>`),
		"OEBPS/css/style.css":       "body { margin: 0; }",
		"OEBPS/images/cover.png":    "not really a png",
	}
}

// FilesWithTOC returns Files with an NCX table of contents declared in the
// manifest and referenced from the spine.
func FilesWithTOC() map[string]string {
	files := Files()
	opf := strings.Replace(Package, "  </manifest>",
		`    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
  </manifest>`, 1)
	files["OEBPS/content.opf"] = strings.Replace(opf, "<spine>", `<spine toc="ncx">`, 1)
	files["OEBPS/toc.ncx"] = NCX
	return files
}

// Zip returns the files packed as an EPUB archive, mimetype first and stored.
func Zip(t testing.TB, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	if mimetype, ok := files["mimetype"]; ok {
		mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
		if err != nil {
			t.Fatalf("failed to create mimetype: %v", err)
		}
		if _, err := mw.Write([]byte(mimetype)); err != nil {
			t.Fatalf("failed to write mimetype: %v", err)
		}
	}

	for _, name := range sortedNames(files) {
		if name == "mimetype" {
			continue
		}
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// Extract writes the files into a fresh temporary directory, as an
// extracted archive, and returns that directory.
func Extract(t testing.TB, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", name, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
