package epub

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

const (
	// ContainerPath is the fixed location of the container descriptor.
	ContainerPath = "META-INF/container.xml"

	packageMediaType = "application/oebps-package+xml"
)

// Location names the package document inside an extracted archive.
type Location struct {
	PackagePath string // slash-separated, relative to the archive root
	BaseDir     string // directory of PackagePath, "" at the archive root
}

// LocatePackage reads the container descriptor of the archive extracted at
// root and returns the location of the package document.
func LocatePackage(root string) (Location, error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(ContainerPath)))
	if err != nil {
		return Location{}, fmt.Errorf("%w: opening %s: %v", ErrMalformedArchive, ContainerPath, err)
	}
	defer f.Close()

	return ParseContainer(f)
}

// ParseContainer parses a container descriptor and returns the location of
// the element whose media-type identifies the package document.
func ParseContainer(r io.Reader) (Location, error) {
	doc := newDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return Location{}, fmt.Errorf("%w: parsing %s: %v", ErrMalformedArchive, ContainerPath, err)
	}

	for _, el := range doc.FindElements("//*[@media-type]") {
		if el.SelectAttrValue("media-type", "") != packageMediaType {
			continue
		}
		full := normalizePath(strings.TrimSpace(el.SelectAttrValue("full-path", "")))
		if full == "" {
			return Location{}, fmt.Errorf("%w: rootfile has empty full-path", ErrMalformedArchive)
		}
		return Location{PackagePath: full, BaseDir: packageDir(full)}, nil
	}

	return Location{}, fmt.Errorf("%w: no %s rootfile in %s", ErrMalformedArchive, packageMediaType, ContainerPath)
}

// newDocument returns an etree document that decodes any declared charset.
func newDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	return doc
}

// normalizePath normalizes file paths (removes ./ prefix)
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "./")
}

func packageDir(packagePath string) string {
	dir := path.Dir(packagePath)
	if dir == "." {
		return ""
	}
	return dir
}
