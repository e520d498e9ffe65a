package epub

import (
	"errors"
	"strings"
	"testing"

	"github.com/yuanying/epubread/internal/testbook"
)

func TestParseContainer(t *testing.T) {
	loc, err := ParseContainer(strings.NewReader(testbook.Container))
	if err != nil {
		t.Fatalf("ParseContainer() failed: %v", err)
	}

	if loc.PackagePath != "OEBPS/content.opf" {
		t.Errorf("PackagePath = %q, want %q", loc.PackagePath, "OEBPS/content.opf")
	}
	if loc.BaseDir != "OEBPS" {
		t.Errorf("BaseDir = %q, want %q", loc.BaseDir, "OEBPS")
	}
}

func TestParseContainer_RootLevelPackage(t *testing.T) {
	loc, err := ParseContainer(strings.NewReader(`<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`))
	if err != nil {
		t.Fatalf("ParseContainer() failed: %v", err)
	}

	if loc.PackagePath != "content.opf" {
		t.Errorf("PackagePath = %q, want %q", loc.PackagePath, "content.opf")
	}
	if loc.BaseDir != "" {
		t.Errorf("BaseDir = %q, want empty", loc.BaseDir)
	}
}

// Test path normalization (handling of ./ prefix)
func TestParseContainer_PathNormalization(t *testing.T) {
	loc, err := ParseContainer(strings.NewReader(`<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="./OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`))
	if err != nil {
		t.Fatalf("ParseContainer() failed: %v", err)
	}

	if loc.PackagePath != "OEBPS/content.opf" {
		t.Errorf("PackagePath = %q, want %q (path should be normalized)", loc.PackagePath, "OEBPS/content.opf")
	}
}

func TestParseContainer_SkipsOtherMediaTypes(t *testing.T) {
	loc, err := ParseContainer(strings.NewReader(`<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="book.pdf" media-type="application/pdf"/>
    <rootfile full-path="EPUB/package.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`))
	if err != nil {
		t.Fatalf("ParseContainer() failed: %v", err)
	}

	if loc.PackagePath != "EPUB/package.opf" {
		t.Errorf("PackagePath = %q, want %q", loc.PackagePath, "EPUB/package.opf")
	}
}

func TestParseContainer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "no package media type",
			content: `<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="book.pdf" media-type="application/pdf"/></rootfiles>
</container>`,
		},
		{
			name: "no media-type attribute",
			content: `<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf"/></rootfiles>
</container>`,
		},
		{
			name: "empty full-path",
			content: `<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="" media-type="application/oebps-package+xml"/></rootfiles>
</container>`,
		},
		{
			name:    "mismatched tags",
			content: `<container><rootfiles></container>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseContainer(strings.NewReader(tt.content))
			if !errors.Is(err, ErrMalformedArchive) {
				t.Fatalf("ParseContainer() error = %v, want ErrMalformedArchive", err)
			}
		})
	}
}

func TestLocatePackage(t *testing.T) {
	root := testbook.Extract(t, testbook.Files())

	loc, err := LocatePackage(root)
	if err != nil {
		t.Fatalf("LocatePackage() failed: %v", err)
	}
	if loc.PackagePath != "OEBPS/content.opf" {
		t.Errorf("PackagePath = %q, want %q", loc.PackagePath, "OEBPS/content.opf")
	}
}

func TestLocatePackage_NoContainer(t *testing.T) {
	files := testbook.Files()
	delete(files, ContainerPath)
	root := testbook.Extract(t, files)

	_, err := LocatePackage(root)
	if !errors.Is(err, ErrMalformedArchive) {
		t.Fatalf("LocatePackage() error = %v, want ErrMalformedArchive", err)
	}
}
