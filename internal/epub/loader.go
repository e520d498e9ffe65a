package epub

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load locates and parses the package document of the archive extracted at
// root. The returned Book has BaseDir set to the on-disk package directory.
func Load(root string) (*Book, error) {
	loc, err := LocatePackage(root)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(loc.PackagePath)))
	if err != nil {
		return nil, fmt.Errorf("%w: reading package document %s: %v", ErrMalformedArchive, loc.PackagePath, err)
	}

	book, err := ParsePackage(content, filepath.Join(root, filepath.FromSlash(loc.BaseDir)))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", loc.PackagePath, err)
	}
	book.PackagePath = loc.PackagePath

	return book, nil
}
