package epub

// Book is the parsed package document of one EPUB, produced once per load.
// A Book is read-only after construction.
type Book struct {
	Title    string
	Metadata Metadata

	// PackagePath is the slash-separated path of the package document,
	// relative to the extracted archive root.
	PackagePath string
	// BaseDir is the directory every manifest href is resolved against.
	BaseDir string

	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []SpineItem
}

// Metadata holds the descriptive metadata of the package besides the title.
type Metadata struct {
	Language   string
	Identifier string
	Creators   []Creator
	CoverID    string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
}

// ManifestItem represents an item in the manifest.
// Href is kept exactly as declared, relative to the package directory.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// SpineIndex returns the first spine position referencing the manifest id.
func (b *Book) SpineIndex(id string) (int, bool) {
	for i, item := range b.Spine {
		if item.IDRef == id {
			return i, true
		}
	}
	return 0, false
}

// SpineItemAt returns the manifest item referenced at spine position pos.
func (b *Book) SpineItemAt(pos int) (ManifestItem, bool) {
	if pos < 0 || pos >= len(b.Spine) {
		return ManifestItem{}, false
	}
	item, ok := b.Manifest[b.Spine[pos].IDRef]
	return item, ok
}
