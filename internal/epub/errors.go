package epub

import "errors"

var (
	// ErrMalformedArchive reports a missing or unusable container descriptor.
	ErrMalformedArchive = errors.New("malformed archive")
	// ErrMalformedPackage reports a package document without a usable manifest or spine.
	ErrMalformedPackage = errors.New("malformed package document")
	// ErrAmbiguousMetadata reports a package that does not declare exactly one title.
	ErrAmbiguousMetadata = errors.New("ambiguous metadata")
	// ErrDanglingSpineReference reports a spine idref with no manifest entry.
	ErrDanglingSpineReference = errors.New("dangling spine reference")
)
