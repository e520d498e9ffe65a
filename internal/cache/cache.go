// Package cache extracts EPUB archives into a content-addressed directory
// tree. Each archive is unpacked once into <root>/<md5 hex of its bytes>;
// later requests for the same bytes reuse the existing directory.
package cache

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidArchive reports bytes that are not a readable zip archive.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrUnsafePath reports an archive entry that would land outside its directory.
	ErrUnsafePath = errors.New("archive entry escapes extraction directory")
)

// Store is a content-addressed cache of extracted archives.
type Store struct {
	root string
}

// Open returns a Store rooted at the given directory.
// The directory will be created if it does not exist.
func Open(root string) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}

	return &Store{root: absRoot}, nil
}

// Key returns the cache key of an archive: the hex MD5 digest of its bytes.
// The digest matches the directory names of caches written by earlier readers.
func Key(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Root returns the root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the extraction directory for a key. It may not exist yet.
func (s *Store) Dir(key string) string {
	return filepath.Join(s.root, key)
}

// Has reports whether the archive with the given key is already extracted.
func (s *Store) Has(key string) (bool, error) {
	info, err := os.Stat(s.Dir(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
	return info.IsDir(), nil
}

// Entry describes an archive in the store.
type Entry struct {
	Key    string
	Dir    string
	Cached bool // already extracted before the call
}

// PutFile reads the archive at path and extracts it unless its key is
// already present. Repeated calls with identical bytes are no-ops.
func (s *Store) PutFile(ctx context.Context, path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("reading archive: %w", err)
	}
	return s.put(ctx, data)
}

// Remove deletes the extraction directory of key, if any.
func (s *Store) Remove(key string) error {
	if err := os.RemoveAll(s.Dir(key)); err != nil {
		return fmt.Errorf("removing cache entry: %w", err)
	}
	return nil
}

// put extracts data into the directory of its key.
func (s *Store) put(ctx context.Context, data []byte) (Entry, error) {
	key := Key(data)
	e := Entry{Key: key, Dir: s.Dir(key)}

	if ok, err := s.Has(key); err != nil {
		return Entry{}, err
	} else if ok {
		e.Cached = true
		return e, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	// Extract into a temp sibling first, then rename into place.
	tmpDir, err := os.MkdirTemp(s.root, ".tmp-"+key+"-*")
	if err != nil {
		return Entry{}, fmt.Errorf("creating temp directory: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}
		if err := extractFile(zf, tmpDir); err != nil {
			return Entry{}, err
		}
	}

	if err := os.Rename(tmpDir, e.Dir); err != nil {
		// Another reader may have extracted the same archive meanwhile.
		if ok, _ := s.Has(key); ok {
			return e, nil
		}
		return Entry{}, fmt.Errorf("renaming temp directory: %w", err)
	}

	success = true
	return e, nil
}

func extractFile(zf *zip.File, dest string) error {
	name := strings.TrimPrefix(zf.Name, "./")
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, zf.Name)
	}
	out := filepath.Join(dest, filepath.FromSlash(name))

	if zf.FileInfo().IsDir() {
		if err := os.MkdirAll(out, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", zf.Name, err)
		}
		return nil
	}

	// some badly-formed zips don't have dirs first
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", zf.Name, err)
	}

	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", zf.Name, err)
	}
	defer rc.Close()

	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return fmt.Errorf("extracting %s: %w", zf.Name, err)
	}

	return f.Close()
}
