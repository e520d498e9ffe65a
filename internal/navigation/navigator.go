// Package navigation holds the reading state of one opened book: the current
// spine position, the back history and the mapping of clicked links back to
// spine positions.
package navigation

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/yuanying/epubread/internal/epub"
)

// ErrOutOfRange reports a position outside [0, len(spine)).
var ErrOutOfRange = errors.New("position out of range")

// Navigator owns the current spine position of a book.
type Navigator struct {
	book *epub.Book
	pos  int
}

// NewNavigator returns a Navigator positioned on the first spine item.
func NewNavigator(book *epub.Book) *Navigator {
	return &Navigator{book: book}
}

// Book returns the book being navigated.
func (n *Navigator) Book() *epub.Book {
	return n.book
}

// Position returns the current spine position.
func (n *Navigator) Position() int {
	return n.pos
}

// Len returns the number of spine positions.
func (n *Navigator) Len() int {
	return len(n.book.Spine)
}

// InRange reports whether pos is a valid spine position.
func (n *Navigator) InRange(pos int) bool {
	return pos >= 0 && pos < len(n.book.Spine)
}

// PathFor returns the on-disk content path of the spine item at pos,
// resolved against the book's base directory.
func (n *Navigator) PathFor(pos int) (string, error) {
	if !n.InRange(pos) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, pos, n.Len())
	}

	item := n.book.Manifest[n.book.Spine[pos].IDRef]
	href, err := url.PathUnescape(item.Href)
	if err != nil {
		href = item.Href
	}
	return filepath.Join(n.book.BaseDir, filepath.FromSlash(href)), nil
}

// Current returns the content path of the current position.
func (n *Navigator) Current() string {
	// pos is always in range, PathFor cannot fail here.
	p, _ := n.PathFor(n.pos)
	return p
}

// Step moves by delta positions, clamped to the spine, and returns the new
// position. Stepping past either end leaves the position at that end.
func (n *Navigator) Step(delta int) int {
	n.pos = clamp(n.pos+delta, 0, n.Len()-1)
	return n.pos
}

// Next steps forward one position.
func (n *Navigator) Next() int {
	return n.Step(1)
}

// Prev steps back one position.
func (n *Navigator) Prev() int {
	return n.Step(-1)
}

// Goto moves to pos. An out-of-range pos leaves the position unchanged.
func (n *Navigator) Goto(pos int) error {
	if !n.InRange(pos) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, pos, n.Len())
	}
	n.pos = pos
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
