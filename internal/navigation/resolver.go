package navigation

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/yuanying/epubread/internal/epub"
)

// Matcher decides whether a link target, with its fragment removed and
// percent-decoded, refers to a manifest href. Resolver calls Match with the
// decoded href as written in the manifest and again with the href joined to
// the package directory.
type Matcher interface {
	Match(target, href string) bool
}

// ContainmentMatcher matches by containment: the target contains the href
// (absolute URLs and file paths), or the href ends with the target at a path
// boundary (bare relative links). Overlapping file names can produce false
// positives; ExactMatcher avoids them.
type ContainmentMatcher struct{}

// Match implements Matcher.
func (ContainmentMatcher) Match(target, href string) bool {
	if target == "" || href == "" {
		return false
	}
	if strings.Contains(target, href) {
		return true
	}
	return strings.HasSuffix(href, "/"+target)
}

// ExactMatcher matches when the target and the href name the same file once
// both are made absolute against the package directory. Targets with a
// scheme other than file are never part of the book.
type ExactMatcher struct {
	BaseDir string
}

// Match implements Matcher.
func (m ExactMatcher) Match(target, href string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme != "" && u.Scheme != "file" {
		return false
	}
	if u.Path == "" || href == "" {
		return false
	}
	return m.abs(u.Path) == m.abs(href)
}

func (m ExactMatcher) abs(p string) string {
	if !filepath.IsAbs(filepath.FromSlash(p)) {
		p = path.Join(filepath.ToSlash(m.BaseDir), p)
	}
	return path.Clean(p)
}

// candidate is a spine-backed manifest item in manifest order.
type candidate struct {
	pos      int
	href     string
	resolved string
}

// Resolver maps clicked links back to spine positions.
type Resolver struct {
	matcher    Matcher
	candidates []candidate
}

// NewResolver returns a Resolver for book. A nil matcher selects
// ContainmentMatcher.
func NewResolver(book *epub.Book, matcher Matcher) *Resolver {
	if matcher == nil {
		matcher = ContainmentMatcher{}
	}

	base := filepath.ToSlash(book.BaseDir)
	var candidates []candidate
	for _, id := range book.ManifestOrder {
		pos, ok := book.SpineIndex(id)
		if !ok {
			continue
		}
		href := unescape(book.Manifest[id].Href)
		candidates = append(candidates, candidate{
			pos:      pos,
			href:     href,
			resolved: path.Clean(path.Join(base, href)),
		})
	}

	return &Resolver{matcher: matcher, candidates: candidates}
}

// Resolve returns the spine position a link points to. Links that leave the
// package, such as web addresses, report false. When several manifest items
// match, the first one in manifest order that is on the spine wins.
func (r *Resolver) Resolve(link string) (int, bool) {
	target, _ := splitFragment(link)
	target = filepath.ToSlash(unescape(target))
	if target == "" {
		return 0, false
	}

	for _, c := range r.candidates {
		if r.matcher.Match(target, c.href) || r.matcher.Match(target, c.resolved) {
			return c.pos, true
		}
	}
	return 0, false
}

// splitFragment splits a link into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}
