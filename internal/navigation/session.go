package navigation

import (
	"io"
	"log/slog"

	"github.com/yuanying/epubread/internal/epub"
)

// State is the persistable part of a Session.
type State struct {
	Position int   `json:"position"`
	History  []int `json:"history"`
}

// Session is the navigation state of one opened book. It is not safe for
// concurrent use; callers serialize actions.
//
// History policy: only link-based moves (FollowLink, Jump) are recorded.
// Next and Prev are plain steps and leave the history alone.
type Session struct {
	nav      *Navigator
	history  *History
	resolver *Resolver
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	matcher Matcher
	logger  *slog.Logger
}

// WithMatcher sets the link matcher used by the resolver.
func WithMatcher(m Matcher) Option {
	return func(o *sessionOptions) { o.matcher = m }
}

// WithLogger sets the logger for navigation events.
func WithLogger(l *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// NewSession opens a session on the first spine position.
func NewSession(book *epub.Book, opts ...Option) *Session {
	o := sessionOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	nav := NewNavigator(book)
	return &Session{
		nav:      nav,
		history:  NewHistory(nav.Position(), nav.Len()),
		resolver: NewResolver(book, o.matcher),
		logger:   o.logger,
	}
}

// Book returns the session's book.
func (s *Session) Book() *epub.Book { return s.nav.Book() }

// Position returns the current spine position.
func (s *Session) Position() int { return s.nav.Position() }

// Len returns the spine length.
func (s *Session) Len() int { return s.nav.Len() }

// Current returns the content path of the current position.
func (s *Session) Current() string { return s.nav.Current() }

// PathFor returns the content path of pos.
func (s *Session) PathFor(pos int) (string, error) { return s.nav.PathFor(pos) }

// History returns the visited positions, oldest first.
func (s *Session) History() []int { return s.history.Entries() }

// Next steps forward, stopping at the last chapter.
func (s *Session) Next() int {
	pos := s.nav.Next()
	s.logger.Debug("step", "direction", "next", "position", pos)
	return pos
}

// Prev steps back, stopping at the first chapter.
func (s *Session) Prev() int {
	pos := s.nav.Prev()
	s.logger.Debug("step", "direction", "prev", "position", pos)
	return pos
}

// Resolve maps a link to a spine position without moving.
func (s *Session) Resolve(link string) (int, bool) {
	return s.resolver.Resolve(link)
}

// FollowLink moves to the spine position a clicked link points to and
// records the move in the history. Links outside the book change nothing.
func (s *Session) FollowLink(link string) (int, bool) {
	pos, ok := s.resolver.Resolve(link)
	if !ok {
		s.logger.Debug("link outside book", "link", link, "position", s.nav.Position())
		return s.nav.Position(), false
	}

	s.moveRecorded(pos)
	s.logger.Debug("follow link", "link", link, "position", pos)
	return pos, true
}

// Jump moves to pos and records the move like a followed link.
func (s *Session) Jump(pos int) error {
	if !s.nav.InRange(pos) {
		// Goto reports the range error without moving.
		return s.nav.Goto(pos)
	}
	s.moveRecorded(pos)
	s.logger.Debug("jump", "position", pos)
	return nil
}

// Back returns to the previous history entry. After plain steps away from
// the newest entry, Back first returns to that entry without popping it.
// With nothing to go back to it reports false and the position is unchanged.
func (s *Session) Back() (int, bool) {
	if top := s.history.Top(); top != s.nav.Position() {
		_ = s.nav.Goto(top)
		s.logger.Debug("back", "position", top)
		return top, true
	}

	pos, ok := s.history.PopBack()
	if !ok {
		return s.nav.Position(), false
	}
	// History entries are always in range.
	_ = s.nav.Goto(pos)
	s.logger.Debug("back", "position", pos)
	return pos, true
}

// Observe handles the renderer reporting that it now shows link. A link
// inside the book moves the position without recording history.
func (s *Session) Observe(link string) bool {
	pos, ok := s.resolver.Resolve(link)
	if !ok {
		return false
	}
	_ = s.nav.Goto(pos)
	return true
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	return State{Position: s.nav.Position(), History: s.history.Entries()}
}

// Restore replaces the state with st. Out-of-range entries are dropped; a
// state without a usable entry leaves the session on the first position.
func (s *Session) Restore(st State) {
	entries := append([]int{}, st.History...)
	if len(entries) == 0 {
		entries = []int{st.Position}
	}

	var history *History
	for _, pos := range entries {
		if !s.nav.InRange(pos) {
			continue
		}
		if history == nil {
			history = NewHistory(pos, s.nav.Len())
			continue
		}
		history.Push(pos)
	}
	if history == nil {
		history = NewHistory(0, s.nav.Len())
	}
	s.history = history

	if err := s.nav.Goto(st.Position); err != nil {
		_ = s.nav.Goto(history.Top())
	}
}

// moveRecorded moves to pos, first recording the position being left when
// the history does not already end with it.
func (s *Session) moveRecorded(pos int) {
	s.history.Push(s.nav.Position())
	s.history.Push(pos)
	_ = s.nav.Goto(pos)
}
