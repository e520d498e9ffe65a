// Package server serves an opened book to a browser, which acts as the
// renderer. Navigation requests drive the reading session and answer with a
// redirect to the chapter now current.
//
// Routes:
//   - /           - redirect to the current chapter
//   - /book/*     - files of the extracted book (chapters are prepared)
//   - /next       - next chapter
//   - /prev       - previous chapter
//   - /back       - previous history entry
//   - /goto/{pos} - jump to a spine position
//   - /link       - follow a clicked link (?href=)
//   - /toc        - spine listing with table of contents labels
//   - /state      - reading state (JSON)
//   - /cover      - cover thumbnail
//   - /health     - health check
//   - /metrics    - Prometheus metrics
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuanying/epubread/internal/epub"
	"github.com/yuanying/epubread/internal/metrics"
	"github.com/yuanying/epubread/internal/navigation"
)

// Options configures a Server.
type Options struct {
	// Stylesheet is injected into every chapter.
	Stylesheet string
	// CoverWidth is the cover thumbnail width in pixels.
	CoverWidth int
	// OnChange is called with the new state after every navigation that
	// changed it, while the session lock is held.
	OnChange func(navigation.State)
}

// Server serves one book.
type Server struct {
	// mu serialises every request touching the session.
	mu      sync.Mutex
	session *navigation.Session

	book   *epub.Book
	labels map[int]string
	root   string
	opts   Options
	logger *slog.Logger
	router chi.Router
	http   *http.Server
}

// New creates a Server for session. root is the directory the book archive
// was extracted to.
func New(session *navigation.Session, root string, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		session: session,
		book:    session.Book(),
		root:    root,
		opts:    opts,
		logger:  logger,
	}
	s.labels = s.loadLabels()
	s.router = s.routes()
	s.http = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(s.LoggerMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/book/*", s.handleBook)
	r.Get("/next", s.handleNext)
	r.Get("/prev", s.handlePrev)
	r.Get("/back", s.handleBack)
	r.Get("/goto/{position}", s.handleGoto)
	r.Get("/link", s.handleLink)
	r.Get("/toc", s.handleTOC)
	r.Get("/state", s.handleState)
	r.Get("/cover", s.handleCover)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until Shutdown is called. Serving after
// Shutdown returns immediately.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("serving book",
		"title", s.book.Title,
		"url", "http://"+ln.Addr().String()+"/")

	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Snapshot returns the current reading state.
func (s *Server) Snapshot() navigation.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Snapshot()
}

// loadLabels reads the table of contents once; a book without a usable one
// is listed by href.
func (s *Server) loadLabels() map[int]string {
	ncx, err := s.book.LoadNavigation()
	if err != nil {
		s.logger.Warn("failed to load table of contents", "error", err)
	}
	return ncx.SpineLabels(s.book)
}

// chapterURL returns the /book URL of the spine item at pos.
func (s *Server) chapterURL(pos int) string {
	item, ok := s.book.SpineItemAt(pos)
	if !ok {
		return "/toc"
	}
	return "/book/" + path.Join(path.Dir(s.book.PackagePath), item.Href)
}

// changed records a navigation and reports the new state. Callers hold mu.
func (s *Server) changed(action string) {
	pos := s.session.Position()
	metrics.RecordNavigation(action, pos)
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.session.Snapshot())
	}
}
