package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuanying/epubread/internal/metrics"
	"github.com/yuanying/epubread/internal/navigation"
	"github.com/yuanying/epubread/internal/render"
)

const linkEndpoint = "/link"

var prepareChapter = render.PrepareChapter

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	target := s.chapterURL(s.session.Position())
	s.mu.Unlock()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handleBook serves files of the extracted book. Chapters are prepared for
// display, and requesting one tells the session the renderer moved there.
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/book/")
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		http.NotFound(w, r)
		return
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if !isChapter(rel) {
		http.ServeFile(w, r, full)
		return
	}

	content, err := os.ReadFile(full)
	if err != nil {
		s.logger.Error("reading chapter", "path", rel, "error", err)
		http.Error(w, "failed to read chapter", http.StatusInternalServerError)
		return
	}

	html, err := prepareChapter(content, rel, render.ChapterOptions{
		Stylesheet:   s.opts.Stylesheet,
		LinkEndpoint: linkEndpoint,
	})
	if err != nil {
		s.logger.Error("preparing chapter", "path", rel, "error", err)
		http.Error(w, "failed to prepare chapter", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	before := s.session.Position()
	if s.session.Observe(full) && s.session.Position() != before {
		s.changed("observe")
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(html)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, "next", s.session.Next)
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	s.step(w, r, "prev", s.session.Prev)
}

func (s *Server) step(w http.ResponseWriter, r *http.Request, action string, move func() int) {
	s.mu.Lock()
	before := s.session.Position()
	pos := move()
	if pos != before {
		s.changed(action)
	}
	target := s.chapterURL(pos)
	s.mu.Unlock()

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	pos, ok := s.session.Back()
	if ok {
		s.changed("back")
	}
	target := s.chapterURL(pos)
	s.mu.Unlock()

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleGoto(w http.ResponseWriter, r *http.Request) {
	pos, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		http.Error(w, "invalid position", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	err = s.session.Jump(pos)
	if err == nil {
		s.changed("jump")
	}
	target := s.chapterURL(s.session.Position())
	s.mu.Unlock()

	if errors.Is(err, navigation.ErrOutOfRange) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// handleLink follows a clicked link. href is either an absolute URL or a
// path relative to the archive root. Links to other parts of the book move
// the session; external web links are handed back to the browser and
// anything else leaves the reader where it is.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	href := r.URL.Query().Get("href")
	if href == "" {
		http.Error(w, "missing href", http.StatusBadRequest)
		return
	}

	link, fragment, external := s.linkFor(href)

	s.mu.Lock()
	pos, ok := s.session.FollowLink(link)
	metrics.RecordLinkResolution(ok)
	if ok {
		s.changed("link")
	}
	target := s.chapterURL(pos)
	s.mu.Unlock()

	switch {
	case ok && fragment != "":
		target += "#" + fragment
	case !ok && external:
		target = href
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// linkFor turns a rewritten href into the link handed to the resolver:
// archive paths become on-disk paths under the book root.
func (s *Server) linkFor(href string) (link, fragment string, external bool) {
	u, err := url.Parse(href)
	if err != nil {
		return href, "", false
	}
	if u.Scheme != "" || u.Host != "" {
		return href, "", u.Scheme == "http" || u.Scheme == "https"
	}

	p, fragment, _ := strings.Cut(href, "#")
	return filepath.Join(s.root, filepath.FromSlash(p)), fragment, false
}

type tocEntry struct {
	Position int
	Label    string
	Href     string
	Linear   bool
	Current  bool
}

var tocTemplate = template.Must(template.New("toc").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .Creators}}<p>{{range $i, $c := .Creators}}{{if $i}}, {{end}}{{$c}}{{end}}</p>{{end}}
<ol start="0">
{{range .Entries}}<li{{if .Current}} class="current"{{end}}><a href="/goto/{{.Position}}" title="{{.Href}}">{{.Label}}</a>{{if not .Linear}} (auxiliary){{end}}</li>
{{end}}</ol>
<p><a href="/">Continue reading</a></p>
</body>
</html>
`))

func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	current := s.session.Position()
	s.mu.Unlock()

	data := struct {
		Title    string
		Creators []string
		Entries  []tocEntry
	}{Title: s.book.Title}

	for _, c := range s.book.Metadata.Creators {
		data.Creators = append(data.Creators, c.Name)
	}
	for i, ref := range s.book.Spine {
		item := s.book.Manifest[ref.IDRef]
		label, ok := s.labels[i]
		if !ok {
			label = item.Href
		}
		data.Entries = append(data.Entries, tocEntry{
			Position: i,
			Label:    label,
			Href:     item.Href,
			Linear:   ref.Linear,
			Current:  i == current,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tocTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render table of contents", "error", err)
	}
}

// StateResponse is the body of /state.
type StateResponse struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
	Length   int    `json:"length"`
	History  []int  `json:"history"`
	Chapter  string `json:"chapter"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	st := s.session.Snapshot()
	resp := StateResponse{
		Title:    s.book.Title,
		Position: st.Position,
		Length:   s.session.Len(),
		History:  st.History,
		Chapter:  s.chapterURL(st.Position),
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleCover serves a thumbnail of the cover image, or the image itself
// when it cannot be scaled.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	cover := s.book.DetectCover()
	if cover == nil {
		http.NotFound(w, r)
		return
	}

	href, err := url.PathUnescape(cover.Href)
	if err != nil {
		href = cover.Href
	}
	full := filepath.Join(s.book.BaseDir, filepath.FromSlash(path.Clean(href)))
	data, err := os.ReadFile(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	thumb, err := render.Thumbnail(data, s.opts.CoverWidth)
	if err != nil {
		s.logger.Warn("cover thumbnail failed, serving original", "href", cover.Href, "error", err)
		w.Header().Set("Content-Type", cover.MediaType)
		_, _ = w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(thumb)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "ok")
}

func isChapter(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xhtml", ".html", ".htm":
		return true
	}
	return false
}
