package site

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"

	"github.com/matapouriblue/matapouri-blue/internal/content"
	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

// generatedCSSHref is where the CSS editor output is served
const generatedCSSHref = "/" + content.GeneratedCSSFile

// philosophyView is philosophy content ready for templates. The text has
// been through content.Sanitize so the allowed inline markup renders.
type philosophyView struct {
	Title template.HTML
	Text1 template.HTML
	Text2 template.HTML
}

func newPhilosophyView(p content.Philosophy) *philosophyView {
	p = content.Sanitize(p)
	return &philosophyView{
		Title: template.HTML(p.Title), // nolint:gosec
		Text1: template.HTML(p.Text1), // nolint:gosec
		Text2: template.HTML(p.Text2), // nolint:gosec
	}
}

type indexData struct {
	Philosophy          *philosophyView
	ThunderforestAPIKey string
}

func (s *Server) indexData() indexData {
	return indexData{
		Philosophy:          newPhilosophyView(s.opts.Content.Load()),
		ThunderforestAPIKey: s.opts.ThunderforestAPIKey,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, http.StatusOK, "index.html", s.indexData())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, http.StatusNotFound, "index.html", s.indexData())
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, http.StatusOK, "discover.html", map[string]string{
		"ThunderforestAPIKey": s.opts.ThunderforestAPIKey,
	})
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.pages.render(w, http.StatusOK, name, nil)
	}
}

func (s *Server) handleAboutPage(w http.ResponseWriter, r *http.Request) {
	name, ok := aboutPages[chi.URLParam(r, "page")]
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	s.pages.render(w, http.StatusOK, name, nil)
}

// handleEditor serves a standalone editor page from the project directory,
// linking the generated stylesheet once the CSS editor has produced one.
func (s *Server) handleEditor(file string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := os.ReadFile(filepath.Join(s.opts.ProjectDir, file))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.handleNotFound(w, r)
				return
			}
			logger.Error("Reading editor page failed", logger.Fields{"file": file}, err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if s.opts.Content.HasCSS() {
			injected, err := injectStylesheet(page, generatedCSSHref)
			if err != nil {
				logger.Warn("Injecting generated CSS failed", logger.Fields{"file": file, "error": err.Error()})
			} else {
				page = injected
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page) // nolint:errcheck
	}
}

// injectStylesheet appends a stylesheet link to the document head unless the
// page already links href.
func injectStylesheet(page []byte, href string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	if doc.Find(fmt.Sprintf("link[href=%q]", href)).Length() > 0 {
		return page, nil
	}
	doc.Find("head").AppendHtml(fmt.Sprintf(`<link rel="stylesheet" href="%s">`, template.HTMLEscapeString(href)))

	html, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}
	return []byte(html), nil
}
