package site

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

//go:embed templates
var templateFS embed.FS

const baseTemplate = "templates/base.html"

// renderer holds one template set per page, each layered over base.html
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	var files []string
	for _, pattern := range []string{"templates/*.html", "templates/about/*.html"} {
		matches, err := fs.Glob(templateFS, pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}

	r := &renderer{pages: make(map[string]*template.Template, len(files))}
	for _, file := range files {
		if file == baseTemplate {
			continue
		}
		t, err := template.ParseFS(templateFS, baseTemplate, file)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", file, err)
		}
		r.pages[strings.TrimPrefix(file, "templates/")] = t
	}
	return r, nil
}

// render executes the named page into a buffer first so a template error
// never leaves a half-written response.
func (r *renderer) render(w http.ResponseWriter, status int, name string, data interface{}) {
	t, ok := r.pages[name]
	if !ok {
		logger.Error("Unknown template", logger.Fields{"template": name}, nil)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base.html", data); err != nil {
		logger.Error("Rendering template failed", logger.Fields{"template": name}, err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w) // nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Encoding JSON response failed", logger.Fields{"error": err.Error()})
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
