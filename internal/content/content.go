package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

const (
	// PhilosophyFile is the philosophy content path relative to the project dir.
	PhilosophyFile = "static/philosophy_content.json"
	// GeneratedCSSFile is the CSS editor output path relative to the project dir.
	GeneratedCSSFile = "static/css/text_editor_generated.css"
)

// ErrEmptyCSS is returned when the CSS editor submits no content
var ErrEmptyCSS = errors.New("no CSS content provided")

// Philosophy is the "our name, our philosophy" block on the homepage
type Philosophy struct {
	Title string `json:"title"`
	Text1 string `json:"text1"`
	Text2 string `json:"text2"`
}

// DefaultPhilosophy is shown until the editor has saved anything
var DefaultPhilosophy = Philosophy{
	Title: "Our name, our philosophy",
	Text1: "Inspired by the philosophy of Japanese Bonsai, the Matapouri Blue Totara found on our land, and the deep blue of the lake, our name and place reflect the values we hold dear.",
	Text2: "Life isn't always easy—but with strong roots, a sense of direction, and the courage to shape new growth, we believe each person can define their own path and future.",
}

// Payload returns the philosophy as a backup payload
func (p Philosophy) Payload() map[string]interface{} {
	return map[string]interface{}{
		"title": p.Title,
		"text1": p.Text1,
		"text2": p.Text2,
	}
}

// PhilosophyFromPayload extracts the philosophy fields from a backup payload.
// Missing or non-string fields are left empty.
func PhilosophyFromPayload(payload map[string]interface{}) Philosophy {
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}
	return Philosophy{
		Title: str("title"),
		Text1: str("text1"),
		Text2: str("text2"),
	}
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "em", "strong", "br", "p")
	return p
}()

// Sanitize strips markup other than basic inline formatting and trims
// surrounding whitespace. The result is safe to render unescaped.
func Sanitize(p Philosophy) Philosophy {
	clean := func(s string) string {
		return strings.TrimSpace(textPolicy.Sanitize(s))
	}
	return Philosophy{
		Title: clean(p.Title),
		Text1: clean(p.Text1),
		Text2: clean(p.Text2),
	}
}

// Unescaped reverses the entity escaping Sanitize applies, giving the text
// back in the form the editor submitted it. Allowed formatting tags remain.
func (p Philosophy) Unescaped() Philosophy {
	return Philosophy{
		Title: html.UnescapeString(p.Title),
		Text1: html.UnescapeString(p.Text1),
		Text2: html.UnescapeString(p.Text2),
	}
}

// Store reads and writes content files under a project directory
type Store struct {
	projectDir string
}

// NewStore creates a Store for the given project directory
func NewStore(projectDir string) *Store {
	return &Store{projectDir: projectDir}
}

// PhilosophyPath returns the absolute-or-relative path of the philosophy file
func (s *Store) PhilosophyPath() string {
	return filepath.Join(s.projectDir, filepath.FromSlash(PhilosophyFile))
}

// CSSPath returns the path of the generated stylesheet
func (s *Store) CSSPath() string {
	return filepath.Join(s.projectDir, filepath.FromSlash(GeneratedCSSFile))
}

// Load returns the saved philosophy content. A missing or unreadable file
// yields DefaultPhilosophy; fields absent from the file keep their defaults.
func (s *Store) Load() Philosophy {
	p := DefaultPhilosophy

	data, err := os.ReadFile(s.PhilosophyPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Reading philosophy content failed", logger.Fields{"error": err.Error()})
		}
		return p
	}

	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn("Parsing philosophy content failed", logger.Fields{"error": err.Error()})
		return DefaultPhilosophy
	}
	return p
}

// Save writes the philosophy content to disk
func (s *Store) Save(p Philosophy) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding philosophy content: %w", err)
	}

	path := s.PhilosophyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating static directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing philosophy content: %w", err)
	}
	return nil
}

// WriteCSS stores the stylesheet produced by the CSS editor
func (s *Store) WriteCSS(css string) error {
	if strings.TrimSpace(css) == "" {
		return ErrEmptyCSS
	}

	path := s.CSSPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating css directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(css), 0644); err != nil {
		return fmt.Errorf("writing css: %w", err)
	}
	return nil
}

// HasCSS reports whether the CSS editor has produced a stylesheet
func (s *Store) HasCSS() bool {
	info, err := os.Stat(s.CSSPath())
	return err == nil && info.Mode().IsRegular()
}
