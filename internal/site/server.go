package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matapouriblue/matapouri-blue/internal/backup"
	"github.com/matapouriblue/matapouri-blue/internal/content"
	"github.com/matapouriblue/matapouri-blue/internal/github"
	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

// Pusher publishes the project directory to the backup repository
type Pusher interface {
	Push(ctx context.Context, projectDir string) ([]string, error)
}

// TokenChecker reports what the configured GitHub token can do
type TokenChecker interface {
	CheckToken(ctx context.Context) (*github.TokenStatus, error)
}

// Options wires the server to its stores and remote integrations
type Options struct {
	ProjectDir          string
	ThunderforestAPIKey string
	// RepoURL is reported to the browser after a successful push
	RepoURL string

	Backups *backup.Store
	Content *content.Store
	Pusher  Pusher
	Tokens  TokenChecker

	// ProjectFiles are captured by POST /create-backup; nil means backup.ProjectFiles
	ProjectFiles []string
	// ArchiveFiles are zipped by GET /download-project; nil means archive.DefaultFiles
	ArchiveFiles []string
}

// Server is the website
type Server struct {
	opts   Options
	pages  *renderer
	router chi.Router
	log    *logger.Logger
}

// simplePages maps routes to templates rendered without data
var simplePages = map[string]string{
	"/about":              "about.html",
	"/how-to-book":        "how_to_book.html",
	"/check-availability": "check_availability.html",
	"/contact":            "contact.html",
	"/text-editor":        "text_editor.html",
}

// aboutPages maps /about/{page} slugs to templates
var aboutPages = map[string]string{
	"unique-holiday-experience":    "about/unique_holiday_experience.html",
	"accommodation-and-facilities": "about/accommodation_and_facilities.html",
	"discover-kinloch":             "about/discover_kinloch.html",
	"your-hosts":                   "about/your_hosts.html",
	"room-rates":                   "about/room_rates.html",
	"booking-times":                "about/booking_times.html",
	"cancellation-policy":          "about/cancellation_policy.html",
	"transport":                    "about/transport.html",
	"respite-studio-guidelines":    "about/respite_studio_guidelines.html",
}

// editorPages maps routes to standalone HTML files in the project directory
var editorPages = map[string]string{
	"/standalone-text-editor": "standalone_text_editor.html",
	"/aarons-word-processor":  "aarons_word_processor.html",
	"/simple-text-editor":     "simple_text_editor.html",
	"/philosophy-text-editor": "philosophy_editor.html",
}

// New creates a Server. Backups and Content are required.
func New(opts Options) (*Server, error) {
	if opts.Backups == nil || opts.Content == nil {
		return nil, fmt.Errorf("site: backup and content stores are required")
	}
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}

	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:  opts,
		pages: pages,
		log:   logger.Default().With(logger.Fields{"component": "http"}),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the site
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/discover", s.handleDiscover)
	for path, tmpl := range simplePages {
		r.Get(path, s.handlePage(tmpl))
	}
	r.Get("/about/{page}", s.handleAboutPage)
	for path, file := range editorPages {
		r.Get(path, s.handleEditor(file))
	}

	r.Handle("/static/*", s.fileServer("/static/", "static"))
	r.Handle("/attached_assets/*", s.fileServer("/attached_assets/", "attached_assets"))

	r.Post("/save-philosophy", s.handleSavePhilosophy)
	r.Post("/apply-philosophy-text", s.handleApplyPhilosophyText)
	r.Post("/apply-css", s.handleApplyCSS)

	r.Get("/backup-dashboard", s.handleBackupDashboard)
	r.Get("/restore-philosophy", s.handleRestorePhilosophy)
	r.Post("/create-backup", s.handleCreateBackup)
	r.Get("/download-project", s.handleDownloadProject)

	r.Post("/push-to-github", s.handlePushToGitHub)
	r.Get("/test-github-token", s.handleTestGitHubToken)

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(s.handleNotFound)
	return r
}

func (s *Server) fileServer(prefix, dir string) http.Handler {
	root := http.Dir(filepath.Join(s.opts.ProjectDir, dir))
	return http.StripPrefix(prefix, http.FileServer(root))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("Server listening", logger.Fields{"addr": addr, "project_dir": s.opts.ProjectDir})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
		s.log.Info("Shutting down server", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
