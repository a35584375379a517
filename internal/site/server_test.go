package site

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/matapouriblue/matapouri-blue/internal/backup"
	"github.com/matapouriblue/matapouri-blue/internal/content"
	"github.com/matapouriblue/matapouri-blue/internal/github"
	"github.com/matapouriblue/matapouri-blue/internal/gitpush"
)

type fakePusher struct {
	files []string
	err   error
	dirs  []string
}

func (f *fakePusher) Push(ctx context.Context, projectDir string) ([]string, error) {
	f.dirs = append(f.dirs, projectDir)
	return f.files, f.err
}

type fakeTokens struct {
	status *github.TokenStatus
	err    error
}

func (f fakeTokens) CheckToken(ctx context.Context) (*github.TokenStatus, error) {
	return f.status, f.err
}

func writeProjectFile(t *testing.T, dir, rel, data string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T, mutate func(o *Options)) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		ProjectDir:          dir,
		ThunderforestAPIKey: "tf-test-key",
		RepoURL:             "https://github.com/MatapouriBlue/Backup",
		Backups:             backup.New(filepath.Join(dir, "backups")),
		Content:             content.NewStore(dir),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, dir
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return got
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("parsing html: %v", err)
	}
	return doc
}

func TestNew_RequiresStores(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without stores should fail")
	}
}

func TestPages(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		path     string
		status   int
		selector string
		want     string
	}{
		{"/", http.StatusOK, "#philosophy-title", content.DefaultPhilosophy.Title},
		{"/about", http.StatusOK, "h1", "About Matapouri Blue"},
		{"/about/room-rates", http.StatusOK, "h1", "Room rates"},
		{"/about/cancellation-policy", http.StatusOK, "h1", "Cancellation policy: 100% refund"},
		{"/about/respite-studio-guidelines", http.StatusOK, "h1", "Respite studio guidelines"},
		{"/how-to-book", http.StatusOK, "h1", "How to book"},
		{"/check-availability", http.StatusOK, "h1", "Check availability"},
		{"/contact", http.StatusOK, "h1", "Contact us"},
		{"/text-editor", http.StatusOK, "#apply-css", "Apply CSS"},
		{"/discover", http.StatusOK, "h1", "Discover Kinloch"},
		{"/about/no-such-page", http.StatusNotFound, "#philosophy-title", content.DefaultPhilosophy.Title},
		{"/nowhere", http.StatusNotFound, "#philosophy-title", content.DefaultPhilosophy.Title},
		{"/standalone-text-editor", http.StatusNotFound, "#philosophy-title", content.DefaultPhilosophy.Title},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("Content-Type = %q", ct)
			}
			got := strings.TrimSpace(parseHTML(t, rec).Find(tt.selector).First().Text())
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.selector, got, tt.want)
			}
		})
	}
}

func TestPages_ThunderforestKey(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, path := range []string{"/", "/discover"} {
		doc := parseHTML(t, do(t, s, http.MethodGet, path, ""))
		if key, _ := doc.Find("#kinloch-map").Attr("data-api-key"); key != "tf-test-key" {
			t.Errorf("%s map key = %q", path, key)
		}
	}
}

func TestSavePhilosophy(t *testing.T) {
	s, dir := newTestServer(t, nil)

	body := `{"title":"Deep roots","text1":"<b>Bold</b> growth<script>alert(1)</script>","text2":"Shape the future"}`
	rec := do(t, s, http.MethodPost, "/save-philosophy", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody(t, rec)
	if got["success"] != true || got["backup"] != "Content backed up to file successfully" {
		t.Fatalf("response = %v", got)
	}

	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(content.PhilosophyFile))); err != nil {
		t.Errorf("philosophy file not written: %v", err)
	}
	if names := s.opts.Backups.ListSnapshots(); len(names) != 1 || !strings.HasPrefix(names[0], "philosophy_content_") {
		t.Errorf("ListSnapshots() = %v", names)
	}

	doc := parseHTML(t, do(t, s, http.MethodGet, "/", ""))
	if doc.Find("#philosophy-text1 b").Length() != 1 {
		t.Error("allowed markup not rendered")
	}
	if doc.Find("#philosophy-text1 script").Length() != 0 {
		t.Error("script survived sanitizing")
	}
	if title := doc.Find("#philosophy-title").Text(); title != "Deep roots" {
		t.Errorf("title = %q", title)
	}

	restored := decodeBody(t, do(t, s, http.MethodGet, "/restore-philosophy", ""))
	if restored["success"] != true {
		t.Fatalf("restore = %v", restored)
	}
	philosophy := restored["philosophy"].(map[string]interface{})
	if philosophy["title"] != "Deep roots" || philosophy["text2"] != "Shape the future" {
		t.Errorf("restored philosophy = %v", philosophy)
	}
	if ts, _ := restored["timestamp"].(string); ts == "" {
		t.Error("restored timestamp empty")
	}
}

func TestSavePhilosophy_BackupFailure(t *testing.T) {
	s, dir := newTestServer(t, func(o *Options) {
		root := filepath.Join(o.ProjectDir, "not-a-dir")
		if err := os.WriteFile(root, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		o.Backups = backup.New(root)
	})

	got := decodeBody(t, do(t, s, http.MethodPost, "/save-philosophy", `{"title":"T","text1":"a","text2":"b"}`))
	if got["success"] != true || got["backup"] != "Content saved locally (backup failed)" {
		t.Errorf("response = %v", got)
	}
	if p := content.NewStore(dir).Load(); p.Title != "T" {
		t.Errorf("primary save lost: %+v", p)
	}
}

func TestSavePhilosophy_InvalidBody(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, path := range []string{"/save-philosophy", "/apply-philosophy-text", "/apply-css"} {
		rec := do(t, s, http.MethodPost, path, `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d", path, rec.Code)
		}
		if got := decodeBody(t, rec); got["success"] != false {
			t.Errorf("%s response = %v", path, got)
		}
	}
	if names := s.opts.Backups.ListSnapshots(); len(names) != 0 {
		t.Errorf("ListSnapshots() = %v, want none", names)
	}
}

func TestApplyPhilosophyText_NoBackup(t *testing.T) {
	s, dir := newTestServer(t, nil)

	got := decodeBody(t, do(t, s, http.MethodPost, "/apply-philosophy-text", `{"title":"Applied","text1":"x","text2":"y"}`))
	if got["success"] != true {
		t.Fatalf("response = %v", got)
	}
	if p := content.NewStore(dir).Load(); p.Title != "Applied" {
		t.Errorf("Load() = %+v", p)
	}
	if names := s.opts.Backups.ListSnapshots(); len(names) != 0 {
		t.Errorf("apply should not back up, got %v", names)
	}
}

func TestRestorePhilosophy_PlainText(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/save-philosophy", `{"title":"Life isn't always easy","text1":"Roots & <b>growth</b>","text2":"b"}`)

	got := decodeBody(t, do(t, s, http.MethodGet, "/restore-philosophy", ""))
	philosophy, _ := got["philosophy"].(map[string]interface{})
	if philosophy["title"] != "Life isn't always easy" {
		t.Errorf("restored title = %q", philosophy["title"])
	}
	if philosophy["text1"] != "Roots & <b>growth</b>" {
		t.Errorf("restored text1 = %q", philosophy["text1"])
	}
}

func TestRestorePhilosophy_NoBackup(t *testing.T) {
	s, _ := newTestServer(t, nil)

	got := decodeBody(t, do(t, s, http.MethodGet, "/restore-philosophy", ""))
	if got["success"] != false || got["error"] != "no backup available" {
		t.Errorf("response = %v", got)
	}
}

func TestApplyCSS_InjectsIntoEditors(t *testing.T) {
	s, dir := newTestServer(t, nil)
	writeProjectFile(t, dir, "philosophy_editor.html", `<html><head><title>Editor</title></head><body><p>edit</p></body></html>`)
	writeProjectFile(t, dir, "simple_text_editor.html", `<html><head><link rel="stylesheet" href="/static/css/text_editor_generated.css"></head><body></body></html>`)

	doc := parseHTML(t, do(t, s, http.MethodGet, "/philosophy-text-editor", ""))
	if doc.Find(`link[href="/static/css/text_editor_generated.css"]`).Length() != 0 {
		t.Error("stylesheet linked before any CSS was applied")
	}

	got := decodeBody(t, do(t, s, http.MethodPost, "/apply-css", `{"css":"   "}`))
	if got["success"] != false || got["error"] != "No CSS content provided" {
		t.Errorf("empty css response = %v", got)
	}

	got = decodeBody(t, do(t, s, http.MethodPost, "/apply-css", `{"css":"h1 { color: navy; }"}`))
	if got["success"] != true {
		t.Fatalf("apply css response = %v", got)
	}
	css, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(content.GeneratedCSSFile)))
	if err != nil || string(css) != "h1 { color: navy; }" {
		t.Fatalf("generated css = %q (%v)", css, err)
	}

	for _, path := range []string{"/philosophy-text-editor", "/simple-text-editor"} {
		doc := parseHTML(t, do(t, s, http.MethodGet, path, ""))
		if n := doc.Find(`head link[href="/static/css/text_editor_generated.css"]`).Length(); n != 1 {
			t.Errorf("%s has %d generated stylesheet links, want 1", path, n)
		}
	}

	rec := do(t, s, http.MethodGet, "/static/css/text_editor_generated.css", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "h1 { color: navy; }" {
		t.Errorf("static css = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStaticAndAssets(t *testing.T) {
	s, dir := newTestServer(t, nil)
	writeProjectFile(t, dir, "static/js/carousel.js", "// carousel")
	writeProjectFile(t, dir, "attached_assets/Blue heron_1752719468329.jpeg", "jpeg")

	if rec := do(t, s, http.MethodGet, "/static/js/carousel.js", ""); rec.Body.String() != "// carousel" {
		t.Errorf("carousel.js = %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/attached_assets/Blue%20heron_1752719468329.jpeg", ""); rec.Body.String() != "jpeg" {
		t.Errorf("asset = %d %q", rec.Code, rec.Body.String())
	}
}

func TestCreateBackupAndDashboard(t *testing.T) {
	s, dir := newTestServer(t, func(o *Options) {
		o.ProjectFiles = []string{"static/css/style.css", "missing.html"}
	})
	writeProjectFile(t, dir, "static/css/style.css", "body {}")

	got := decodeBody(t, do(t, s, http.MethodPost, "/create-backup", ""))
	if got["success"] != true || got["message"] != "Project backup created successfully" {
		t.Fatalf("response = %v", got)
	}
	name, _ := got["backup"].(string)
	if !strings.HasPrefix(name, "full_project_") {
		t.Errorf("backup name = %q", name)
	}

	do(t, s, http.MethodPost, "/save-philosophy", `{"title":"Dashboard title","text1":"a","text2":"b"}`)

	rec := do(t, s, http.MethodGet, "/backup-dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := parseHTML(t, rec)
	if n := doc.Find(".file-backups li").Length(); n != 2 {
		t.Errorf("dashboard lists %d backups, want 2", n)
	}
	if title := doc.Find(".latest-philosophy h3").Text(); title != "Dashboard title" {
		t.Errorf("latest title = %q", title)
	}
}

func TestCreateBackup_Failure(t *testing.T) {
	s, _ := newTestServer(t, func(o *Options) {
		root := filepath.Join(o.ProjectDir, "not-a-dir")
		if err := os.WriteFile(root, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		o.Backups = backup.New(root)
	})

	got := decodeBody(t, do(t, s, http.MethodPost, "/create-backup", ""))
	if got["success"] != false || got["error"] != "Backup creation failed" {
		t.Errorf("response = %v", got)
	}

	rec := do(t, s, http.MethodGet, "/backup-dashboard", "")
	if rec.Code != http.StatusOK || parseHTML(t, rec).Find(".empty").Length() != 1 {
		t.Errorf("dashboard with broken root = %d", rec.Code)
	}
}

func TestDownloadProject(t *testing.T) {
	s, dir := newTestServer(t, func(o *Options) {
		o.ArchiveFiles = []string{"static/css/style.css", "missing.html"}
	})
	writeProjectFile(t, dir, "static/css/style.css", "body {}")
	do(t, s, http.MethodPost, "/save-philosophy", `{"title":"Zip","text1":"a","text2":"b"}`)

	rec := do(t, s, http.MethodGet, "/download-project", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="matapouri-blue-project.zip"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("reading zip: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["static/css/style.css"] || !names["backups/philosophy_content_latest.json"] {
		t.Errorf("zip entries = %v", names)
	}
	if names["missing.html"] {
		t.Error("missing file archived")
	}
}

func TestConfigFileNotPublished(t *testing.T) {
	const token = "ghp_configured0123"
	s, dir := newTestServer(t, nil)
	writeProjectFile(t, dir, "matapouri.yaml", "github:\n  token: "+token+"\n")
	writeProjectFile(t, dir, "static/css/style.css", "body {}")

	rec := do(t, s, http.MethodGet, "/download-project", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("reading zip: %v", err)
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading %s: %v", f.Name, err)
		}
		if f.Name == "matapouri.yaml" || strings.Contains(string(data), token) {
			t.Errorf("zip entry %s exposes the config file", f.Name)
		}
	}

	got := decodeBody(t, do(t, s, http.MethodPost, "/create-backup", ""))
	if got["success"] != true {
		t.Fatalf("create-backup = %v", got)
	}
	records, err := filepath.Glob(filepath.Join(dir, "backups", "full_project_*.json"))
	if err != nil || len(records) == 0 {
		t.Fatalf("no full_project records (%v)", err)
	}
	for _, path := range records {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), token) {
			t.Errorf("%s stores the GitHub token", filepath.Base(path))
		}
	}
}

func TestPushToGitHub(t *testing.T) {
	many := make([]string, 12)
	for i := range many {
		many[i] = fmt.Sprintf("static/img/%02d.jpeg", i)
	}

	tests := []struct {
		name   string
		pusher Pusher
		want   map[string]interface{}
	}{
		{
			name:   "uploaded",
			pusher: &fakePusher{files: many},
			want: map[string]interface{}{
				"success":     true,
				"message":     "Successfully uploaded 12 files to GitHub!",
				"total_files": float64(12),
				"repo":        "https://github.com/MatapouriBlue/Backup",
			},
		},
		{
			name:   "up to date",
			pusher: &fakePusher{err: gitpush.ErrNoChanges},
			want:   map[string]interface{}{"success": true, "message": "No changes to push - repository is up to date"},
		},
		{
			name:   "api without token",
			pusher: &fakePusher{err: github.ErrNoToken},
			want:   map[string]interface{}{"success": false, "error": "GitHub token not found"},
		},
		{
			name:   "git without token",
			pusher: &fakePusher{err: gitpush.ErrNoToken},
			want:   map[string]interface{}{"success": false, "error": "GitHub token not found"},
		},
		{
			name:   "nothing uploaded",
			pusher: &fakePusher{err: fmt.Errorf("push: %w", github.ErrNothingUploaded)},
			want:   map[string]interface{}{"success": false, "error": "No files were uploaded"},
		},
		{
			name:   "other failure",
			pusher: &fakePusher{err: errors.New("boom")},
			want:   map[string]interface{}{"success": false, "error": "GitHub upload failed: boom"},
		},
		{
			name: "not configured",
			want: map[string]interface{}{"success": false, "error": "GitHub push is not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dir := newTestServer(t, func(o *Options) { o.Pusher = tt.pusher })

			got := decodeBody(t, do(t, s, http.MethodPost, "/push-to-github", ""))
			for key, want := range tt.want {
				if got[key] != want {
					t.Errorf("%s = %v, want %v", key, got[key], want)
				}
			}
			if tt.name == "uploaded" {
				if files := got["files"].([]interface{}); len(files) != 10 {
					t.Errorf("files preview has %d entries, want 10", len(files))
				}
				if fp := tt.pusher.(*fakePusher); len(fp.dirs) != 1 || fp.dirs[0] != dir {
					t.Errorf("pushed dirs = %v", fp.dirs)
				}
			}
		})
	}
}

func TestTestGitHubToken(t *testing.T) {
	tests := []struct {
		name   string
		tokens TokenChecker
		want   map[string]interface{}
	}{
		{
			name:   "valid",
			tokens: fakeTokens{status: &github.TokenStatus{Login: "matapouri", Permissions: []string{"pull", "push"}}},
			want:   map[string]interface{}{"success": true, "username": "matapouri", "permissions": "pull, push"},
		},
		{
			name:   "no token",
			tokens: fakeTokens{err: github.ErrNoToken},
			want:   map[string]interface{}{"success": false, "error": "No GitHub token found in secrets"},
		},
		{
			name:   "no repo access",
			tokens: fakeTokens{err: github.ErrRepoAccess},
			want:   map[string]interface{}{"success": false, "error": "Cannot access repository"},
		},
		{
			name:   "invalid token",
			tokens: fakeTokens{err: errors.New("token invalid (status 401)")},
			want:   map[string]interface{}{"success": false, "error": "token invalid (status 401)"},
		},
		{
			name: "not configured",
			want: map[string]interface{}{"success": false, "error": "No GitHub token found in secrets"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, func(o *Options) { o.Tokens = tt.tokens })

			got := decodeBody(t, do(t, s, http.MethodGet, "/test-github-token", ""))
			for key, want := range tt.want {
				if got[key] != want {
					t.Errorf("%s = %v, want %v", key, got[key], want)
				}
			}
		})
	}
}

func TestRecoverer(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.router.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	rec := do(t, s, http.MethodGet, "/panic", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if parseHTML(t, rec).Find("#philosophy").Length() != 1 {
		t.Error("panic did not render the index page")
	}
}

func TestRecoverer_AfterHeaders(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.router.Get("/partial", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("partial")) // nolint:errcheck
		panic("handler exploded mid-response")
	})

	rec := do(t, s, http.MethodGet, "/partial", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want the status already sent", rec.Code)
	}
	if rec.Body.String() != "partial" {
		t.Errorf("body = %q, want only the partial response", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s, http.MethodGet, "/about", "")
	do(t, s, http.MethodPost, "/save-philosophy", `{"title":"m","text1":"a","text2":"b"}`)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`matapouri_http_requests_total{method="GET",route="/about",status="200"}`,
		"matapouri_backup_operations_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestInjectStylesheet_NoHead(t *testing.T) {
	out, err := injectStylesheet([]byte("<p>bare fragment</p>"), generatedCSSHref)
	if err != nil {
		t.Fatalf("injectStylesheet() error = %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Find("head link").Length() != 1 || doc.Find("body p").Text() != "bare fragment" {
		t.Errorf("injectStylesheet() = %s", out)
	}
}
