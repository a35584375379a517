package site

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/matapouriblue/matapouri-blue/internal/archive"
	"github.com/matapouriblue/matapouri-blue/internal/backup"
	"github.com/matapouriblue/matapouri-blue/internal/content"
	"github.com/matapouriblue/matapouri-blue/internal/github"
	"github.com/matapouriblue/matapouri-blue/internal/gitpush"
	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

const (
	maxBodyBytes = 1 << 20
	// pushPreview is how many pushed paths are echoed back to the browser
	pushPreview = 10
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// savePhilosophy sanitizes and stores the submitted philosophy content
func (s *Server) savePhilosophy(w http.ResponseWriter, r *http.Request) (content.Philosophy, bool) {
	var p content.Philosophy
	if err := decodeJSON(w, r, &p); err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return p, false
	}

	p = content.Sanitize(p)
	if err := s.opts.Content.Save(p); err != nil {
		logger.Error("Saving philosophy content failed", nil, err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return p, false
	}
	return p, true
}

// handleSavePhilosophy saves the content, then backs it up. A failed backup
// still reports success because the primary save went through.
func (s *Server) handleSavePhilosophy(w http.ResponseWriter, r *http.Request) {
	p, ok := s.savePhilosophy(w, r)
	if !ok {
		return
	}

	resp := map[string]interface{}{"success": true}
	if res := s.opts.Backups.WriteSnapshot(backup.CategoryPhilosophy, p.Payload()); res.OK() {
		resp["backup"] = "Content backed up to file successfully"
	} else {
		resp["backup"] = "Content saved locally (backup failed)"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApplyPhilosophyText(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.savePhilosophy(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleApplyCSS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSS string `json:"css"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := s.opts.Content.WriteCSS(req.CSS); err != nil {
		if errors.Is(err, content.ErrEmptyCSS) {
			writeFailure(w, http.StatusOK, "No CSS content provided")
			return
		}
		logger.Error("Writing generated CSS failed", nil, err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type dashboardData struct {
	Backups         []string
	Latest          *philosophyView
	LatestTimestamp string
}

func (s *Server) handleBackupDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{Backups: s.opts.Backups.ListSnapshots()}
	if res := s.opts.Backups.ReadLatest(backup.CategoryPhilosophy); res.Found() {
		data.Latest = newPhilosophyView(content.PhilosophyFromPayload(res.Payload))
		data.LatestTimestamp, _ = res.Payload[backup.FieldTimestamp].(string)
	}
	s.pages.render(w, http.StatusOK, "backup_dashboard.html", data)
}

// handleRestorePhilosophy returns the latest philosophy backup as editor text,
// with the entities added by sanitizing decoded. Read failures are reported
// the same as a missing backup.
func (s *Server) handleRestorePhilosophy(w http.ResponseWriter, r *http.Request) {
	res := s.opts.Backups.ReadLatest(backup.CategoryPhilosophy)
	if !res.Found() {
		writeFailure(w, http.StatusOK, backup.ErrNoBackup.Error())
		return
	}
	timestamp, _ := res.Payload[backup.FieldTimestamp].(string)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"philosophy": content.PhilosophyFromPayload(res.Payload).Unescaped(),
		"timestamp":  timestamp,
	})
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	files := s.opts.ProjectFiles
	if files == nil {
		files = backup.ProjectFiles
	}

	res := s.opts.Backups.BackupProjectFiles(s.opts.ProjectDir, files)
	if !res.OK() {
		writeFailure(w, http.StatusOK, "Backup creation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Project backup created successfully",
		"backup":  res.Name,
	})
}

// handleDownloadProject builds the archive in memory so a failure can still
// be reported with a proper status.
func (s *Server) handleDownloadProject(w http.ResponseWriter, r *http.Request) {
	files := s.opts.ArchiveFiles
	if files == nil {
		files = archive.DefaultFiles
	}

	var buf bytes.Buffer
	names, err := archive.WriteProjectZip(&buf, s.opts.ProjectDir, s.opts.Backups.Root(), files)
	if err != nil {
		logger.Error("Creating project archive failed", nil, err)
		http.Error(w, fmt.Sprintf("Error creating zip: %v", err), http.StatusInternalServerError)
		return
	}
	logger.Info("Project archive created", logger.Fields{"files": len(names), "bytes": buf.Len()})

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.DownloadName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	buf.WriteTo(w) // nolint:errcheck
}

func (s *Server) handlePushToGitHub(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pusher == nil {
		writeFailure(w, http.StatusOK, "GitHub push is not configured")
		return
	}

	files, err := s.opts.Pusher.Push(r.Context(), s.opts.ProjectDir)
	switch {
	case errors.Is(err, gitpush.ErrNoChanges):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "No changes to push - repository is up to date",
		})
		return
	case errors.Is(err, github.ErrNoToken), errors.Is(err, gitpush.ErrNoToken):
		writeFailure(w, http.StatusOK, "GitHub token not found")
		return
	case errors.Is(err, github.ErrNothingUploaded):
		writeFailure(w, http.StatusOK, "No files were uploaded")
		return
	case err != nil:
		logger.Error("GitHub push failed", nil, err)
		writeFailure(w, http.StatusOK, fmt.Sprintf("GitHub upload failed: %v", err))
		return
	}

	preview := files
	if len(preview) > pushPreview {
		preview = preview[:pushPreview]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     fmt.Sprintf("Successfully uploaded %d files to GitHub!", len(files)),
		"files":       preview,
		"total_files": len(files),
		"repo":        s.opts.RepoURL,
	})
}

func (s *Server) handleTestGitHubToken(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tokens == nil {
		writeFailure(w, http.StatusOK, "No GitHub token found in secrets")
		return
	}

	status, err := s.opts.Tokens.CheckToken(r.Context())
	switch {
	case errors.Is(err, github.ErrNoToken):
		writeFailure(w, http.StatusOK, "No GitHub token found in secrets")
		return
	case errors.Is(err, github.ErrRepoAccess):
		writeFailure(w, http.StatusOK, "Cannot access repository")
		return
	case err != nil:
		writeFailure(w, http.StatusOK, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"username":    status.Login,
		"permissions": strings.Join(status.Permissions, ", "),
	})
}
