// Package gitpush publishes the site to a GitHub repository with the git
// command line: clone into a scratch directory, copy the project files over
// the checkout, commit and push.
package gitpush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

var (
	// ErrNoToken is returned when pushing to an https remote without a token
	ErrNoToken = errors.New("GitHub token not found")
	// ErrNoChanges is returned when the checkout already matches the project
	ErrNoChanges = errors.New("no changes to push - repository is up to date")
)

// DefaultItems are the project files and directories copied into the checkout
var DefaultItems = []string{
	"static",
	"philosophy_editor.html",
	"aarons_word_processor.html",
	"standalone_text_editor.html",
	"simple_text_editor.html",
}

// backupItem is where backup records land in the checkout
const backupItem = "backups"

// Options configures the remote and the commit author
type Options struct {
	// RepoURL is the clone URL, e.g. https://github.com/MatapouriBlue/Backup.git
	RepoURL     string
	Token       string
	Branch      string
	AuthorName  string
	AuthorEmail string
	Items       []string

	// BackupDir is copied to backups/ in the checkout wherever it lives
	// locally; empty means projectDir/backups
	BackupDir string
}

// Pusher runs the clone/copy/commit/push cycle
type Pusher struct {
	opts   Options
	gitBin string
	now    func() time.Time
}

// New creates a Pusher
func New(opts Options) *Pusher {
	if opts.Items == nil {
		opts.Items = DefaultItems
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "Matapouri Blue"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "website@matapouriblue.co.nz"
	}
	return &Pusher{
		opts:   opts,
		gitBin: "git",
		now:    time.Now,
	}
}

// Push copies the configured items of projectDir into a fresh clone, commits
// and pushes them. It returns the paths git reported as changed, or
// ErrNoChanges if there was nothing to commit. The scratch clone is always
// removed.
func (p *Pusher) Push(ctx context.Context, projectDir string) ([]string, error) {
	remote, err := p.authURL()
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "matapouri-push-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir) // nolint:errcheck

	checkout := filepath.Join(tmpDir, "repo")
	cloneArgs := []string{"clone", "--depth", "1"}
	if p.opts.Branch != "" {
		cloneArgs = append(cloneArgs, "--branch", p.opts.Branch)
	}
	cloneArgs = append(cloneArgs, remote, checkout)
	if _, err := p.git(ctx, tmpDir, cloneArgs...); err != nil {
		return nil, err
	}

	for _, item := range p.opts.Items {
		src := filepath.Join(projectDir, filepath.FromSlash(item))
		if err := copyItem(src, filepath.Join(checkout, filepath.FromSlash(item))); err != nil {
			return nil, fmt.Errorf("copying %s: %w", item, err)
		}
	}
	backupDir := p.opts.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(projectDir, backupItem)
	}
	if err := copyItem(backupDir, filepath.Join(checkout, backupItem)); err != nil {
		return nil, fmt.Errorf("copying %s: %w", backupDir, err)
	}

	steps := [][]string{
		{"config", "user.name", p.opts.AuthorName},
		{"config", "user.email", p.opts.AuthorEmail},
		{"add", "--all", "."},
	}
	for _, args := range steps {
		if _, err := p.git(ctx, checkout, args...); err != nil {
			return nil, err
		}
	}

	status, err := p.git(ctx, checkout, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	changed := parsePorcelain(status)
	if len(changed) == 0 {
		return nil, ErrNoChanges
	}

	message := fmt.Sprintf("Updated Matapouri Blue website - %s", p.now().Format("2006-01-02 15:04:05"))
	if _, err := p.git(ctx, checkout, "commit", "-m", message); err != nil {
		return nil, err
	}

	refspec := "HEAD"
	if p.opts.Branch != "" {
		refspec = "HEAD:" + p.opts.Branch
	}
	if _, err := p.git(ctx, checkout, "push", "origin", refspec); err != nil {
		return nil, err
	}

	logger.Info("Pushed project with git", logger.Fields{"changed": len(changed)})
	return changed, nil
}

// authURL embeds the token into https remotes
func (p *Pusher) authURL() (string, error) {
	u, err := url.Parse(p.opts.RepoURL)
	if err != nil {
		return "", fmt.Errorf("parsing repository URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return p.opts.RepoURL, nil
	}
	if p.opts.Token == "" {
		return "", ErrNoToken
	}
	u.User = url.User(p.opts.Token)
	return u.String(), nil
}

// git runs a git subcommand in dir. The token never appears in returned errors.
func (p *Pusher) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.gitBin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := p.redact(strings.TrimSpace(stderr.String()))
		return "", fmt.Errorf("git operation failed: git %s: %w: %s", args[0], err, detail)
	}
	return stdout.String(), nil
}

func (p *Pusher) redact(s string) string {
	if p.opts.Token == "" {
		return s
	}
	return strings.ReplaceAll(s, p.opts.Token, "***")
}

// parsePorcelain extracts paths from `git status --porcelain` output
func parsePorcelain(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		if strings.HasPrefix(path, `"`) {
			if unquoted, err := strconv.Unquote(path); err == nil {
				path = unquoted
			}
		}
		paths = append(paths, path)
	}
	return paths
}

// copyItem mirrors src into dst. Directories replace whatever the checkout
// had at that path; a missing src is skipped.
func copyItem(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}

	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() // nolint:errcheck
		return err
	}
	return out.Close()
}
