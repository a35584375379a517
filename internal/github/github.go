package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-querystring/query"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

const (
	defaultAPIURL = "https://api.github.com"
	timeout       = 15 * time.Second
	maxRetries    = 3
)

var (
	// ErrNoToken is returned when no GitHub token is configured
	ErrNoToken = errors.New("GitHub token not found")
	// ErrRepoAccess is returned when the token cannot read the target repository
	ErrRepoAccess = errors.New("cannot access repository")
	// ErrNothingUploaded is returned when a push uploaded no files at all
	ErrNothingUploaded = errors.New("no files were uploaded")
)

// DefaultFiles are the project files uploaded individually by Push
var DefaultFiles = []string{
	"philosophy_editor.html",
	"aarons_word_processor.html",
	"standalone_text_editor.html",
	"simple_text_editor.html",
}

// DefaultDirs are the project directories uploaded recursively by Push
var DefaultDirs = []string{"static"}

// backupPrefix is where backup records land in the repository
const backupPrefix = "backups"

// Options configures the target repository and the files to push
type Options struct {
	Owner  string
	Repo   string
	Branch string
	Files  []string
	Dirs   []string

	// BackupDir is uploaded under backups/ wherever it lives locally;
	// empty means projectDir/backups
	BackupDir string
}

// Client uploads project files through the GitHub contents API
type Client struct {
	baseURL    string
	token      string
	opts       Options
	httpClient *http.Client
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

// TokenStatus describes what the configured token can do
type TokenStatus struct {
	Login       string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// NewClient creates a contents API client. An empty token is accepted; calls
// that need it return ErrNoToken.
func NewClient(token string, opts Options) *Client {
	if opts.Files == nil {
		opts.Files = DefaultFiles
	}
	if opts.Dirs == nil {
		opts.Dirs = DefaultDirs
	}
	return &Client{
		baseURL: defaultAPIURL,
		token:   token,
		opts:    opts,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now:        time.Now,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// RepoURL returns the browser URL of the target repository
func (c *Client) RepoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", c.opts.Owner, c.opts.Repo)
}

// CheckToken verifies the token and reports which permissions it holds on
// the target repository.
func (c *Client) CheckToken(ctx context.Context) (*TokenStatus, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	var user struct {
		Login string `json:"login"`
	}
	status, err := c.getJSON(ctx, c.baseURL+"/user", &user)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("token invalid (status %d)", status)
	}

	var repo struct {
		Permissions map[string]bool `json:"permissions"`
	}
	status, err = c.getJSON(ctx, c.repoURL(), &repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repository: %w", err)
	}
	if status != http.StatusOK {
		return nil, ErrRepoAccess
	}

	granted := make([]string, 0, len(repo.Permissions))
	for name, ok := range repo.Permissions {
		if ok {
			granted = append(granted, name)
		}
	}
	sort.Strings(granted)

	return &TokenStatus{Login: user.Login, Permissions: granted}, nil
}

// Push uploads the configured files, every file below the configured
// directories of projectDir and the backup records, returning the repository paths that were
// created or updated. Individual upload failures are logged and skipped.
func (c *Client) Push(ctx context.Context, projectDir string) ([]string, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	var uploaded []string
	uploadFile := func(local, repoPath string) error {
		data, err := os.ReadFile(local)
		if err != nil {
			return fmt.Errorf("reading %s: %w", repoPath, err)
		}
		if err := c.PutFile(ctx, repoPath, data); err != nil {
			logger.Error("GitHub upload failed", logger.Fields{"path": repoPath}, err)
			return nil
		}
		uploaded = append(uploaded, repoPath)
		return nil
	}

	for _, rel := range c.opts.Files {
		local := filepath.Join(projectDir, filepath.FromSlash(rel))
		if _, err := os.Stat(local); err != nil {
			continue
		}
		if err := uploadFile(local, filepath.ToSlash(rel)); err != nil {
			return uploaded, err
		}
	}

	for _, dir := range c.opts.Dirs {
		root := filepath.Join(projectDir, filepath.FromSlash(dir))
		if err := walkFiles(ctx, root, filepath.ToSlash(dir), uploadFile); err != nil {
			return uploaded, fmt.Errorf("walking %s: %w", dir, err)
		}
	}

	backupDir := c.opts.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(projectDir, backupPrefix)
	}
	if err := walkFiles(ctx, backupDir, backupPrefix, uploadFile); err != nil {
		return uploaded, fmt.Errorf("walking %s: %w", backupDir, err)
	}

	if len(uploaded) == 0 {
		return nil, ErrNothingUploaded
	}

	logger.Info("Pushed files to GitHub", logger.Fields{
		"repo":  c.opts.Owner + "/" + c.opts.Repo,
		"count": len(uploaded),
	})
	return uploaded, nil
}

// walkFiles calls fn for every non-hidden file below root with its path in
// the repository, prefix/<relative path>. A missing root is skipped.
func walkFiles(ctx context.Context, root, prefix string, fn func(local, repoPath string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(path, prefix+"/"+filepath.ToSlash(rel))
	})
}

// PutFile creates or updates a single file in the repository
func (c *Client) PutFile(ctx context.Context, path string, content []byte) error {
	if c.token == "" {
		return ErrNoToken
	}

	sha, err := c.fileSHA(ctx, path)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"message": fmt.Sprintf("Update %s - %s", path, c.now().Format("2006-01-02 15:04:05")),
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if sha != "" {
		payload["sha"] = sha
	}
	if c.opts.Branch != "" {
		payload["branch"] = c.opts.Branch
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, c.contentsURL(path, false), body)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		// Don't include response body in error to prevent information leakage
		return fmt.Errorf("GitHub API error (status %d)", resp.StatusCode)
	}
	return nil
}

type contentsQuery struct {
	Ref string `url:"ref,omitempty"`
}

// fileSHA returns the blob SHA of path, or "" if it does not exist yet
func (c *Client) fileSHA(ctx context.Context, path string) (string, error) {
	var file struct {
		SHA string `json:"sha"`
	}
	status, err := c.getJSON(ctx, c.contentsURL(path, true), &file)
	if err != nil {
		return "", fmt.Errorf("looking up %s: %w", path, err)
	}

	switch status {
	case http.StatusOK:
		return file.SHA, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("GitHub API error (status %d)", status)
	}
}

// getJSON performs a GET and decodes a 200 response into v
func (c *Client) getJSON(ctx context.Context, endpoint string, v interface{}) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

// do sends an authenticated request, retrying network errors and 5xx
// responses. Other responses are returned to the caller unread.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	var resp *http.Response

	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		if r.StatusCode >= http.StatusInternalServerError {
			r.Body.Close()
			return fmt.Errorf("GitHub API error (status %d)", r.StatusCode)
		}
		resp = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) repoURL() string {
	return fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(c.opts.Owner), url.PathEscape(c.opts.Repo))
}

func (c *Client) contentsURL(path string, withRef bool) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := c.repoURL() + "/contents/" + strings.Join(segments, "/")

	if withRef {
		v, err := query.Values(contentsQuery{Ref: c.opts.Branch})
		if err == nil && len(v) > 0 {
			u += "?" + v.Encode()
		}
	}
	return u
}
