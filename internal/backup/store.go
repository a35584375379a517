package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/im7mortal/kmutex"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

const (
	// CategoryPhilosophy holds the homepage philosophy text.
	CategoryPhilosophy = "philosophy_content"
	// CategoryFullProject holds a copy of the key project files.
	CategoryFullProject = "full_project"

	// DefaultRoot is the backup directory used when none is configured.
	DefaultRoot = "backups"

	// FieldTimestamp and FieldType are injected into every stored payload.
	FieldTimestamp = "timestamp"
	FieldType      = "backup_type"

	latestSuffix = "_latest"
	fileExt      = ".json"
	stampLayout  = "20060102_150405"
)

var categoryPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Payload is the JSON-serializable content of a snapshot
type Payload map[string]interface{}

// Store persists snapshots under a single root directory
type Store struct {
	root  string
	locks *kmutex.Kmutex
	now   func() time.Time

	mu        sync.Mutex
	lastStamp map[string]time.Time
}

// New creates a Store rooted at dir. The directory is not touched until the
// first write or an explicit EnsureRoot.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultRoot
	}
	return &Store{
		root:      dir,
		locks:     kmutex.New(),
		now:       time.Now,
		lastStamp: make(map[string]time.Time),
	}
}

// Root returns the backup directory
func (s *Store) Root() string {
	return s.root
}

// ValidCategory reports whether category can be used as a file name component
func ValidCategory(category string) bool {
	return categoryPattern.MatchString(category)
}

// EnsureRoot creates the backup directory if it does not exist.
func (s *Store) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrStorageUnavailable, s.root, err)
	}
	return nil
}

// WriteSnapshot stamps payload with the write time and category, stores it as a
// new immutable record and overwrites the category's latest record with it.
// The caller's map is not modified.
func (s *Store) WriteSnapshot(category string, payload Payload) WriteResult {
	start := time.Now()
	res := s.writeSnapshot(category, payload)
	observeWrite(category, res, time.Since(start))

	if !res.OK() {
		logger.Error("Backup write failed", logger.Fields{
			"category": category,
			"record":   res.Name,
		}, res.Err)
		return res
	}

	logger.Info("Backup written", logger.Fields{
		"category": category,
		"record":   res.Name,
	})
	return res
}

func (s *Store) writeSnapshot(category string, payload Payload) WriteResult {
	if !ValidCategory(category) {
		return WriteResult{Err: fmt.Errorf("%w: %q", ErrInvalidCategory, category)}
	}
	if err := s.EnsureRoot(); err != nil {
		return WriteResult{Err: err}
	}

	s.locks.Lock(category)
	defer s.locks.Unlock(category)

	now := s.now().UTC()
	stamped := stamp(category, payload, now)

	data, err := encode(stamped)
	if err != nil {
		return WriteResult{Err: fmt.Errorf("%w: encoding %s: %w", ErrWriteFailed, category, err)}
	}

	name := s.recordName(category, now)
	if err := writeFileAtomic(filepath.Join(s.root, name), data); err != nil {
		return WriteResult{Err: fmt.Errorf("%w: %s: %w", ErrWriteFailed, name, err)}
	}

	// The record stays in place if the pointer update fails; history is append-only.
	if err := writeFileAtomic(s.latestPath(category), data); err != nil {
		return WriteResult{
			Name: name,
			Err:  fmt.Errorf("%w: %s%s%s: %w", ErrWriteFailed, category, latestSuffix, fileExt, err),
		}
	}

	return WriteResult{Name: name, Payload: stamped}
}

// ReadLatest returns the most recently written payload for category. A category
// that was never written yields ErrNoBackup; unreadable or corrupt records yield
// ErrReadFailed.
func (s *Store) ReadLatest(category string) ReadResult {
	res := s.readLatest(category)
	observeRead(res)

	if res.Err != nil && !res.Absent() {
		logger.Error("Backup restore failed", logger.Fields{"category": category}, res.Err)
	}
	return res
}

func (s *Store) readLatest(category string) ReadResult {
	if !ValidCategory(category) {
		return ReadResult{Err: fmt.Errorf("%w: %q", ErrInvalidCategory, category)}
	}

	data, err := os.ReadFile(s.latestPath(category))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReadResult{Err: ErrNoBackup}
		}
		return ReadResult{Err: fmt.Errorf("%w: %w", ErrReadFailed, err)}
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ReadResult{Err: fmt.Errorf("%w: parsing %s: %w", ErrReadFailed, category, err)}
	}
	if payload == nil {
		return ReadResult{Err: fmt.Errorf("%w: empty record for %s", ErrReadFailed, category)}
	}

	return ReadResult{Payload: payload}
}

// ListSnapshots returns the file names of every immutable record, sorted by
// name. Latest pointers and in-flight temp files are not included. A missing or
// unreadable root yields an empty list.
func (s *Store) ListSnapshots() []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Listing backups failed", logger.Fields{"root": s.root, "error": err.Error()})
		}
		return []string{}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(name, fileExt) || strings.HasSuffix(name, latestSuffix+fileExt) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// recordName picks a record name whose second-granularity stamp is strictly
// after the previous one for the category and not already on disk.
func (s *Store) recordName(category string, now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := now.Truncate(time.Second)
	if last, ok := s.lastStamp[category]; ok && !at.After(last) {
		at = last.Add(time.Second)
	}

	for {
		name := category + "_" + at.Format(stampLayout) + fileExt
		if _, err := os.Lstat(filepath.Join(s.root, name)); err != nil {
			s.lastStamp[category] = at
			return name
		}
		at = at.Add(time.Second)
	}
}

func (s *Store) latestPath(category string) string {
	return filepath.Join(s.root, category+latestSuffix+fileExt)
}

func stamp(category string, payload Payload, now time.Time) Payload {
	stamped := make(Payload, len(payload)+2)
	for k, v := range payload {
		stamped[k] = v
	}
	stamped[FieldTimestamp] = now.Format(time.RFC3339Nano)
	stamped[FieldType] = category
	return stamped
}

func encode(payload Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath) // nolint:errcheck
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	tmpPath = ""
	return nil
}
