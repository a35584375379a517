package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/matapouriblue/matapouri-blue/internal/logger"
)

// ProjectFiles lists the files captured by a full project backup, relative to
// the project directory.
var ProjectFiles = []string{
	"static/css/style.css",
	"static/css/text_editor_generated.css",
	"static/philosophy_content.json",
	"static/js/carousel.js",
	"static/js/kinloch-map.js",
	"philosophy_editor.html",
	"aarons_word_processor.html",
	"standalone_text_editor.html",
	"simple_text_editor.html",
}

// BackupProjectFiles reads each of files under projectDir and stores their
// contents as a full_project snapshot. Files that do not exist are skipped.
func (s *Store) BackupProjectFiles(projectDir string, files []string) WriteResult {
	contents := make(map[string]interface{}, len(files))
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(projectDir, filepath.FromSlash(rel)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			res := WriteResult{Err: fmt.Errorf("%w: reading %s: %w", ErrWriteFailed, rel, err)}
			observeWrite(CategoryFullProject, res, 0)
			logger.Error("Project backup failed", logger.Fields{"file": rel}, res.Err)
			return res
		}
		contents[filepath.ToSlash(rel)] = string(data)
	}

	return s.WriteSnapshot(CategoryFullProject, Payload{"files": contents})
}
