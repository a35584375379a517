// Package archive builds the downloadable zip of the site project.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DownloadName is the file name offered to the browser
const DownloadName = "matapouri-blue-project.zip"

// DefaultFiles are the project files included in the download
var DefaultFiles = []string{
	"static/css/style.css",
	"static/css/text_editor_generated.css",
	"static/philosophy_content.json",
	"static/js/carousel.js",
	"static/js/kinloch-map.js",
	"aarons_word_processor.html",
	"philosophy_editor.html",
	"standalone_text_editor.html",
	"simple_text_editor.html",
	"text_editor.html",
	"text_editor_integration_guide.md",
	"attached_assets/Garden_1752715224980.jpeg",
	"attached_assets/Blue heron_1752719468329.jpeg",
	"attached_assets/Lounge studio_1752715224981.jpeg",
}

// WriteProjectZip streams a deflate-compressed zip to w containing every
// listed file that exists under projectDir plus every *.json record in
// backupDir, stored under backups/. It returns the archived names.
func WriteProjectZip(w io.Writer, projectDir, backupDir string, files []string) ([]string, error) {
	zw := zip.NewWriter(w)

	var added []string
	for _, rel := range files {
		ok, err := addFile(zw, filepath.Join(projectDir, filepath.FromSlash(rel)), filepath.ToSlash(rel))
		if err != nil {
			zw.Close() // nolint:errcheck
			return added, err
		}
		if ok {
			added = append(added, filepath.ToSlash(rel))
		}
	}

	backups, err := backupRecords(backupDir)
	if err != nil {
		zw.Close() // nolint:errcheck
		return added, err
	}
	for _, name := range backups {
		entry := "backups/" + name
		if _, err := addFile(zw, filepath.Join(backupDir, name), entry); err != nil {
			zw.Close() // nolint:errcheck
			return added, err
		}
		added = append(added, entry)
	}

	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("finishing zip: %w", err)
	}
	return added, nil
}

func backupRecords(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backups: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// addFile copies path into the archive as name. Missing files are skipped.
func addFile(zw *zip.Writer, path, name string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, fmt.Errorf("zip header for %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return false, fmt.Errorf("adding %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return false, fmt.Errorf("compressing %s: %w", name, err)
	}
	return true, nil
}
