// Package archive handles the uploaded pump export zip: it persists the
// raw bytes and extracts every entry into a per-request directory.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidArchive marks uploads that are not a readable zip file.
var ErrInvalidArchive = errors.New("invalid archive")

// SaveAndExtract writes the archive bytes under destDir and extracts all
// entries into it, preserving the archive's internal relative paths. The
// caller owns destDir and is responsible for removing it.
func SaveAndExtract(data []byte, filename, destDir string) error {
	if !strings.EqualFold(filepath.Ext(filename), ".zip") {
		return fmt.Errorf("%s: extension is not .zip: %w", filename, ErrInvalidArchive)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	zipPath := filepath.Join(destDir, filepath.Base(filename))
	if err := os.WriteFile(zipPath, data, 0o644); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	return extract(zipPath, destDir)
}

func extract(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", filepath.Base(zipPath), err, ErrInvalidArchive)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if err := extractEntry(entry, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, destDir string) error {
	target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
	// Reject entries that would escape the destination directory.
	if rel, err := filepath.Rel(destDir, target); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("entry %q escapes destination: %w", entry.Name, ErrInvalidArchive)
	}
	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %q: %v: %w", entry.Name, err, ErrInvalidArchive)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %q: %w", target, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extract %q: %w", entry.Name, err)
	}
	return nil
}
