package fileops

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Exists checks if a file or directory exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes a file.
func Remove(path string) error {
	return os.Remove(path)
}

// Stem returns the basename of path without its extension. All artifacts of
// a job are keyed by this value.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// UploadName prefixes the original filename with a timestamp so concurrent
// uploads of the same file never collide on a stem.
func UploadName(original string) string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitizeName(original))
}

// sanitizeName strips any path components and replaces characters that would
// be awkward in artifact names with underscores.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

// SaveUploaded streams a multipart file into dir under a timestamped name
// and returns the stored path.
func SaveUploaded(fh *multipart.FileHeader, dir string) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dstPath := filepath.Join(dir, UploadName(fh.Filename))
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return dstPath, nil
}
