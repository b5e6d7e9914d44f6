// Package archive unpacks downloaded .zip and .7z files.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
)

var (
	// ErrUnsupported is returned for archive formats that cannot be unpacked.
	ErrUnsupported = errors.New("unsupported archive format")
	// ErrUnsafePath is returned for entries that would land outside the
	// destination directory.
	ErrUnsafePath = errors.New("unsafe path in archive")
)

// entry is the part of a zip or 7z member needed for extraction.
type entry interface {
	Open() (io.ReadCloser, error)
	FileInfo() fs.FileInfo
}

// Supported reports whether path has an extension Extract understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".7z":
		return true
	}
	return false
}

// Extract unpacks src into dest, creating dest when needed.
func Extract(src, dest string) error {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".zip":
		r, err := zip.OpenReader(src)
		if errors.Is(err, zip.ErrInsecurePath) {
			r.Close()
			return fmt.Errorf("%w: %s", ErrUnsafePath, src)
		}
		if err != nil {
			return fmt.Errorf("open zip: %w", err)
		}
		defer r.Close()
		for _, f := range r.File {
			if err := extractEntry(dest, f.Name, f); err != nil {
				return err
			}
		}
		return nil
	case ".7z":
		r, err := sevenzip.OpenReader(src)
		if err != nil {
			return fmt.Errorf("open 7z: %w", err)
		}
		defer r.Close()
		for _, f := range r.File {
			if err := extractEntry(dest, f.Name, f); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(src))
	}
}

func extractEntry(dest, name string, f entry) error {
	root := filepath.Clean(dest)
	target := filepath.Join(root, name)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	info := f.FileInfo()
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
