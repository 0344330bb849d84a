// Package security confines template and output file access to one
// configured directory.
package security

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator resolves user-supplied paths against a root directory and
// rejects anything that escapes it, including through symlinks
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dir. The directory does not
// need to exist yet.
func NewPathValidator(dir string) (*PathValidator, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute configured directory
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve returns the absolute form of path. Relative paths are taken
// relative to the root. The result must lie inside the root both lexically
// and after symlink resolution.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	clean := filepath.Clean(path)

	if !within(clean, v.root) {
		return "", fmt.Errorf("path is outside configured directory: %s", path)
	}

	realRoot := v.root
	if resolved, err := filepath.EvalSymlinks(v.root); err == nil {
		realRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		if !within(resolved, realRoot) && !within(resolved, v.root) {
			return "", fmt.Errorf("path resolves outside configured directory: %s", path)
		}
	}
	return clean, nil
}

// ReadFile resolves path and reads it, refusing directories and files larger
// than maxSize bytes. A non-positive maxSize disables the limit.
func (v *PathValidator) ReadFile(path string, maxSize int64) ([]byte, error) {
	resolved, err := v.Resolve(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("cannot open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("cannot stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum allowed size %d", info.Size(), maxSize)
	}

	var r io.Reader = f
	if maxSize > 0 {
		r = io.LimitReader(f, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("file exceeds maximum allowed size %d", maxSize)
	}
	return data, nil
}

// within reports whether path equals dir or sits below it
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	if !strings.HasSuffix(dir, string(filepath.Separator)) {
		dir += string(filepath.Separator)
	}
	return strings.HasPrefix(path, dir)
}
