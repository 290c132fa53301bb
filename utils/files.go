package utils

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid path")

// ResolvePath maps a URL path onto a file below root. "/" resolves to the
// index document. The path is cleaned as a rooted path first so ".."
// segments stop at root; anything that still lands outside root is rejected.
func ResolvePath(root, index, urlPath string) (string, error) {
	if strings.ContainsRune(urlPath, 0) {
		return "", ErrInvalidPath
	}

	if urlPath == "" || urlPath == "/" {
		urlPath = "/" + index
	}

	cleaned := path.Clean("/" + urlPath)
	full := filepath.Join(root, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	return full, nil
}

// RelativePath returns p relative to root with forward slashes.
func RelativePath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}

	return filepath.ToSlash(rel)
}

// ShouldIgnoreDir reports whether a directory is tooling or dependency output
// that is never served as a page asset.
func ShouldIgnoreDir(name string) bool {
	ignoreDirs := []string{
		"node_modules", ".git", ".cache", ".parcel-cache",
		".idea", ".vscode", "__pycache__", ".venv", "vendor",
	}
	for _, dir := range ignoreDirs {
		if name == dir {
			return true
		}
	}
	return false
}

// IsTemporaryFile reports editor swap and backup files, which change often
// and are never requested by the page.
func IsTemporaryFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, ".#") ||
		base == "4913"
}
