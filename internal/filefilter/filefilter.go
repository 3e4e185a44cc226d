// Package filefilter decides which repository paths are worth indexing.
package filefilter

import (
	"path/filepath"
	"strings"
)

// allowBasenames are well-known text files indexed regardless of extension.
var allowBasenames = map[string]bool{
	"license":       true,
	"readme":        true,
	"readme.md":     true,
	".gitignore":    true,
	".dockerignore": true,
	// Not in the glossary's allow-basename enumeration, but the filter-determinism
	// scenario in the spec names Dockerfile explicitly as indexable.
	"dockerfile": true,
}

// allowExtensions is the indexable source/config/markup allow-list.
var allowExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".go": true, ".rb": true, ".rs": true, ".cpp": true,
	".cc": true, ".c": true, ".h": true, ".hpp": true, ".cs": true,
	".php": true, ".swift": true, ".kt": true, ".kts": true, ".scala": true,
	".r": true, ".m": true, ".mm": true, ".sh": true, ".bash": true, ".zsh": true,
	".html": true, ".css": true, ".scss": true, ".less": true,
	".json": true, ".yml": true, ".yaml": true, ".toml": true, ".md": true,
	".txt": true, ".env": true, ".ini": true, ".cfg": true, ".conf": true,
	".sql": true,
}

// denyExtensions is the binary deny-list, rejected outright.
var denyExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".ico": true, ".pdf": true, ".zip": true, ".gz": true, ".tar": true,
	".rar": true, ".7z": true, ".mp4": true, ".mp3": true, ".wav": true,
	".woff": true, ".woff2": true, ".ttf": true, ".jar": true, ".bin": true,
}

// Indexable reports whether path is worth fetching and indexing. It is pure
// and deterministic, applied before any network call.
func Indexable(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(path))

	if allowBasenames[base] {
		return true
	}
	if denyExtensions[ext] {
		return false
	}
	return allowExtensions[ext]
}
