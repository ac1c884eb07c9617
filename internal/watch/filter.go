package watch

import (
	"path/filepath"
	"strings"

	"github.com/chunkhound-go/chunkhound/internal/parser"
)

// SupportedFunc reports whether path's extension should be watched. For
// deleted events the path no longer exists on disk, so this must be a
// pure string check against the filename — never a stat.
type SupportedFunc func(path string) bool

// RegistrySupported builds a SupportedFunc from a parser registry, so the
// watcher and the indexing coordinator agree on exactly which extensions
// are "supported" without a second, independently-maintained list
// (original_source/chunkhound/file_watcher.py hardcodes
// SUPPORTED_EXTENSIONS as a standalone set; this repo derives it from
// the same registry process_file already consults).
func RegistrySupported(reg *parser.Registry) SupportedFunc {
	return func(path string) bool {
		ext := strings.ToLower(filepath.Ext(path))
		_, ok := reg.LanguageForExtension(ext)
		return ok
	}
}
