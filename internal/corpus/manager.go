// Package corpus finds and loads the plain-text documents an index is built from.
package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"groundedqa/internal/apperr"
)

// DefaultExtensions are the file extensions ingested when none are configured.
var DefaultExtensions = []string{".txt", ".md"}

// Document is one loaded corpus file.
type Document struct {
	Source string // Path relative to the corpus root, forward slashes (e.g. "billing/refunds.txt")
	Text   string // Raw file content
}

// Manager resolves and reads files under a single corpus root.
type Manager struct {
	root       string
	extensions map[string]struct{}
}

// NewManager creates a manager for root. Extensions are matched case-insensitively;
// an empty list means DefaultExtensions.
func NewManager(root string, extensions []string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, apperr.Configf("corpus directory is required")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrLoad, err, fmt.Sprintf("failed to open corpus directory %s", root))
	}
	if !info.IsDir() {
		return nil, apperr.Configf("corpus path %s is not a directory", root)
	}

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	if len(exts) == 0 {
		return nil, apperr.Configf("no usable corpus extensions in %v", extensions)
	}

	return &Manager{root: root, extensions: exts}, nil
}

// Root returns the corpus root directory.
func (m *Manager) Root() string {
	return m.root
}

// AbsPath returns the absolute file path for a source identifier.
func (m *Manager) AbsPath(source string) string {
	return filepath.Join(m.root, filepath.FromSlash(source))
}

func (m *Manager) eligible(name string) bool {
	_, ok := m.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
