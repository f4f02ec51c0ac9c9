// Package workspace hands out scoped temporary directories under a
// fixed owner-only root. Every acquisition must be released; the
// janitor sweeps anything a crashed task left behind.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/dawbrn/internal/logfields"
)

// Manager creates workspaces under a single root directory.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at root. An empty root falls back
// to a service-named directory under the system temp dir.
func NewManager(root string) *Manager {
	if root == "" {
		root = filepath.Join(os.TempDir(), "dawbrn")
	}
	return &Manager{root: root}
}

// Root returns the parent directory of all workspaces.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh workspace directory with owner-only
// permissions. The prefix names the directory for operators poking
// around the root; uniqueness comes from the random suffix.
func (m *Manager) Acquire(prefix string) (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace root %s: %w", m.root, err)
	}
	dir, err := os.MkdirTemp(m.root, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	slog.Debug("acquired workspace", logfields.Path(dir))
	return &Workspace{path: dir}, nil
}

// SweepStale removes workspace directories whose modification time is
// older than maxAge. Returns the number of directories removed.
func (m *Manager) SweepStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("failed to sweep stale workspace", logfields.Path(path), logfields.Error(err))
			continue
		}
		slog.Info("swept stale workspace", logfields.Path(path))
		removed++
	}
	return removed, nil
}

// Workspace is one scoped temporary directory.
type Workspace struct {
	path string
}

// Path returns the workspace directory.
func (w *Workspace) Path() string {
	return w.path
}

// Release deletes the workspace. Safe to call more than once.
func (w *Workspace) Release() {
	if w.path == "" {
		return
	}
	if err := os.RemoveAll(w.path); err != nil {
		slog.Warn("failed to release workspace", logfields.Path(w.path), logfields.Error(err))
		return
	}
	slog.Debug("released workspace", logfields.Path(w.path))
	w.path = ""
}
