// Package workspace manages the scoped, single-file temporary
// directories bind-mounted read-only into execution containers.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/Singleload/Singleload/internal/apperrors"
)

// Workspace is a host-side scoped temporary directory holding exactly
// one file: script<ext>. Deletion is guaranteed via Cleanup on every
// exit path from the executor.
type Workspace struct {
	Dir        string
	ScriptPath string
}

// New creates a fresh scoped directory under root (config.WorkspaceDir)
// and writes content to script<ext> inside it.
func New(root, ext string, content []byte) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "create workspace root", err)
	}

	dir, err := os.MkdirTemp(root, "req-*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "create scoped workspace", err)
	}

	scriptPath := filepath.Join(dir, "script"+ext)
	if err := os.WriteFile(scriptPath, content, 0o400); err != nil {
		_ = os.RemoveAll(dir)
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "write script into workspace", err)
	}

	return &Workspace{Dir: dir, ScriptPath: scriptPath}, nil
}

// Cleanup removes the entire scoped directory. Safe to call more than
// once; errors are returned for the caller to log, never panicked on.
func (w *Workspace) Cleanup() error {
	if w == nil {
		return nil
	}
	return os.RemoveAll(w.Dir)
}
