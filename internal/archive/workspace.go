// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive unpacks arXiv source archives into disposable workspaces
// and selects the LaTeX entry point to convert.
package archive

import (
	"fmt"
	"os"
)

// Workspace is a per-request scratch directory. Everything written during
// one pipeline run lives under Dir and is released together by Close.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory under parent. An empty parent
// uses the system temp directory.
func NewWorkspace(parent string) (*Workspace, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("creating workspace parent %s: %w", parent, err)
		}
	}
	dir, err := os.MkdirTemp(parent, "markxiv-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// Close removes the workspace and everything in it. It is safe to call
// more than once.
func (w *Workspace) Close() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("removing workspace %s: %w", w.Dir, err)
	}
	return nil
}
