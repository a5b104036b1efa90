// Package security guards file access requested over the network.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path escapes its base directory.
var ErrOutsideDirectory = errors.New("path escapes base directory")

// ResolveWithin resolves name against dir and returns the absolute path,
// rejecting results outside dir. Relative names are taken relative to
// dir. Symlinks are resolved on both sides, including symlinked parents of
// paths that do not exist yet.
func ResolveWithin(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}

	absPath, err := filepath.Abs(filepath.Clean(name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalise(absPath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s: %w", name, ErrOutsideDirectory)
	}
	return absPath, nil
}

// canonicalise resolves symlinks in p. When p does not exist the nearest
// existing parent is resolved instead, so /base/link/new cannot escape
// through link.
func canonicalise(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	check := p
	for {
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, p)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}
