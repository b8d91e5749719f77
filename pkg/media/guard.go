package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoots is returned for image paths outside every allowed root.
var ErrOutsideRoots = errors.New("path is outside the allowed image directories")

// PathGuard restricts local image references to a set of root directories.
// Paths are resolved through symlinks before the check, so a link inside a
// root cannot point outside it.
type PathGuard struct {
	roots []string
	base  string
}

// NewPathGuard creates a guard for roots. Relative image paths are resolved
// against the first root.
func NewPathGuard(roots ...string) (*PathGuard, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one image directory is required")
	}

	g := &PathGuard{}
	for _, r := range roots {
		resolved, err := resolveExisting(r)
		if err != nil {
			return nil, fmt.Errorf("invalid image directory %q: %w", r, err)
		}
		g.roots = append(g.roots, resolved)
	}
	g.base = g.roots[0]
	return g, nil
}

// Resolve returns the absolute, symlink-free form of path after checking it
// lies within a root.
func (g *PathGuard) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(g.base, expanded)
	}

	resolved, err := resolveExisting(expanded)
	if err != nil {
		return "", err
	}
	for _, root := range g.roots {
		if within(root, resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideRoots, path)
}

// Roots returns the resolved root directories.
func (g *PathGuard) Roots() []string {
	return append([]string(nil), g.roots...)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func resolveExisting(path string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand ~: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
