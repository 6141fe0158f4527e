package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxSymlinkHops = 40

type Sandbox struct {
	root string
}

type Entry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	IsDir   bool   `json:"is_dir"`
	Size    int64  `json:"size"`
	Mode    string `json:"mode"`
	ModTime int64  `json:"modified"`
}

// NewSandbox confines paths to root, creating it when missing.
func NewSandbox(root string) (*Sandbox, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	return &Sandbox{root: canonical}, nil
}

func (s *Sandbox) Root() string {
	return s.root
}

// ValidatePath resolves candidate (relative paths are taken from the root) and
// returns the canonical path if it stays inside the root.
func (s *Sandbox) ValidatePath(candidate string) (string, error) {
	abs := candidate
	if !filepath.IsAbs(abs) {
		abs = s.root + string(filepath.Separator) + candidate
	}
	resolved, err := resolve(abs, 0)
	if err != nil {
		return "", &SandboxViolation{AttemptedPath: candidate, Reason: err.Error()}
	}
	if !s.contains(resolved) {
		return "", &SandboxViolation{AttemptedPath: candidate, ResolvedPath: resolved, Reason: "path is outside the workspace"}
	}
	return resolved, nil
}

// SanitizePath is ValidatePath for model supplied relative paths. Any parent
// directory segment is refused before resolution.
func (s *Sandbox) SanitizePath(relative string) (string, error) {
	p := strings.TrimSpace(relative)
	for _, seg := range strings.FieldsFunc(p, isSeparator) {
		if seg == ".." {
			return "", &SandboxViolation{AttemptedPath: relative, Reason: "parent directory segments are not allowed"}
		}
	}
	p = strings.TrimLeft(p, `/\`)
	if p == "" {
		p = "."
	}
	return s.ValidatePath(p)
}

// RelativeToRoot renders a resolved path relative to the root, using forward slashes.
func (s *Sandbox) RelativeToRoot(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *Sandbox) ListDir(relative string) ([]Entry, error) {
	dir, err := s.SanitizePath(relative)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			continue
		}
		entries = append(entries, newEntry(s.RelativeToRoot(filepath.Join(dir, item.Name())), info))
	}
	SortEntries(entries)
	return entries, nil
}

// SortEntries orders directories first, then by name.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Path) < strings.ToLower(entries[j].Path)
	})
}

func newEntry(rel string, info fs.FileInfo) Entry {
	e := Entry{
		Name:    info.Name(),
		Path:    rel,
		IsDir:   info.IsDir(),
		Mode:    info.Mode().String(),
		ModTime: info.ModTime().Unix(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e
}

func (s *Sandbox) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// resolve walks abs one component at a time following symlinks, so "link/.."
// lands where the kernel would put it. A missing component is kept as is and the
// walk goes on, so a later ".." can step back onto existing links that still get resolved.
func resolve(abs string, hops int) (string, error) {
	parts := strings.Split(filepath.ToSlash(abs), "/")
	current := string(filepath.Separator)
	if vol := filepath.VolumeName(abs); vol != "" {
		current = vol + string(filepath.Separator)
		parts = strings.Split(filepath.ToSlash(abs[len(vol):]), "/")
	}

	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			current = filepath.Dir(current)
			continue
		}

		next := filepath.Join(current, part)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			current = next
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			current = next
			continue
		}

		if hops >= maxSymlinkHops {
			return "", errors.New("too many levels of symbolic links")
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = current + string(filepath.Separator) + target
		}
		current, err = resolve(target, hops+1)
		if err != nil {
			return "", err
		}
	}
	return current, nil
}
