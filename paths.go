package imagemerge

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// absClean returns the absolute, lexically cleaned form of p.
func absClean(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// isWithin reports whether path equals dir or lies below it. Comparison is by
// path segment, so "/a/_temp" does not contain "/a/_tempExtra".
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveRoot returns the absolute form of an archive root. A root that is
// itself a symlink is replaced by its target; WalkDir does not descend into it.
func resolveRoot(p string) string {
	abs := absClean(p)
	fi, err := os.Lstat(abs)
	if err != nil || fi.Mode()&fs.ModeSymlink == 0 {
		return abs
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

func withinAny(path string, dirs []string) bool {
	for _, d := range dirs {
		if isWithin(path, d) {
			return true
		}
	}
	return false
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
