package imagemerge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// IndexOpts configures archive indexing.
type IndexOpts struct {
	Roots   []string
	Exclude []string // directories (or files) skipped by path segment, not string prefix
	Method  Method
	Workers int        // concurrent decoders (default: 8)
	Cache   *HashCache // optional
}

// IndexEntry is one fingerprinted archive file.
type IndexEntry struct {
	Path        string
	Fingerprint Fingerprint
}

// ArchiveIndex maps archive paths to fingerprints. It is immutable after
// BuildIndex returns and safe for concurrent readers.
type ArchiveIndex struct {
	method  Method
	entries []IndexEntry // sorted by Path
}

// NewArchiveIndex builds an index from explicit entries.
func NewArchiveIndex(m Method, entries []IndexEntry) *ArchiveIndex {
	sorted := make([]IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	return &ArchiveIndex{method: m, entries: sorted}
}

// Len returns the number of fingerprinted files.
func (ix *ArchiveIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Method returns the fingerprint method of every entry.
func (ix *ArchiveIndex) Method() Method { return ix.method }

// Lookup returns the fingerprint stored for path.
func (ix *ArchiveIndex) Lookup(path string) (Fingerprint, bool) {
	i := sort.Search(len(ix.entries), func(i int) bool { return ix.entries[i].Path >= path })
	if i < len(ix.entries) && ix.entries[i].Path == path {
		return ix.entries[i].Fingerprint, true
	}
	return Fingerprint{}, false
}

// BuildIndex walks every root, skips excluded paths, and fingerprints each
// image concurrently. Files that fail to decode are left out silently. A root
// that cannot be read is an error wrapping ErrArchiveRoot.
func (cfg *Config) BuildIndex(ctx context.Context, opts IndexOpts) (*ArchiveIndex, error) {
	if opts.Method == "" {
		opts.Method = MethodDHash
	}
	log := cfg.logger()

	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		roots = append(roots, resolveRoot(r))
	}
	// Excludes match both as written and through symlinks, since a root
	// may have been resolved to its target.
	exclude := make([]string, 0, len(opts.Exclude))
	for _, e := range opts.Exclude {
		abs := absClean(e)
		exclude = append(exclude, abs)
		if real, err := filepath.EvalSymlinks(abs); err == nil && real != abs {
			exclude = append(exclude, real)
		}
	}

	files, err := listImages(roots, exclude)
	if err != nil {
		return nil, err
	}
	log.Info("imagemerge: indexing archive", "roots", len(roots), "files", len(files), "method", opts.Method)
	if cfg.OnIndexStart != nil {
		cfg.OnIndexStart(len(files))
	}

	var cached map[string]cachedHash
	if opts.Cache != nil {
		if cached, err = opts.Cache.load(ctx, opts.Method); err != nil {
			log.Warn("imagemerge: hash cache unavailable", "error", err.Error())
			cached = nil
		}
	}

	type slot struct {
		entry IndexEntry
		ok    bool
		fresh *cacheRow
	}
	slots := make([]slot, len(files))

	var g errgroup.Group
	g.SetLimit(workerCount(opts.Workers))
	for i, f := range files {
		g.Go(func() error {
			defer cfg.recoverItem("index " + f.path)
			fp, ok, fresh := fingerprintArchiveFile(f, opts.Method, cached)
			slots[i] = slot{entry: IndexEntry{Path: f.path, Fingerprint: fp}, ok: ok, fresh: fresh}
			if !ok {
				log.Debug("imagemerge: skipping unreadable archive file", "path", f.path)
			}
			if cfg.OnIndexed != nil {
				cfg.OnIndexed(f.path, ok)
			}
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]IndexEntry, 0, len(files))
	var fresh []cacheRow
	hits := 0
	for _, s := range slots {
		if !s.ok {
			continue
		}
		entries = append(entries, s.entry)
		if s.fresh != nil {
			fresh = append(fresh, *s.fresh)
		} else {
			hits++
		}
	}

	if opts.Cache != nil && cached != nil {
		present := make(map[string]bool, len(files))
		for _, f := range files {
			present[f.path] = true
		}
		if err := opts.Cache.store(ctx, opts.Method, fresh); err != nil {
			log.Warn("imagemerge: hash cache store failed", "error", err.Error())
		} else if err := opts.Cache.prune(ctx, opts.Method, cached, present, roots); err != nil {
			log.Warn("imagemerge: hash cache prune failed", "error", err.Error())
		}
	}

	log.Info("imagemerge: indexed archive", "indexed", len(entries), "unreadable", len(files)-len(entries), "cached", hits)
	return NewArchiveIndex(opts.Method, entries), nil
}

type archiveFile struct {
	path  string
	size  int64
	mtime int64
}

// fingerprintArchiveFile returns the cached fingerprint when size and mtime
// still match, otherwise decodes the file. fresh is set for newly computed values.
func fingerprintArchiveFile(f archiveFile, m Method, cached map[string]cachedHash) (Fingerprint, bool, *cacheRow) {
	if c, ok := cached[f.path]; ok && c.size == f.size && c.mtime == f.mtime {
		return NewFingerprint(c.hash, m), true, nil
	}
	fp, ok := FingerprintFile(f.path, m)
	if !ok {
		return Fingerprint{}, false, nil
	}
	return fp, true, &cacheRow{path: f.path, size: f.size, mtime: f.mtime, fp: fp}
}

// listImages enumerates image files under roots, deduplicated across
// overlapping roots and sorted by path. Symlinked files are included when
// they point at a regular file; symlinked directories below a root are not
// descended into.
func listImages(roots, exclude []string) ([]archiveFile, error) {
	seen := make(map[string]bool)
	var out []archiveFile

	for _, root := range roots {
		fi, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArchiveRoot, root, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrArchiveRoot, root)
		}

		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == root {
					return err
				}
				// Unreadable subtree: skip it, keep walking siblings.
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if withinAny(p, exclude) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !IsImageFile(p) || seen[p] {
				return nil
			}
			var info fs.FileInfo
			switch {
			case d.Type().IsRegular():
				info, err = d.Info()
			case d.Type()&fs.ModeSymlink != 0:
				info, err = os.Stat(p)
			default:
				return nil
			}
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
			seen[p] = true
			out = append(out, archiveFile{path: p, size: info.Size(), mtime: info.ModTime().UnixNano()})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrArchiveRoot, root, err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}
