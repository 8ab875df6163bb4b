package imagemerge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mkdirs(t *testing.T, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildIndex_SegmentAwareExclusion(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	temp := filepath.Join(root, "_temp_jimdo")
	extra := filepath.Join(root, "_temp_jimdoExtra")
	mkdirs(t, temp, extra, filepath.Join(root, "set1"))

	img := encodePNG(gradientImage(18, 8, true))
	writeFile(t, filepath.Join(temp, "0001.png"), img)
	writeFile(t, filepath.Join(extra, "0001.png"), img)
	writeFile(t, filepath.Join(root, "set1", "0001.png"), img)
	writeFile(t, filepath.Join(root, "set1", "notes.txt"), []byte("not an image"))
	writeFile(t, filepath.Join(root, "set1", "broken.jpg"), []byte("garbage"))

	cfg := &Config{}
	ix, err := cfg.BuildIndex(context.Background(), IndexOpts{
		Roots:   []string{root},
		Exclude: []string{temp},
	})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if ix.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ix.Len())
	}
	if _, ok := ix.Lookup(filepath.Join(extra, "0001.png")); !ok {
		t.Error("sibling with shared name prefix was excluded")
	}
	if _, ok := ix.Lookup(filepath.Join(temp, "0001.png")); ok {
		t.Error("excluded directory was indexed")
	}
	if _, ok := ix.Lookup(filepath.Join(root, "set1", "broken.jpg")); ok {
		t.Error("undecodable file was indexed")
	}
}

func TestBuildIndex_OverlappingRootsDeduplicated(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	mkdirs(t, sub)
	writeFile(t, filepath.Join(sub, "a.png"), encodePNG(gradientImage(18, 8, false)))

	cfg := &Config{}
	ix, err := cfg.BuildIndex(context.Background(), IndexOpts{Roots: []string{root, sub}, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
}

func TestBuildIndex_MissingRoot(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	_, err := cfg.BuildIndex(context.Background(), IndexOpts{Roots: []string{filepath.Join(t.TempDir(), "absent")}})
	if !errors.Is(err, ErrArchiveRoot) {
		t.Fatalf("err = %v, want ErrArchiveRoot", err)
	}
}

func TestBuildIndex_UsesHashCache(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	root := filepath.Join(dir, "images")
	mkdirs(t, root)
	a := filepath.Join(root, "a.png")
	writeFile(t, a, encodePNG(gradientImage(9, 8, true)))

	cache, err := OpenHashCache(filepath.Join(dir, "cache", "hashes.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	cfg := &Config{}
	opts := IndexOpts{Roots: []string{root}, Cache: cache}
	first, err := cfg.BuildIndex(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := cache.load(context.Background(), MethodDHash)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("cache rows = %d, want 1", len(rows))
	}

	// Corrupt the cached value; an unchanged file must be served from cache.
	c := rows[a]
	if err := cache.store(context.Background(), MethodDHash, []cacheRow{{path: a, size: c.size, mtime: c.mtime, fp: NewFingerprint(0xABCD, MethodDHash)}}); err != nil {
		t.Fatal(err)
	}
	second, err := cfg.BuildIndex(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := first.Lookup(a)
	got, _ := second.Lookup(a)
	if want.Uint64() != 0 || got.Uint64() != 0xABCD {
		t.Errorf("first = %x, second = %x; want 0 then cached abcd", want.Uint64(), got.Uint64())
	}

	// Deleting the file prunes its row.
	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.BuildIndex(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	rows, _ = cache.load(context.Background(), MethodDHash)
	if len(rows) != 0 {
		t.Errorf("cache rows after delete = %d, want 0", len(rows))
	}
}

func TestBuildIndex_FollowsSymlinkedRootAndFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	elsewhere := filepath.Join(dir, "elsewhere")
	skip := filepath.Join(archive, "skip")
	mkdirs(t, archive, elsewhere, skip)

	writeFile(t, filepath.Join(archive, "a.png"), encodePNG(gradientImage(9, 8, true)))
	writeFile(t, filepath.Join(elsewhere, "b.png"), encodePNG(gradientImage(9, 8, false)))
	writeFile(t, filepath.Join(skip, "c.png"), encodePNG(splitImage(8, 8)))

	if err := os.Symlink(filepath.Join(elsewhere, "b.png"), filepath.Join(archive, "b-link.png")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "missing.png"), filepath.Join(archive, "dangling.png")); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "images")
	if err := os.Symlink(archive, link); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	ix, err := cfg.BuildIndex(context.Background(), IndexOpts{
		Roots:   []string{link},
		Exclude: []string{filepath.Join(link, "skip")},
	})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if ix.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (a.png and b-link.png)", ix.Len())
	}

	real, err := filepath.EvalSymlinks(archive)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.Lookup(filepath.Join(real, "b-link.png")); !ok {
		t.Error("symlinked image file was not indexed")
	}
	if _, ok := ix.Lookup(filepath.Join(real, "skip", "c.png")); ok {
		t.Error("exclude given through the symlinked root was ignored")
	}
}
