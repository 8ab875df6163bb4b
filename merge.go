package imagemerge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/gofrs/flock"
)

// seqPrefixRe matches destination names that carry a sequence number,
// e.g. "0007.jpg" or "0012 caption.png".
var seqPrefixRe = regexp.MustCompile(`^(\d{4})\b`)

const lockName = ".imagemerge.lock"

// MergeOpts configures the merge engine.
type MergeOpts struct {
	DestDir    string
	StagingDir string
	DryRun     bool
}

// MergedAsset is a candidate committed to the destination directory.
type MergedAsset struct {
	Sequence int    // destination sequence number
	ItemSeq  int    // candidate seq it came from
	Source   string // staged file
	Path     string // destination file
	Name     string // base name of Path, e.g. "0006.jpg"
}

// NextSequence returns one past the largest four-digit prefix in dir, or 1
// when dir is missing or has no numbered files.
func NextSequence(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 1, nil
		}
		return 0, fmt.Errorf("%w: read %s: %v", ErrDestination, dir, err)
	}
	highest := 0
	for _, e := range entries {
		m := seqPrefixRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// Merge copies every new decision into opts.DestDir in candidate order,
// numbering files from NextSequence upward. A copy that fails is logged and
// does not consume a number. In dry-run nothing is written and no number is
// consumed, so the result is empty.
//
// Merge holds an exclusive lock on the destination for its whole duration.
func (cfg *Config) Merge(ctx context.Context, decisions []MatchDecision, opts MergeOpts) ([]MergedAsset, error) {
	ordered := make([]MatchDecision, len(decisions))
	copy(ordered, decisions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Item.Seq < ordered[j].Item.Seq })

	if opts.DryRun {
		return nil, nil
	}

	log := cfg.logger()
	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestination, err)
	}

	lock := flock.New(filepath.Join(opts.DestDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestination, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, opts.DestDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("imagemerge: release lock failed", "dest", opts.DestDir, "error", err.Error())
		}
	}()

	seq, err := NextSequence(opts.DestDir)
	if err != nil {
		return nil, err
	}

	var merged []MergedAsset
	for _, d := range ordered {
		if !d.IsNew {
			continue
		}
		if err := ctx.Err(); err != nil {
			return merged, err
		}

		src := d.Item.Path(opts.StagingDir)
		name := fmt.Sprintf("%04d%s", seq, NormalizeExt(filepath.Ext(src)))
		dst := filepath.Join(opts.DestDir, name)
		if err := copyPreservingMtime(src, dst); err != nil {
			log.Warn("imagemerge: merge copy failed", "seq", d.Item.Seq, "src", src, "error", err.Error())
			continue
		}

		asset := MergedAsset{Sequence: seq, ItemSeq: d.Item.Seq, Source: src, Path: dst, Name: name}
		merged = append(merged, asset)
		log.Info("imagemerge: merged", "seq", d.Item.Seq, "as", name)
		if cfg.OnMerged != nil {
			cfg.OnMerged(asset)
		}
		seq++
	}
	return merged, nil
}

// copyPreservingMtime copies src to dst through a temp file in dst's
// directory and carries over src's modification time. dst must not exist.
func copyPreservingMtime(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s already exists", dst)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
