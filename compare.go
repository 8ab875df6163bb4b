package imagemerge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CompareOpts configures a compare-and-merge run.
type CompareOpts struct {
	ManifestPath string
	StagingDir   string   // used when the manifest's stagingDir does not exist
	DestDir      string
	ArchiveRoots []string // DestDir is scanned too, so reruns find earlier merges
	Exclude      []string // the staging directory is always excluded
	Threshold    int      // inclusive: distance == Threshold is a duplicate
	Method       Method
	Workers      int
	DryRun       bool
	Cache        *HashCache
	ReportPath   string       // optional
	Catalog      *CatalogOpts // optional; ignored in dry-run
}

// CompareAndMerge loads the manifest, indexes the archive, classifies every
// staged item, merges the new ones in seq order, and writes the report.
// Setup failures (missing manifest, unreadable archive root, unusable
// destination) abort before any item is processed. Per-item problems are
// recorded in the report instead.
func (cfg *Config) CompareAndMerge(ctx context.Context, opts CompareOpts) (*Report, error) {
	log := cfg.logger()

	if opts.Threshold < 0 || opts.Threshold > MaxDistance {
		return nil, fmt.Errorf("imagemerge: threshold %d outside [0, %d]", opts.Threshold, MaxDistance)
	}
	method, err := ParseMethod(string(opts.Method))
	if err != nil {
		return nil, err
	}
	if opts.DestDir == "" {
		return nil, fmt.Errorf("%w: destination dir is required", ErrDestination)
	}

	m, err := LoadManifest(opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	staging := opts.StagingDir
	if m.StagingDir != "" && isDir(m.StagingDir) {
		staging = m.StagingDir
	}

	dest := absClean(opts.DestDir)
	if !opts.DryRun {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDestination, err)
		}
	} else if fi, err := os.Stat(dest); err == nil && !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDestination, dest)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrDestination, err)
	}

	roots, exclude := indexScope(opts, dest, staging)
	if withinAny(dest, exclude) {
		log.Warn("imagemerge: destination is excluded from the archive scan; reruns will not detect earlier merges", "dest", dest)
	}

	ix, err := cfg.BuildIndex(ctx, IndexOpts{
		Roots:   roots,
		Exclude: exclude,
		Method:  method,
		Workers: opts.Workers,
		Cache:   opts.Cache,
	})
	if err != nil {
		return nil, err
	}

	items := cfg.matchAll(m.Items, staging, ix, method, opts)

	var decisions []MatchDecision
	for _, it := range items {
		if it.decision != nil {
			decisions = append(decisions, *it.decision)
		}
	}
	// An interrupted merge has already committed files; they are still
	// reported before the error is returned.
	merged, mergeErr := cfg.Merge(ctx, decisions, MergeOpts{DestDir: dest, StagingDir: staging, DryRun: opts.DryRun})
	if mergeErr != nil {
		if len(merged) == 0 {
			return nil, mergeErr
		}
		log.Warn("imagemerge: merge interrupted", "merged", len(merged), "error", mergeErr.Error())
	}
	saved := make(map[int]string, len(merged))
	for _, a := range merged {
		saved[a.ItemSeq] = a.Name
	}

	r := &Report{
		RunID:        uuid.NewString(),
		GeneratedAt:  time.Now().UTC(),
		Manifest:     opts.ManifestPath,
		Threshold:    opts.Threshold,
		Method:       method,
		DestDir:      opts.DestDir,
		DryRun:       opts.DryRun,
		IndexedCount: ix.Len(),
		Items:        make([]ReportItem, 0, len(items)),
	}
	for _, it := range items {
		ri := it.report
		if name, ok := saved[ri.Seq]; ok {
			ri.SavedAs = &name
		}
		if ri.IsNew != nil && *ri.IsNew {
			r.NewOnlyCount++
		}
		r.Items = append(r.Items, ri)
	}
	log.Info("imagemerge: compare done", "items", len(r.Items), "new", r.NewOnlyCount, "merged", len(merged), "dry_run", opts.DryRun)

	if opts.ReportPath != "" {
		if err := WriteReport(opts.ReportPath, r); err != nil {
			return r, err
		}
		log.Info("imagemerge: report written", "path", opts.ReportPath)
	}

	if opts.Catalog != nil && !opts.DryRun && len(merged) > 0 {
		entries := CatalogEntries(opts.Catalog.TitlePrefix, opts.DestDir, merged)
		if err := UpdateCatalog(*opts.Catalog, entries); err != nil {
			return r, err
		}
		log.Info("imagemerge: catalog updated", "path", opts.Catalog.Path, "key", opts.Catalog.Key, "entries", len(entries))
	}
	return r, mergeErr
}

// indexScope returns the archive roots and exclusions for a run. The
// destination joins the roots when no root already covers it, and the
// staging directory is always excluded.
func indexScope(opts CompareOpts, dest, staging string) (roots, exclude []string) {
	for _, r := range opts.ArchiveRoots {
		roots = append(roots, absClean(r))
	}
	if !withinAny(dest, roots) && isDir(dest) {
		roots = append(roots, dest)
	}
	for _, e := range opts.Exclude {
		exclude = append(exclude, absClean(e))
	}
	if staging != "" {
		exclude = append(exclude, absClean(staging))
	}
	return roots, exclude
}

type matchedItem struct {
	report   ReportItem
	decision *MatchDecision
}

// matchAll fingerprints staged items concurrently and matches each against
// ix. Results keep manifest order.
func (cfg *Config) matchAll(assets []StagedAsset, staging string, ix *ArchiveIndex, m Method, opts CompareOpts) []matchedItem {
	log := cfg.logger()
	sortStaged(assets)
	out := make([]matchedItem, len(assets))

	var g errgroup.Group
	g.SetLimit(workerCount(opts.Workers))
	for i, a := range assets {
		g.Go(func() error {
			// Overwritten on success; a panicking item stays unreadable.
			out[i] = matchedItem{report: failedItem(a, StatusUnreadable)}
			defer cfg.recoverItem(fmt.Sprintf("match %04d", a.Seq))

			src := a.Path(staging)
			if fi, err := os.Stat(src); err != nil || !fi.Mode().IsRegular() {
				log.Warn("imagemerge: staged file missing", "seq", a.Seq, "file", src)
				out[i] = matchedItem{report: failedItem(a, StatusMissingTemp)}
				return nil
			}
			fp, ok := FingerprintFile(src, m)
			if !ok {
				log.Warn("imagemerge: staged file unreadable", "seq", a.Seq, "file", src)
				out[i] = matchedItem{report: failedItem(a, StatusUnreadable)}
				return nil
			}
			d := Match(a, fp, ix, opts.Threshold)
			log.Debug("imagemerge: matched", "seq", a.Seq, "nearest", d.NearestPath, "distance", d.Distance, "new", d.IsNew)
			out[i] = matchedItem{report: decisionItem(d), decision: &d}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
