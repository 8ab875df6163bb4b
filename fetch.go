package imagemerge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FetchOpts configures a fetch run.
type FetchOpts struct {
	StagingDir  string
	Workers     int           // concurrent downloads (default: 8)
	Timeout     time.Duration // per-request timeout (default: 30s)
	MaxBytes    int64         // per-image size cap (default: 50MB)
	SourcePages []string      // recorded in the manifest
}

// Fetch downloads items concurrently into opts.StagingDir and returns the
// manifest of successes sorted by seq. Failed items are logged and left out,
// so the result may have gaps; a run where every item fails still returns an
// empty manifest. Only an unusable staging directory is an error.
func (cfg *Config) Fetch(ctx context.Context, items []CandidateItem, opts FetchOpts) (*Manifest, error) {
	cfg.defaults()

	if err := checkSequence(items); err != nil {
		return nil, err
	}
	if opts.StagingDir == "" {
		return nil, fmt.Errorf("imagemerge: staging dir is required")
	}
	if err := os.MkdirAll(opts.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	log := cfg.logger()
	log.Info("imagemerge: fetching", "items", len(items), "staging", opts.StagingDir, "workers", workerCount(opts.Workers))

	// Each worker owns results[i]; nothing is shared until Wait returns.
	results := make([]*StagedAsset, len(items))
	var g errgroup.Group
	g.SetLimit(workerCount(opts.Workers))
	for i, it := range items {
		g.Go(func() error {
			results[i] = cfg.fetchOne(ctx, it, opts)
			if cfg.OnFetched != nil {
				cfg.OnFetched(it, results[i] != nil)
			}
			return nil
		})
	}
	_ = g.Wait()

	staged := make([]StagedAsset, 0, len(items))
	for _, r := range results {
		if r != nil {
			staged = append(staged, *r)
		}
	}
	sortStaged(staged)

	log.Info("imagemerge: fetch done", "saved", len(staged), "total", len(items))

	return &Manifest{
		RunID:       uuid.NewString(),
		SourcePages: opts.SourcePages,
		FetchedAt:   time.Now().UTC(),
		StagingDir:  opts.StagingDir,
		Count:       len(staged),
		Items:       staged,
	}, nil
}

// fetchOne downloads and stages a single item. Returns nil on any failure.
func (cfg *Config) fetchOne(ctx context.Context, it CandidateItem, opts FetchOpts) (staged *StagedAsset) {
	defer cfg.recoverItem(fmt.Sprintf("fetch %04d", it.Seq))

	log := cfg.logger()
	res, err := cfg.Download(ctx, it.URL, DownloadOpts{
		MaxBytes: opts.MaxBytes,
		Timeout:  opts.Timeout,
	})
	if err != nil {
		log.Warn("imagemerge: fetch dropped", "seq", it.Seq, "url", it.URL, "error", err.Error())
		return nil
	}

	name := fmt.Sprintf("%04d%s", it.Seq, res.Ext)
	if err := writeFileAtomic(filepath.Join(opts.StagingDir, name), res.Data); err != nil {
		log.Warn("imagemerge: stage write failed", "seq", it.Seq, "file", name, "error", err.Error())
		return nil
	}

	log.Info("imagemerge: saved",
		"seq", it.Seq,
		"file", name,
		"size", humanize.Bytes(uint64(len(res.Data))),
		"dims", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"attempts", res.Attempts,
	)

	return &StagedAsset{
		CandidateItem: it,
		Filename:      name,
		Size:          int64(len(res.Data)),
		Credit:        ExtractImageMetadata(res.Data).Credit(),
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
