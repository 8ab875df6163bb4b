package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-imagemerge/internal/config"
)

// pipelineFlags holds command-line overrides for the fetch and merge stages.
// Only flags the user actually set are applied on top of the loaded config.
type pipelineFlags struct {
	stagingDir string
	manifest   string
	workers    int

	pages     []string
	timeout   time.Duration
	maxCount  int
	maxMB     int
	retries   int
	userAgent string

	destDir     string
	roots       []string
	exclude     []string
	threshold   int
	method      string
	dryRun      bool
	report      string
	hashCache   string
	catalog     string
	catalogKey  string
	titlePrefix string
}

func (f *pipelineFlags) registerCommon(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.stagingDir, "staging-dir", "", "Staging directory for downloaded images")
	fs.StringVar(&f.manifest, "manifest", "", "Manifest file path")
	fs.IntVarP(&f.workers, "workers", "w", 0, "Concurrent workers")
}

func (f *pipelineFlags) registerFetch(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&f.pages, "page", "p", nil, "Gallery page URL (repeatable, visited in order)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-request timeout (e.g. 30s)")
	fs.IntVar(&f.maxCount, "max-count", 0, "Maximum number of images to fetch (0 = no limit)")
	fs.IntVar(&f.maxMB, "max-mb", 0, "Per-image size limit in MB")
	fs.IntVar(&f.retries, "retries", 0, "Retries for transient download failures")
	fs.StringVar(&f.userAgent, "user-agent", "", "HTTP User-Agent header")
}

func (f *pipelineFlags) registerMerge(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.destDir, "dest-dir", "", "Destination directory for new images")
	fs.StringArrayVar(&f.roots, "archive-root", nil, "Archive root to index (repeatable)")
	fs.StringArrayVar(&f.exclude, "exclude", nil, "Directory excluded from indexing (repeatable)")
	fs.IntVarP(&f.threshold, "threshold", "t", 0, "Maximum distance still counted as a duplicate (0-64)")
	fs.StringVar(&f.method, "method", "", "Fingerprint method: dhash, ahash, phash")
	fs.BoolVarP(&f.dryRun, "dry-run", "n", false, "Classify and report without copying anything")
	fs.StringVar(&f.report, "report", "", "Report file path")
	fs.StringVar(&f.hashCache, "hash-cache", "", "SQLite fingerprint cache path")
	fs.StringVar(&f.catalog, "catalog", "", "Catalog JSON file to append merged images to")
	fs.StringVar(&f.catalogKey, "catalog-key", "", "Catalog section key")
	fs.StringVar(&f.titlePrefix, "title-prefix", "", "Catalog entry title prefix")
}

// apply copies set flags into cfg and revalidates it.
func (f *pipelineFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()

	paths := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"staging-dir", f.stagingDir, &cfg.Fetch.StagingDir},
		{"manifest", f.manifest, &cfg.Fetch.ManifestPath},
		{"dest-dir", f.destDir, &cfg.Merge.DestDir},
		{"report", f.report, &cfg.Merge.ReportPath},
		{"hash-cache", f.hashCache, &cfg.Merge.HashCache},
		{"catalog", f.catalog, &cfg.Catalog.Path},
	}
	for _, p := range paths {
		if !fs.Changed(p.flag) {
			continue
		}
		v, err := config.ExpandPath(strings.TrimSpace(p.value))
		if err != nil {
			return fmt.Errorf("--%s: %w", p.flag, err)
		}
		*p.dst = v
	}

	if fs.Changed("archive-root") {
		roots, err := expandAll(f.roots)
		if err != nil {
			return fmt.Errorf("--archive-root: %w", err)
		}
		cfg.Merge.ArchiveRoots = roots
	}
	if fs.Changed("exclude") {
		exclude, err := expandAll(f.exclude)
		if err != nil {
			return fmt.Errorf("--exclude: %w", err)
		}
		cfg.Merge.ExcludeDirs = exclude
	}

	if fs.Changed("workers") {
		cfg.Fetch.Workers = f.workers
		cfg.Merge.Workers = f.workers
	}
	if fs.Changed("page") {
		cfg.Fetch.Pages = f.pages
	}
	if fs.Changed("timeout") {
		cfg.Fetch.TimeoutSeconds = int(f.timeout.Round(time.Second) / time.Second)
	}
	if fs.Changed("max-count") {
		cfg.Fetch.MaxCount = f.maxCount
	}
	if fs.Changed("max-mb") {
		cfg.Fetch.MaxMB = f.maxMB
	}
	if fs.Changed("retries") {
		cfg.Fetch.Retries = f.retries
	}
	if fs.Changed("user-agent") {
		cfg.Fetch.UserAgent = strings.TrimSpace(f.userAgent)
	}
	if fs.Changed("threshold") {
		cfg.Merge.Threshold = f.threshold
	}
	if fs.Changed("method") {
		cfg.Merge.Method = strings.ToLower(strings.TrimSpace(f.method))
	}
	if fs.Changed("catalog") {
		cfg.Catalog.Enabled = true
	}
	if fs.Changed("catalog-key") {
		cfg.Catalog.Key = f.catalogKey
	}
	if fs.Changed("title-prefix") {
		cfg.Catalog.TitlePrefix = f.titlePrefix
	}

	return cfg.Validate()
}

func expandAll(values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		expanded, err := config.ExpandPath(v)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}
