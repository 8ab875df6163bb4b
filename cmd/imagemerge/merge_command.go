package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-imagemerge"
	"github.com/anatolykoptev/go-imagemerge/internal/config"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var flags pipelineFlags

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Compare staged images with the archive and copy new ones into the destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			report, err := runMerge(cmd, ctx, cfg, flags.dryRun)
			if err != nil {
				return err
			}
			printMergeSummary(cmd.OutOrStdout(), cfg, report)
			ctx.printPanics(cmd.OutOrStdout())
			return nil
		},
	}

	flags.registerCommon(cmd)
	flags.registerMerge(cmd)
	return cmd
}

// runMerge indexes the archive, classifies the manifest, merges new images,
// and writes the report.
func runMerge(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, dryRun bool) (*imagemerge.Report, error) {
	method, err := imagemerge.ParseMethod(cfg.Merge.Method)
	if err != nil {
		return nil, err
	}

	var cache *imagemerge.HashCache
	if cfg.Merge.HashCache != "" {
		cache, err = imagemerge.OpenHashCache(cfg.Merge.HashCache)
		if err != nil {
			return nil, err
		}
		defer cache.Close()
	}

	var catalog *imagemerge.CatalogOpts
	if cfg.Catalog.Enabled {
		catalog = &imagemerge.CatalogOpts{
			Path:        cfg.Catalog.Path,
			Key:         cfg.Catalog.Key,
			TitlePrefix: cfg.Catalog.TitlePrefix,
		}
	}

	lib := ctx.libConfig(cfg)
	prog := newProgress(cmd.ErrOrStderr(), ctx.quiet())
	var bar *progressBar
	lib.OnIndexStart = func(total int) { bar = prog.start(total, "indexing") }
	lib.OnIndexed = func(string, bool) { bar.add() }
	defer func() { bar.finish() }()

	return lib.CompareAndMerge(cmd.Context(), imagemerge.CompareOpts{
		ManifestPath: cfg.Fetch.ManifestPath,
		StagingDir:   cfg.Fetch.StagingDir,
		DestDir:      cfg.Merge.DestDir,
		ArchiveRoots: cfg.Merge.ArchiveRoots,
		Exclude:      cfg.Merge.ExcludeDirs,
		Threshold:    cfg.Merge.Threshold,
		Method:       method,
		Workers:      cfg.Merge.Workers,
		DryRun:       dryRun,
		Cache:        cache,
		ReportPath:   cfg.Merge.ReportPath,
		Catalog:      catalog,
	})
}

func printMergeSummary(out io.Writer, cfg *config.Config, r *imagemerge.Report) {
	fmt.Fprintln(out, renderCounts(r))
	fmt.Fprintf(out, "Archive images indexed: %d (method %s, threshold %d)\n", r.IndexedCount, r.Method, r.Threshold)
	if r.DryRun {
		fmt.Fprintln(out, "Dry run: nothing was copied")
	} else {
		fmt.Fprintf(out, "Destination: %s\n", r.DestDir)
	}
	if cfg.Merge.ReportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", cfg.Merge.ReportPath)
	}
}

func renderCounts(r *imagemerge.Report) string {
	c := r.Counts()
	headers := []string{"Items", "New", "Duplicate", "Saved", "Missing", "Unreadable"}
	row := []string{
		strconv.Itoa(c.Total),
		strconv.Itoa(c.New),
		strconv.Itoa(c.Duplicate),
		strconv.Itoa(c.Saved),
		strconv.Itoa(c.MissingTemp),
		strconv.Itoa(c.Unreadable),
	}
	aligns := make([]columnAlignment, len(headers))
	for i := range aligns {
		aligns[i] = alignRight
	}
	return renderTable(headers, [][]string{row}, aligns)
}
