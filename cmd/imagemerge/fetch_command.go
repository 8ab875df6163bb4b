package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-imagemerge"
	"github.com/anatolykoptev/go-imagemerge/internal/config"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var flags pipelineFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download gallery images into the staging directory and write a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			res, err := runFetch(cmd, ctx, cfg)
			if err != nil {
				return err
			}
			printFetchSummary(cmd.OutOrStdout(), cfg, res)
			ctx.printPanics(cmd.OutOrStdout())
			return nil
		},
	}

	flags.registerCommon(cmd)
	flags.registerFetch(cmd)
	return cmd
}

type fetchResult struct {
	candidates int
	manifest   *imagemerge.Manifest
}

// runFetch collects candidates from the configured pages, downloads them, and
// writes the manifest.
func runFetch(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) (*fetchResult, error) {
	if len(cfg.Fetch.Pages) == 0 {
		return nil, errors.New("no gallery pages: pass --page or set fetch.pages")
	}

	lib := ctx.libConfig(cfg)
	extractor := lib.GalleryExtractor(imagemerge.ExtractOpts{
		Selectors:      cfg.Fetch.Selectors,
		SkipDecorative: cfg.Fetch.SkipDecorative,
		Timeout:        time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})
	items, err := lib.CollectCandidates(cmd.Context(), extractor, cfg.Fetch.Pages, cfg.Fetch.MaxCount)
	if err != nil {
		return nil, err
	}

	bar := newProgress(cmd.ErrOrStderr(), ctx.quiet()).start(len(items), "fetching")
	lib.OnFetched = func(imagemerge.CandidateItem, bool) { bar.add() }
	m, err := lib.Fetch(cmd.Context(), items, imagemerge.FetchOpts{
		StagingDir:  cfg.Fetch.StagingDir,
		Workers:     cfg.Fetch.Workers,
		Timeout:     time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxBytes:    int64(cfg.Fetch.MaxMB) << 20,
		SourcePages: cfg.Fetch.Pages,
	})
	bar.finish()
	if err != nil {
		return nil, err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil, err
	}

	if err := imagemerge.WriteManifest(cfg.Fetch.ManifestPath, m); err != nil {
		return nil, err
	}
	return &fetchResult{candidates: len(items), manifest: m}, nil
}

func printFetchSummary(out io.Writer, cfg *config.Config, res *fetchResult) {
	var total int64
	for _, it := range res.manifest.Items {
		total += it.Size
	}
	fmt.Fprintf(out, "Fetched %d of %d images (%s) into %s\n",
		res.manifest.Count, res.candidates, humanize.Bytes(uint64(total)), cfg.Fetch.StagingDir)
	if failed := res.candidates - res.manifest.Count; failed > 0 {
		fmt.Fprintf(out, "%d failed; see the log for details\n", failed)
	}
	fmt.Fprintf(out, "Manifest: %s\n", cfg.Fetch.ManifestPath)
}
