package main

import (
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags pipelineFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch gallery images, then merge the new ones into the archive",
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
			out := cmd.OutOrStdout()
			printFetchSummary(out, cfg, res)

			report, err := runMerge(cmd, ctx, cfg, flags.dryRun)
			if err != nil {
				return err
			}
			printMergeSummary(out, cfg, report)
			ctx.printPanics(out)
			return nil
		},
	}

	flags.registerCommon(cmd)
	flags.registerFetch(cmd)
	flags.registerMerge(cmd)
	return cmd
}
