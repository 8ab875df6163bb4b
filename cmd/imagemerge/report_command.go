package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go-imagemerge"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var newOnly bool

	cmd := &cobra.Command{
		Use:   "report [FILE]",
		Short: "Render a saved compare-and-merge report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Merge.ReportPath
			if len(args) == 1 {
				path = strings.TrimSpace(args[0])
			}
			if path == "" {
				return fmt.Errorf("no report path: pass FILE or set merge.report_path")
			}

			r, err := imagemerge.LoadReport(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := reportRows(r, newOnly)
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(
					[]string{"Seq", "Status", "Distance", "Nearest", "Saved As", "URL"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
			} else {
				fmt.Fprintln(out, "No items to show")
			}
			fmt.Fprintln(out, renderCounts(r))
			fmt.Fprintf(out, "Method %s, threshold %d, dry run: %s\n", r.Method, r.Threshold, yesNo(r.DryRun))
			return nil
		},
	}

	cmd.Flags().BoolVar(&newOnly, "new-only", false, "Show only items classified as new")
	return cmd
}

func reportRows(r *imagemerge.Report, newOnly bool) [][]string {
	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		isNew := it.IsNew != nil && *it.IsNew
		if newOnly && !isNew {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(it.Seq),
			itemStatus(it),
			optionalInt(it.Distance),
			optionalString(it.BestMatch),
			optionalString(it.SavedAs),
			it.URL,
		})
	}
	return rows
}

func itemStatus(it imagemerge.ReportItem) string {
	switch {
	case it.Status != "":
		return it.Status
	case it.IsNew != nil && *it.IsNew:
		return "new"
	default:
		return "duplicate"
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func optionalString(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
