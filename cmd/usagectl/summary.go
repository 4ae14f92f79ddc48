package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ncecere/usage_reports/backend/internal/aggregate"
)

var summaryCmd = &cobra.Command{
	Use:   "summary FILE",
	Short: "Print per-model usage of one ccusage export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := readUsageFile(args[0])
		if err != nil {
			return err
		}
		merged := aggregate.MergeDaily(rec)
		rows := aggregate.MergeModels(merged.Daily)
		totals := aggregate.SumDaily(merged.Daily)

		out := cmd.OutOrStdout()
		if outputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"models": rows, "totals": totals})
		}

		fmt.Fprintf(out, "Period: %s to %s (%d days)\n\n", merged.FirstDate(), merged.LastDate(), len(merged.Daily))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tREQUESTS\tINPUT\tOUTPUT\tCACHE CREATE\tCACHE READ\tTOTAL\tCOST\tSHARE")
		for _, row := range rows {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t$%s\t%s%%\n",
				row.ModelName, row.RequestCount,
				humanize.Comma(row.InputTokens), humanize.Comma(row.OutputTokens),
				humanize.Comma(row.CacheCreationTokens), humanize.Comma(row.CacheReadTokens),
				humanize.Comma(row.TotalTokens), humanize.CommafWithDigits(row.Cost, 2), row.Percentage)
		}
		fmt.Fprintf(tw, "TOTAL\t\t%s\t%s\t%s\t%s\t%s\t$%s\t\n",
			humanize.Comma(totals.InputTokens), humanize.Comma(totals.OutputTokens),
			humanize.Comma(totals.CacheCreationTokens), humanize.Comma(totals.CacheReadTokens),
			humanize.Comma(totals.TotalTokens), humanize.CommafWithDigits(totals.TotalCost, 2))
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}
