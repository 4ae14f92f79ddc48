package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check that ccusage exports are well formed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			rec, err := readUsageFile(path)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(out, "%s: ok, %d days (%s to %s), %s tokens, $%s\n",
				path, len(rec.Daily), rec.FirstDate(), rec.LastDate(),
				humanize.Comma(rec.Totals.TotalTokens),
				humanize.CommafWithDigits(rec.Totals.TotalCost, 2))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files invalid", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func readUsageFile(path string) (models.UsageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.UsageRecord{}, err
	}
	return models.ParseUsageRecord(data)
}
