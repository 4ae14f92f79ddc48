package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ncecere/usage_reports/backend/internal/models"
)

var (
	pushName  string
	pushTeam  string
	pushSince string
	pushUntil string
)

var pushCmd = &cobra.Command{
	Use:   "push FILE",
	Short: "Upload one ccusage export as a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := models.ParseUsageRecord(data); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		body := map[string]any{
			"userName":    pushName,
			"teamName":    pushTeam,
			"ccusageData": json.RawMessage(data),
			"fileName":    filepath.Base(path),
			"since":       pushSince,
			"until":       pushUntil,
		}
		resp, status, err := apiRequest(cmd.Context(), http.MethodPost, "/api/reports", body)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return apiError(resp, status)
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			_, err := out.Write(append(resp, '\n'))
			return err
		}
		var saved struct {
			ReportID string           `json:"reportId"`
			Period   string           `json:"period"`
			Summary  models.TeamStats `json:"summary"`
			Warning  string           `json:"warning"`
		}
		if err := json.Unmarshal(resp, &saved); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Fprintf(out, "Saved report %s\n", saved.ReportID)
		fmt.Fprintf(out, "Period: %s\n", saved.Period)
		fmt.Fprintf(out, "Cost: $%s  Tokens: %s\n",
			humanize.CommafWithDigits(saved.Summary.TotalCost, 2), humanize.Comma(saved.Summary.TotalTokens))
		if saved.Warning != "" {
			fmt.Fprintf(out, "Warning: %s\n", saved.Warning)
		}
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushName, "name", "", "Reporter name")
	pushCmd.Flags().StringVar(&pushTeam, "team", "", "Team name")
	pushCmd.Flags().StringVar(&pushSince, "since", "", "Period start override (YYYYMMDD)")
	pushCmd.Flags().StringVar(&pushUntil, "until", "", "Period end override (YYYYMMDD)")
	_ = pushCmd.MarkFlagRequired("name")
	addClientFlags(pushCmd)
	rootCmd.AddCommand(pushCmd)
}
