package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ncecere/usage_reports/backend/internal/config"
	"github.com/ncecere/usage_reports/backend/internal/database"
	"github.com/ncecere/usage_reports/backend/internal/db"
	reportsvc "github.com/ncecere/usage_reports/backend/internal/services/reports"
)

var (
	importConfig   string
	importTeam     string
	importReporter string
	importSince    string
	importUntil    string
)

// importCmd writes a team report straight to the database, one member per
// export file in DIR. The member name is the file name without extension.
var importCmd = &cobra.Command{
	Use:   "import DIR",
	Short: "Store a directory of exports as one team report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		members, err := loadMembers(args[0])
		if err != nil {
			return err
		}

		cfg, err := config.Load(config.Options{ConfigFile: importConfig})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx := cmd.Context()
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer pool.Close()

		svc := reportsvc.NewService(db.New(pool), reportsvc.PgxTx(pool), cfg.Reports)
		res, err := svc.SaveTeam(ctx, reportsvc.TeamInput{
			TeamName:     importTeam,
			ReporterName: importReporter,
			Members:      members,
			Since:        importSince,
			Until:        importUntil,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved team report %s for %s (%d members, period %s)\n",
			res.Report.ID, importTeam, len(members), res.Report.Period)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importConfig, "config", "", "Service config file")
	importCmd.Flags().StringVar(&importTeam, "team", "", "Team name")
	importCmd.Flags().StringVar(&importReporter, "reporter", "", "Reporter name")
	importCmd.Flags().StringVar(&importSince, "since", "", "Period start override (YYYYMMDD)")
	importCmd.Flags().StringVar(&importUntil, "until", "", "Period end override (YYYYMMDD)")
	_ = importCmd.MarkFlagRequired("team")
	rootCmd.AddCommand(importCmd)
}

func loadMembers(dir string) ([]reportsvc.MemberInput, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .json files in %s", dir)
	}
	sort.Strings(paths)

	members := make([]reportsvc.MemberInput, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(path)
		members = append(members, reportsvc.MemberInput{
			Name:     strings.TrimSuffix(base, filepath.Ext(base)),
			FileName: base,
			Data:     data,
		})
	}
	return members, nil
}
