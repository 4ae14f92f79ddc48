// Command usagectl checks ccusage exports locally and uploads them to the
// report service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:          "usagectl",
	Short:        "Validate, summarize and upload ccusage exports",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print raw JSON output")
}

// addClientFlags registers the flags shared by commands that talk to the server.
func addClientFlags(cmd *cobra.Command) {
	def := os.Getenv("USAGE_REPORTS_SERVER")
	if def == "" {
		def = "http://localhost:8080"
	}
	cmd.Flags().StringVar(&serverURL, "server", def, "Report service base URL (env USAGE_REPORTS_SERVER)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
