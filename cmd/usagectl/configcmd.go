package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ncecere/usage_reports/backend/internal/config"
)

var configFile string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective service configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ConfigFile: configFile})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(redactConfig(*cfg))
	},
}

func init() {
	configCmd.Flags().StringVar(&configFile, "config", "", "Service config file")
	rootCmd.AddCommand(configCmd)
}

func redactConfig(cfg config.Config) config.Config {
	cfg.Database.URL = redactURL(cfg.Database.URL)
	cfg.Redis.URL = redactURL(cfg.Redis.URL)
	cfg.Exports.EncryptionKey = mask(cfg.Exports.EncryptionKey)
	cfg.Exports.S3.SecretAccessKey = mask(cfg.Exports.S3.SecretAccessKey)
	cfg.Notifications.Slack.AnnounceToken = mask(cfg.Notifications.Slack.AnnounceToken)
	hooks := make([]string, len(cfg.Notifications.Webhooks))
	for i, hook := range cfg.Notifications.Webhooks {
		hooks[i] = redactWebhook(hook)
	}
	cfg.Notifications.Webhooks = hooks
	return cfg
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return mask(raw)
	}
	if u.RawQuery != "" {
		u.RawQuery = "xxxxx"
	}
	return u.Redacted()
}

// redactWebhook keeps only the host; webhook paths usually embed a secret.
func redactWebhook(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return mask(raw)
	}
	return u.Scheme + "://" + u.Host + "/xxxxx"
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "xxxxx"
}
