package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the report service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Reports       ReportsConfig       `mapstructure:"reports"`
	Exports       ExportsConfig       `mapstructure:"exports"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	WriteTimeout          time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
	PublicBaseURL         string        `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns"`
}

// RedisConfig is optional; without a URL the service falls back to
// in-process rate limiting and skips idempotency replay.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type ReportsConfig struct {
	RetentionCap    int    `mapstructure:"retention_cap"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
	MaxPageSize     int    `mapstructure:"max_page_size"`
	Timezone        string `mapstructure:"timezone"`
}

// Location resolves the reporting timezone; Validate guarantees it loads.
func (r ReportsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ExportsConfig struct {
	Storage        string             `mapstructure:"storage"`
	TTL            time.Duration      `mapstructure:"ttl"`
	MaxFiles       int                `mapstructure:"max_files"`
	MaxSizeMB      int                `mapstructure:"max_size_mb"`
	SweepInterval  time.Duration      `mapstructure:"sweep_interval"`
	SweepBatchSize int                `mapstructure:"sweep_batch_size"`
	EncryptionKey  string             `mapstructure:"encryption_key"`
	S3             ExportsS3Config    `mapstructure:"s3"`
	Local          ExportsLocalConfig `mapstructure:"local"`
}

// ExportsS3Config falls back to the default AWS credential chain unless
// a static key pair is given.
type ExportsS3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type ExportsLocalConfig struct {
	Directory string `mapstructure:"directory"`
}

type RateLimitConfig struct {
	Backend  string        `mapstructure:"backend"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type NotificationsConfig struct {
	Slack    SlackConfig   `mapstructure:"slack"`
	Webhooks []string      `mapstructure:"webhooks"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig covers the per-request Slack endpoints. With Enabled false
// those endpoints answer as unavailable. AnnounceToken and AnnounceChannel
// optionally broadcast every saved report to one channel.
type SlackConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	APIURL          string        `mapstructure:"api_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	AnnounceToken   string        `mapstructure:"announce_token"`
	AnnounceChannel string        `mapstructure:"announce_channel"`
}

type WebhookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from a config file and
// environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("REPORTS_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("reportd")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("REPORTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate ensures required values are set and fills in derived defaults.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "REPORTS_DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 20
	}
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")

	if err := c.Reports.validate(); err != nil {
		return err
	}
	if err := c.Exports.validate(); err != nil {
		return err
	}
	if err := c.RateLimit.validate(c.Redis.Enabled()); err != nil {
		return err
	}

	if c.Notifications.Webhook.Timeout <= 0 {
		c.Notifications.Webhook.Timeout = 5 * time.Second
	}
	if c.Notifications.Webhook.MaxRetries <= 0 {
		c.Notifications.Webhook.MaxRetries = 3
	}
	if c.Notifications.Slack.Timeout <= 0 {
		c.Notifications.Slack.Timeout = 10 * time.Second
	}
	if (c.Notifications.Slack.AnnounceToken == "") != (c.Notifications.Slack.AnnounceChannel == "") {
		return fmt.Errorf("notifications.slack.announce_token and announce_channel must be set together")
	}
	if !c.Notifications.Slack.Enabled && c.Notifications.Slack.AnnounceToken != "" {
		return fmt.Errorf("notifications.slack.announce_token requires notifications.slack.enabled")
	}
	for i, hook := range c.Notifications.Webhooks {
		if !strings.HasPrefix(hook, "http://") && !strings.HasPrefix(hook, "https://") {
			return fmt.Errorf("notifications.webhooks[%d] must be an http(s) URL", i)
		}
	}
	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = 30 * time.Minute
	}

	return nil
}

func (r *ReportsConfig) validate() error {
	if r.RetentionCap <= 0 {
		return fmt.Errorf("reports.retention_cap must be > 0")
	}
	if r.DefaultPageSize <= 0 {
		r.DefaultPageSize = 100
	}
	if r.MaxPageSize <= 0 {
		r.MaxPageSize = 500
	}
	if r.DefaultPageSize > r.MaxPageSize {
		return fmt.Errorf("reports.default_page_size cannot exceed reports.max_page_size")
	}
	tz := strings.TrimSpace(r.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid reports.timezone: %w", err)
	}
	r.Timezone = tz
	return nil
}

func (e *ExportsConfig) validate() error {
	if e.TTL <= 0 {
		e.TTL = 5 * time.Minute
	}
	if e.MaxFiles <= 0 {
		e.MaxFiles = 5
	}
	if e.MaxSizeMB <= 0 {
		e.MaxSizeMB = 50
	}
	if e.SweepInterval <= 0 {
		e.SweepInterval = time.Minute
	}
	if e.SweepBatchSize <= 0 {
		e.SweepBatchSize = 100
	}
	storage := strings.ToLower(strings.TrimSpace(e.Storage))
	switch storage {
	case "", "local":
		e.Storage = "local"
		if strings.TrimSpace(e.Local.Directory) == "" {
			return fmt.Errorf("exports.local.directory must be provided for local storage")
		}
	case "s3":
		e.Storage = storage
		if strings.TrimSpace(e.S3.Bucket) == "" {
			return fmt.Errorf("exports.s3.bucket must be provided for s3 storage")
		}
		if (e.S3.AccessKeyID == "") != (e.S3.SecretAccessKey == "") {
			return fmt.Errorf("exports.s3.access_key_id and secret_access_key must be set together")
		}
	case "memory":
		e.Storage = storage
	default:
		return fmt.Errorf("exports.storage must be local, s3 or memory")
	}
	return nil
}

func (r *RateLimitConfig) validate(redisEnabled bool) error {
	if r.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be > 0")
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	backend := strings.ToLower(strings.TrimSpace(r.Backend))
	switch backend {
	case "":
		if redisEnabled {
			backend = "redis"
		} else {
			backend = "memory"
		}
	case "memory":
	case "redis":
		if !redisEnabled {
			return fmt.Errorf("rate_limit.backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be redis or memory")
	}
	r.Backend = backend
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 20)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.public_base_url", "http://localhost:8080")

	v.SetDefault("database.url", "")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("reports.retention_cap", 500)
	v.SetDefault("reports.default_page_size", 100)
	v.SetDefault("reports.max_page_size", 500)
	v.SetDefault("reports.timezone", "UTC")

	v.SetDefault("exports.storage", "local")
	v.SetDefault("exports.ttl", "5m")
	v.SetDefault("exports.max_files", 5)
	v.SetDefault("exports.max_size_mb", 50)
	v.SetDefault("exports.sweep_interval", "1m")
	v.SetDefault("exports.sweep_batch_size", 100)
	v.SetDefault("exports.encryption_key", "")
	v.SetDefault("exports.local.directory", "./data/exports")
	v.SetDefault("exports.s3.bucket", "")
	v.SetDefault("exports.s3.prefix", "exports/")
	v.SetDefault("exports.s3.region", "")
	v.SetDefault("exports.s3.endpoint", "")
	v.SetDefault("exports.s3.use_path_style", false)
	v.SetDefault("exports.s3.access_key_id", "")
	v.SetDefault("exports.s3.secret_access_key", "")

	v.SetDefault("rate_limit.backend", "")
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("notifications.slack.enabled", true)
	v.SetDefault("notifications.slack.api_url", "")
	v.SetDefault("notifications.slack.timeout", "10s")
	v.SetDefault("notifications.slack.announce_token", "")
	v.SetDefault("notifications.slack.announce_channel", "")
	v.SetDefault("notifications.webhooks", []string{})
	v.SetDefault("notifications.webhook.timeout", "5s")
	v.SetDefault("notifications.webhook.max_retries", 3)

	v.SetDefault("idempotency.ttl", "30m")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
