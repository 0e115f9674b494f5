// internal/config/config.go
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	apperrors "github-stats-harvester/internal/errors"
)

const startDateLayout = "2006-01-02"

// Config holds all configuration for the application.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	DBURL         string `mapstructure:"DB_URL" masq:"secret"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	RunMigrations bool   `mapstructure:"RUN_MIGRATIONS"`

	GithubToken      string `mapstructure:"GITHUB_TOKEN" masq:"secret"`
	GithubGraphQLURL string `mapstructure:"GITHUB_GRAPHQL_URL"`
	GithubAPIURL     string `mapstructure:"GITHUB_API_URL"`

	Target             int           `mapstructure:"TARGET"`
	Concurrency        int           `mapstructure:"CONCURRENCY"`
	BatchSize          int           `mapstructure:"BATCH_SIZE"`
	PartitionStepDays  int           `mapstructure:"PARTITION_STEP_DAYS"`
	DiscoveryStartDate string        `mapstructure:"DISCOVERY_START_DATE"`
	DiscoveryStart     time.Time     `mapstructure:"-"`
	WindowPause        time.Duration `mapstructure:"WINDOW_PAUSE"`
	RateLimitFloor     int           `mapstructure:"RATE_LIMIT_FLOOR"`
	RateLimitMargin    time.Duration `mapstructure:"RATE_LIMIT_MARGIN"`
	HarvestInterval    time.Duration `mapstructure:"HARVEST_INTERVAL"`
	ResumeFromSeeds    bool          `mapstructure:"RESUME_FROM_SEEDS"`

	ServeAddr string `mapstructure:"SERVE_ADDR"`
	SentryDSN string `mapstructure:"SENTRY_DSN" masq:"secret"`
	SentryEnv string `mapstructure:"SENTRY_ENV"`
}

var defaults = map[string]any{
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "json",
	"DB_URL":               "",
	"DB_MAX_CONNS":         10,
	"RUN_MIGRATIONS":       true,
	"GITHUB_TOKEN":         "",
	"GITHUB_GRAPHQL_URL":   "https://api.github.com/graphql",
	"GITHUB_API_URL":       "",
	"TARGET":               1000,
	"CONCURRENCY":          6,
	"BATCH_SIZE":           2000,
	"PARTITION_STEP_DAYS":  7,
	"DISCOVERY_START_DATE": "2010-01-01",
	"WINDOW_PAUSE":         "200ms",
	"RATE_LIMIT_FLOOR":     50,
	"RATE_LIMIT_MARGIN":    "1s",
	"HARVEST_INTERVAL":     "0s",
	"RESUME_FROM_SEEDS":    false,
	"SERVE_ADDR":           "",
	"SENTRY_DSN":           "",
	"SENTRY_ENV":           "",
}

// flags maps command-line flags onto configuration keys.
var flags = []struct {
	name, key, usage string
}{
	{"target", "TARGET", "number of repositories to discover and harvest"},
	{"concurrency", "CONCURRENCY", "maximum detail fetches in flight"},
	{"dsn", "DB_URL", "postgres connection string"},
	{"token", "GITHUB_TOKEN", "GitHub access token"},
}

// LoadConfig reads configuration from defaults, the .env file, environment
// variables and command-line args, later sources winning.
func LoadConfig(args []string) (*Config, error) {
	v := viper.New()

	// Set default values
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("harvester", pflag.ContinueOnError)
	fs.Int("target", defaults["TARGET"].(int), flags[0].usage)
	fs.Int("concurrency", defaults["CONCURRENCY"].(int), flags[1].usage)
	fs.String("dsn", "", flags[2].usage)
	fs.String("token", "", flags[3].usage)
	if err := fs.Parse(args); err != nil {
		return nil, &apperrors.ConfigError{Field: "flags", Reason: err.Error()}
	}
	for _, f := range flags {
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	start, err := time.Parse(startDateLayout, cfg.DiscoveryStartDate)
	if err != nil {
		return nil, &apperrors.ConfigError{Field: "DISCOVERY_START_DATE", Reason: "must be in YYYY-MM-DD format (e.g. 2010-01-01)"}
	}
	cfg.DiscoveryStart = start

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	// Validate required fields
	if c.DBURL == "" {
		return &apperrors.ConfigError{Field: "DB_URL", Reason: "is a required configuration field"}
	}
	if c.GithubToken == "" {
		return &apperrors.ConfigError{Field: "GITHUB_TOKEN", Reason: "is a required configuration field"}
	}

	switch {
	case c.Target < 0:
		return &apperrors.ConfigError{Field: "TARGET", Reason: "must not be negative"}
	case c.Concurrency < 1:
		return &apperrors.ConfigError{Field: "CONCURRENCY", Reason: "must be at least 1"}
	case c.BatchSize < 1:
		return &apperrors.ConfigError{Field: "BATCH_SIZE", Reason: "must be at least 1"}
	case c.PartitionStepDays < 1:
		return &apperrors.ConfigError{Field: "PARTITION_STEP_DAYS", Reason: "must be at least 1"}
	case c.DBMaxConns < 1:
		return &apperrors.ConfigError{Field: "DB_MAX_CONNS", Reason: "must be at least 1"}
	case c.HarvestInterval < 0:
		return &apperrors.ConfigError{Field: "HARVEST_INTERVAL", Reason: "must not be negative"}
	}
	return nil
}
