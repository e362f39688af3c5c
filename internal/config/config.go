package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	// HTTP client
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxRetries     int           `mapstructure:"MAX_RETRIES"`
	RetryBaseDelay time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RateLimitDelay time.Duration `mapstructure:"RATE_LIMIT_DELAY"`
	RequestDelay   time.Duration `mapstructure:"REQUEST_DELAY"`
	UserAgent      string        `mapstructure:"USER_AGENT"`
	ProxyURL       string        `mapstructure:"PROXY_URL"`

	// Portal
	BaseURL    string `mapstructure:"BASE_URL"`
	URLFilters string `mapstructure:"URL_FILTERS"`

	// Extraction run
	CheckpointInterval int    `mapstructure:"CHECKPOINT_INTERVAL"`
	DBPath             string `mapstructure:"DB_PATH"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	MetricsAddr        string `mapstructure:"METRICS_ADDR"`

	// Link discovery
	RecordsPerPage   int           `mapstructure:"RECORDS_PER_PAGE"`
	StartPage        int           `mapstructure:"START_PAGE"`
	MaxLinks         int           `mapstructure:"MAX_LINKS"`
	Headless         bool          `mapstructure:"HEADLESS_MODE"`
	PageTimeout      time.Duration `mapstructure:"PAGE_TIMEOUT"`
	PageDelay        time.Duration `mapstructure:"PAGE_DELAY"`
	SnapshotInterval int           `mapstructure:"SNAPSHOT_INTERVAL"`
	OutputDir        string        `mapstructure:"OUTPUT_DIR"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration from an env file or environment variables.
// envFile may be empty, in which case ".env" is tried.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	viper.SetConfigFile(envFile)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	// Set default values
	viper.SetDefault("REQUEST_TIMEOUT", 15*time.Second)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_BASE_DELAY", 3*time.Second)
	viper.SetDefault("RATE_LIMIT_DELAY", 10*time.Second)
	viper.SetDefault("REQUEST_DELAY", 0*time.Second)
	viper.SetDefault("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	viper.SetDefault("PROXY_URL", "")

	viper.SetDefault("BASE_URL", "https://goszakup.gov.kz/ru/search/lots")
	viper.SetDefault("URL_FILTERS", "filter%5Bamount_from%5D=5000000&filter%5Btrade_type%5D=g")

	viper.SetDefault("CHECKPOINT_INTERVAL", 50)
	viper.SetDefault("DB_PATH", "data/goszakup_lots.db")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("METRICS_ADDR", "")

	viper.SetDefault("RECORDS_PER_PAGE", 2000)
	viper.SetDefault("START_PAGE", 1)
	viper.SetDefault("MAX_LINKS", 10000)
	viper.SetDefault("HEADLESS_MODE", true)
	viper.SetDefault("PAGE_TIMEOUT", 60*time.Second)
	viper.SetDefault("PAGE_DELAY", 2500*time.Millisecond)
	viper.SetDefault("SNAPSHOT_INTERVAL", 10)
	viper.SetDefault("OUTPUT_DIR", "output")

	viper.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
