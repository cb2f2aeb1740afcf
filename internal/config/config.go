package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all runtime configuration for the engine.
type Config struct {
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	VendorsFile string `mapstructure:"VENDORS_FILE"`
	ReportsDir  string `mapstructure:"REPORTS_DIR"`

	FetchWorkers       int           `mapstructure:"FETCH_WORKERS"`
	FetchTimeout       time.Duration `mapstructure:"FETCH_TIMEOUT"`
	SafetyPageLimit    int           `mapstructure:"SAFETY_PAGE_LIMIT"`
	EmptyPageThreshold int           `mapstructure:"EMPTY_PAGE_THRESHOLD"`
	MinWordCount       int           `mapstructure:"MIN_WORD_COUNT"`
	RetryBase          time.Duration `mapstructure:"RETRY_BASE"`
	RetryMax           time.Duration `mapstructure:"RETRY_MAX"`
	UserAgent          string        `mapstructure:"USER_AGENT"`

	LedgerBackend    string        `mapstructure:"LEDGER_BACKEND"`
	LedgerStaleAfter time.Duration `mapstructure:"LEDGER_STALE_AFTER"`
	CacheTTL         time.Duration `mapstructure:"CACHE_TTL"`

	ClassifierURL     string        `mapstructure:"CLASSIFIER_URL"`
	ClassifierTimeout time.Duration `mapstructure:"CLASSIFIER_TIMEOUT"`
	EnrichBatchSize   int           `mapstructure:"ENRICH_BATCH_SIZE"`

	ServerPort   string `mapstructure:"SERVER_PORT"`
	ScheduleCron string `mapstructure:"SCHEDULE_CRON"`
}

// Load reads configuration from the .env file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables in production.
	_ = viper.ReadInConfig()

	viper.SetDefault("VENDORS_FILE", "vendors.yaml")
	viper.SetDefault("REPORTS_DIR", "reports")
	viper.SetDefault("FETCH_WORKERS", 4)
	viper.SetDefault("FETCH_TIMEOUT", 30*time.Second)
	viper.SetDefault("SAFETY_PAGE_LIMIT", 100)
	viper.SetDefault("EMPTY_PAGE_THRESHOLD", 2)
	viper.SetDefault("MIN_WORD_COUNT", 100)
	viper.SetDefault("RETRY_BASE", 500*time.Millisecond)
	viper.SetDefault("RETRY_MAX", 30*time.Second)
	viper.SetDefault("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	viper.SetDefault("LEDGER_BACKEND", "postgres")
	viper.SetDefault("LEDGER_STALE_AFTER", 30*time.Minute)
	viper.SetDefault("CACHE_TTL", 48*time.Hour)
	viper.SetDefault("CLASSIFIER_TIMEOUT", 30*time.Second)
	viper.SetDefault("ENRICH_BATCH_SIZE", 500)
	viper.SetDefault("SERVER_PORT", "8080")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
