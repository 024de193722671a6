package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	DataDir string `yaml:"data_dir"`

	StateBackend  string `yaml:"state_backend"` // memory | mysql
	MySQLDSN      string `yaml:"db_dsn"`        // required when StateBackend=mysql
	RunMigrations bool   `yaml:"run_migrations"`
	MigrationsDir string `yaml:"migrations_dir"`

	FeedURL      string `yaml:"feed_url"`
	FeedUsername string `yaml:"feed_username"`
	FeedPassword string `yaml:"feed_password"`

	ShopifyShopURL     string `yaml:"shopify_shop_url"`
	ShopifyAccessToken string `yaml:"shopify_access_token"`
	ShopifyAPIVersion  string `yaml:"shopify_api_version"`
	ShopifyLocationID  string `yaml:"shopify_location_id"`

	PriceMargin     float64       `yaml:"price_margin"`
	BatchSize       int           `yaml:"batch_size"`
	RequestInterval time.Duration `yaml:"request_interval"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	DaysThreshold        int     `yaml:"days_threshold"`
	MaxZeroStockPercent  float64 `yaml:"max_zero_stock_percent"`
	MaxCountDriftPercent float64 `yaml:"max_count_drift_percent"`

	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SMTPUser       string `yaml:"smtp_user"`
	SMTPPassword   string `yaml:"smtp_password"`
	AlertRecipient string `yaml:"alert_email_recipient"`
}

// Load builds the configuration from an optional YAML file with
// environment variables layered on top. A .env file is honored when
// present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.StateBackend == "mysql" && cfg.MySQLDSN == "" {
		return Config{}, fmt.Errorf("DB_DSN is required when STATE_BACKEND=mysql")
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		Env:                  "dev",
		DataDir:              "data",
		StateBackend:         "mysql",
		MigrationsDir:        "migrations",
		ShopifyAPIVersion:    "2024-10",
		PriceMargin:          2.5,
		BatchSize:            100,
		RequestInterval:      500 * time.Millisecond,
		PollInterval:         60 * time.Second,
		DaysThreshold:        3,
		MaxZeroStockPercent:  40,
		MaxCountDriftPercent: 10,
		SMTPPort:             587,
	}
}

func applyEnv(cfg *Config) {
	cfg.Env = getenv("ENV", cfg.Env)
	cfg.DataDir = getenv("DATA_DIR", cfg.DataDir)

	cfg.StateBackend = getenv("STATE_BACKEND", cfg.StateBackend)
	cfg.MySQLDSN = getenv("DB_DSN", cfg.MySQLDSN)
	cfg.RunMigrations = boolenv("RUN_MIGRATIONS", cfg.RunMigrations)
	cfg.MigrationsDir = getenv("MIGRATIONS_DIR", cfg.MigrationsDir)

	cfg.FeedURL = getenv("CSV_URL", cfg.FeedURL)
	cfg.FeedUsername = getenv("CSV_USERNAME", cfg.FeedUsername)
	cfg.FeedPassword = getenv("CSV_PASSWORD", cfg.FeedPassword)

	cfg.ShopifyShopURL = getenv("SHOPIFY_SHOP_URL", cfg.ShopifyShopURL)
	cfg.ShopifyAccessToken = getenv("SHOPIFY_ACCESS_TOKEN", cfg.ShopifyAccessToken)
	cfg.ShopifyAPIVersion = getenv("SHOPIFY_API_VERSION", cfg.ShopifyAPIVersion)
	cfg.ShopifyLocationID = getenv("SHOPIFY_LOCATION_ID", cfg.ShopifyLocationID)

	cfg.PriceMargin = floatenv("PRICE_MARGIN", cfg.PriceMargin)
	cfg.BatchSize = intenv("BATCH_SIZE", cfg.BatchSize)
	cfg.RequestInterval = durenvms("REQUEST_INTERVAL_MS", cfg.RequestInterval)
	cfg.PollInterval = durenvs("POLL_INTERVAL_S", cfg.PollInterval)

	cfg.DaysThreshold = intenv("DAYS_THRESHOLD", cfg.DaysThreshold)
	cfg.MaxZeroStockPercent = floatenv("MAX_ZERO_STOCK_PERCENT", cfg.MaxZeroStockPercent)
	cfg.MaxCountDriftPercent = floatenv("MAX_COUNT_DRIFT_PERCENT", cfg.MaxCountDriftPercent)

	cfg.SMTPHost = getenv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = intenv("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUser = getenv("SMTP_USER", cfg.SMTPUser)
	cfg.SMTPPassword = getenv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.AlertRecipient = getenv("ALERT_EMAIL_RECIPIENT", cfg.AlertRecipient)
}

func getenv(key string, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func intenv(key string, fallback int) int {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func floatenv(key string, fallback float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func boolenv(key string, fallback bool) bool {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

func durenvms(key string, fallback time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, fallback time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return fallback
	}
	sec, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(sec) * time.Second
}
