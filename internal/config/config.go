package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
	Quote    Quote    `mapstructure:"quote"`
	Exchange Exchange `mapstructure:"exchange"`
	Sheets   Sheets   `mapstructure:"sheets"`
	Tracker  Tracker  `mapstructure:"tracker"`
	Server   Server   `mapstructure:"server"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level" validate:"required"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	// Components overrides the level per named logger, e.g. {quote: debug}.
	Components map[string]string `mapstructure:"components" validate:"dive,oneof=debug info warn error"`
}

// Database holds the configuration for the local holdings store.
type Database struct {
	DSN string `mapstructure:"dsn" validate:"required"`
}

// Proxy is one network path a request may be routed through.
// Kind "direct" ignores URL, "prefix" appends the escaped target URL to URL,
// "worker" POSTs {url, method, headers} to URL.
type Proxy struct {
	Name string `mapstructure:"name" validate:"required"`
	Kind string `mapstructure:"kind" validate:"oneof=direct prefix worker"`
	URL  string `mapstructure:"url" validate:"required_unless=Kind direct"`
}

// Quote holds the configuration for the quote acquisition layer.
type Quote struct {
	YahooBaseURL      string        `mapstructure:"yahoo_base_url" validate:"required,url"`
	TwseBaseURL       string        `mapstructure:"twse_base_url" validate:"required,url"`
	FxBaseURL         string        `mapstructure:"fx_base_url" validate:"required,url"`
	TwseSearchBaseURL string        `mapstructure:"twse_search_base_url" validate:"required,url"`
	Proxies           []Proxy       `mapstructure:"proxies" validate:"min=1,dive"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	BatchSize         int           `mapstructure:"batch_size" validate:"min=1"`
	RateLimit         float64       `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst" validate:"min=1"`
	UserAgent         string        `mapstructure:"user_agent"`
	FallbackUSDTWD    float64       `mapstructure:"fallback_usd_twd" validate:"gt=0"`
}

// Exchange holds the configuration for the exchange balance adapters.
type Exchange struct {
	PionexBaseURL  string        `mapstructure:"pionex_base_url" validate:"required,url"`
	BitoproBaseURL string        `mapstructure:"bitopro_base_url" validate:"required,url"`
	Proxies        []Proxy       `mapstructure:"proxies" validate:"min=1,dive"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit      float64       `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" validate:"min=1"`
}

// Sheets holds the configuration for the spreadsheet backup store.
type Sheets struct {
	SheetsBaseURL  string  `mapstructure:"sheets_base_url" validate:"required,url"`
	DriveBaseURL   string  `mapstructure:"drive_base_url" validate:"required,url"`
	DocumentName   string  `mapstructure:"document_name" validate:"required"`
	HistoryTable   string  `mapstructure:"history_table" validate:"required"`
	AccessToken    string  `mapstructure:"access_token"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" validate:"min=1"`
}

// Tracker holds the configuration for refresh and valuation.
type Tracker struct {
	BaseCurrency    string        `mapstructure:"base_currency" validate:"len=3"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	Snapshot        bool          `mapstructure:"snapshot"`
	StatusPort      int           `mapstructure:"status_port" validate:"min=0,max=65535"` // 0 disables
}

// Server holds the configuration for the read API.
type Server struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{"sheets.access_token", "database.dsn"} {
		_ = v.BindEnv(key)
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	err = Validate(&config)
	return config, err
}

// SetDefaults registers the default value of every known key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.dsn", "asset-tracker.db")

	v.SetDefault("quote.yahoo_base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("quote.twse_base_url", "https://mis.twse.com.tw")
	v.SetDefault("quote.fx_base_url", "https://open.er-api.com")
	v.SetDefault("quote.twse_search_base_url", "https://www.twse.com.tw")
	v.SetDefault("quote.proxies", []map[string]interface{}{
		{"name": "direct", "kind": "direct"},
		{"name": "corsproxy", "kind": "prefix", "url": "https://corsproxy.io/?"},
		{"name": "allorigins", "kind": "prefix", "url": "https://api.allorigins.win/raw?url="},
	})
	v.SetDefault("quote.timeout", "8s")
	v.SetDefault("quote.batch_size", 5)
	v.SetDefault("quote.rate_limit", 10)
	v.SetDefault("quote.rate_limit_burst", 5)
	v.SetDefault("quote.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("quote.fallback_usd_twd", 32.5)

	v.SetDefault("exchange.pionex_base_url", "https://api.pionex.com")
	v.SetDefault("exchange.bitopro_base_url", "https://api.bitopro.com/v3")
	v.SetDefault("exchange.proxies", []map[string]interface{}{
		{"name": "direct", "kind": "direct"},
		{"name": "codetabs", "kind": "prefix", "url": "https://api.codetabs.com/v1/proxy?quest="},
	})
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.rate_limit", 5)
	v.SetDefault("exchange.rate_limit_burst", 2)

	v.SetDefault("sheets.sheets_base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("sheets.drive_base_url", "https://www.googleapis.com/drive/v3")
	v.SetDefault("sheets.document_name", "AssetsTracker_DB")
	v.SetDefault("sheets.history_table", "History")
	v.SetDefault("sheets.rate_limit", 5)
	v.SetDefault("sheets.rate_limit_burst", 5)

	v.SetDefault("tracker.base_currency", "TWD")
	v.SetDefault("tracker.refresh_interval", "15m")
	v.SetDefault("tracker.snapshot", true)
	v.SetDefault("tracker.status_port", 8081)

	v.SetDefault("server.port", 8080)
}

// Validate checks the decoded configuration against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
