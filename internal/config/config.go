// Package config loads tally settings from viper: config file, TALLY_
// environment variables and bound command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/ga4"
	"github.com/Veraticus/tally/internal/googleauth"
	"github.com/Veraticus/tally/internal/sheets"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. TALLY_DATABASE_PATH.
const EnvPrefix = "TALLY"

// Defaults.
const (
	DefaultDatabasePath       = "$HOME/.local/share/tally/tally.db"
	DefaultImportTimeout      = 30 * time.Second
	DefaultImportUser         = "local"
	DefaultTrendWindowDays    = 30
	DefaultBenchmarkTolerance = 0.05
	DefaultServerAddr         = ":8080"
	DefaultNotifyBufferSize   = 64
)

// Config is the typed view of every setting tally reads.
type Config struct {
	Google    googleauth.Credentials
	Sheets    SheetsConfig
	Database  DatabaseConfig
	Import    ImportConfig
	Server    ServerConfig
	GA4       GA4Config
	Notify    NotifyConfig
	Analytics AnalyticsConfig
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string
}

// ImportConfig bounds imports.
type ImportConfig struct {
	User    string
	Timeout time.Duration
}

// AnalyticsConfig tunes derived metrics.
type AnalyticsConfig struct {
	TrendWindowDays    int
	BenchmarkTolerance float64
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string
}

// NotifyConfig configures post-import notifications.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
	BufferSize    int
}

// GA4Config names the analytics property to sync.
type GA4Config struct {
	PropertyID string
}

// SheetsConfig names the export spreadsheet.
type SheetsConfig struct {
	SpreadsheetID   string
	SpreadsheetName string
}

// SetDefaults registers default values and the environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("import.timeout", DefaultImportTimeout)
	v.SetDefault("import.user", DefaultImportUser)
	v.SetDefault("analytics.trend_window_days", DefaultTrendWindowDays)
	v.SetDefault("analytics.benchmark_tolerance", DefaultBenchmarkTolerance)
	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("notify.buffer_size", DefaultNotifyBufferSize)
	v.SetDefault("sheets.spreadsheet_name", sheets.DefaultSpreadsheetName)

	// Keys without defaults still need registering so AutomaticEnv sees them
	// through Get.
	for _, key := range []string{
		"notify.webhook_url", "notify.webhook_secret", "ga4.property_id",
		"google.client_id", "google.client_secret", "google.refresh_token",
		"google.service_account_path", "sheets.spreadsheet_id",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads every key from v, or from the global viper when v is nil, and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	SetDefaults(v)

	cfg := &Config{
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Import: ImportConfig{
			Timeout: v.GetDuration("import.timeout"),
			User:    v.GetString("import.user"),
		},
		Analytics: AnalyticsConfig{
			TrendWindowDays:    v.GetInt("analytics.trend_window_days"),
			BenchmarkTolerance: v.GetFloat64("analytics.benchmark_tolerance"),
		},
		Server: ServerConfig{Addr: v.GetString("server.addr")},
		Notify: NotifyConfig{
			WebhookURL:    v.GetString("notify.webhook_url"),
			WebhookSecret: v.GetString("notify.webhook_secret"),
			BufferSize:    v.GetInt("notify.buffer_size"),
		},
		GA4: GA4Config{PropertyID: v.GetString("ga4.property_id")},
		Google: googleauth.Credentials{
			ClientID:           v.GetString("google.client_id"),
			ClientSecret:       v.GetString("google.client_secret"),
			RefreshToken:       v.GetString("google.refresh_token"),
			ServiceAccountPath: ExpandPath(v.GetString("google.service_account_path")),
		},
		Sheets: SheetsConfig{
			SpreadsheetID:   v.GetString("sheets.spreadsheet_id"),
			SpreadsheetName: v.GetString("sheets.spreadsheet_name"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. Provider credentials are checked when a command
// needs them, not here.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path must not be empty")
	}
	if c.Import.Timeout <= 0 {
		problems = append(problems, "import.timeout must be positive")
	}
	if c.Analytics.TrendWindowDays <= 0 {
		problems = append(problems, "analytics.trend_window_days must be positive")
	}
	if c.Analytics.BenchmarkTolerance < 0 || c.Analytics.BenchmarkTolerance >= 1 {
		problems = append(problems, "analytics.benchmark_tolerance must be in [0, 1)")
	}
	if c.Notify.BufferSize <= 0 {
		problems = append(problems, "notify.buffer_size must be positive")
	}
	if c.Notify.WebhookSecret != "" && c.Notify.WebhookURL == "" {
		problems = append(problems, "notify.webhook_secret is set without notify.webhook_url")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SheetsWriterConfig returns the Sheets writer settings.
func (c *Config) SheetsWriterConfig() sheets.Config {
	cfg := sheets.DefaultConfig()
	cfg.Credentials = c.Google
	cfg.SpreadsheetID = c.Sheets.SpreadsheetID
	if c.Sheets.SpreadsheetName != "" {
		cfg.SpreadsheetName = c.Sheets.SpreadsheetName
	}
	return cfg
}

// GA4ClientConfig returns the GA4 client settings, failing when no property
// is configured.
func (c *Config) GA4ClientConfig() (ga4.Config, error) {
	if c.GA4.PropertyID == "" {
		return ga4.Config{}, fmt.Errorf("ga4.property_id (TALLY_GA4_PROPERTY_ID) is not set: %w", common.ErrMissingConfig)
	}
	return ga4.Config{
		PropertyID:  c.GA4.PropertyID,
		Credentials: c.Google,
		Retry:       common.DefaultRetryOptions(),
	}, nil
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~" || strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}
