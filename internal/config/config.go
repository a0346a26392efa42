// Package config provides configuration management for the portfolio
// application.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	apperrors "twstock-portfolio/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Portfolio   PortfolioConfig `mapstructure:"portfolio"`
	Quote       QuoteConfig     `mapstructure:"quote"`
	UI          UIConfig        `mapstructure:"ui"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately
}

// PortfolioConfig holds portfolio computation configuration.
type PortfolioConfig struct {
	// IncludeDividends folds accumulated dividends into P&L and the
	// adjusted cost basis.
	IncludeDividends bool `mapstructure:"include_dividends"`
}

// QuoteConfig holds price resolution configuration.
type QuoteConfig struct {
	// CacheFreshnessMinutes is the cache window within which a quote is
	// served without touching the network.
	CacheFreshnessMinutes int `mapstructure:"cache_freshness_minutes"`
	// TimeoutSeconds bounds each source call.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// Credentials holds API credentials.
type Credentials struct {
	FinMind FinMindCredentials `mapstructure:"finmind"`
}

// FinMindCredentials holds the FinMind data API token. An empty token
// disables the historical-close price source; dividend lookups are
// still attempted without one.
type FinMindCredentials struct {
	Token string `mapstructure:"token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/twstock-portfolio"
	}
	return filepath.Join(home, ".config", "twstock-portfolio")
}

// DefaultDBPath returns the default SQLite database path.
func DefaultDBPath() string {
	return filepath.Join(DefaultConfigDir(), "portfolio.db")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing
// files are replaced with templates and the defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("portfolio.include_dividends", true)
	v.SetDefault("quote.cache_freshness_minutes", 5)
	v.SetDefault("quote.timeout_seconds", 30)
	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// First run: drop a template and continue on defaults.
			if werr := createTemplateConfig(configDir); werr != nil {
				return werr
			}
		} else {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINMIND_TOKEN"); v != "" {
		cfg.Credentials.FinMind.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Quote.CacheFreshnessMinutes <= 0 {
		return fmt.Errorf("%w: cache_freshness_minutes must be positive", apperrors.ErrConfigInvalid)
	}
	if c.Quote.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: timeout_seconds must be positive", apperrors.ErrConfigInvalid)
	}
	return nil
}

// HasFinMindToken reports whether the historical-close price source is
// enabled.
func (c *Config) HasFinMindToken() bool {
	return c.Credentials.FinMind.Token != ""
}
