package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Taiwan Stock Portfolio Configuration

[portfolio]
# Fold accumulated dividends into P&L and the adjusted cost basis
include_dividends = true

[quote]
# Cache window (minutes) within which a quote is served without a
# network call
cache_freshness_minutes = 5
# Per-source network timeout in seconds
timeout_seconds = 30

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "2006-01-02"
`

const credentialsTemplate = `# Taiwan Stock Portfolio Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[finmind]
# FinMind data API token (https://finmindtrade.com). Leave empty to
# disable the historical-close price source.
token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
