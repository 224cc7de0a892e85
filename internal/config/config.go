// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for minato.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.minato/config.toml
//   - ~/.minato/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete minato configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API     APIConfig     `toml:"api" json:"api"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	History HistoryConfig `toml:"history" json:"history"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// APIConfig contains Minato API connection settings.
type APIConfig struct {
	// Key is the API key. Prefer the MINATO_API_KEY environment variable
	// over putting secrets in the config file.
	Key string `toml:"key" json:"key"`
	// BaseURL is the API base URL.
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the timeout for non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries is the retry budget for non-streaming requests.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// SendsPerMinute bounds how fast turns leave the client.
	SendsPerMinute int `toml:"sends_per_minute" json:"sends_per_minute"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// CompactMode uses a more compact layout.
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
	// ShowTimestamps displays per-message timestamps.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
	// MarkdownRendering renders assistant messages through glamour.
	MarkdownRendering bool `toml:"markdown_rendering" json:"markdown_rendering"`
}

// HistoryConfig contains local history cache settings.
type HistoryConfig struct {
	// Enabled controls whether conversations persist locally.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path is the SQLite database location (empty = ~/.minato/history.db).
	Path string `toml:"path" json:"path"`
	// PageSize is how many messages load per history page.
	PageSize int `toml:"page_size" json:"page_size"`
	// MaxConversations bounds the cache (0 = unlimited).
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Debug lowers the log level to debug.
	Debug bool `toml:"debug" json:"debug"`
	// Dir is the log directory (empty = ~/.minato).
	Dir string `toml:"dir" json:"dir"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		API: APIConfig{
			BaseURL:        "https://api.minato.ai",
			TimeoutSecs:    60,
			MaxRetries:     3,
			SendsPerMinute: 30,
		},

		UI: UIConfig{
			Theme:             "dark",
			CompactMode:       false,
			ShowTimestamps:    true,
			MarkdownRendering: true,
		},

		History: HistoryConfig{
			Enabled:          true,
			PageSize:         50,
			MaxConversations: 100,
		},

		Logging: LoggingConfig{
			Debug: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the minato configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".minato"), nil
}

// PathTOML returns the path to the TOML config file.
func PathTOML() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// PathJSON returns the path to the JSON config file.
func PathJSON() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// ensureSecurePermissions fixes permissions on config files. The file can
// hold the API key, so anything wider than 0600 gets tightened.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s). Tries TOML first, then
// JSON, and falls back to defaults. Environment overrides apply last.
func Load() (*Config, error) {
	if tomlPath, err := PathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}
	if jsonPath, err := PathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The extension picks the format; anything not .json parses
// as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config: %w", err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if c.API.SendsPerMinute == 0 {
		c.API.SendsPerMinute = defaults.API.SendsPerMinute
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.History.PageSize == 0 {
		c.History.PageSize = defaults.History.PageSize
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies MINATO_* environment variables over the loaded
// configuration. Environment always wins over the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MINATO_API_KEY"); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv("MINATO_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("MINATO_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("MINATO_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Debug = b
		}
	}
	if v := os.Getenv("MINATO_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := PathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# minato configuration file")
	fmt.Fprintln(file, "# Generated by minato - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ValidationError{Field: "api.base_url", Message: "must be a valid http(s) URL"}
		}
	}
	if c.API.TimeoutSecs < 0 {
		return ValidationError{Field: "api.timeout_secs", Message: "must not be negative"}
	}
	if c.API.MaxRetries < 0 || c.API.MaxRetries > 10 {
		return ValidationError{Field: "api.max_retries", Message: "must be between 0 and 10"}
	}
	if c.API.SendsPerMinute <= 0 {
		return ValidationError{Field: "api.sends_per_minute", Message: "must be positive"}
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		return ValidationError{Field: "ui.theme", Message: `must be one of "dark", "light", "auto"`}
	}

	if c.History.PageSize <= 0 || c.History.PageSize > 500 {
		return ValidationError{Field: "history.page_size", Message: "must be between 1 and 500"}
	}
	if c.History.MaxConversations < 0 {
		return ValidationError{Field: "history.max_conversations", Message: "must not be negative"}
	}
	return nil
}

// ActivePath returns the config file that Load would read: the TOML file
// when it exists, then JSON, falling back to the TOML path for writes.
func ActivePath() string {
	if tomlPath, err := PathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return tomlPath
		}
		if jsonPath, jerr := PathJSON(); jerr == nil {
			if _, statErr := os.Stat(jsonPath); statErr == nil {
				return jsonPath
			}
		}
		return tomlPath
	}
	return ""
}

// Set assigns a dotted key ("api.base_url") from its string form. Used by
// the config subcommand; validation runs separately.
func (c *Config) Set(key, value string) error {
	switch key {
	case "api.key":
		c.API.Key = value
	case "api.base_url":
		c.API.BaseURL = value
	case "api.timeout_secs":
		return setInt(&c.API.TimeoutSecs, key, value)
	case "api.max_retries":
		return setInt(&c.API.MaxRetries, key, value)
	case "api.sends_per_minute":
		return setInt(&c.API.SendsPerMinute, key, value)
	case "ui.theme":
		c.UI.Theme = value
	case "ui.compact_mode":
		return setBool(&c.UI.CompactMode, key, value)
	case "ui.show_timestamps":
		return setBool(&c.UI.ShowTimestamps, key, value)
	case "ui.markdown":
		return setBool(&c.UI.MarkdownRendering, key, value)
	case "history.enabled":
		return setBool(&c.History.Enabled, key, value)
	case "history.path":
		c.History.Path = value
	case "history.page_size":
		return setInt(&c.History.PageSize, key, value)
	case "history.max_conversations":
		return setInt(&c.History.MaxConversations, key, value)
	case "logging.debug":
		return setBool(&c.Logging.Debug, key, value)
	case "logging.dir":
		c.Logging.Dir = value
	default:
		return ValidationError{Field: key, Message: "unknown config key"}
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return ValidationError{Field: key, Message: "must be an integer"}
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return ValidationError{Field: key, Message: "must be true or false"}
	}
	*dst = b
	return nil
}

// HistoryPath resolves the history database location.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
