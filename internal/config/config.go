// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads Gatekeeper settings from defaults, the gatekeeper.yaml
// file, GATEKEEPER_* environment variables and command-line flags, in rising
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/gatekeeper/internal/i18n"
)

// Config is the complete application configuration.
type Config struct {
	Database struct {
		Type string `mapstructure:"type" yaml:"type"`
		Dsn  string `mapstructure:"dsn" yaml:"dsn"`
	} `mapstructure:"database" yaml:"database"`
	Language string `mapstructure:"language" yaml:"language"`
	Log      struct {
		Level string `mapstructure:"level" yaml:"level"`
	} `mapstructure:"log" yaml:"log"`
	Session struct {
		Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
		LogWriteTimeout time.Duration `mapstructure:"log_write_timeout" yaml:"log_write_timeout"`
	} `mapstructure:"session" yaml:"session"`
	// Watchdog only tunes the poll interval; the watchdog itself always runs.
	Watchdog struct {
		Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	} `mapstructure:"watchdog" yaml:"watchdog"`
	HTTP struct {
		Addr string `mapstructure:"addr" yaml:"addr"`
	} `mapstructure:"http" yaml:"http"`
	// Remote points the account commands at a running gatekeeper server
	// instead of the local database. Empty means local.
	Remote struct {
		URL     string        `mapstructure:"url" yaml:"url"`
		Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	} `mapstructure:"remote" yaml:"remote"`
}

// Defaults returns the built-in value of every configuration key.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":             "sqlite",
		"database.dsn":              "./gatekeeper.db",
		"language":                  "en",
		"log.level":                 "info",
		"session.timeout":           10 * time.Second,
		"session.log_write_timeout": 5 * time.Second,
		"watchdog.interval":         time.Second,
		"http.addr":                 "127.0.0.1:8080",
		"remote.url":                "",
		"remote.timeout":            15 * time.Second,
	}
}

var (
	supportedDatabases = []string{"sqlite", "postgres", "mysql"}
	supportedLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validate reports every invalid setting as one joined error.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(supportedDatabases, c.Database.Type) {
		errs = append(errs, fmt.Errorf("database.type %q is not one of %s", c.Database.Type, strings.Join(supportedDatabases, ", ")))
	}
	if strings.TrimSpace(c.Database.Dsn) == "" {
		errs = append(errs, errors.New("database.dsn must not be empty"))
	}
	if locales := i18n.GetAvailableLocales(); locales[c.Language] == "" {
		errs = append(errs, fmt.Errorf("language %q is not one of %s", c.Language, describeLocales(locales)))
	}
	if !slices.Contains(supportedLogLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of %s", c.Log.Level, strings.Join(supportedLogLevels, ", ")))
	}
	if c.Session.Timeout <= 0 || c.Session.LogWriteTimeout <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	}
	if c.Watchdog.Interval <= 0 {
		errs = append(errs, errors.New("watchdog.interval must be positive"))
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("remote.url %q must be an http or https URL", c.Remote.URL))
		}
		if c.Remote.Timeout <= 0 {
			errs = append(errs, errors.New("remote.timeout must be positive"))
		}
	}
	return errors.Join(errs...)
}

// describeLocales renders locales as "de (Deutsch), en (English)".
func describeLocales(locales map[string]string) string {
	tags := make([]string, 0, len(locales))
	for tag := range locales {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for i, tag := range tags {
		tags[i] = fmt.Sprintf("%s (%s)", tag, locales[tag])
	}
	return strings.Join(tags, ", ")
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Gatekeeper")
		default: // Linux, macOS, etc.
			configDir = "/etc/gatekeeper"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "gatekeeper")
	}

	return filepath.Join(configDir, "gatekeeper.yaml"), nil
}

// LoadConfig builds a T from defaults, the first gatekeeper.yaml found (or
// configFile when set), GATEKEEPER_* environment variables and the flags of
// cmd. A missing config file is not an error.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	// 1. Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Set up file search paths
	v.SetConfigName("gatekeeper")
	v.SetConfigType("yaml")

	// 3. An explicit file from --config has the highest precedence among files.
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}

	// 4. Add standard config locations
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // Look for gatekeeper.yaml in current dir

	// 5. Read in the primary config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, err
		}
	}

	// 6. Read from environment variables
	v.SetEnvPrefix("gatekeeper")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 7. Flags named after config keys (e.g. --database.dsn) override the rest.
	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}

// WriteConfigFile writes c as YAML to the user or system config path and
// returns that path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}

	// Create directory if it doesn't exist
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	// 0600: the DSN may carry database credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
