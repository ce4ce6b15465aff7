/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads the user-editable YAML configuration, applies
// environment overrides and fetches secrets from the OS keychain.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StoreConfig selects and parameterises the persistence engine.
type StoreConfig struct {
	Driver        string `yaml:"driver"`          // "sqlite" | "postgres"
	Path          string `yaml:"path"`            // sqlite database file; empty means DataDir()/markers.db
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"` // sqlite busy handler
	BackupDir     string `yaml:"backup_dir"`      // empty means <dir of Path>/backups
}

// PostgresConfig describes the optional server engine.
// The password is not stored on disk; it lives in the OS keychain.
type PostgresConfig struct {
	DSN  string `yaml:"dsn"`
	User string `yaml:"user"`
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the root of config.yaml.
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Store         StoreConfig    `yaml:"store"`
	Postgres      PostgresConfig `yaml:"postgres"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false},
		Store:         StoreConfig{Driver: DriverSQLite, BusyTimeoutMs: 5000},
		Postgres:      PostgresConfig{DSN: "postgres://localhost:5432/geomarks?sslmode=disable"},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "GEOMARKS_CONFIG"
	EnvDataDir        = "GEOMARKS_DATA_DIR"
	EnvStoreDriver    = "GEOMARKS_STORE_DRIVER"
	EnvStorePath      = "GEOMARKS_DB_PATH"
	EnvBusyTimeoutMs  = "GEOMARKS_BUSY_TIMEOUT_MS"
	EnvPostgresDSN    = "GEOMARKS_PG_DSN"
	EnvTelemetryOptIn = "GEOMARKS_TELEMETRY_OPT_IN"
	EnvLogLevel       = "GEOMARKS_LOG_LEVEL"
	EnvLogFormat      = "GEOMARKS_LOG_FORMAT"
	EnvLogSource      = "GEOMARKS_LOG_SOURCE"
	EnvLogFile        = "GEOMARKS_LOG_FILE"
)

// appDir resolves the per-user base directory for the given OS conventions.
func appDir(kind string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Geomarks")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Geomarks")
	default:
		root := os.Getenv("XDG_" + strings.ToUpper(kind) + "_HOME")
		if root == "" {
			sub := ".config"
			if kind == "data" {
				sub = filepath.Join(".local", "share")
			}
			root = filepath.Join(os.Getenv("HOME"), sub)
		}
		base = filepath.Join(root, "geomarks")
	}
	if strings.Trim(base, string(filepath.Separator)) == "" {
		return "", errors.New("cannot resolve application directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path. GEOMARKS_CONFIG wins.
func ConfigPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigFile)); v != "" {
		return v, nil
	}
	dir, err := appDir("config")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns where the embedded database and crash reports live.
func DataDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		return v, nil
	}
	return appDir("data")
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides. The Postgres password is returned separately from the keychain.
func Load() (AppConfig, string, error) {
	cfg, err := LoadFile()
	if err != nil {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	if err := resolvePaths(&cfg); err != nil {
		return cfg, "", err
	}
	var secret string
	if cfg.Store.Driver == DriverPostgres {
		secret, _ = secretStore.Get(keyringService, keyringAccount(cfg.Postgres.User))
	}
	return cfg, secret, nil
}

// LoadFile returns the defaults merged with the config file only. Environment
// overrides and derived paths are not applied, so the result is safe to Save.
func LoadFile() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the user config YAML and persists the Postgres password into the
// OS keychain (if non-empty).
func Save(cfg AppConfig, password string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if password != "" {
		if err := secretStore.Set(keyringService, keyringAccount(cfg.Postgres.User), password); err != nil {
			return fmt.Errorf("store password in keychain: %w", err)
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if v := strings.ToLower(strings.TrimSpace(src.Store.Driver)); v != "" {
		dst.Store.Driver = v
	}
	if v := strings.TrimSpace(src.Store.Path); v != "" {
		dst.Store.Path = v
	}
	if src.Store.BusyTimeoutMs > 0 {
		dst.Store.BusyTimeoutMs = src.Store.BusyTimeoutMs
	}
	if v := strings.TrimSpace(src.Store.BackupDir); v != "" {
		dst.Store.BackupDir = v
	}
	if v := strings.TrimSpace(src.Postgres.DSN); v != "" {
		dst.Postgres.DSN = v
	}
	if v := strings.TrimSpace(src.Postgres.User); v != "" {
		dst.Postgres.User = v
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvStoreDriver)); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorePath)); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBusyTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Store.BusyTimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

func resolvePaths(cfg *AppConfig) error {
	if cfg.Store.Driver != DriverSQLite && cfg.Store.Driver != DriverPostgres {
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == DriverSQLite && cfg.Store.Path == "" {
		dir, err := DataDir()
		if err != nil {
			return err
		}
		cfg.Store.Path = filepath.Join(dir, "markers.db")
	}
	if cfg.Store.BackupDir == "" && cfg.Store.Path != "" {
		cfg.Store.BackupDir = filepath.Join(filepath.Dir(cfg.Store.Path), "backups")
	}
	return nil
}

func parseBool(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

// BusyTimeout returns the sqlite busy timeout as a duration.
func (s StoreConfig) BusyTimeout() time.Duration {
	if s.BusyTimeoutMs <= 0 {
		return time.Duration(Defaults().Store.BusyTimeoutMs) * time.Millisecond
	}
	return time.Duration(s.BusyTimeoutMs) * time.Millisecond
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"store.driver":             EnvStoreDriver,
		"store.path":               EnvStorePath,
		"store.busy_timeout_ms":    EnvBusyTimeoutMs,
		"postgres.dsn":             EnvPostgresDSN,
		"general.telemetry_opt_in": EnvTelemetryOptIn,
		"logging.level":            EnvLogLevel,
		"logging.format":           EnvLogFormat,
		"logging.source":           EnvLogSource,
		"logging.file":             EnvLogFile,
	}
	env, ok := names[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}
