/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLegacyDir matches the historical deployment default
	DefaultLegacyDir = "/tmp/ttg-legacy"
	// DefaultPostKey is the placeholder shared secret; production must override it
	DefaultPostKey = "changemeinprod"

	AuthModeStrict     = "strict"
	AuthModePermissive = "permissive"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	TLS      TLSConfig       `yaml:"tls"`
	Legacy   LegacyConfig    `yaml:"legacy"`
	Auth     AuthConfig      `yaml:"auth"`
	Cache    CacheConfig     `yaml:"cache"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  *MetricsConfig  `yaml:"metrics,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodySize  int64         `yaml:"max_body_size"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"`
}

// LegacyConfig locates the flat-file snapshot store and its write secret
type LegacyConfig struct {
	Dir     string `yaml:"dir"`
	PostKey string `yaml:"post_key"`
}

// AuthConfig selects the write/refresh authorization rule
type AuthConfig struct {
	Mode string `yaml:"mode"` // "strict" (refresh-aware) or "permissive"
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	// InvalidateOnWrite drops the cached copy after a successful POST.
	// Off by default: cached copies stay until an explicit refresh.
	InvalidateOnWrite bool `yaml:"invalidate_on_write"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DatabaseConfig configures the relational catalogue store
type DatabaseConfig struct {
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdleTime    int    `yaml:"max_idle_time"` // seconds
}

// Flags are the command line options of the service binary
type Flags struct {
	ConfigFile  string
	LegacyDir   string
	Address     string
	HealthCheck bool
}

// ParseFlags parses the service command line
func ParseFlags(args []string) (*Flags, error) {
	fs := flag.NewFlagSet("ttg-legacy", flag.ContinueOnError)
	f := &Flags{}
	fs.StringVar(&f.ConfigFile, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&f.LegacyDir, "legacy-dir", "", "Directory holding V{level}/{school}.json snapshots")
	fs.StringVar(&f.Address, "address", "", "Listen address, e.g. :8000")
	fs.BoolVar(&f.HealthCheck, "health-check", false, "Run health check against a running instance and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// Load builds the configuration.
// Command line flags take precedence over environment variables,
// which take precedence over YAML file values, which override defaults.
func Load(flags *Flags) (*Config, error) {
	if flags == nil {
		flags = &Flags{}
	}

	cfg := getDefaultConfig()

	if err := loadFromYAML(cfg, flags.ConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	loadFromEnv(cfg)

	if flags.LegacyDir != "" {
		cfg.Legacy.Dir = flags.LegacyDir
	}
	if flags.Address != "" {
		cfg.Server.Address = flags.Address
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns a configuration with default values
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodySize:  50 * 1024 * 1024, // 50MB, large schools exceed 10MB uncompressed
		},
		TLS: TLSConfig{
			Enabled:    false,
			MinVersion: "1.2",
		},
		Legacy: LegacyConfig{
			Dir:     DefaultLegacyDir,
			PostKey: DefaultPostKey,
		},
		Auth: AuthConfig{
			Mode: AuthModeStrict,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadFromYAML loads configuration from a YAML file
func loadFromYAML(cfg *Config, configFile string) error {
	// Only load config file if explicitly provided via command line
	if configFile == "" {
		return nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config file %s: %w", configFile, err)
	}

	return nil
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(cfg *Config) {
	// Historical names kept for existing deployments
	if val := getEnv("LEGACY_DIR", ""); val != "" {
		cfg.Legacy.Dir = val
	}
	if val := getEnv("LEGACY_POST_KEY", ""); val != "" {
		cfg.Legacy.PostKey = val
	}

	// Server configuration
	if val := getEnv("TTG_SERVER_ADDRESS", ""); val != "" {
		cfg.Server.Address = val
	}
	if val := getDurationEnv("TTG_READ_TIMEOUT", 0); val != 0 {
		cfg.Server.ReadTimeout = val
	}
	if val := getDurationEnv("TTG_WRITE_TIMEOUT", 0); val != 0 {
		cfg.Server.WriteTimeout = val
	}
	if val := getDurationEnv("TTG_IDLE_TIMEOUT", 0); val != 0 {
		cfg.Server.IdleTimeout = val
	}
	if val := getInt64Env("TTG_MAX_BODY_SIZE", 0); val != 0 {
		cfg.Server.MaxBodySize = val
	}

	// TLS configuration
	cfg.TLS.Enabled = getBoolEnv("TTG_TLS_ENABLED", cfg.TLS.Enabled)
	if val := getEnv("TTG_TLS_CERT_FILE", ""); val != "" {
		cfg.TLS.CertFile = val
	}
	if val := getEnv("TTG_TLS_KEY_FILE", ""); val != "" {
		cfg.TLS.KeyFile = val
	}
	if val := getEnv("TTG_TLS_MIN_VERSION", ""); val != "" {
		cfg.TLS.MinVersion = val
	}

	if val := getEnv("TTG_AUTH_MODE", ""); val != "" {
		cfg.Auth.Mode = strings.ToLower(val)
	}

	cfg.Cache.InvalidateOnWrite = getBoolEnv("TTG_CACHE_INVALIDATE_ON_WRITE", cfg.Cache.InvalidateOnWrite)

	// Logging configuration
	if val := getEnv("TTG_LOG_LEVEL", ""); val != "" {
		cfg.Logging.Level = val
	}
	if val := getEnv("TTG_LOG_FORMAT", ""); val != "" {
		cfg.Logging.Format = val
	}

	if getBoolEnv("TTG_METRICS_ENABLED", false) {
		if cfg.Metrics == nil {
			cfg.Metrics = &MetricsConfig{}
		}
		cfg.Metrics.Enabled = true
	}

	loadDatabaseFromEnv(cfg)
}

// loadDatabaseFromEnv enables the catalogue store when a DSN is provided
func loadDatabaseFromEnv(cfg *Config) {
	dsn := getEnv("TTG_DATABASE_DSN", "")
	if dsn == "" {
		return
	}
	if cfg.Database == nil {
		cfg.Database = &DatabaseConfig{Driver: "postgres"}
	}
	cfg.Database.DSN = dsn
	if val := getInt64Env("TTG_DATABASE_MAX_CONNECTIONS", 0); val != 0 {
		cfg.Database.MaxConnections = int(val)
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if strings.TrimSpace(c.Legacy.Dir) == "" {
		return fmt.Errorf("legacy directory is required")
	}

	switch c.Auth.Mode {
	case AuthModeStrict, AuthModePermissive:
	default:
		return fmt.Errorf("unsupported auth mode %q (expected %q or %q)", c.Auth.Mode, AuthModeStrict, AuthModePermissive)
	}

	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("max body size must be positive")
	}

	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("TLS cert and key files are required when TLS is enabled")
	}

	if c.Database != nil && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required when database is configured")
	}

	return nil
}

// Warnings returns non-fatal configuration problems worth logging at startup
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Legacy.PostKey == DefaultPostKey {
		warnings = append(warnings, "LEGACY_POST_KEY is the default placeholder; set a real secret in production")
	}
	if c.Legacy.PostKey == "" {
		warnings = append(warnings, "legacy post key is empty; all writes and refreshes will be denied")
	}
	if c.Auth.Mode == AuthModePermissive {
		warnings = append(warnings, "permissive auth mode lets unauthenticated clients force cache refreshes")
	}
	if c.Cache.InvalidateOnWrite {
		warnings = append(warnings, "cache invalidate_on_write enabled; POST drops the cached snapshot")
	}
	return warnings
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
