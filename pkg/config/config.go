// Package config loads server configuration from file, environment, and
// defaults.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (EXCALIBUR_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/PhotonicGluon/Excalibur/internal/bytesize"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
)

// Config represents the Excalibur server configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the vault storage
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// API configures the HTTP server
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Security configures sessions, SRP, and proof of possession
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Database configures the user store (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Metrics controls the Prometheus /metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the vault storage.
type ServerConfig struct {
	// VaultFolder is the directory holding per-user encrypted files.
	VaultFolder string `mapstructure:"vault_folder" validate:"required" yaml:"vault_folder"`

	// MaxFileSize caps uploaded container sizes.
	// Supports human-readable formats: "1GB", "512MB", "10Mi"
	MaxFileSize bytesize.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	// Port is the HTTP port the API listens on.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// Must comfortably exceed the handshake timeout, since the auth
	// websocket lives inside a single request.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// AllowOrigins lists CORS origins permitted to call the API.
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`

	// RateLimit is the per-client token bucket.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig is the per-client token bucket.
type RateLimitConfig struct {
	// PerSecond is the sustained request refill rate.
	PerSecond float64 `mapstructure:"per_second" validate:"omitempty,gt=0" yaml:"per_second"`

	// Burst is the bucket capacity.
	Burst int `mapstructure:"burst" validate:"omitempty,gt=0" yaml:"burst"`
}

// SecurityConfig configures sessions, SRP, and proof of possession.
type SecurityConfig struct {
	// SessionDuration is how long a login session stays valid.
	SessionDuration time.Duration `mapstructure:"session_duration" validate:"required,gt=0" yaml:"session_duration"`

	// HandshakeTimeout bounds a single SRP handshake over the websocket.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"required,gt=0" yaml:"handshake_timeout"`

	// SRPGroupBits selects the SRP group offered to clients.
	SRPGroupBits int `mapstructure:"srp_group_bits" validate:"required,oneof=1024 1536 2048" yaml:"srp_group_bits"`

	// CommCacheSize caps the number of live sessions.
	CommCacheSize int `mapstructure:"comm_cache_size" validate:"required,gt=0" yaml:"comm_cache_size"`

	// IncludeUsernameInM1 selects the client proof variant that hashes
	// the username. Both peers must agree.
	IncludeUsernameInM1 bool `mapstructure:"include_username_in_m1" yaml:"include_username_in_m1"`

	// AccountCreationKey, when set, is required to enrol new users.
	AccountCreationKey string `mapstructure:"account_creation_key" yaml:"account_creation_key,omitempty"`

	// PoP configures the proof-of-possession header checks.
	PoP PoPConfig `mapstructure:"pop" yaml:"pop"`
}

// PoPConfig configures the proof-of-possession header checks.
type PoPConfig struct {
	// NonceCacheSize caps the replay-protection nonce cache.
	NonceCacheSize int `mapstructure:"nonce_cache_size" validate:"required,gt=0" yaml:"nonce_cache_size"`

	// TimestampValidity is how far in the past a request timestamp may lie.
	TimestampValidity time.Duration `mapstructure:"timestamp_validity" validate:"required,gt=0" yaml:"timestamp_validity"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses the default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  excalibur init\n\n"+
				"Or specify a custom config file:\n"+
				"  excalibur <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  excalibur init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config may carry the account creation key, so keep it owner-only.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: EXCALIBUR_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("EXCALIBUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can say "512MB" or "1Gi".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "excalibur")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "excalibur")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
