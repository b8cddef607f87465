package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/PhotonicGluon/Excalibur/internal/bytesize"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyAPIDefaults(&cfg.API)
	applySecurityDefaults(&cfg.Security)
	applyDatabaseDefaults(&cfg.Database)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.VaultFolder == "" {
		cfg.VaultFolder = filepath.Join(getConfigDir(), "vault")
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 512 * bytesize.MiB
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Port <= 0 {
		cfg.Port = 52419
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}
	if cfg.RateLimit.PerSecond == 0 {
		cfg.RateLimit.PerSecond = 20
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 60
	}
}

func applySecurityDefaults(cfg *SecurityConfig) {
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = time.Hour
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 60 * time.Second
	}
	if cfg.SRPGroupBits == 0 {
		cfg.SRPGroupBits = 2048
	}
	if cfg.CommCacheSize == 0 {
		cfg.CommCacheSize = 1024
	}
	if cfg.PoP.NonceCacheSize == 0 {
		cfg.PoP.NonceCacheSize = 4096
	}
	if cfg.PoP.TimestampValidity == 0 {
		cfg.PoP.TimestampValidity = time.Minute
	}
}

func applyDatabaseDefaults(cfg *store.Config) {
	if cfg.Type == "" {
		cfg.Type = store.DatabaseTypeSQLite
	}
	if cfg.Type == store.DatabaseTypeSQLite && cfg.SQLitePath == "" {
		cfg.SQLitePath = filepath.Join(getConfigDir(), "users.db")
	}
}

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
