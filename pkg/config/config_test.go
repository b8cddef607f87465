package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotonicGluon/Excalibur/internal/bytesize"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 52419, cfg.API.Port)
	assert.Equal(t, 2048, cfg.Security.SRPGroupBits)
	assert.Equal(t, time.Hour, cfg.Security.SessionDuration)
	assert.Equal(t, 60*time.Second, cfg.Security.HandshakeTimeout)
	assert.Equal(t, time.Minute, cfg.Security.PoP.TimestampValidity)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.Equal(t, 512*bytesize.MiB, cfg.Server.MaxFileSize)

	require.NoError(t, Validate(cfg))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
server:
  vault_folder: /srv/vault
  max_file_size: 64Mi
api:
  port: 9000
security:
  session_duration: 30m
  srp_group_bits: 1536
  include_username_in_m1: true
database:
  type: sqlite
  sqlite_path: /srv/users.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "/srv/vault", cfg.Server.VaultFolder)
	assert.Equal(t, 64*bytesize.MiB, cfg.Server.MaxFileSize)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, 30*time.Minute, cfg.Security.SessionDuration)
	assert.Equal(t, 1536, cfg.Security.SRPGroupBits)
	assert.True(t, cfg.Security.IncludeUsernameInM1)
	assert.Equal(t, "/srv/users.db", cfg.Database.SQLitePath)

	// Unspecified fields get defaults.
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 60*time.Second, cfg.Security.HandshakeTimeout)
}

func TestLoad_InvalidGroupBits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  srp_group_bits: 512\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_NegativeDuration(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Security.SessionDuration = -time.Second

	assert.Error(t, Validate(cfg))
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.API.Port = 8123
	cfg.Security.AccountCreationKey = "letmein"
	require.NoError(t, SaveConfig(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, loaded.API.Port)
	assert.Equal(t, "letmein", loaded.Security.AccountCreationKey)
}
