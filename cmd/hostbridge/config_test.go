package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, defaultVaultRoot(), cfg.Vault.Root)
	assert.Empty(t, cfg.Vault.Passphrase)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "./data/history.db", cfg.History.DSN)
	assert.Equal(t, 3, cfg.Deploy.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Deploy.StepTimeout)
	assert.Equal(t, time.Second, cfg.Deploy.BackoffBase)
	assert.Equal(t, 2.0, cfg.Deploy.BackoffMultiplier)
	assert.True(t, cfg.Providers.SharedHosting.Enabled)
	assert.Contains(t, cfg.Providers.SharedHosting.Runtimes, "node")
	assert.True(t, cfg.Providers.AppPlatform.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  write_timeout: 5m

vault:
  root: "/tmp/creds"

history:
  enabled: false

deploy:
  max_retries: 1
  step_timeout: 30s

providers:
  shared_hosting:
    enabled: false
  app_platform:
    runtimes: ["node"]

log:
  level: "debug"
  format: "text"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, "/tmp/creds", cfg.Vault.Root)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, 1, cfg.Deploy.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Deploy.StepTimeout)
	assert.False(t, cfg.Providers.SharedHosting.Enabled)
	assert.Equal(t, []string{"node"}, cfg.Providers.AppPlatform.Runtimes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestDefaultVaultRoot_UserConfigDir(t *testing.T) {
	userDir, err := os.UserConfigDir()
	if err != nil {
		assert.Equal(t, "./data/credentials", defaultVaultRoot())
		return
	}
	assert.Equal(t, filepath.Join(userDir, "hostbridge", "credentials"), defaultVaultRoot())
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("HOSTBRIDGE_SERVER_PORT", "3000")
	t.Setenv("HOSTBRIDGE_VAULT_PASSPHRASE", "hunter2")
	t.Setenv("HOSTBRIDGE_HISTORY_DSN", "/custom/path.db")
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Vault.Passphrase)
	assert.Equal(t, "/custom/path.db", cfg.History.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_JSONFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_TextFormat(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}

	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	cfg := &Config{
		Log: LogConfig{
			Level:  "invalid",
			Format: "json",
		},
	}

	// Should fall back to info level, not panic
	logger := SetupLogger(cfg)
	assert.NotNil(t, logger)
}

// =============================================================================
// Server Construction Tests
// =============================================================================

func TestNewServer_RequiresPassphrase(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	logger := SetupLogger(cfg)

	_, err = NewServer(cfg, logger)
	require.Error(t, err)

	sErr, ok := err.(*ServerError)
	require.True(t, ok)
	assert.Equal(t, ExitConfigError, sErr.ExitCode)
	assert.Contains(t, sErr.Error(), "passphrase")
}

func TestNewServer_WiresEverything(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Vault.Root = filepath.Join(dir, "creds")
	cfg.Vault.Passphrase = "correct horse battery staple"
	cfg.History.DSN = filepath.Join(dir, "history.db")
	logger := SetupLogger(cfg)

	server, err := NewServer(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.NotNil(t, server.httpServer)
	assert.NotNil(t, server.history)

	require.NoError(t, server.Shutdown(t.Context()))
}

func TestNewServer_HistoryDisabled(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Vault.Root = filepath.Join(dir, "creds")
	cfg.Vault.Passphrase = "correct horse battery staple"
	cfg.History.Enabled = false
	logger := SetupLogger(cfg)

	server, err := NewServer(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, server.history)

	require.NoError(t, server.Shutdown(t.Context()))
}

func TestNewServer_BadRulesFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Vault.Root = filepath.Join(dir, "creds")
	cfg.Vault.Passphrase = "correct horse battery staple"
	cfg.History.DSN = filepath.Join(dir, "history.db")
	cfg.Diagnose.RulesFile = filepath.Join(dir, "missing-rules.yaml")
	logger := SetupLogger(cfg)

	_, err = NewServer(cfg, logger)
	require.Error(t, err)

	sErr, ok := err.(*ServerError)
	require.True(t, ok)
	assert.Equal(t, ExitConfigError, sErr.ExitCode)
}

// =============================================================================
// Exit Code Mapping Tests
// =============================================================================

func TestFail_ServerErrorExitCode(t *testing.T) {
	logger := SetupLogger(&Config{Log: LogConfig{Level: "error", Format: "json"}})

	err := &ServerError{Op: "Start", Err: errors.New("listen failed"), ExitCode: ExitHTTPServerError}
	assert.Equal(t, ExitHTTPServerError, fail(logger, "server error", err))
	assert.Equal(t, ExitHTTPServerError, fail(logger, "server error", fmt.Errorf("wrapped: %w", err)))
}

func TestFail_PlainErrorDefaultsToConfigError(t *testing.T) {
	logger := SetupLogger(&Config{Log: LogConfig{Level: "error", Format: "json"}})

	assert.Equal(t, ExitConfigError, fail(logger, "server error", errors.New("boom")))
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
	}

	assert.Equal(t, "localhost:8090", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HOSTBRIDGE_SERVER_HOST",
		"HOSTBRIDGE_SERVER_PORT",
		"HOSTBRIDGE_VAULT_ROOT",
		"HOSTBRIDGE_VAULT_PASSPHRASE",
		"HOSTBRIDGE_HISTORY_DSN",
		"HOSTBRIDGE_LOG_LEVEL",
		"HOSTBRIDGE_LOG_FORMAT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
