package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Vault     VaultConfig     `mapstructure:"vault"`
	History   HistoryConfig   `mapstructure:"history"`
	Deploy    DeployConfig    `mapstructure:"deploy"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Diagnose  DiagnoseConfig  `mapstructure:"diagnose"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VaultConfig holds credential storage configuration.
type VaultConfig struct {
	// Root is the directory holding encrypted credential bundles.
	Root string `mapstructure:"root"`

	// Passphrase is the master secret encryption keys are derived from.
	// Set via HOSTBRIDGE_VAULT_PASSPHRASE.
	Passphrase string `mapstructure:"passphrase"`
}

// HistoryConfig holds deployment history persistence configuration.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// DeployConfig holds the orchestrator retry policy.
type DeployConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	StepTimeout       time.Duration `mapstructure:"step_timeout"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// ProvidersConfig enables and tunes the provider adapters.
type ProvidersConfig struct {
	SharedHosting SharedHostingConfig `mapstructure:"shared_hosting"`
	AppPlatform   AppPlatformConfig   `mapstructure:"app_platform"`
}

// SharedHostingConfig tunes the SSH adapter.
type SharedHostingConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Runtimes       []string      `mapstructure:"runtimes"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// AppPlatformConfig tunes the serverless API adapter.
type AppPlatformConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Runtimes []string `mapstructure:"runtimes"`
}

// DiagnoseConfig holds failure classifier configuration.
type DiagnoseConfig struct {
	// RulesFile is an optional YAML file with operator rules that take
	// precedence over the builtin rule set.
	RulesFile string `mapstructure:"rules_file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// defaultVaultRoot places credential bundles under the per-user configuration
// directory (XDG_CONFIG_HOME on Linux), falling back to the working directory
// when none is known.
func defaultVaultRoot() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data/credentials"
	}
	return filepath.Join(dir, "hostbridge", "credentials")
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m") // deploys are synchronous
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("vault.root", defaultVaultRoot())
	v.SetDefault("vault.passphrase", "")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.dsn", "./data/history.db")
	v.SetDefault("deploy.max_retries", 3)
	v.SetDefault("deploy.step_timeout", "5m")
	v.SetDefault("deploy.backoff_base", "1s")
	v.SetDefault("deploy.backoff_multiplier", 2.0)
	v.SetDefault("providers.shared_hosting.enabled", true)
	v.SetDefault("providers.shared_hosting.runtimes", []string{"node", "php", "static", "postgresql"})
	v.SetDefault("providers.shared_hosting.connect_timeout", "10s")
	v.SetDefault("providers.shared_hosting.command_timeout", "2m")
	v.SetDefault("providers.app_platform.enabled", true)
	v.SetDefault("providers.app_platform.runtimes", []string{"node", "static", "postgresql"})
	v.SetDefault("diagnose.rules_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("HOSTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
