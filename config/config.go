package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds process-level options resolved from flags, environment and defaults
type Config struct {
	DataDir       string        `mapstructure:"data_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	LogFile       string        `mapstructure:"log_file"`
	Theme         string        `mapstructure:"theme"`
	PersistDelay  time.Duration `mapstructure:"persist_delay"`
	SettingsDelay time.Duration `mapstructure:"settings_delay"`
}

// SetDefaults registers the default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "~/.kitgpt")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file", "")
	v.SetDefault("theme", "default")
	v.SetDefault("persist_delay", 300*time.Millisecond)
	v.SetDefault("settings_delay", time.Second)
}

// Load resolves the configuration. Environment variables use the KITGPT_
// prefix, e.g. KITGPT_DATA_DIR. Flags must already be bound to v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("KITGPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	dir, err := expandHome(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.DataDir = dir
	if cfg.PersistDelay <= 0 {
		cfg.PersistDelay = 300 * time.Millisecond
	}
	if cfg.SettingsDelay <= 0 {
		cfg.SettingsDelay = time.Second
	}
	return cfg, nil
}

// EnsureDataDir creates the data directory
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// DatabasePath is the conversation database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "conversations.sqlite3")
}

// SettingsPath is the settings file
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// LogPath is where the terminal UI writes its log when no log file is configured
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "kitgpt.log")
}

// EnvPath is the file provider keys are persisted to
func (c *Config) EnvPath() string {
	return filepath.Join(c.DataDir, ".env")
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
