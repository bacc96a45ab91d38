// Package config handles Parley configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config is the root configuration structure for Parley.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// API client settings
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Sync engine settings
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// User search settings
	Search SearchConfig `yaml:"search" mapstructure:"search"`

	// Attachment staging limits
	Attachments AttachmentConfig `yaml:"attachments" mapstructure:"attachments"`

	// Local snapshot cache
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global Parley settings.
type GlobalConfig struct {
	// DataDir is where Parley stores its data (default: ~/.local/share/parley).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/parley).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// APIConfig contains settings for the conversation service.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://localhost:3001/api.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is a bearer token. Prefer TokenEnv over storing it in a file.
	Token string `yaml:"token" mapstructure:"token"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env" mapstructure:"token_env"`

	// RequestTimeout bounds every API call.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// SyncConfig contains poll cadence and reconciliation settings.
type SyncConfig struct {
	// ListInterval is the thread list poll period.
	ListInterval time.Duration `yaml:"list_interval" mapstructure:"list_interval"`

	// ThreadInterval is the open thread poll period.
	ThreadInterval time.Duration `yaml:"thread_interval" mapstructure:"thread_interval"`

	// MaxConcurrentPolls limits overlapping refreshes per scope.
	MaxConcurrentPolls int `yaml:"max_concurrent_polls" mapstructure:"max_concurrent_polls"`

	// SelfUserID is the signed-in user; 0 when unknown.
	SelfUserID int64 `yaml:"self_user_id" mapstructure:"self_user_id"`

	// SequenceSnapshots discards responses older than the last applied one.
	SequenceSnapshots bool `yaml:"sequence_snapshots" mapstructure:"sequence_snapshots"`
}

// SearchConfig contains user search settings.
type SearchConfig struct {
	// MinLength is the shortest trimmed query that reaches the server.
	MinLength int `yaml:"min_length" mapstructure:"min_length"`

	// RatePerSecond and Burst throttle search-as-you-type.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// AttachmentConfig contains staging limits.
type AttachmentConfig struct {
	// MaxSize is a human readable size such as "25MB".
	MaxSize string `yaml:"max_size" mapstructure:"max_size"`

	// MaxCount is the number of files one message may carry.
	MaxCount int `yaml:"max_count" mapstructure:"max_count"`
}

// CacheConfig contains local snapshot cache settings.
type CacheConfig struct {
	// Enabled turns the SQLite snapshot cache on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite file (default: <data_dir>/parley.db).
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, dark, light).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows timestamps next to messages.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "parley"),
			ConfigDir: filepath.Join(homeDir, ".config", "parley"),
		},
		API: APIConfig{
			BaseURL:        "http://localhost:3001/api",
			TokenEnv:       "PARLEY_TOKEN",
			RequestTimeout: 10 * time.Second,
			UserAgent:      "parley",
		},
		Sync: SyncConfig{
			ListInterval:       5 * time.Second,
			ThreadInterval:     3 * time.Second,
			MaxConcurrentPolls: 8,
			SequenceSnapshots:  true,
		},
		Search: SearchConfig{
			MinLength:     2,
			RatePerSecond: 4,
			Burst:         2,
		},
		Attachments: AttachmentConfig{
			MaxSize:  "25MB",
			MaxCount: 10,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "", // Will be set to DataDir/parley.db
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive")
	}

	if c.Sync.ListInterval < 100*time.Millisecond {
		return fmt.Errorf("sync.list_interval must be at least 100ms")
	}
	if c.Sync.ThreadInterval < 100*time.Millisecond {
		return fmt.Errorf("sync.thread_interval must be at least 100ms")
	}
	if c.Sync.MaxConcurrentPolls < 1 {
		return fmt.Errorf("sync.max_concurrent_polls must be at least 1")
	}
	if c.Sync.SelfUserID < 0 {
		return fmt.Errorf("sync.self_user_id cannot be negative")
	}

	if c.Search.MinLength < 1 {
		return fmt.Errorf("search.min_length must be at least 1")
	}
	if c.Search.RatePerSecond <= 0 {
		return fmt.Errorf("search.rate_per_second must be positive")
	}

	if c.Attachments.MaxCount < 1 {
		return fmt.Errorf("attachments.max_count must be at least 1")
	}
	if _, err := c.MaxAttachmentBytes(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}

// MaxAttachmentBytes parses attachments.max_size.
func (c *Config) MaxAttachmentBytes() (int64, error) {
	size, err := humanize.ParseBytes(c.Attachments.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("attachments.max_size: %w", err)
	}
	if size == 0 {
		return 0, fmt.Errorf("attachments.max_size must be positive")
	}
	return int64(size), nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// CachePath returns the full snapshot cache path.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Global.DataDir, "parley.db")
}

// ResolveToken returns the bearer token: api.token when set, else the
// variable named by api.token_env.
func (c *Config) ResolveToken() string {
	if token := strings.TrimSpace(c.API.Token); token != "" {
		return token
	}
	if c.API.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.API.TokenEnv))
}
