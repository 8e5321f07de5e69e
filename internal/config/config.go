package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version string        `yaml:"version"`
	Discord DiscordConfig `yaml:"discord"`
	VRChat  VRChatConfig  `yaml:"vrchat"`
	Vault   VaultConfig   `yaml:"vault"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Cleanup CleanupConfig `yaml:"cleanup"`
}

// DiscordConfig contains the bot identity and interaction settings.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	OwnerID string `yaml:"owner_id"`
	// GuildID registers commands on a single guild instead of globally.
	GuildID string `yaml:"guild_id"`
	// PendingLoginTTL bounds how long an unfinished MFA login is kept. Zero keeps it until replaced.
	PendingLoginTTL time.Duration `yaml:"pending_login_ttl"`
	// CommandsPerMinute is the per-user interaction budget.
	CommandsPerMinute int `yaml:"commands_per_minute"`
}

// VRChatConfig contains provider client settings.
type VRChatConfig struct {
	BaseURL           string        `yaml:"base_url"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	UTLS              bool          `yaml:"utls"`
	CacheGroups       bool          `yaml:"cache_groups"`
	// BreakerThreshold is the consecutive outage count that pauses VRChat calls. Negative disables the breaker.
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
}

// VaultConfig selects where encrypted credential records live.
type VaultConfig struct {
	Backend   string `yaml:"backend"`
	LoginsDir string `yaml:"logins_dir"`
}

const (
	VaultBackendSQLite = "sqlite"
	VaultBackendFile   = "file"
)

// StoreConfig contains the SQLite location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig contains the ops HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// APIKeys guard /status. Empty leaves it open, which is fine on loopback.
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// CleanupConfig contains housekeeping settings.
type CleanupConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Interval             time.Duration `yaml:"interval"`
	JoinedCacheRetention time.Duration `yaml:"joined_cache_retention"`
	VacuumEnabled        bool          `yaml:"vacuum_enabled"`
	VacuumInterval       time.Duration `yaml:"vacuum_interval"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if err := c.Discord.Validate(); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	if err := c.VRChat.Validate(); err != nil {
		return fmt.Errorf("vrchat: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/vrceventbot.db"
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "vrceventbot"
	}
	if err := c.Cleanup.Validate(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

// Validate validates Discord configuration.
func (d *DiscordConfig) Validate() error {
	if strings.TrimSpace(d.Token) == "" {
		return fmt.Errorf("token is required")
	}
	if d.PendingLoginTTL < 0 {
		return fmt.Errorf("pending_login_ttl must not be negative")
	}
	if d.CommandsPerMinute <= 0 {
		d.CommandsPerMinute = 20
	}
	return nil
}

// Validate validates VRChat configuration.
func (v *VRChatConfig) Validate() error {
	if v.BaseURL == "" {
		v.BaseURL = "https://api.vrchat.cloud/api/1"
	}
	u, err := url.Parse(v.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL")
	}
	if v.UserAgent == "" {
		v.UserAgent = "VRCEventBot/0.1.0"
	}
	if v.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if v.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 5
	}
	if v.Burst <= 0 {
		v.Burst = 5
	}
	if v.BreakerThreshold == 0 {
		v.BreakerThreshold = 5
	}
	if v.BreakerCooldown < 0 {
		return fmt.Errorf("breaker_cooldown must not be negative")
	}
	if v.BreakerCooldown == 0 {
		v.BreakerCooldown = 30 * time.Second
	}
	return nil
}

// Validate validates vault configuration.
func (v *VaultConfig) Validate() error {
	switch v.Backend {
	case "":
		v.Backend = VaultBackendSQLite
	case VaultBackendSQLite, VaultBackendFile:
	default:
		return fmt.Errorf("backend must be %q or %q", VaultBackendSQLite, VaultBackendFile)
	}
	if v.LoginsDir == "" {
		v.LoginsDir = "./data/logins"
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	return nil
}

// Validate validates cleanup configuration and applies defaults.
func (c *CleanupConfig) Validate() error {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.JoinedCacheRetention <= 0 {
		c.JoinedCacheRetention = 7 * 24 * time.Hour
	}
	if c.VacuumInterval <= 0 {
		c.VacuumInterval = 24 * time.Hour
	}
	return nil
}

// Addr returns host:port for the ops server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}
