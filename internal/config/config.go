// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultStoreDriver       = "sqlite"
	DefaultSQLitePath        = "data/confessions.db"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "confessions"
	DefaultPGSSLMode         = "disable"
	DefaultReconcileWarmup   = "15s"
	DefaultReconcileSchedule = "@every 6h"
	DefaultLookupsPerSecond  = 5.0
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Auth       AuthConfig       `toml:"auth"`
	Store      StoreConfig      `toml:"store"`
	Postgres   PostgresConfig   `toml:"postgres"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Discord    DiscordConfig    `toml:"discord"`
	Moderation ModerationConfig `toml:"moderation"`
	Reconcile  ReconcileConfig  `toml:"reconcile"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the admin HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the secret used to verify admin API bearer tokens.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// StoreConfig selects the config store backend ("postgres", "sqlite" or "memory").
// CacheTTL enables the read-through cache when non-empty (e.g. "5m").
type StoreConfig struct {
	Driver      string `toml:"driver"`
	AutoMigrate bool   `toml:"auto_migrate"`
	CacheTTL    string `toml:"cache_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// SQLiteConfig holds the database file path.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// DiscordConfig holds the bot credentials. GuildID scopes slash command
// registration to a single guild, which is useful while developing.
type DiscordConfig struct {
	BotToken      string `toml:"bot_token"`
	ApplicationID string `toml:"application_id"`
	GuildID       string `toml:"guild_id"`
}

// ModerationConfig reports whether the moderation subsystem is deployed.
// Excluded lists community ids that do not get it.
type ModerationConfig struct {
	Enabled  bool     `toml:"enabled"`
	Excluded []string `toml:"excluded"`
}

// ReconcileConfig controls the lifecycle sweep.
type ReconcileConfig struct {
	Warmup           string  `toml:"warmup"`
	Schedule         string  `toml:"schedule"`
	LookupsPerSecond float64 `toml:"lookups_per_second"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Store: StoreConfig{
			Driver:      DefaultStoreDriver,
			AutoMigrate: true,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		SQLite: SQLiteConfig{
			Path: DefaultSQLitePath,
		},
		Moderation: ModerationConfig{
			Enabled: true,
		},
		Reconcile: ReconcileConfig{
			Warmup:           DefaultReconcileWarmup,
			Schedule:         DefaultReconcileSchedule,
			LookupsPerSecond: DefaultLookupsPerSecond,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
