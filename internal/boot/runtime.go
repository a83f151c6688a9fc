// Package boot provides runtime configuration derived from the loaded config.
package boot

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/memohai/confessions/internal/config"
)

// RuntimeConfig holds parsed runtime settings (durations resolved, drivers normalized).
// Values may be overridden by environment variables (HTTP_ADDR, DISCORD_TOKEN, STORE_DRIVER).
type RuntimeConfig struct {
	JwtSecret        string
	ServerAddr       string
	StoreDriver      string
	CacheTTL         time.Duration
	DiscordToken     string
	ReconcileWarmup  time.Duration
	ReconcileCron    string
	LookupsPerSecond float64
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		JwtSecret:        strings.TrimSpace(cfg.Auth.JWTSecret),
		ServerAddr:       cfg.Server.Addr,
		StoreDriver:      strings.ToLower(strings.TrimSpace(cfg.Store.Driver)),
		DiscordToken:     strings.TrimSpace(cfg.Discord.BotToken),
		ReconcileCron:    strings.TrimSpace(cfg.Reconcile.Schedule),
		LookupsPerSecond: cfg.Reconcile.LookupsPerSecond,
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.ServerAddr = value
	}
	if value := os.Getenv("DISCORD_TOKEN"); value != "" {
		ret.DiscordToken = value
	}
	if value := os.Getenv("STORE_DRIVER"); value != "" {
		ret.StoreDriver = strings.ToLower(strings.TrimSpace(value))
	}

	switch ret.StoreDriver {
	case "":
		ret.StoreDriver = config.DefaultStoreDriver
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("unknown store driver: %s", ret.StoreDriver)
	}

	if raw := strings.TrimSpace(cfg.Store.CacheTTL); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid store cache ttl: %w", err)
		}
		ret.CacheTTL = ttl
	}

	warmup := strings.TrimSpace(cfg.Reconcile.Warmup)
	if warmup == "" {
		warmup = config.DefaultReconcileWarmup
	}
	d, err := time.ParseDuration(warmup)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile warmup: %w", err)
	}
	ret.ReconcileWarmup = d

	if ret.LookupsPerSecond <= 0 {
		ret.LookupsPerSecond = config.DefaultLookupsPerSecond
	}
	return ret, nil
}
