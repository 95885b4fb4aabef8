package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values. Kept compatible with
// earlier deployments that were configured from env only.
const (
	EnvLogLevel        = "LOG_LEVEL"
	EnvPort            = "PORT"
	EnvListenInterface = "LISTEN_INTERFACE"
	EnvMaxBodySize     = "MAX_BODY_SIZE"
	EnvAuthDataDir     = "AUTH_DATA_DIR"
	EnvTelegramToken   = "TELEGRAM_TOKEN"
)

// ApplyEnv overlays environment overrides onto cfg. lookup is os.LookupEnv
// in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvPort); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Server.Port = p
	}
	if v, ok := get(EnvListenInterface); ok {
		cfg.Server.Listen = v
	}
	if v, ok := get(EnvMaxBodySize); ok {
		cfg.Server.MaxBodySize = v
	}
	if v, ok := get(EnvAuthDataDir); ok {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite":
			cfg.Storage.Path = strings.TrimRight(v, "/") + "/session.db"
		case "", "file":
			cfg.Storage.Path = strings.TrimRight(v, "/") + "/session"
		}
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Transport.Telegram.Token = v
	}
	return nil
}
