package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultListen         = "127.0.0.1"
	DefaultPort           = 3000
	DefaultMaxBodySize    = "10mb"
	DefaultDataDir        = "./data"
	DefaultReconnectDelay = 15 * time.Second
)

// Default returns the config used when no file exists.
func Default() *Config {
	cfg := baseline()
	ApplyDefaults(cfg)
	return cfg
}

// baseline holds the defaults for booleans, which a zero value cannot
// express. Files are decoded on top of it.
func baseline() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Session:  SessionConfig{QR: true},
		Commands: CommandsConfig{Enabled: true},
		Markdown: MarkdownConfig{Enabled: true},
	}
}

// ApplyDefaults fills zero values in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if strings.TrimSpace(cfg.Server.MaxBodySize) == "" {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.SendConcurrency <= 0 {
		cfg.Server.SendConcurrency = 8
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite":
			cfg.Storage.Path = DefaultDataDir + "/session.db"
		default:
			cfg.Storage.Path = DefaultDataDir + "/session"
		}
	}
	if strings.TrimSpace(cfg.Transport.Driver) == "" {
		cfg.Transport.Driver = "telegram"
	}
	if strings.TrimSpace(cfg.Session.ReconnectDelay) == "" {
		cfg.Session.ReconnectDelay = DefaultReconnectDelay.String()
	}
	if strings.TrimSpace(cfg.Markdown.Dialect) == "" {
		cfg.Markdown.Dialect = "html"
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "wafa"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1
	}
}

// Validate checks cross-field constraints. It does not touch the network or
// the filesystem.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", cfg.Server.Port))
	}
	if _, err := ParseSize("server.max_body_size", cfg.Server.MaxBodySize); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("server.shutdown_timeout", cfg.Server.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "memory", "file", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(cfg.Transport.Driver) {
	case "telegram":
		if _, err := ParseDurationField("transport.telegram.poll_timeout", cfg.Transport.Telegram.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("transport.driver: unknown driver %q", cfg.Transport.Driver))
	}
	if d, err := ParseDurationField("session.reconnect_delay", cfg.Session.ReconnectDelay); err != nil {
		errs = append(errs, err)
	} else if d == 0 {
		errs = append(errs, errors.New("session.reconnect_delay must be > 0"))
	}
	switch strings.ToLower(cfg.Markdown.Dialect) {
	case "html", "plain":
	default:
		errs = append(errs, fmt.Errorf("markdown.dialect: unknown dialect %q", cfg.Markdown.Dialect))
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate: %v not in [0,1]", cfg.Telemetry.SampleRate))
	}
	if cfg.Report.Enabled {
		if strings.TrimSpace(cfg.Report.Destination) == "" {
			errs = append(errs, errors.New("report.destination is required when report is enabled"))
		}
		if _, err := ParseSchedule(cfg.Report.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("report.schedule: %w", err))
		}
		if tz := strings.TrimSpace(cfg.Report.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				errs = append(errs, fmt.Errorf("report.timezone: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts a 5-field cron spec or a descriptor such as
// "@hourly" or "@every 30m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty schedule")
	}
	return scheduleParser.Parse(spec)
}
