package app

import (
	"net"
	"strconv"
	"time"

	"wafa/internal/config"
	"wafa/internal/gateway"
	"wafa/internal/markdown"
	"wafa/internal/observability"
	"wafa/internal/report"
	"wafa/internal/session"
	"wafa/internal/transport"
	"wafa/internal/transport/telegram"
	"wafa/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:     cfg.Logging.Chat.Enabled,
			Destination: cfg.Logging.Chat.Destination,
			MinLevel:    cfg.Logging.Chat.MinLevel,
			RatePerSec:  cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("transport.telegram.poll_timeout", cfg.Transport.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Transport.Telegram.Token,
		PollTimeout: poll,
		APIURL:      cfg.Transport.Telegram.APIURL,
	}, nil
}

func mapSessionConfig(cfg *config.Config) (session.Config, error) {
	delay, err := config.ParseDurationOrDefault("session.reconnect_delay", cfg.Session.ReconnectDelay, session.DefaultReconnectDelay)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{ReconnectDelay: delay, QR: cfg.Session.QR}, nil
}

func mapGatewayOptions(cfg *config.Config) (gateway.Options, error) {
	size, err := config.ParseSize("server.max_body_size", cfg.Server.MaxBodySize)
	if err != nil {
		return gateway.Options{}, err
	}
	shutdown, err := config.ParseDurationOrDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout, 5*time.Second)
	if err != nil {
		return gateway.Options{}, err
	}
	opts := gateway.Options{
		Addr:            net.JoinHostPort(cfg.Server.Listen, strconv.Itoa(cfg.Server.Port)),
		MaxBodySize:     size,
		RatePerSec:      cfg.Server.RatePerSec,
		SendConcurrency: cfg.Server.SendConcurrency,
		ShutdownTimeout: shutdown,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	return opts, nil
}

// mapMarkdown returns the renderer settings and the matching payload format.
func mapMarkdown(cfg *config.Config) (bool, markdown.Dialect, transport.Format) {
	d := markdown.ParseDialect(cfg.Markdown.Dialect)
	f := transport.FormatPlain
	if cfg.Markdown.Enabled && d == markdown.TelegramHTML {
		f = transport.FormatHTML
	}
	return cfg.Markdown.Enabled, d, f
}

func mapTracingConfig(cfg *config.Config, version string) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRate:  cfg.Telemetry.SampleRate,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
	}
}

func mapReportConfig(cfg *config.Config) report.Config {
	return report.Config{
		Schedule:    cfg.Report.Schedule,
		Destination: cfg.Report.Destination,
		Timezone:    cfg.Report.Timezone,
	}
}
