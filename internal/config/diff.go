package config

import (
	"reflect"

	"wafa/pkg/logx"
)

// Change summarizes a reload for logging. Secrets (tokens, passwords) never
// appear in Attrs.
type Change struct {
	Sections []string
	Attrs    []logx.Field
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
}

// HotSections apply without a restart.
var HotSections = map[string]bool{"logging": true, "markdown": true, "commands": true}

// Diff compares two configs section by section.
func Diff(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change
	mark := func(name string, a, b any, attrs ...logx.Field) {
		if reflect.DeepEqual(a, b) {
			return
		}
		ch.Sections = append(ch.Sections, name)
		ch.Attrs = append(ch.Attrs, attrs...)
		if !HotSections[name] {
			ch.Restart = append(ch.Restart, name)
		}
	}

	mark("server", oldCfg.Server, newCfg.Server,
		logx.String("server.listen", newCfg.Server.Listen),
		logx.Int("server.port", newCfg.Server.Port),
	)
	mark("logging", oldCfg.Logging, newCfg.Logging,
		logx.String("logging.level", newCfg.Logging.Level),
		logx.Bool("logging.console", newCfg.Logging.Console),
		logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		logx.Bool("logging.chat", newCfg.Logging.Chat.Enabled),
	)
	mark("storage", oldCfg.Storage, newCfg.Storage,
		logx.String("storage.driver", newCfg.Storage.Driver),
	)
	mark("transport", oldCfg.Transport, newCfg.Transport,
		logx.String("transport.driver", newCfg.Transport.Driver),
		logx.Bool("transport.token_set", newCfg.Transport.Telegram.Token != ""),
	)
	mark("session", oldCfg.Session, newCfg.Session,
		logx.String("session.reconnect_delay", newCfg.Session.ReconnectDelay),
	)
	mark("markdown", oldCfg.Markdown, newCfg.Markdown, logx.Bool("markdown.enabled", newCfg.Markdown.Enabled))
	mark("commands", oldCfg.Commands, newCfg.Commands, logx.Bool("commands.enabled", newCfg.Commands.Enabled))
	mark("metrics", oldCfg.Metrics, newCfg.Metrics, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	mark("telemetry", oldCfg.Telemetry, newCfg.Telemetry, logx.Bool("telemetry.enabled", newCfg.Telemetry.Enabled))
	mark("report", oldCfg.Report, newCfg.Report, logx.Bool("report.enabled", newCfg.Report.Enabled))
	mark("systemd", oldCfg.Systemd, newCfg.Systemd)
	return ch
}
