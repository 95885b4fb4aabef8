package config

// Config is the root of the gateway config file (json, yaml or toml).
//
// Unknown keys are rejected so typos surface at load time.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Transport TransportConfig `json:"transport"`
	Session   SessionConfig   `json:"session"`
	Markdown  MarkdownConfig  `json:"markdown"`
	Commands  CommandsConfig  `json:"commands"`
	Metrics   MetricsConfig   `json:"metrics"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Report    ReportConfig    `json:"report"`
	Systemd   SystemdConfig   `json:"systemd"`
}

// ServerConfig controls the HTTP gateway.
//
// MaxBodySize accepts human sizes ("10mb", "512KiB").
type ServerConfig struct {
	Listen          string `json:"listen"`
	Port            int    `json:"port"`
	MaxBodySize     string `json:"max_body_size"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	SendConcurrency int    `json:"send_concurrency,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat mirrors warnings and errors to a chat destination through
// the live session.
type LoggingChat struct {
	Enabled     bool   `json:"enabled"`
	Destination string `json:"destination"`
	MinLevel    string `json:"min_level"`
	RatePerSec  int    `json:"rate_per_sec"`
}

// StorageConfig selects the credential store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/session.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type TransportConfig struct {
	Driver   string         `json:"driver"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout"`
	APIURL      string `json:"api_url,omitempty"`
}

type SessionConfig struct {
	ReconnectDelay string `json:"reconnect_delay"`
	// QR prints pairing codes as a terminal QR code.
	QR bool `json:"qr"`
}

// MarkdownConfig turns message markdown into chat markup. Dialect is
// "html" (default) or "plain" (*bold* _italic_ style text).
type MarkdownConfig struct {
	Enabled bool   `json:"enabled"`
	Dialect string `json:"dialect,omitempty"`
}

type CommandsConfig struct {
	Enabled bool `json:"enabled"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// TelemetryConfig enables OTLP/HTTP trace export.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty"`
	ServiceName string  `json:"service_name,omitempty"`
}

// ReportConfig schedules a periodic status line. Schedule is a 5-field cron
// spec or "@every <duration>".
type ReportConfig struct {
	Enabled     bool   `json:"enabled"`
	Schedule    string `json:"schedule"`
	Destination string `json:"destination"`
	Timezone    string `json:"timezone,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}
