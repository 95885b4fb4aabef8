package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestParseFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		file string
		body string
	}{
		{"json", "c.json", `{"server":{"port":8080},"storage":{"driver":"sqlite"},"session":{"reconnect_delay":"5s"}}`},
		{"yaml", "c.yaml", "server:\n  port: 8080\nstorage:\n  driver: sqlite\nsession:\n  reconnect_delay: 5s\n"},
		{"toml", "c.toml", "[server]\nport = 8080\n[storage]\ndriver = \"sqlite\"\n[session]\nreconnect_delay = \"5s\"\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, tc.file, tc.body))
			m.SetEnvLookup(noEnv)
			cfg, err := m.Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Server.Port != 8080 {
				t.Fatalf("port = %d", cfg.Server.Port)
			}
			if cfg.Storage.Path != DefaultDataDir+"/session.db" {
				t.Fatalf("storage path = %q", cfg.Storage.Path)
			}
			if cfg.Session.ReconnectDelay != "5s" {
				t.Fatalf("reconnect delay = %q", cfg.Session.ReconnectDelay)
			}
			if cfg.Server.Listen != DefaultListen || cfg.Server.MaxBodySize != DefaultMaxBodySize {
				t.Fatalf("defaults not applied: %+v", cfg.Server)
			}
			if !cfg.Logging.Console {
				t.Fatalf("console logging should default to on")
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(writeFile(t, "c.json", `{"server":{"prot":1}}`))
	m.SetEnvLookup(noEnv)
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestParseMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.yaml"))
	m.SetEnvLookup(noEnv)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != DefaultPort || cfg.Storage.Driver != "file" || cfg.Transport.Driver != "telegram" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvLogLevel:        "debug",
		EnvPort:            "9000",
		EnvListenInterface: "0.0.0.0",
		EnvMaxBodySize:     "1mb",
		EnvAuthDataDir:     "/var/lib/wafa/",
		EnvTelegramToken:   "123:abc",
	}
	m := NewConfigManager("")
	m.SetEnvLookup(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Server.Port != 9000 || cfg.Server.Listen != "0.0.0.0" {
		t.Fatalf("env not applied: %+v %+v", cfg.Logging, cfg.Server)
	}
	if cfg.Storage.Path != "/var/lib/wafa/session" {
		t.Fatalf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Transport.Telegram.Token != "123:abc" {
		t.Fatalf("token not applied")
	}

	env[EnvPort] = "nope"
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected invalid PORT error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad driver", func(c *Config) { c.Storage.Driver = "etcd" }, "storage.driver"},
		{"redis addr", func(c *Config) { c.Storage.Driver = "redis" }, "storage.redis.addr"},
		{"bad size", func(c *Config) { c.Server.MaxBodySize = "lots" }, "server.max_body_size"},
		{"zero delay", func(c *Config) { c.Session.ReconnectDelay = "0s" }, "reconnect_delay"},
		{"report schedule", func(c *Config) {
			c.Report = ReportConfig{Enabled: true, Destination: "1", Schedule: "every day"}
		}, "report.schedule"},
		{"report interval", func(c *Config) {
			c.Report = ReportConfig{Enabled: true, Destination: "1", Schedule: "@every 1h"}
		}, ""},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		err := Validate(cfg)
		switch {
		case tc.want == "" && err != nil:
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		case tc.want != "" && (err == nil || !strings.Contains(err.Error(), tc.want)):
			t.Fatalf("%s: error %v, want mention of %q", tc.name, err, tc.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	n, err := ParseSize("x", "10mb")
	if err != nil || n != 10_000_000 {
		t.Fatalf("10mb = %d, %v", n, err)
	}
	n, err = ParseSize("x", "1MiB")
	if err != nil || n != 1<<20 {
		t.Fatalf("1MiB = %d, %v", n, err)
	}
	if _, err := ParseSize("x", "0"); err == nil {
		t.Fatalf("zero size accepted")
	}
}

func TestDiffFlagsRestart(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Server.Port = 4000

	ch := Diff(a, b)
	if strings.Join(ch.Sections, ",") != "server,logging" {
		t.Fatalf("sections = %v", ch.Sections)
	}
	if strings.Join(ch.Restart, ",") != "server" {
		t.Fatalf("restart = %v", ch.Restart)
	}
}

func TestSubscribeReceivesLatest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("")
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	b.Logging.Level = "debug"
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatalf("subscriber did not get the newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed after Unsubscribe")
	}
}
