package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	got := formatChatLine([]byte(`{"level":"warn","message":"reconnect scheduled","comp":"session","delay":15000,"time":"x"}`))
	want := "[WARN] reconnect scheduled\n- comp=session\n- delay=15000"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}

	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-json line = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("hello", 10); got != "hello" {
		t.Fatalf("short input changed: %q", got)
	}
	got := truncate(strings.Repeat("a", 50), 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
}

type recordingSender struct {
	mu    sync.Mutex
	lines []string
	dests []string
	got   chan struct{}
}

func (r *recordingSender) SendText(_ context.Context, dest, text string) error {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.dests = append(r.dests, dest)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
	return nil
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	sender := &recordingSender{got: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, Destination: "42", MinLevel: "warn", RatePerSec: 10},
	})
	defer svc.Close()
	svc.SetSender(sender)

	log.Info("ignored")
	log.Warn("disk almost full", String("path", "/data"))

	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("chat sink did not forward the warning")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.lines) != 1 {
		t.Fatalf("forwarded %d lines, want 1: %q", len(sender.lines), sender.lines)
	}
	if sender.dests[0] != "42" {
		t.Fatalf("destination = %q", sender.dests[0])
	}
	if !strings.HasPrefix(sender.lines[0], "[WARN] disk almost full") {
		t.Fatalf("line = %q", sender.lines[0])
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger not reported as zero")
	}
	l.With(String("k", "v")).Error("nothing happens")
}
