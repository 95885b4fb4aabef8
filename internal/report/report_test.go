package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wafa/internal/markdown"
	"wafa/internal/session"
	"wafa/pkg/logx"
)

type fakeSession struct {
	mu    sync.Mutex
	sent  []string
	dests []string
	err   error
}

func (f *fakeSession) Send(_ context.Context, dest, text string, _ *session.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.dests = append(f.dests, dest)
	return f.err
}

func (f *fakeSession) Status() session.Status { return session.StatusConnected }
func (f *fakeSession) Health() error          { return nil }

func (f *fakeSession) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNewValidates(t *testing.T) {
	cases := []Config{
		{Schedule: "@hourly"},
		{Schedule: "not a schedule", Destination: "1"},
		{Schedule: "* * * * * *", Destination: "1"},
	}
	for _, cfg := range cases {
		if _, err := New(cfg, &fakeSession{}, nil, logx.Nop()); err == nil {
			t.Fatalf("New(%+v) should fail", cfg)
		}
	}
	if _, err := New(Config{Schedule: "*/5 * * * *", Destination: "1"}, &fakeSession{}, nil, logx.Nop()); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	sess := &fakeSession{}
	s, err := New(Config{Schedule: "@daily", Destination: "ops"}, sess, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sess.dests[0] != "ops" || sess.sent[0] != "Session status: `CONNECTED`" {
		t.Fatalf("sent %v to %v", sess.sent, sess.dests)
	}

	sess.err = errors.New("down")
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("RunOnce should surface send errors")
	}
}

func TestRunOnceRendersMarkdown(t *testing.T) {
	sess := &fakeSession{}
	md := markdown.NewRenderer(true, markdown.TelegramHTML)
	s, err := New(Config{Schedule: "@daily", Destination: "ops"}, sess, md, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if want := "Session status: <code>CONNECTED</code>"; sess.sent[0] != want {
		t.Fatalf("sent %q, want %q", sess.sent[0], want)
	}

	md.Set(false, markdown.TelegramHTML)
	_ = s.RunOnce(context.Background())
	if sess.sent[1] != "Session status: `CONNECTED`" {
		t.Fatalf("disabled renderer changed the line: %q", sess.sent[1])
	}
}

func TestScheduleFires(t *testing.T) {
	sess := &fakeSession{}
	s, err := New(Config{Schedule: "@every 1s", Destination: "ops", Timezone: "UTC"}, sess, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for sess.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sess.count() == 0 {
		t.Fatalf("scheduled report never ran")
	}
}
