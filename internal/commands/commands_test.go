package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"wafa/internal/eventbus"
	"wafa/internal/markdown"
	"wafa/internal/session"
	"wafa/pkg/logx"
)

type reply struct {
	dest string
	text string
}

type fakeSession struct {
	mu      sync.Mutex
	replies []reply
	status  session.Status
}

func (f *fakeSession) Send(_ context.Context, dest, text string, _ *session.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{dest: dest, text: text})
	return nil
}

func (f *fakeSession) Status() session.Status { return f.status }
func (f *fakeSession) Health() error          { return session.Health(f.status) }

func (f *fakeSession) sent() []reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reply(nil), f.replies...)
}

func TestHandle(t *testing.T) {
	cases := []struct {
		name    string
		msg     session.InboundMessage
		handled bool
		want    string
	}{
		{"chat id", session.InboundMessage{Destination: "42", SelfAuthored: true, Text: "/chat-id"}, true, "This chat id is `42`"},
		{"case insensitive", session.InboundMessage{Destination: "42", SelfAuthored: true, Text: "/CHAT-ID please"}, true, "This chat id is `42`"},
		{"not self authored", session.InboundMessage{Destination: "42", Text: "/chat-id"}, false, ""},
		{"unknown command", session.InboundMessage{Destination: "42", SelfAuthored: true, Text: "/reboot"}, false, ""},
		{"not a command", session.InboundMessage{Destination: "42", SelfAuthored: true, Text: "hello /chat-id"}, false, ""},
		{"status", session.InboundMessage{Destination: "7", SelfAuthored: true, Text: "/status"}, true, "Session status: `CONNECTED`"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := &fakeSession{status: session.StatusConnected}
			d := New(sess, markdown.NewRenderer(false, markdown.WhatsApp), logx.Nop())
			if got := d.Handle(context.Background(), tc.msg); got != tc.handled {
				t.Fatalf("Handle = %v, want %v", got, tc.handled)
			}
			sent := sess.sent()
			if !tc.handled {
				if len(sent) != 0 {
					t.Fatalf("unexpected reply %+v", sent)
				}
				return
			}
			if len(sent) != 1 || sent[0].dest != tc.msg.Destination || sent[0].text != tc.want {
				t.Fatalf("replies = %+v, want %q", sent, tc.want)
			}
		})
	}
}

func TestReplyRenderedAsMarkdown(t *testing.T) {
	sess := &fakeSession{}
	d := New(sess, markdown.NewRenderer(true, markdown.TelegramHTML), logx.Nop())
	d.Handle(context.Background(), session.InboundMessage{Destination: "1", SelfAuthored: true, Text: "/chat-id"})
	sent := sess.sent()
	if len(sent) != 1 || sent[0].text != "This chat id is <code>1</code>" {
		t.Fatalf("replies = %+v", sent)
	}
}

func TestHelpListsCommands(t *testing.T) {
	sess := &fakeSession{}
	d := New(sess, nil, logx.Nop())
	d.Handle(context.Background(), session.InboundMessage{Destination: "1", SelfAuthored: true, Text: "/help"})
	sent := sess.sent()
	if len(sent) != 1 {
		t.Fatalf("replies = %+v", sent)
	}
	for _, name := range []string{"/chat-id", "/help", "/status"} {
		if !strings.Contains(sent[0].text, name) {
			t.Fatalf("help missing %s: %q", name, sent[0].text)
		}
	}
}

func TestStatusLineIncludesHealthDetail(t *testing.T) {
	line := StatusLine(session.StatusLoggedOut, session.Health(session.StatusLoggedOut))
	if !strings.HasPrefix(line, "Session status: `LOGGED_OUT`\n") || !strings.Contains(line, "re-pair") {
		t.Fatalf("StatusLine = %q", line)
	}
}

func TestDisabled(t *testing.T) {
	sess := &fakeSession{}
	d := New(sess, nil, logx.Nop())
	d.SetEnabled(false)
	if d.Handle(context.Background(), session.InboundMessage{Destination: "1", SelfAuthored: true, Text: "/chat-id"}) {
		t.Fatalf("disabled dispatcher handled a command")
	}
}

func TestRunSeesMessagesPublishedBeforeItStarts(t *testing.T) {
	sess := &fakeSession{}
	d := New(sess, nil, logx.Nop())
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	bus.Publish(eventbus.Event{Type: eventbus.TypeStatusChanged})
	bus.Publish(eventbus.Event{Type: eventbus.TypeInboundMessage, Data: session.InboundMessage{
		Destination: "9", SelfAuthored: true, Text: "/chat-id",
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, events) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(sess.sent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sess.sent(); len(got) != 1 {
		t.Fatalf("replies = %v, want one", got)
	}
}

func TestRunReturnsWhenEventsClose(t *testing.T) {
	d := New(&fakeSession{}, nil, logx.Nop())
	events := make(chan eventbus.Event)
	close(events)
	if err := d.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
