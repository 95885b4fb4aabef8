// Package commands answers "/command" messages the operator sends from the
// paired account.
package commands

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"wafa/internal/eventbus"
	"wafa/internal/markdown"
	"wafa/internal/session"
	"wafa/pkg/logx"
)

// Session is what command handlers may use.
type Session interface {
	Send(ctx context.Context, dest, text string, att *session.Attachment) error
	Status() session.Status
	Health() error
}

// Handler answers one command. It returns the reply in markdown.
type Handler func(ctx context.Context, s Session, msg session.InboundMessage) (string, error)

type command struct {
	help string
	run  Handler
}

var commandRe = regexp.MustCompile(`^/([0-9a-zA-Z-]+)`)

type Dispatcher struct {
	sess    Session
	md      *markdown.Renderer
	log     logx.Logger
	enabled atomic.Bool
	cmds    map[string]command
}

func New(sess Session, md *markdown.Renderer, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		sess: sess,
		md:   md,
		log:  log.With(logx.String("comp", "commands")),
		cmds: map[string]command{},
	}
	d.enabled.Store(true)
	d.Register("chat-id", "reply with this chat's id", chatID)
	d.Register("status", "show the session status", status)
	d.Register("help", "list commands", d.help)
	return d
}

// Register adds or replaces a command. Names are case-insensitive.
func (d *Dispatcher) Register(name, help string, h Handler) {
	d.cmds[strings.ToLower(name)] = command{help: help, run: h}
}

func (d *Dispatcher) SetEnabled(v bool) { d.enabled.Store(v) }

// Run consumes inbound messages from bus until ctx is done.
// Run handles inbound messages from events until ctx ends or events is
// closed. Callers subscribe before the session starts so early messages are
// not missed.
func (d *Dispatcher) Run(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeInboundMessage {
				continue
			}
			msg, ok := e.Data.(session.InboundMessage)
			if !ok {
				continue
			}
			d.Handle(ctx, msg)
		}
	}
}

// Handle dispatches msg if it is a known command from the operator. It
// reports whether a command ran.
func (d *Dispatcher) Handle(ctx context.Context, msg session.InboundMessage) bool {
	if !d.enabled.Load() || !msg.SelfAuthored {
		return false
	}
	m := commandRe.FindStringSubmatch(msg.Text)
	if m == nil {
		return false
	}
	name := strings.ToLower(m[1])
	cmd, ok := d.cmds[name]
	if !ok {
		return false
	}

	log := d.log.With(logx.String("command", name), logx.String("chat", msg.Destination))
	log.Info("matched command")

	reply, err := cmd.run(ctx, d.sess, msg)
	if err != nil {
		log.Warn("command failed", logx.Err(err))
		return true
	}
	if reply == "" {
		return true
	}
	if err := d.sess.Send(ctx, msg.Destination, d.md.Render(reply), nil); err != nil {
		log.Warn("command reply failed", logx.Err(err))
	}
	return true
}

func chatID(_ context.Context, _ Session, msg session.InboundMessage) (string, error) {
	return "This chat id is `" + msg.Destination + "`", nil
}

func status(_ context.Context, s Session, _ session.InboundMessage) (string, error) {
	return StatusLine(s.Status(), s.Health()), nil
}

func (d *Dispatcher) help(context.Context, Session, session.InboundMessage) (string, error) {
	names := make([]string, 0, len(d.cmds))
	for n := range d.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, n := range names {
		b.WriteString("- `/" + n + "` " + d.cmds[n].help + "\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// StatusLine renders a status and its health error, if any.
func StatusLine(st session.Status, health error) string {
	if health == nil {
		return "Session status: `" + st.String() + "`"
	}
	detail := health.Error()
	if se, ok := health.(*session.Error); ok {
		detail = se.Detail
	}
	return "Session status: `" + st.String() + "`\n" + detail
}
