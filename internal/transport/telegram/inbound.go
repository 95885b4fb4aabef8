package telegram

import (
	"context"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"wafa/internal/transport"
)

// newsletterSuffix marks channel destinations; posts there count as
// self-authored.
const newsletterSuffix = "@newsletter"

func (s *socket) register(b *tele.Bot) {
	b.Handle("/start", s.onStart)
	b.Handle(tele.OnText, s.onMessage)
	b.Handle(tele.OnMedia, s.onMessage)
	b.Handle(tele.OnChannelPost, s.onChannelPost)
}

func (s *socket) onStart(c tele.Context) error {
	m := c.Message()
	if m == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.completePairing(ctx, m.Sender, m.Payload) {
		return c.Send("Paired. This chat now controls the gateway.")
	}
	return s.onMessage(c)
}

func (s *socket) onMessage(c tele.Context) error {
	if m := c.Message(); m != nil {
		s.deliver(toInbound(m, s.owner.Load(), false))
	}
	return nil
}

func (s *socket) onChannelPost(c tele.Context) error {
	if m := c.Message(); m != nil {
		s.deliver(toInbound(m, s.owner.Load(), true))
	}
	return nil
}

func (s *socket) deliver(msg transport.InboundMessage) {
	s.emit(transport.Event{Messages: &transport.MessageBatch{
		Kind:     transport.BatchNotify,
		Messages: []transport.InboundMessage{msg},
	}})
}

// toInbound maps a Telegram message. Text goes to Conversation and a media
// caption to ExtendedText.
func toInbound(m *tele.Message, owner int64, channel bool) transport.InboundMessage {
	out := transport.InboundMessage{ID: strconv.Itoa(m.ID)}
	if m.Chat != nil {
		if channel {
			out.RemoteID = strconv.FormatInt(m.Chat.ID, 10) + newsletterSuffix
		} else {
			out.RemoteID = FormatDestination(m.Chat.ID, m.ThreadID)
		}
	}
	if m.Sender != nil {
		out.RemoteIDAlt = strconv.FormatInt(m.Sender.ID, 10)
		out.FromMe = owner != 0 && m.Sender.ID == owner
	}
	switch {
	case m.Text != "":
		text := m.Text
		out.Conversation = &text
	case m.Caption != "":
		caption := m.Caption
		out.ExtendedText = &caption
	}
	return out
}
