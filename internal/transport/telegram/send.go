package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"wafa/internal/transport"
)

const (
	textLimit    = 4000
	captionLimit = 1024
)

// ErrNotConnected is returned by Send before the bot is up.
var ErrNotConnected = errors.New("telegram: not connected")

// FormatDestination renders chat and optional forum thread as "chat[:thread]".
func FormatDestination(chatID int64, threadID int) string {
	if threadID == 0 {
		return strconv.FormatInt(chatID, 10)
	}
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(threadID)
}

// ParseDestination accepts "chat", "chat:thread" and "chat@newsletter".
func ParseDestination(dest string) (chatID int64, threadID int, err error) {
	d := strings.TrimSuffix(strings.TrimSpace(dest), newsletterSuffix)
	chat, thread, hasThread := strings.Cut(d, ":")
	chatID, err = strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid destination %q", dest)
	}
	if hasThread {
		threadID, err = strconv.Atoi(thread)
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("invalid thread in destination %q", dest)
		}
	}
	return chatID, threadID, nil
}

func (s *socket) Send(ctx context.Context, dest string, p transport.Payload) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}
	b := s.bot.Load()
	if b == nil {
		return ErrNotConnected
	}
	chatID, threadID, err := ParseDestination(dest)
	if err != nil {
		return err
	}
	to := &tele.Chat{ID: chatID}
	opts := &tele.SendOptions{ThreadID: threadID, DisableWebPagePreview: true}
	if p.Format == transport.FormatHTML {
		opts.ParseMode = tele.ModeHTML
	}

	media, trailing := buildSendable(p)
	if media != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.Send(to, media, opts); err != nil {
			return err
		}
	}
	for _, chunk := range trailing {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.Send(to, chunk, opts); err != nil {
			return err
		}
	}
	return nil
}

// buildSendable returns the media object to send (nil for text) and the text
// chunks that follow it. Captions over the Bot API limit move into the text.
func buildSendable(p transport.Payload) (any, []string) {
	caption := p.Caption
	var extra string
	if len([]rune(caption)) > captionLimit {
		extra, caption = caption, ""
	}
	file := tele.FromReader(bytes.NewReader(p.Data))

	var media any
	switch p.Kind {
	case transport.PayloadText:
		return nil, splitText(p.Text, textLimit, p.Format == transport.FormatHTML)
	case transport.PayloadImage:
		media = &tele.Photo{File: file, Caption: caption}
	case transport.PayloadVideo:
		media = &tele.Video{File: file, Caption: caption, FileName: p.FileName, MIME: p.MIMEType}
	case transport.PayloadAudio:
		media = &tele.Audio{File: file, Caption: caption, FileName: p.FileName, MIME: p.MIMEType}
	default:
		media = &tele.Document{File: file, Caption: caption, FileName: p.FileName, MIME: p.MIMEType}
	}
	if extra == "" {
		return media, nil
	}
	return media, splitText(extra, textLimit, p.Format == transport.FormatHTML)
}
