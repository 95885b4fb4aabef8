package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"wafa/internal/transport"
	"wafa/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	APIURL      string
}

// Dialer opens Telegram sockets.
type Dialer struct {
	cfg Config
	log logx.Logger
}

func NewDialer(cfg Config, log logx.Logger) (*Dialer, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dialer{cfg: cfg, log: log.With(logx.String("comp", "transport.telegram"))}, nil
}

// Dial returns a socket whose connection attempt runs in the background.
func (d *Dialer) Dial(ctx context.Context, auth transport.Auth) (transport.Socket, error) {
	if auth.Creds == nil || auth.Keys == nil {
		return nil, errors.New("telegram: credentials and key store are required")
	}
	s := newSocket(d.cfg, auth, d.log)
	go s.run(context.WithoutCancel(ctx))
	return s, nil
}
