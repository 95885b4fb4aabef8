// Package report sends the session status to a chat on a cron schedule.
package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wafa/internal/commands"
	"wafa/internal/markdown"
	"wafa/internal/session"
	"wafa/pkg/logx"
)

type Session interface {
	Send(ctx context.Context, dest, text string, att *session.Attachment) error
	Status() session.Status
	Health() error
}

type Config struct {
	// Schedule is a 5-field cron spec or a descriptor ("@hourly",
	// "@every 30m").
	Schedule    string
	Destination string
	Timezone    string
	// Timeout bounds one send. Zero means 30s.
	Timeout time.Duration
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Service struct {
	cfg  Config
	sess Session
	md   *markdown.Renderer
	log  logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

// New validates cfg. Status lines go through md like command replies; a nil
// md sends them as is.
func New(cfg Config, sess Session, md *markdown.Renderer, log logx.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Destination) == "" {
		return nil, errors.New("report: destination is required")
	}
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, sess: sess, md: md, log: log.With(logx.String("comp", "report"))}, nil
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.location()),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.RunOnce(context.WithoutCancel(ctx)) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("service started", logx.String("schedule", s.cfg.Schedule), logx.String("destination", s.cfg.Destination))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped")
}

// RunOnce sends one status line.
func (s *Service) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	line := s.md.Render(commands.StatusLine(s.sess.Status(), s.sess.Health()))
	if err := s.sess.Send(ctx, s.cfg.Destination, line, nil); err != nil {
		s.log.Warn("status report failed", logx.Err(err))
		return err
	}
	s.log.Debug("status report sent")
	return nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
