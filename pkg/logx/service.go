package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig forwards log lines at or above MinLevel to a chat destination.
type ChatConfig struct {
	Enabled     bool
	Destination string
	MinLevel    string
	RatePerSec  int
}

// Sender delivers a plain text line to a chat destination.
type Sender interface {
	SendText(ctx context.Context, destination, text string) error
}

// Service owns the active sinks. Apply swaps them without invalidating
// loggers handed out earlier.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger
	file *os.File

	sender     atomic.Value // senderBox
	queue      chan chatLine
	workerOnce sync.Once
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// guarded by mu
	destination string
	limiter     *rate.Limiter
	minLevel    zerolog.Level
}

type senderBox struct{ s Sender }

type chatLine struct {
	to   string
	text string
}

// New applies cfg and returns the service with its root logger.
func New(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{queue: make(chan chatLine, 256)}
	s.root.Store(zerolog.New(consoleWriter(Stdout())).
		Level(ParseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() zerolog.Logger {
	if zl, ok := s.root.Load().(zerolog.Logger); ok {
		return zl
	}
	return zerolog.Nop()
}

// SetSender attaches the chat sink transport. Until it is set, chat lines are
// dropped.
func (s *Service) SetSender(sender Sender) {
	s.sender.Store(senderBox{s: sender})
}

func (s *Service) loadSender() Sender {
	b, _ := s.sender.Load().(senderBox)
	return b.s
}

// Apply swaps outputs and levels. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.destination = strings.TrimSpace(cfg.Chat.Destination)
	s.minLevel = ParseLevel(cfg.Chat.MinLevel, LevelWarn)
	rps := cfg.Chat.RatePerSec
	if rps < 1 {
		rps = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, consoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./wafa.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: open log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Chat.Enabled {
		s.workerOnce.Do(s.startWorker)
		writers = append(writers, &chatWriter{svc: s})
		if s.destination == "" {
			fmt.Fprintln(Stderr(), "logx: chat sink enabled without a destination")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level, LevelInfo)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// startWorker runs with s.mu held (called from Apply).
func (s *Service) startWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case line := <-s.queue:
				if sender := s.loadSender(); sender != nil {
					_ = sender.SendText(ctx, line.to, line.text)
				}
			}
		}
	}()
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

// Stdout returns the console sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the diagnostics sink.
func Stderr() io.Writer { return os.Stderr }
