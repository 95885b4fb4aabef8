// Package gateway is the HTTP surface: it accepts notifications, fans them
// out to chats through the session and reports health.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"wafa/internal/markdown"
	"wafa/internal/observability"
	"wafa/internal/session"
	"wafa/pkg/logx"
)

// Sender is the part of the session the gateway needs.
type Sender interface {
	Send(ctx context.Context, dest, text string, att *session.Attachment) error
	Health() error
}

type Options struct {
	Addr            string
	MaxBodySize     int64
	RatePerSec      int
	SendConcurrency int
	// MetricsPath serves Prometheus metrics when non-empty.
	MetricsPath     string
	ShutdownTimeout time.Duration
}

type Server struct {
	opts    Options
	sender  Sender
	md      *markdown.Renderer
	log     logx.Logger
	engine  *gin.Engine
	limiter *rate.Limiter

	mu   sync.Mutex
	addr string
}

func New(sender Sender, md *markdown.Renderer, opts Options, log logx.Logger) *Server {
	if opts.SendConcurrency <= 0 {
		opts.SendConcurrency = 8
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		opts:   opts,
		sender: sender,
		md:     md,
		log:    log.With(logx.String("comp", "gateway")),
	}
	if opts.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(
		gin.CustomRecovery(s.recover),
		observability.RequestID(),
		observability.RequestLogger(s.log),
		observability.RequestMetrics(),
	)
	r.NoRoute(func(c *gin.Context) {
		abortProblem(c, Problem{
			Type:   "not-found",
			Title:  "Not found",
			Detail: "No route for " + c.Request.Method + " " + c.Request.URL.Path,
			Status: http.StatusNotFound,
		})
	})

	r.GET("/health", s.handleHealth)
	r.POST("/", s.rateLimit, s.limitBody, s.handleNotify)
	if p := strings.TrimSpace(s.opts.MetricsPath); p != "" {
		observability.RegisterMetrics()
		r.GET(p, gin.WrapH(promhttp.Handler()))
	}
	return r
}

func (s *Server) recover(c *gin.Context, rec any) {
	s.log.Error("handler panic", logx.Any("panic", rec), logx.String("path", c.Request.URL.Path))
	abortProblem(c, unknownProblem)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Addr is the bound listen address while Run is serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	s.mu.Lock()
	s.addr = ""
	s.mu.Unlock()
	s.log.Info("stopped")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
