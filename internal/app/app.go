package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"wafa/internal/commands"
	"wafa/internal/config"
	"wafa/internal/eventbus"
	"wafa/internal/gateway"
	"wafa/internal/markdown"
	"wafa/internal/observability"
	"wafa/internal/report"
	"wafa/internal/runtime/supervisor"
	"wafa/internal/session"
	"wafa/internal/storage"
	"wafa/internal/transport/telegram"
	"wafa/pkg/logx"
)

type App struct {
	version string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store *storage.CredentialStore
	sess  *session.Manager
	md    *markdown.Renderer
	gw    *gateway.Server
	cmds  *commands.Dispatcher
	rep   *report.Service
	sd    sdNotifier

	stopTracing func(context.Context) error
}

func New(cfgPath, version string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Chat logging needs the session as its sender, so bootstrap without it
	// and Apply the final config once the session exists.
	bootLogCfg := mapLogConfig(cfg)
	bootLogCfg.Chat.Enabled = false
	logSvc, root := logx.New(bootLogCfg)
	log := root.With(logx.String("comp", "app"))

	gin.SetMode(gin.ReleaseMode)
	bus := eventbus.New()

	store, err := OpenStore(cfg, root)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return fail(err)
	}
	dialer, err := telegram.NewDialer(tcfg, root)
	if err != nil {
		return fail(err)
	}

	scfg, err := mapSessionConfig(cfg)
	if err != nil {
		return fail(err)
	}
	sess := session.New(scfg, dialer, store, bus, root)

	mdEnabled, dialect, format := mapMarkdown(cfg)
	md := markdown.NewRenderer(mdEnabled, dialect)
	sess.SetFormat(format)

	gopts, err := mapGatewayOptions(cfg)
	if err != nil {
		return fail(err)
	}
	gw := gateway.New(sess, md, gopts, root)

	cmds := commands.New(sess, md, root)
	cmds.SetEnabled(cfg.Commands.Enabled)

	var rep *report.Service
	if cfg.Report.Enabled {
		rep, err = report.New(mapReportConfig(cfg), sess, md, root)
		if err != nil {
			return fail(err)
		}
	}

	logSvc.SetSender(sess)
	logSvc.Apply(mapLogConfig(cfg))

	return &App{
		version: version,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		sess:    sess,
		md:      md,
		gw:      gw,
		cmds:    cmds,
		rep:     rep,
		sd:      sdNotifier{enabled: cfg.Systemd.Notify, log: log},
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if _, err := mapStorageConfig(c); err != nil {
			return err
		}
		if _, err := mapTelegramConfig(c); err != nil {
			return err
		}
		if _, err := mapSessionConfig(c); err != nil {
			return err
		}
		_, err := mapGatewayOptions(c)
		return err
	})

	stopTracing, err := observability.InitTracing(ctx, mapTracingConfig(cfg, a.version))
	if err != nil {
		a.log.Warn("tracing disabled", logx.Err(err))
	}
	a.stopTracing = stopTracing
	if cfg.Metrics.Enabled {
		observability.RegisterMetrics()
	}

	// Subscribe before the session starts so nothing it publishes early is
	// lost.
	inbound, unsubInbound := a.bus.Subscribe(64)
	events, unsub := a.bus.Subscribe(128)

	if err := a.sess.Start(a.sup.Context()); err != nil {
		unsubInbound()
		unsub()
		return err
	}

	a.sup.Go("gateway", a.gw.Run)
	a.sup.Go("commands", func(c context.Context) error {
		defer unsubInbound()
		return a.cmds.Run(c, inbound)
	})
	if a.rep != nil {
		if err := a.rep.Start(a.sup.Context()); err != nil {
			unsub()
			return err
		}
	}

	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type))
				if ch, ok := e.Data.(session.StatusChange); ok {
					a.sd.Status("session " + ch.To.String())
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.Ready()
	a.log.Info("app started", logx.String("version", a.version))
	return nil
}

// applyConfig hot-applies the live sections and flags the rest.
func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.Diff(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	mdEnabled, dialect, format := mapMarkdown(next)
	a.md.Set(mdEnabled, dialect)
	a.sess.SetFormat(format)
	a.cmds.SetEnabled(next.Commands.Enabled)

	if len(ch.Restart) > 0 {
		a.log.Warn("config changed; restart required for these sections", logx.String("sections", strings.Join(ch.Restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("report", 2*time.Second, func(c context.Context) error {
		if a.rep != nil {
			a.rep.Stop(c)
		}
		return nil
	})
	step("session", 3*time.Second, a.sess.Stop)
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("tracing", 2*time.Second, func(c context.Context) error {
		if a.stopTracing != nil {
			return a.stopTracing(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	if err := a.sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Logout wipes the credential store so the next start pairs again.
func Logout(ctx context.Context, cfgPath string) error {
	cfg, err := config.NewConfigManager(cfgPath).Load()
	if err != nil {
		return err
	}
	log := logx.NewConsole(cfg.Logging.Level)
	store, err := OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Clear(ctx); err != nil {
		return err
	}
	log.Info("credential store cleared", logx.String("driver", cfg.Storage.Driver))
	return nil
}
