// Package app wires the responder: config, logging, the Discord adapter,
// the router and the optional operator services.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"badlionbot/internal/config"
	"badlionbot/internal/eventbus"
	"badlionbot/internal/metrics"
	"badlionbot/internal/observability/debugserver"
	"badlionbot/internal/ratelimit"
	"badlionbot/internal/router"
	rtsup "badlionbot/internal/runtime/supervisor"
	"badlionbot/internal/status"
	"badlionbot/internal/storage"
	kit "badlionbot/internal/transport"
	"badlionbot/internal/transport/discord"
	logx "badlionbot/pkg/logx"
	"badlionbot/pkg/systemd"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type Option func(*App)

// WithAdapter replaces the Discord adapter (tests, alternative platforms).
func WithAdapter(ad kit.Adapter) Option { return func(a *App) { a.adapter = ad } }

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	sup  *rtsup.Supervisor
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter
	limiter *ratelimit.Counter
	router  *router.Router

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	debug    *debugserver.Service
	status   *status.Reporter

	updates   chan kit.Update
	startedAt time.Time
}

// New builds the app from an already loaded config manager.
func New(cfgm *config.ConfigManager, opts ...Option) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	a := &App{cfgm: cfgm, cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// The Discord log sink stays off until the adapter exists.
	bootCfg := cfg.Logging.Logx()
	bootCfg.Discord.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))

	if a.adapter == nil {
		ad, err := discord.New(discord.Config{
			Token:         cfg.Discord.Token,
			MembersIntent: cfg.MembersIntent(),
		}, log.With(logx.String("comp", "discord")))
		if err != nil {
			return nil, err
		}
		a.adapter = ad
	}
	logSvc.SetSender(a.adapter)
	logSvc.Apply(cfg.Logging.Logx())

	a.bus = eventbus.New()
	a.limiter = ratelimit.New(cfg.Responder.SpamLimit)
	a.router = router.New(a.adapter, router.Options{
		Mode:      cfg.Mode(),
		Limiter:   a.limiter,
		Workers:   cfg.Responder.Workers,
		QueueSize: cfg.Responder.QueueSize,
		Bus:       a.bus,
		Log:       log.With(logx.String("comp", "router")),
	})

	if cfg.Storage != nil {
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: cfg.Storage.BusyTimeoutOrDefault(),
		}, log.With(logx.String("comp", "storage")))
		switch {
		case errors.Is(err, storage.ErrDisabled):
		case err != nil:
			return nil, fmt.Errorf("storage: %w", err)
		default:
			a.store = st
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry, a.limiter)

	a.debug = debugserver.New(debugConfig(cfg), log.With(logx.String("comp", "debugserver")),
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), a.health)
	a.status = status.New(log.With(logx.String("comp", "status")), a.statusReport,
		status.WithNotify(func(line string) {
			if _, err := systemd.Status(line); err != nil {
				a.log.Debug("systemd status failed", logx.Err(err))
			}
		}))

	a.updates = make(chan kit.Update, cfg.Responder.QueueSize)
	return a, nil
}

func debugConfig(cfg *config.Config) debugserver.Config {
	read, write, idle := cfg.Debug.Timeouts()
	return debugserver.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}
}

// Logger is the root application logger.
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return status.ValidateSchedule(cfg.Status.Schedule)
	})
	if err := status.ValidateSchedule(a.cfg.Status.Schedule); err != nil {
		return err
	}

	a.subscribe("eventbus.log", 128, func(c context.Context, events <-chan eventbus.Event) {
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})
	a.subscribe("metrics.consume", 256, a.metrics.Consume)
	if a.store != nil {
		a.subscribe("storage.audit", 256, func(c context.Context, events <-chan eventbus.Event) {
			storage.RecordEvents(c, a.store, events, a.log.With(logx.String("comp", "storage")))
		}, "reply.", "delivery.")
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("router.run", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	a.debug.Start(a.sup.Context())
	if err := a.status.Reconfigure(a.cfg.Status.Schedule); err != nil {
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, newCfg)
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", systemd.Watchdog)

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	a.log.Info("app started",
		logx.String("mode", a.cfg.Mode().String()),
		logx.Int("spam_limit", a.limiter.Limit()),
		logx.Bool("storage", a.store != nil),
		logx.Bool("debug_server", a.cfg.Debug.Enabled),
	)
	return nil
}

func (a *App) subscribe(name string, buffer int, fn func(context.Context, <-chan eventbus.Event), prefixes ...string) {
	events, unsub := a.bus.Subscribe(buffer, prefixes...)
	a.sup.Go0(name, func(c context.Context) {
		defer unsub()
		fn(c, events)
	})
}

// applyConfig applies a reloaded config. Logging, the debug server and the
// status schedule change live; other sections wait for a restart.
func (a *App) applyConfig(ctx context.Context, newCfg *config.Config) {
	change := config.SummarizeConfigChange(a.cfg, newCfg)
	a.cfg = newCfg
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(newCfg.Logging.Logx())
	a.debug.Reconfigure(ctx, debugConfig(newCfg))
	if err := a.status.Reconfigure(newCfg.Status.Schedule); err != nil {
		a.log.Warn("status schedule rejected; keeping previous", logx.Err(err))
	}
	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
}

type health struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Mode       string          `json:"mode"`
	Limiter    ratelimit.Stats `json:"limiter"`
	Router     router.Stats    `json:"router"`
	Supervisor rtsup.Snapshot  `json:"supervisor"`
	Adapter    *rtsup.Snapshot `json:"adapter,omitempty"`
	BusDropped uint64          `json:"bus_dropped"`
}

func (a *App) health() (any, error) {
	h := health{
		Status:  "ok",
		Uptime:  time.Since(a.startedAt).Truncate(time.Second).String(),
		Mode:    a.router.Mode().String(),
		Limiter: a.limiter.Stats(),
		Router:  a.router.Stats(),

		BusDropped: a.bus.Dropped(),
	}
	var err error
	if a.sup != nil {
		h.Supervisor = a.sup.Snapshot()
		if err = a.sup.Err(); err != nil {
			h.Status = "degraded"
		}
	}
	if sp, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		if s := sp.Supervisor(); s != nil {
			snap := s.Snapshot()
			h.Adapter = &snap
		}
	}
	return h, err
}

func (a *App) statusReport() status.Report {
	return status.Report{
		Mode:    a.router.Mode().String(),
		Uptime:  time.Since(a.startedAt),
		Limiter: a.limiter.Stats(),
		Router:  a.router.Stats(),
	}
}

// Stop shuts everything down. Each step gets a bounded slice of ctx so one
// stuck component cannot hold the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.sup.Cancel()
	a.step(ctx, "status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	a.step(ctx, "debugserver", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.String("stats", a.router.Stats().String()))
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; no time left", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

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
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
