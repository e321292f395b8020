package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"agentcron/internal/config"
	"agentcron/internal/cron"
	"agentcron/internal/cron/delivery"
	"agentcron/internal/cron/store"
	"agentcron/internal/eventbus"
	"agentcron/internal/observability/debugsrv"
	"agentcron/internal/runtime/supervisor"
	"agentcron/internal/transport/telegram"
	logx "agentcron/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    *store.Store
	runtime  *Runtime
	router   *delivery.Router
	telegram *telegram.Sender // nil when the telegram section is absent
	cron     *cron.Service
	debug    *debugsrv.Server
}

type Option func(*options)

type options struct {
	backend cron.Backend
	now     func() time.Time
}

// WithBackend replaces the built-in runtime as the job executor.
func WithBackend(b cron.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithClock overrides the scheduler clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	cronCfg, _ := mapCronConfig(cfg)
	storeCfg, _ := mapStoreConfig(cfg)
	delivCfg, _ := mapDeliveryConfig(cfg)

	st, err := store.Open(storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	rt := NewRuntime(bus, log.With(logx.String("comp", "runtime")))

	announcers := map[string]delivery.Announcer{}
	var tg *telegram.Sender
	if tgCfg, ok, _ := mapTelegramConfig(cfg); ok {
		tg, err = telegram.New(tgCfg, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = st.Close()
			logSvc.Close()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		announcers["telegram"] = tg
	}

	router := delivery.New(delivCfg, delivery.Deps{
		Events:     rt,
		Heartbeat:  rt,
		Announcers: announcers,
	}, log.With(logx.String("comp", "delivery")))

	var backend cron.Backend = rt
	if o.backend != nil {
		backend = o.backend
	}
	cronSvc, err := cron.New(cronCfg, cron.Deps{
		Store:   st,
		Backend: backend,
		Router:  router,
		Bus:     bus,
		Now:     o.now,
	}, log.With(logx.String("comp", "cron")))
	if err != nil {
		_ = st.Close()
		logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    st,
		runtime:  rt,
		router:   router,
		telegram: tg,
		cron:     cronSvc,
		debug:    debugsrv.New(mapDebugConfig(cfg), cronSvc, log.With(logx.String("comp", "debug"))),
	}, nil
}

// Cron exposes the job API to embedders.
func (a *App) Cron() *cron.Service { return a.cron }

// Bus is the event bus carrying run and runtime events.
func (a *App) Bus() eventbus.Bus { return a.bus }

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
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.cron.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("cron: %w", err)
	}

	a.debug.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if config.StorageChanged(oldCfg, newCfg) {
		a.log.Warn("cron store config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if cc, err := mapCronConfig(newCfg); err != nil {
		a.log.Warn("invalid cron config; keeping previous", logx.Err(err))
	} else {
		a.cron.Apply(cc)
	}
	if dc, err := mapDeliveryConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.router.Apply(dc)
	}

	a.debug.Reconfigure(a.sup.Context(), mapDebugConfig(newCfg))

	switch tc, ok, err := mapTelegramConfig(newCfg); {
	case err != nil:
		a.log.Warn("invalid telegram config; keeping previous", logx.Err(err))
	case ok && a.telegram != nil:
		a.telegram.Apply(tc)
	case ok != (a.telegram != nil):
		a.log.Warn("telegram section added or removed; restart required for changes to take effect")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step runs one shutdown step bounded by max so a stuck component can't
	// stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("debug", time.Second, a.debug.Stop)
	step("cron", 2*time.Second, a.cron.Stop)
	// Wait for run goroutines to exit; results landing after Stop are discarded.
	step("cron.runs", 5*time.Second, a.cron.Wait)
	step("store", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
