package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lxpbot/internal/auth"
	"lxpbot/internal/bot"
	"lxpbot/internal/config"
	"lxpbot/internal/eventbus"
	"lxpbot/internal/lxp"
	"lxpbot/internal/metrics"
	"lxpbot/internal/notify"
	"lxpbot/internal/observability/httpserver"
	"lxpbot/internal/queue"
	"lxpbot/internal/ratelimit"
	"lxpbot/internal/reminder"
	rtsup "lxpbot/internal/runtime/supervisor"
	"lxpbot/internal/session"
	"lxpbot/internal/storage"
	"lxpbot/internal/task/scheduler"
	kit "lxpbot/internal/transport"
	telegram "lxpbot/internal/transport/telegram/adapter"
	"lxpbot/internal/transport/telegram/router"
	logx "lxpbot/pkg/logx"
)

const overloadNoticeTimeout = 5 * time.Second

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Metrics

	sessions  *session.Store
	flusher   *session.Flusher
	limiter   *ratelimit.Limiter
	queue     *queue.Serializer
	sched     *scheduler.Service
	reminders *reminder.Service
	auth      *auth.Manager
	adapter   kit.Adapter
	notifier  *notify.Service
	bot       *bot.Bot
	router    *router.Router
	obs       *httpserver.Server

	sweepSpec string
	updates   chan kit.Update
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: rt.PollTimeout,
	}, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a, err := build(cfgm, cfg, rt, logs, log, ad)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

// build wires components around an already constructed adapter.
func build(cfgm *config.ConfigManager, cfg *config.Config, rt config.Runtime, logs *logx.Service, log logx.Logger, ad kit.Adapter) (*App, error) {
	a := &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logs,
		bus:       eventbus.New(),
		metrics:   metrics.New(),
		adapter:   ad,
		sweepSpec: rt.SweepSpec,
		updates:   make(chan kit.Update, 256),
	}

	store, err := storage.Open(storageConfig(rt), log)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		a.log.Info("storage enabled", logx.String("driver", rt.StorageDriver), logx.String("path", rt.StoragePath))
	}
	a.store = store

	a.sessions = session.NewStore()
	a.flusher = session.NewFlusher(a.sessions, store, rt.FlushInterval, log, a.metrics)
	a.limiter = ratelimit.New(limiterConfig(rt), log, a.metrics)
	a.queue = queue.New(queueConfig(rt), log, a.metrics)
	a.sched = scheduler.New(schedulerConfig(rt), log)
	a.reminders = reminder.New(a.sched, log, a.metrics)

	upstream := lxp.New(lxpConfig(rt), log)
	a.auth = auth.NewManager(authConfig(rt), a.sessions, upstream, a.bus, log, a.metrics)
	a.notifier = notify.New(notifyConfig(rt, bot.MainKeyboard), ad, log, a.metrics)

	a.bot = bot.New(bot.Deps{
		Store:     a.sessions,
		Auth:      a.auth,
		Reminders: a.reminders,
		Upstream:  upstream,
		Notifier:  a.notifier,
		Bus:       a.bus,
		Location:  rt.Location,
		Log:       log,
	})
	// Runs on the dispatch path, so the send goes to its own goroutine.
	// The serializer throttles calls to one per several drops.
	a.queue.OnOverload = func(e queue.Entry) {
		if a.sup == nil {
			return
		}
		a.sup.Go0("queue.overload_notice", func(c context.Context) {
			nctx, cancel := context.WithTimeout(c, overloadNoticeTimeout)
			defer cancel()
			a.bot.OnOverload(nctx, e.UserID)
		})
	}

	var ropts []router.Option
	if mu, ok := ad.(kit.CommandMenuUpdater); ok {
		ropts = append(ropts, router.WithMenu(mu))
	}
	a.router = router.New(log, a.limiter, a.queue, a.notifier, ropts...)

	if oc, enabled := observabilityConfig(cfg); enabled {
		a.obs = httpserver.New(oc, a.metrics.Handler(), a.health, log)
	}
	return a, nil
}

func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	if a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	return nil
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
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	loadCtx, cancel := context.WithTimeout(runCtx, 10*time.Second)
	n, err := a.flusher.Load(loadCtx)
	cancel()
	if err != nil {
		// Persistence failures are never fatal; the bot starts empty.
		a.log.Error("session restore failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("sessions restored", logx.Int("count", n))
	}
	a.bot.RestoreReminders()

	if err := a.auth.RegisterSweep(a.sched, a.sweepSpec); err != nil {
		return fmt.Errorf("auth sweep: %w", err)
	}
	a.sched.Start(runCtx)
	for _, it := range a.sched.Snapshot().Schedules {
		if it.Name == auth.SweepJobName {
			a.log.Info("credential sweep scheduled", logx.String("spec", it.Spec), logx.Time("next", it.Next))
		}
	}
	a.queue.Start(runCtx)

	a.sup.Go("session.flush", a.flusher.Run)
	a.sup.Go("ratelimit.sweep", a.limiter.Run)
	if a.store != nil {
		a.sup.Go("audit", func(c context.Context) error {
			return eventbus.RunAudit(c, a.bus, a.store, a.log)
		})
	}
	a.sup.Go0("eventbus.log", a.logEvents)

	if a.obs != nil {
		if err := a.obs.Start(runCtx); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.router.SetCommands(runCtx, a.bot.Commands(), a.bot.TextHandler())
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("sessions", a.sessions.Len()), logx.Int("reminders", a.reminders.Count()))
	return nil
}

// logEvents mirrors bus traffic to debug logs.
func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.User(e.UserID), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	// Inbound first, so nothing new reaches the queue.
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("queue", 3*time.Second, a.queue.Stop)
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("observability", time.Second, func(c context.Context) error {
		if a.obs != nil {
			return a.obs.Stop(c)
		}
		return nil
	})
	// Waits for the final session flush and the audit writer.
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.String("reason", string(reason)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
