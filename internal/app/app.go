// Package app wires chimed's components together: config, logging, the
// store, run history, the notification pipeline and the scheduler.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chime/internal/actions"
	"chime/internal/config"
	"chime/internal/engine"
	"chime/internal/eventbus"
	"chime/internal/history"
	"chime/internal/notify"
	"chime/internal/runtime/supervisor"
	"chime/internal/scheduler"
	"chime/internal/store"
	"chime/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logsvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	store *store.Store
	hist  *history.Store
	notif *notify.Service
	sched *scheduler.Service

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logsvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a := &App{cfgPath: cfgPath, cfgm: cfgm, logsvc: logsvc, log: log}
	a.bus = eventbus.New()

	storeCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = store.Open(storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	histCfg, err := mapHistoryConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.hist, err = history.Open(histCfg, log.With(logx.String("comp", "history")))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	notifyCfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.notif = notify.New(notifyCfg,
		actions.LogTransport{Log: log.With(logx.String("comp", "notify"))},
		log.With(logx.String("comp", "notify")),
		a.bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.sched = scheduler.New(schedCfg, scheduler.Deps{
		Store:    a.store,
		Engine:   engine.New(log.With(logx.String("comp", "engine"))),
		Invoker:  actions.NewExecInvoker(log.With(logx.String("comp", "invoker"))),
		Resolver: actions.DirResolver{},
		Notifier: a.notif,
		Bus:      a.bus,
		History:  a.hist,
		Log:      log.With(logx.String("comp", "scheduler")),
	})

	return a, nil
}

// Scheduler exposes the task API for embedding hosts.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Bus exposes the event stream for embedding hosts.
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		// Mapping catches duration and zone problems the structural
		// check leaves to the components.
		if _, err := mapNotifyConfig(cfg); err != nil {
			return err
		}
		_, err := mapSchedulerConfig(cfg)
		return err
	})

	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.sched.Start(a.sup.Context())

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	updates := a.cfgm.Subscribe(1)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(updates)
		a.reloadLoop(c, updates)
	})
	a.sup.Go0("status.log", func(c context.Context) {
		a.statusLoop(c, 10*time.Minute)
	})

	a.log.Info("chimed started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("chimed stopping")

	a.sched.Stop(ctx)
	a.notif.Stop(ctx)
	if err := a.hist.Close(); err != nil {
		a.log.Error("history close failed", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("store close failed", logx.Err(err))
	}

	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}

	a.log.Info("chimed stopped")
	return a.logsvc.Close()
}

// reloadLoop applies validated config updates to the running components.
// Store and history paths cannot move at runtime; a change there logs a
// restart hint and keeps the old paths.
func (a *App) reloadLoop(ctx context.Context, updates <-chan *config.Config) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			changed, attrs := config.SummarizeChange(prev, cfg)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("sections", strings.Join(changed, ","))}, attrs...)...)

			a.logsvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})

			if ncfg, err := mapNotifyConfig(cfg); err == nil {
				a.notif.Apply(ncfg)
				if ncfg.Enabled {
					a.notif.Start(ctx)
				}
			}
			if scfg, err := mapSchedulerConfig(cfg); err == nil {
				a.sched.Apply(scfg)
			}

			if prev != nil && cfg.Store.Path != prev.Store.Path {
				a.log.Warn("store.path changed; restart required to take effect")
			}
			if prev != nil && historyPath(cfg) != historyPath(prev) {
				a.log.Warn("history.path changed; restart required to take effect")
			}
			prev = cfg
		}
	}
}

// statusLoop periodically logs a one-line summary of the scheduler state.
func (a *App) statusLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := a.sched.Stats()
			a.log.Info("status",
				logx.Int("tasks", st.Tasks),
				logx.Int("enabled", st.Enabled),
				logx.Int("jobs", st.Jobs))
		}
	}
}

func historyPath(cfg *config.Config) string {
	if cfg == nil || cfg.History == nil {
		return ""
	}
	return strings.TrimSpace(cfg.History.Path)
}
