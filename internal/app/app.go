// Package app wires configuration, storage, delivery, generation and the
// dispatch/trigger pipeline into one runnable daemon.
package app

import (
	"context"
	"fmt"
	"time"

	"remindd/internal/config"
	"remindd/internal/delivery"
	"remindd/internal/dispatch"
	"remindd/internal/eventbus"
	"remindd/internal/genai"
	"remindd/internal/lifecycle"
	"remindd/internal/reminder"
	"remindd/internal/runtime/supervisor"
	"remindd/internal/store"
	"remindd/internal/trigger"
	"remindd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  store.Store
	lc     *lifecycle.Service
	router *delivery.Router
	gen    genai.Generator
	disp   *dispatch.Dispatcher
	trig   *trigger.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	router := delivery.NewRouter(delivery.Config{
		RatePerSec: cfg.Delivery.RatePerSec,
	}, log.With(logx.String("comp", "delivery")), bus)
	router.Register(reminder.ChannelLog, delivery.NewLog(log.With(logx.String("comp", "delivery.log"))))
	if tc := cfg.Telegram; tc != nil && tc.Enabled {
		tg, err := delivery.NewTelegram(delivery.TelegramConfig{
			Token:   tc.Token,
			Offline: tc.Offline,
		}, log.With(logx.String("comp", "delivery.telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram sender: %w", err)
		}
		router.Register(reminder.ChannelTelegram, tg)
	}
	if wc := cfg.Webhook; wc != nil && wc.Enabled {
		timeout, err := config.ParseDurationField("webhook.timeout", wc.Timeout)
		if err != nil {
			return nil, err
		}
		router.Register(reminder.ChannelWebhook, delivery.NewWebhook(delivery.WebhookConfig{
			Timeout: timeout,
		}, log.With(logx.String("comp", "delivery.webhook"))))
	}

	gen, err := buildGenerator(cfg, log)
	if err != nil {
		return nil, err
	}

	fallback := cfg.Delivery.FallbackChannel
	if fallback == "" {
		fallback = string(reminder.ChannelLog)
	}
	lc := lifecycle.New(lifecycle.Config{
		FallbackChannel: reminder.Channel{
			Type:    reminder.ChannelType(fallback),
			Enabled: true,
		},
	}, st, log.With(logx.String("comp", "lifecycle")), bus)

	disp := dispatch.New(dispatch.Config{
		ErrorRateThreshold: cfg.Dispatch.ErrorRateThreshold,
		HistorySize:        cfg.Dispatch.HistorySize,
	}, st, log.With(logx.String("comp", "dispatch")), bus)

	if err := registerHandlers(cfg, disp, st, lc, router, gen, log); err != nil {
		return nil, err
	}

	taskTimeout, err := config.ParseDurationField("trigger.task_timeout", cfg.Trigger.TaskTimeout)
	if err != nil {
		return nil, err
	}
	trig := trigger.New(trigger.Config{
		Enabled:  cfg.Trigger.Enabled,
		Timezone: cfg.Trigger.Timezone,
		Timeout:  taskTimeout,
	}, disp, log.With(logx.String("comp", "trigger")))

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		lc:      lc,
		router:  router,
		gen:     gen,
		disp:    disp,
		trig:    trig,
	}
	if err := a.registerSchedules(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Lifecycle exposes the reminder lifecycle service for embedding callers
// (tests, future command surfaces).
func (a *App) Lifecycle() *lifecycle.Service { return a.lc }

func (a *App) Dispatcher() *dispatch.Dispatcher { return a.disp }

func (a *App) Trigger() *trigger.Service { return a.trig }

// Done is closed when the app supervisor context is canceled.
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

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		// Schedule syntax is only checked at registration; reject it here so a
		// bad hot-reload never reaches the trigger.
		for name, t := range cfg.Tasks {
			if !t.Enabled {
				continue
			}
			if _, err := trigger.ParseSchedule(t.Schedule); err != nil {
				return fmt.Errorf("tasks.%s: %w", name, err)
			}
		}
		return nil
	})

	a.trig.Start(a.sup.Context())

	// Debug visibility into lifecycle/delivery events.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig applies the hot-reloadable subset: logging, trigger timezone and
// task schedules. Storage, channel and generator changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	taskTimeout, err := config.ParseDurationField("trigger.task_timeout", cfg.Trigger.TaskTimeout)
	if err != nil {
		a.log.Warn("invalid trigger config; keeping previous", logx.Err(err))
		return
	}
	a.trig.Apply(trigger.Config{
		Enabled:  cfg.Trigger.Enabled,
		Timezone: cfg.Trigger.Timezone,
		Timeout:  taskTimeout,
	})
	if err := a.registerSchedules(cfg); err != nil {
		a.log.Warn("schedule reload failed; keeping previous", logx.Err(err))
		return
	}
	a.log.Info("config reloaded")
}

// registerSchedules syncs the trigger's schedule set with cfg.Tasks.
func (a *App) registerSchedules(cfg *config.Config) error {
	for name, t := range cfg.Tasks {
		if !t.Enabled {
			a.trig.Remove(name)
			continue
		}
		timeout, err := config.ParseDurationField("tasks."+name+".timeout", t.Timeout)
		if err != nil {
			return err
		}
		params, err := taskParams(name, t)
		if err != nil {
			return err
		}
		if err := a.trig.Add(trigger.Def{
			Name:     name,
			Type:     dispatch.TaskType(name),
			Schedule: t.Schedule,
			Timeout:  timeout,
			Params:   params,
		}); err != nil {
			return err
		}
	}
	return nil
}

func taskParams(name string, t config.TaskConfig) (dispatch.Params, error) {
	switch dispatch.TaskType(name) {
	case dispatch.TaskCheckIn:
		tol, err := config.ParseDurationField("tasks.check_in.tolerance", t.Tolerance)
		if err != nil {
			return nil, err
		}
		return dispatch.CheckInParams{Tolerance: tol}, nil
	case dispatch.TaskSweep:
		return dispatch.SweepParams{Limit: t.Limit}, nil
	case dispatch.TaskDigest:
		period, err := config.ParseDurationField("tasks.digest.period", t.Period)
		if err != nil {
			return nil, err
		}
		return dispatch.DigestParams{Period: period}, nil
	case dispatch.TaskMaintenance:
		return dispatch.MaintenanceParams{Routine: dispatch.MaintenanceRoutine(t.Routine)}, nil
	case dispatch.TaskEngagement:
		inactive, err := config.ParseDurationField("tasks.engagement.inactive_for", t.InactiveFor)
		if err != nil {
			return nil, err
		}
		return dispatch.EngagementParams{InactiveFor: inactive}, nil
	default:
		return nil, fmt.Errorf("tasks.%s: unknown task type", name)
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bounded shutdown steps so one component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("trigger", 2*time.Second, func(c context.Context) error { a.trig.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Stop(c) })
	step("store", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func buildGenerator(cfg *config.Config, log logx.Logger) (genai.Generator, error) {
	gc := cfg.GenAI
	if gc == nil || gc.Provider == "" || gc.Provider == "template" {
		return genai.NewTemplate(), nil
	}
	switch gc.Provider {
	case "deepseek":
		return genai.NewDeepSeek(genai.DeepSeekConfig{
			APIKey:    gc.APIKey,
			Model:     gc.Model,
			MaxTokens: gc.MaxTokens,
		}, log.With(logx.String("comp", "genai")))
	default:
		return nil, fmt.Errorf("genai.provider: unknown provider %q", gc.Provider)
	}
}

func registerHandlers(cfg *config.Config, disp *dispatch.Dispatcher, st store.Store,
	lc *lifecycle.Service, router *delivery.Router, gen genai.Generator, log logx.Logger) error {

	batchSize := cfg.Dispatch.BatchSize
	expireAfter, err := config.ParseDurationField("dispatch.expire_after", cfg.Dispatch.ExpireAfter)
	if err != nil {
		return err
	}
	execRetention, err := config.ParseDurationField("dispatch.execution_retention", cfg.Dispatch.ExecutionRetention)
	if err != nil {
		return err
	}
	remRetention, err := config.ParseDurationField("dispatch.reminder_retention", cfg.Dispatch.ReminderRetention)
	if err != nil {
		return err
	}

	disp.Register(dispatch.NewSweepHandler(dispatch.SweepConfig{
		BatchSize:   batchSize,
		ExpireAfter: expireAfter,
	}, st, lc, router, log.With(logx.String("task", "reminder_sweep"))))
	disp.Register(dispatch.NewCheckInHandler(dispatch.CheckInConfig{
		BatchSize: batchSize,
	}, st, gen, router, log.With(logx.String("task", "check_in"))))
	disp.Register(dispatch.NewDigestHandler(dispatch.DigestConfig{
		BatchSize: batchSize,
	}, st, gen, router, log.With(logx.String("task", "digest"))))
	disp.Register(dispatch.NewMaintenanceHandler(dispatch.MaintenanceConfig{
		ExecutionRetention: execRetention,
		ReminderRetention:  remRetention,
	}, st, disp.History(), log.With(logx.String("task", "maintenance"))))
	disp.Register(dispatch.NewEngagementHandler(dispatch.EngagementConfig{
		BatchSize: batchSize,
	}, st, gen, router, log.With(logx.String("task", "engagement"))))
	return nil
}
