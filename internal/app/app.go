package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"wcnotice/internal/config"
	"wcnotice/internal/console"
	"wcnotice/internal/dispatch"
	"wcnotice/internal/engine"
	"wcnotice/internal/eventbus"
	"wcnotice/internal/runtime/supervisor"
	"wcnotice/internal/schedule"
	"wcnotice/internal/storage"
	"wcnotice/internal/tray"
	logx "wcnotice/pkg/logx"
	"wcnotice/pkg/systemd"
)

// Options are the command-line overrides on top of the settings file.
type Options struct {
	SettingsPath string
	SchedulePath string
	LogLevel     string
	NoTray       bool
	NoConsole    bool

	// In and Out default to stdin and stdout.
	In  io.Reader
	Out io.Writer
	// TrayDriver defaults to the systray driver.
	TrayDriver tray.Driver
}

type App struct {
	opts     Options
	settings config.Settings
	durs     config.Durations

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	schedStore *config.ScheduleStore
	saver      *config.Saver
	watcher    *config.Watcher
	cfg        schedule.AppConfig

	disp   *dispatch.Dispatcher
	engine *engine.Engine
	bridge *tray.Bridge

	sup *supervisor.Supervisor

	quitOnce sync.Once
	quit     chan struct{}
	unsubs   []func()
}

func NewApp(opts Options) (*App, error) {
	settings, err := config.LoadSettings(opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.LogLevel) != "" {
		settings.Logging.Level = opts.LogLevel
	}
	if strings.TrimSpace(opts.SchedulePath) != "" {
		settings.Schedule.Path = opts.SchedulePath
	}
	if opts.NoTray {
		settings.Tray.Enabled = false
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	durs, err := settings.Durations()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:       settings.Logging.Level,
		Console:     settings.Logging.Console,
		Interactive: !opts.NoConsole,
		File: logx.FileConfig{
			Enabled: settings.Logging.File.Enabled,
			Path:    settings.Logging.File.Path,
		},
	})
	appLog := log.With(logx.Component("app"))

	bus := eventbus.New()

	// Trigger history (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(settings); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		appLog.Info("history enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	schedPath, err := settings.SchedulePath()
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("locate schedule: %w", err)
	}
	schedStore := config.NewScheduleStore(schedPath, log)
	cfg, err := schedStore.Load()
	if err != nil {
		// Keep running on the in-memory default; the next edit retries the write.
		appLog.Warn("default schedule not persisted", logx.Err(err))
	}

	disp := dispatch.New(newPlayer(settings, log, appLog), newBanner(settings, appLog),
		dispatch.WithLogger(log),
		dispatch.WithBus(bus),
		dispatch.WithQueueSize(settings.Audio.QueueSize),
		dispatch.WithPlayTimeout(durs.PlayTimeout),
	)

	engOpts := []engine.Option{engine.WithLogger(log), engine.WithBus(bus)}
	if store != nil {
		engOpts = append(engOpts, engine.WithHistory(store))
	}
	eng := engine.New(cfg.Clone(), disp, engOpts...)

	return &App{
		opts:       opts,
		settings:   settings,
		durs:       durs,
		log:        appLog,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		schedStore: schedStore,
		saver:      config.NewSaver(schedStore, durs.SaveDebounce, log, bus),
		watcher:    config.NewWatcher(schedStore, log, bus),
		cfg:        cfg,
		disp:       disp,
		engine:     eng,
		bridge:     tray.NewBridge(),
		quit:       make(chan struct{}),
	}, nil
}

// newPlayer returns nil when audio is off or no player is installed.
func newPlayer(s config.Settings, log, appLog logx.Logger) dispatch.Player {
	if !s.Audio.Enabled {
		appLog.Info("audio disabled")
		return nil
	}
	p, err := dispatch.NewCommandPlayer(s.Audio.Command, log)
	if err != nil {
		appLog.Warn("audio unavailable; banners only", logx.Err(err))
		return nil
	}
	appLog.Info("audio player selected", logx.String("command", strings.Join(p.Command(), " ")))
	return p
}

// newBanner combines the configured banner sinks; nil when there are none.
func newBanner(s config.Settings, appLog logx.Logger) dispatch.Banner {
	var sinks dispatch.MultiBanner
	if s.Banner.Desktop.Enabled {
		b, err := dispatch.NewCommandBanner(s.Banner.Desktop.Command)
		if err != nil {
			appLog.Warn("desktop banners unavailable", logx.Err(err))
		} else {
			sinks = append(sinks, b)
		}
	}
	if t := s.Banner.Telegram; t.Enabled {
		b, err := dispatch.NewTelegramBanner(dispatch.TelegramConfig{
			Token:      t.Token,
			ChatID:     t.ChatID,
			ThreadID:   t.ThreadID,
			RatePerSec: t.RatePerSec,
		})
		if err != nil {
			appLog.Warn("telegram banners unavailable", logx.Err(err))
		} else {
			sinks = append(sinks, b)
			appLog.Info("telegram banners enabled", logx.Int64("chat_id", t.ChatID))
		}
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

// Done is closed once the user asked to quit (console or tray).
func (a *App) Done() <-chan struct{} { return a.quit }

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) requestQuit() { a.quitOnce.Do(func() { close(a.quit) }) }

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.disp.Start(a.sup)
	a.sup.GoRestart("engine", a.engine.Run)
	a.sup.GoRestart("engine.history", a.engine.RunHistory)

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.unsubs = append(a.unsubs, unsub)
		a.sup.Go0("eventbus.log", func(c context.Context) {
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
	}

	trayUp := false
	if a.settings.Tray.Enabled {
		d := a.opts.TrayDriver
		if d == nil {
			d = tray.NewSystrayDriver()
		}
		trayUp = tray.Start(a.sup.Context(), d, a.bridge, a.log, a.durs.TrayInit)
	}

	conOpts := []console.Option{
		console.WithLogger(a.log),
		console.WithSaver(a.saver),
		console.WithBridge(a.bridge),
		console.WithGraceFrames(a.settings.Tray.GraceFrames),
		console.WithHealth(a.sup.Stats),
	}
	if a.store != nil {
		conOpts = append(conOpts, console.WithHistory(a.store))
	}
	if !a.opts.NoConsole {
		conOpts = append(conOpts, console.WithInput(a.opts.In))
	}
	if a.settings.Schedule.Watch {
		updates, unsub := a.watcher.Subscribe(4)
		a.unsubs = append(a.unsubs, unsub)
		conOpts = append(conOpts, console.WithUpdates(updates))
		a.watcher.Supersedes(a.saver)
		a.sup.GoRestart("schedule.watch", a.watcher.Watch)
	}
	con := console.New(a.cfg, a.engine, a.opts.Out, conOpts...)
	a.sup.Go("console", func(c context.Context) error {
		err := con.Run(c)
		if c.Err() == nil {
			a.requestQuit()
		}
		return err
	})

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, func() bool { return a.sup.Err() == nil })
	})
	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		_, _ = systemd.Status("watching " + a.schedStore.Path())
	}

	a.log.Info("app started",
		logx.String("schedule", a.schedStore.Path()),
		logx.Bool("tray", trayUp),
		logx.Bool("console", !a.opts.NoConsole),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	}

	a.sup.Cancel()

	// step bounds one shutdown action so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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

	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("schedule", 2*time.Second, func(context.Context) error { return a.saver.Flush() })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	for _, unsub := range a.unsubs {
		unsub()
	}

	a.log.Info("stopped", logx.Int("schedule_writes", a.saver.Writes()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
