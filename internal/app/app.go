package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"birdfeed/internal/config"
	"birdfeed/internal/poller"
	"birdfeed/internal/runtime/supervisor"
	"birdfeed/internal/storage"
	"birdfeed/internal/subs"
	"birdfeed/internal/transport"
	"birdfeed/internal/transport/telegram"
	"birdfeed/internal/twitter"
	"birdfeed/pkg/logx"
)

const defaultPollEvery = 2 * time.Minute

// App wires the bot together: chat transport, feed client, subscription
// manager and poller, all running under one supervisor that owns the
// shutdown protocol.
type App struct {
	cfgPath string

	log  logx.Logger
	logs *logx.Service

	db      *storage.DB
	subs    *subs.Manager
	feed    *twitter.Client
	adapter transport.Adapter
	poll    *poller.Poller

	cron *cron.Cron
	sup  *supervisor.Supervisor

	target  transport.ChatTarget
	every   time.Duration
	updates chan transport.Message

	stopOnce sync.Once
	stopErr  error
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	target := transport.ChatTarget{ChatID: cfg.Telegram.Chat}

	// Bootstrap logging with the chat sink disabled, point the sink at the
	// target chat, then apply the real config. Avoids a send attempt before
	// the target is known.
	logCfg := mapLogging(cfg.Logging)
	bootCfg := logCfg
	bootCfg.Chat.Enabled = false
	logs, log := logx.New(bootCfg, adapter)
	logs.SetChatTarget(target)
	logs.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	manager := subs.NewManager(db, logs.Logger().With(logx.String("comp", "subs")))

	minInterval, err := config.ParseDurationOrDefault("twitter.min_request_interval", cfg.Twitter.MinRequestInterval, time.Second)
	if err != nil {
		return nil, err
	}
	feed := twitter.New(twitter.Config{
		Credentials: twitter.Credentials{
			ConsumerKey:       cfg.Twitter.ConsumerKey,
			ConsumerSecret:    cfg.Twitter.ConsumerSecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		},
		MinRequestInterval: minInterval,
	}, logs.Logger().With(logx.String("comp", "twitter")))

	every, err := config.ParseDurationOrDefault("poll.every", cfg.Poll.Every, defaultPollEvery)
	if err != nil {
		return nil, err
	}

	poll := poller.New(poller.Config{
		Target:    target,
		PageSize:  cfg.Poll.PageSize,
		MediaOnly: cfg.Poll.MediaOnlyValue(),
	}, manager, feed, adapter, logs.Logger().With(logx.String("comp", "poller")))

	return &App{
		cfgPath: cfgPath,
		log:     log,
		logs:    logs,
		db:      db,
		subs:    manager,
		feed:    feed,
		adapter: adapter,
		poll:    poll,
		target:  target,
		every:   every,
		updates: make(chan transport.Message, 256),
	}, nil
}

// Done is closed when the supervisor context is canceled (fatal loop error
// or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", a.dispatchLoop)

	a.sup.Go("config.watch", func(ctx context.Context) error {
		return config.Watch(ctx, a.cfgPath, a.log.With(logx.String("comp", "config")), a.applyConfig)
	})

	cl := cronLogger{log: a.log.With(logx.String("comp", "poll"))}
	a.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)))
	if _, err := a.cron.AddFunc(fmt.Sprintf("@every %s", a.every), a.runCycle); err != nil {
		return err
	}
	a.cron.Start()

	// Startup hello, best-effort.
	a.sup.Go0("hello", func(ctx context.Context) {
		if err := a.adapter.SendText(ctx, a.target, "birdfeed is online", nil); err != nil {
			a.log.Warn("hello send failed", logx.Err(err))
		}
	})

	a.log.Info("started", logx.Duration("poll_every", a.every))
	return nil
}

func (a *App) runCycle() {
	ctx := a.sup.Context()
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := a.poll.RunCycle(ctx); err != nil {
		// Cycle-level failures (e.g. a store hiccup while listing) are
		// retried on the next tick, not escalated.
		a.log.Error("polling cycle failed", logx.Err(err))
		return
	}
	a.log.Debug("polling cycle complete", logx.Duration("took", time.Since(started)))
}

// applyConfig handles hot reloads. Only logging is re-applied at runtime;
// transport, storage and schedule changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLogging(cfg.Logging))

	if every, err := config.ParseDurationOrDefault("poll.every", cfg.Poll.Every, defaultPollEvery); err == nil && every != a.every {
		a.log.Info("poll.every changed; restart to take effect",
			logx.Duration("current", a.every), logx.Duration("new", every))
	}
}

// Stop runs the shutdown protocol: stop scheduling new cycles, cancel all
// outstanding work, wait for it to drain, then release resources. Safe to
// call more than once.
func (a *App) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		if a.sup != nil {
			a.sup.Cancel()
		}
		if a.cron != nil {
			// In-flight cycle observes the canceled context and drains.
			select {
			case <-a.cron.Stop().Done():
			case <-ctx.Done():
			}
		}
		if a.sup != nil {
			if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.stopErr = err
			}
		}
		if a.adapter != nil {
			_ = a.adapter.Stop(ctx)
		}
		if a.db != nil {
			_ = a.db.Close()
		}
		a.log.Info("shutdown complete")
		if a.logs != nil {
			_ = a.logs.Close()
		}
	})
	return a.stopErr
}

func mapLogging(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.ConsoleValue(),
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    lc.Chat.Enabled,
			MinLevel:   lc.Chat.MinLevel,
			RatePerSec: lc.Chat.RatePerSec,
		},
	}
}
