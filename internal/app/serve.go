package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/scheduler"
	"github.com/zulandar/switchboard/internal/telegraph"
	"github.com/zulandar/switchboard/internal/telegraph/discord"
	"github.com/zulandar/switchboard/internal/telegraph/slack"
	"github.com/zulandar/switchboard/internal/web"
	"golang.org/x/sync/errgroup"
)

// Serve runs the long-lived components until ctx is cancelled or one of
// them fails: startup recovery, the queue pool, the scheduler, the web
// server and the bot. In-flight jobs and prompts finish before it returns.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	log := a.Log.With("component", "serve")

	if _, err := a.Sessions.Init(ctx); err != nil {
		return fmt.Errorf("app: normalize sessions: %w", err)
	}
	if n, err := a.Queue.RecoverStuck(ctx); err != nil {
		return fmt.Errorf("app: recover queue: %w", err)
	} else if n > 0 {
		log.Warn("failed jobs interrupted by restart", "jobs", n)
	}

	runCtx, cancel := context.WithCancel(ctx)
	// Stop everything first, then wait in reverse start order.
	var waiters []func()
	defer func() {
		cancel()
		for i := len(waiters) - 1; i >= 0; i-- {
			waiters[i]()
		}
	}()
	g, gctx := errgroup.WithContext(runCtx)
	waiters = append(waiters, func() { _ = g.Wait() })

	events, closeEvents, err := a.events(gctx)
	if err != nil {
		return err
	}
	waiters = append(waiters, closeEvents)

	pool, err := a.NewPool(events)
	if err != nil {
		return err
	}
	pool.Start(gctx)
	waiters = append(waiters, pool.Wait)

	if err := a.reviewCrashLog(gctx, pool); err != nil {
		log.Warn("crash review skipped", "error", err)
	}

	adapter, err := a.botAdapter()
	if err != nil {
		return err
	}

	if cfg.SchedulerEnabled() {
		engine, err := scheduler.New(scheduler.Opts{
			Store:        a.Schedules,
			Sessions:     a.Sessions,
			Runner:       a.Runner,
			Notifier:     a.notifier(adapter),
			PollInterval: time.Duration(cfg.Scheduler.PollIntervalSec) * time.Second,
			Logger:       a.Log,
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		if err := engine.Start(gctx); err != nil {
			return fmt.Errorf("app: start scheduler: %w", err)
		}
		waiters = append(waiters, engine.Wait)
	}

	if cfg.Web.Enabled {
		srv, err := web.New(web.Opts{
			Sessions:       a.Sessions,
			Queue:          a.Queue,
			Pool:           pool,
			Hub:            a.Hub,
			Schedules:      a.Schedules,
			Port:           cfg.Web.Port,
			AllowedOrigins: cfg.Web.AllowedOrigins,
			Logger:         a.Log,
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error { return srv.Start(gctx) })
	}

	if adapter != nil {
		handler, err := a.Commands(models.ChannelBot)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		daemon, err := telegraph.NewDaemon(telegraph.DaemonOpts{
			Adapter:  adapter,
			Executor: handler,
			Announce: cfg.Bot.Channel != "",
			Logger:   a.Log,
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		g.Go(func() error { return daemon.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	log.Info("switchboard running",
		"web", cfg.Web.Enabled, "bot", cfg.Bot.Platform, "scheduler", cfg.SchedulerEnabled())
	err = g.Wait()
	log.Info("switchboard stopping")
	return err
}

// events picks the publisher for queue events. With Redis configured,
// events go through the channel and come back into the local hub via the
// forwarder, so every process sees every job.
func (a *App) events(ctx context.Context) (queue.Publisher, func(), error) {
	if a.Config.Redis.Addr == "" {
		return a.Hub, func() {}, nil
	}
	bus, err := queue.NewRedisBus(ctx, queue.RedisOpts{
		Addr:    a.Config.Redis.Addr,
		Channel: a.Config.Redis.Channel,
		Logger:  a.Log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	if err := bus.StartForwarder(ctx, a.Hub); err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	return bus, func() { bus.Close() }, nil
}

func (a *App) botAdapter() (telegraph.Adapter, error) {
	if a.adapter != nil {
		return a.adapter, nil
	}
	bot := a.Config.Bot
	var (
		ad  telegraph.Adapter
		err error
	)
	switch bot.Platform {
	case "":
		return nil, nil
	case "slack":
		ad, err = slack.New(slack.AdapterOpts{
			AppToken:  bot.Slack.AppToken,
			BotToken:  bot.Slack.BotToken,
			ChannelID: bot.Channel,
			Logger:    a.Log,
		})
	case "discord":
		ad, err = discord.New(discord.AdapterOpts{
			BotToken:  bot.Discord.BotToken,
			ChannelID: bot.Channel,
			Logger:    a.Log,
		})
	default:
		return nil, fmt.Errorf("app: unsupported bot platform %q", bot.Platform)
	}
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return ad, nil
}

// notifier fans scheduled-job outcomes out to the bot and the configured
// shell command.
func (a *App) notifier(adapter telegraph.Adapter) notify.Notifier {
	var out notify.Multi
	if adapter != nil {
		out = append(out, &notify.Chat{
			Sender:   &telegraph.Sender{Adapter: adapter},
			Fallback: a.Config.Bot.Channel,
		})
	}
	if a.Config.Notify.Command != "" {
		out = append(out, &notify.Command{Template: a.Config.Notify.Command})
	}
	if len(out) == 0 {
		return notify.Nop{}
	}
	return out
}
