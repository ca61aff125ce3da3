// Package app wires the core components together for one process. It owns
// the database handle and every piece of shared in-memory state (registry
// mutex, run locks, event hub) so each is constructed exactly once.
package app

import (
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/runlock"
	"github.com/zulandar/switchboard/internal/runner"
	"github.com/zulandar/switchboard/internal/scheduler"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/telegraph"
	"gorm.io/gorm"
)

// Opts configures an App.
type Opts struct {
	Config *config.Config
	Logger *logger.Logger
	// DB overrides the configured database, e.g. an in-memory one in tests.
	DB *gorm.DB
	// Invoker overrides the agent subprocess adapter.
	Invoker runner.Invoker
	// Adapter overrides the bot adapter chosen by bot.platform.
	Adapter telegraph.Adapter
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	DB        *gorm.DB
	Sessions  *session.Registry
	Locks     *runlock.Set
	Runner    *runner.Executor
	Schedules *scheduler.Store
	Queue     *queue.Store
	Hub       *queue.Hub

	adapter telegraph.Adapter
	dbs     *db.Pool
}

// New opens the store and builds the core components. It performs no
// recovery; Serve does that so read-only CLI commands can run next to a
// live server.
func New(opts Opts) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	log := logger.OrNop(opts.Logger)

	a := &App{Config: cfg, Log: log, DB: opts.DB, adapter: opts.Adapter}
	if a.DB == nil {
		a.dbs = db.NewPool()
		gdb, err := a.dbs.Get(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.DB = gdb
	}

	var cleaner session.ArtifactCleaner
	if cfg.Agent.SessionsDir != "" {
		cleaner = &agent.SessionFiles{Dir: cfg.Agent.SessionsDir, Logger: log}
	}
	var err error
	if a.Sessions, err = session.NewRegistry(session.Opts{DB: a.DB, Cleaner: cleaner, Logger: log}); err != nil {
		return nil, a.fail(err)
	}

	invoker := opts.Invoker
	if invoker == nil {
		ad, err := agent.New(agent.Opts{
			Command:             cfg.Agent.Command,
			Args:                cfg.Agent.Args,
			ReasoningEffortArgs: cfg.Agent.ReasoningEffortArgs,
			Timeout:             time.Duration(cfg.Agent.TimeoutSec) * time.Second,
			WorkDir:             cfg.Agent.WorkDir,
			Env:                 cfg.Agent.Env,
			Logger:              log,
		})
		if err != nil {
			return nil, a.fail(err)
		}
		invoker = ad
	}

	a.Locks = runlock.New()
	if a.Runner, err = runner.New(runner.Opts{
		Sessions:   a.Sessions,
		Locks:      a.Locks,
		Agent:      invoker,
		PlanPrefix: cfg.Agent.PlanPrefix,
		Logger:     log,
	}); err != nil {
		return nil, a.fail(err)
	}
	if a.Schedules, err = scheduler.NewStore(scheduler.StoreOpts{
		DB:              a.DB,
		DefaultTimezone: cfg.Scheduler.DefaultTimezone,
	}); err != nil {
		return nil, a.fail(err)
	}
	if a.Queue, err = queue.NewStore(queue.StoreOpts{DB: a.DB}); err != nil {
		return nil, a.fail(err)
	}
	a.Hub = queue.NewHub(log)
	return a, nil
}

func (a *App) fail(err error) error {
	a.Close()
	return fmt.Errorf("app: %w", err)
}

// Commands returns a command handler acting for channel.
func (a *App) Commands(channel models.Channel) (*command.Handler, error) {
	return command.NewHandler(command.HandlerOpts{
		Sessions: a.Sessions,
		Runner:   a.Runner,
		Channel:  channel,
		Logger:   a.Log,
	})
}

// NewPool builds a queue worker pool from the queue config. events may
// be nil.
func (a *App) NewPool(events queue.Publisher) (*queue.Pool, error) {
	pool, err := queue.NewPool(queue.PoolOpts{
		Store:        a.Queue,
		Runner:       a.Runner,
		Events:       events,
		Concurrency:  a.Config.Queue.Concurrency,
		MaxRows:      a.Config.Queue.MaxRows,
		PollInterval: time.Duration(a.Config.Queue.PollIntervalSec) * time.Second,
		Logger:       a.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return pool, nil
}

// Close releases the database handles the App opened itself.
func (a *App) Close() error {
	if a.dbs == nil {
		return nil
	}
	return a.dbs.Close()
}
