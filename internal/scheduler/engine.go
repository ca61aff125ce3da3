// Package scheduler runs cron-style prompts against sessions. A poll loop
// selects due jobs, runs each at most once concurrently, and records the
// outcome before computing the next run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/runner"
)

// DefaultPollInterval is used when Opts.PollInterval is zero.
const DefaultPollInterval = 30 * time.Second

// Resolver finds or creates the session a job targets.
type Resolver interface {
	EnsureForTarget(ctx context.Context, chatID, target string) (*models.Session, error)
}

// Runner executes a prompt against a resolved session.
type Runner interface {
	RunSession(ctx context.Context, sessionID string, req runner.Request) (*runner.Outcome, error)
}

// Opts configures an Engine.
type Opts struct {
	Store        *Store
	Sessions     Resolver
	Runner       Runner
	Notifier     notify.Notifier // optional
	PollInterval time.Duration
	Logger       *logger.Logger
	Now          func() time.Time
}

// Engine polls for due jobs and executes them.
type Engine struct {
	store    *Store
	sessions Resolver
	runner   Runner
	notifier notify.Notifier
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	jobs     sync.WaitGroup
	loop     sync.WaitGroup
}

// New validates opts and returns an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("scheduler: store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("scheduler: sessions is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:    opts.Store,
		sessions: opts.Sessions,
		runner:   opts.Runner,
		notifier: opts.Notifier,
		interval: opts.PollInterval,
		log:      logger.OrNop(opts.Logger).With("component", "scheduler"),
		now:      opts.Now,
		inflight: make(map[string]struct{}),
	}, nil
}

// Start repairs missing next-run times and launches the poll loop. The
// loop stops when ctx is cancelled; Wait blocks until it and every job it
// started have finished.
func (e *Engine) Start(ctx context.Context) error {
	n, err := e.store.RepairNextRuns(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.Info("repaired next run times", "jobs", n)
	}

	e.loop.Add(1)
	go func() {
		defer e.loop.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			if _, err := e.Poll(ctx); err != nil && ctx.Err() == nil {
				e.log.Error("poll failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	e.log.Info("scheduler started", "interval", e.interval.String())
	return nil
}

// Wait blocks until the poll loop and all in-flight jobs have returned.
func (e *Engine) Wait() {
	e.loop.Wait()
	e.jobs.Wait()
}

// Poll runs one tick: every due job that is not already executing is
// started in its own goroutine. It returns the number started.
func (e *Engine) Poll(ctx context.Context) (int, error) {
	due, err := e.store.Due(ctx, e.now())
	if err != nil {
		return 0, err
	}
	// Jobs outlive a shutdown request; the agent timeout bounds them.
	runCtx := context.WithoutCancel(ctx)
	started := 0
	for i := range due {
		job := due[i]
		if !e.claim(job.ID) {
			continue
		}
		started++
		e.jobs.Add(1)
		go func() {
			defer e.jobs.Done()
			defer e.release(job.ID)
			e.execute(runCtx, &job)
		}()
	}
	return started, nil
}

// RunDue runs one tick and waits for the jobs it started.
func (e *Engine) RunDue(ctx context.Context) (int, error) {
	n, err := e.Poll(ctx)
	e.jobs.Wait()
	return n, err
}

func (e *Engine) claim(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}

// InFlight reports whether a job is executing.
func (e *Engine) InFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[id]
	return ok
}

func (e *Engine) execute(ctx context.Context, job *models.ScheduledJob) {
	log := e.log.With("job_id", job.ID, "chat_id", job.ChatID, "target", job.SessionTarget)

	status, errText, summary := models.JobStatusOK, "", ""
	var slot string

	s, err := e.sessions.EnsureForTarget(ctx, job.ChatID, job.SessionTarget)
	if err != nil {
		// A target that cannot be resolved still counts as an attempt.
		status, errText = models.JobStatusError, err.Error()
	} else {
		slot = s.Slot
		out, err := e.runner.RunSession(ctx, s.ID, runner.Request{
			ChatID:      job.ChatID,
			Prompt:      job.Prompt,
			RecordInput: fmt.Sprintf("[job %s] %s", job.ID, job.Prompt),
		})
		switch {
		case errors.Is(err, errs.ErrBusy):
			// Not an attempt: next_run_at stays in the past so the next
			// tick retries.
			log.Info("session busy, retrying next poll", "session_id", s.ID)
			return
		case err != nil:
			status, errText = models.JobStatusError, err.Error()
		case out.Result.Failed():
			status, errText = models.JobStatusError, out.Result.Error
			summary = out.Result.Output
		default:
			summary = out.Result.Output
		}
	}

	if err := e.store.RecordRun(ctx, job, e.now(), status, errText); err != nil {
		log.Error("record run failed", "error", err)
	}
	if status == models.JobStatusOK {
		log.Info("job finished", "slot", slot, "run_once", job.RunOnce)
	} else {
		log.Warn("job failed", "slot", slot, "run_once", job.RunOnce, "error", errText)
	}

	msg := formatOutcome(job, slot, status, errText, summary)
	if err := e.notifier.Notify(ctx, notify.Notification{TargetID: job.ChatID, Message: msg}); err != nil {
		log.Warn("notify failed", "error", err)
	}
}

// formatOutcome renders the chat notification for a job attempt.
func formatOutcome(job *models.ScheduledJob, slot, status, errText, summary string) string {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	where := job.SessionTarget
	if slot != "" {
		where = "slot " + slot
	}
	if status == models.JobStatusOK {
		return fmt.Sprintf("Job %s (%s) finished:\n%s", id, where, notify.Truncate(summary, 1500))
	}
	msg := fmt.Sprintf("Job %s (%s) failed: %s", id, where, notify.Truncate(errText, 500))
	if summary != "" {
		msg += "\n" + notify.Truncate(summary, 1000)
	}
	return msg
}
