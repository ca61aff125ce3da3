package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/errs"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/runner"
	"golang.org/x/sync/semaphore"
)

// Defaults applied by NewPool.
const (
	DefaultConcurrency  = 2
	DefaultPollInterval = 5 * time.Second
)

// BusyMessage is stored on a job whose session was already running.
const BusyMessage = "session is busy with another run, try again shortly"

// Runner executes a prompt against a resolved session.
type Runner interface {
	RunSession(ctx context.Context, sessionID string, req runner.Request) (*runner.Outcome, error)
}

// PoolOpts configures a Pool.
type PoolOpts struct {
	Store        *Store
	Runner       Runner
	Events       Publisher // optional
	Concurrency  int
	MaxRows      int
	PollInterval time.Duration
	Logger       *logger.Logger
}

// Pool runs queued jobs with at most Concurrency in flight. A finishing
// worker and Submit both wake the claim loop; a ticker covers rows
// inserted by other processes.
type Pool struct {
	store    *Store
	runner   Runner
	events   Publisher
	sem      *semaphore.Weighted
	maxRows  int
	interval time.Duration
	log      *logger.Logger

	wake    chan struct{}
	fillMu  sync.Mutex
	workers sync.WaitGroup
	loop    sync.WaitGroup
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// NewPool validates opts and returns a Pool.
func NewPool(opts PoolOpts) (*Pool, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("queue: store is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("queue: runner is required")
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Pool{
		store:    opts.Store,
		runner:   opts.Runner,
		events:   opts.Events,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		maxRows:  opts.MaxRows,
		interval: opts.PollInterval,
		log:      logger.OrNop(opts.Logger).With("component", "queue"),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Submit enqueues prompt against session s and wakes the claim loop.
func (p *Pool) Submit(ctx context.Context, s *models.Session, prompt string) (*models.QueuedPromptJob, error) {
	if s == nil {
		return nil, fmt.Errorf("queue: submit: session is required: %w", errs.ErrValidation)
	}
	job, err := p.store.Enqueue(ctx, EnqueueRequest{
		ChatID:      s.ChatID,
		SessionID:   s.ID,
		SessionSlot: s.Slot,
		Prompt:      prompt,
	})
	if err != nil {
		return nil, err
	}
	p.publish(ctx, Event{Kind: EventStatus, JobID: job.ID, Job: job})
	p.log.Info("job queued", "job_id", job.ID, "session_id", s.ID, "chat_id", s.ChatID)
	p.Wake()
	return job, nil
}

// Wake asks the claim loop to run now.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start launches the claim loop. It stops when ctx is cancelled; Wait
// blocks until the loop and all running workers have returned.
func (p *Pool) Start(ctx context.Context) {
	p.loop.Add(1)
	go func() {
		defer p.loop.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			p.fill(ctx)
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			case <-ticker.C:
			}
		}
	}()
}

// Wait blocks until the claim loop and every worker have returned.
func (p *Pool) Wait() {
	p.loop.Wait()
	p.workers.Wait()
}

// Drain claims and runs jobs until none are pending, then returns the
// number executed. `sb ask --async --drain` uses it to work the queue
// without a server.
func (p *Pool) Drain(ctx context.Context) int {
	total := 0
	for {
		n := p.fill(ctx)
		p.workers.Wait()
		if n == 0 {
			return total
		}
		total += n
	}
}

// fill starts workers while a slot is free and a pending row can be
// claimed. It returns the number started.
func (p *Pool) fill(ctx context.Context) int {
	p.fillMu.Lock()
	defer p.fillMu.Unlock()

	// Workers finish after shutdown is requested; the agent timeout bounds them.
	runCtx := context.WithoutCancel(ctx)
	started := 0
	for ctx.Err() == nil && p.sem.TryAcquire(1) {
		job, err := p.store.ClaimNextPending(ctx)
		if err != nil || job == nil {
			p.sem.Release(1)
			if err != nil {
				p.log.Error("claim failed", "error", err)
			}
			return started
		}
		started++
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			defer p.Wake()
			defer p.sem.Release(1)
			p.execute(runCtx, job)
		}()
	}
	return started
}

func (p *Pool) execute(ctx context.Context, job *models.QueuedPromptJob) {
	log := p.log.With("job_id", job.ID, "session_id", job.SessionID)
	p.publish(ctx, Event{Kind: EventStatus, JobID: job.ID, Job: job})

	out, err := p.runner.RunSession(ctx, job.SessionID, runner.Request{
		ChatID: job.ChatID,
		Prompt: job.Prompt,
		OnChunk: func(stream string, chunk []byte) {
			p.publish(ctx, Event{Kind: EventChunk, JobID: job.ID, Stream: stream, Chunk: string(chunk)})
		},
	})

	var finished *models.QueuedPromptJob
	switch {
	case errors.Is(err, errs.ErrBusy):
		finished, err = p.store.MarkFailed(ctx, job.ID, BusyMessage, Outcome{})
	case err != nil:
		finished, err = p.store.MarkFailed(ctx, job.ID, err.Error(), Outcome{})
	case out.Result.Failed():
		finished, err = p.store.MarkFailed(ctx, job.ID, out.Result.Error, outcomeOf(out))
	default:
		finished, err = p.store.MarkCompleted(ctx, job.ID, outcomeOf(out))
	}
	if err != nil {
		log.Error("record result failed", "error", err)
		return
	}
	if finished.Status == models.QueueStatusCompleted {
		log.Info("job completed", "duration_ms", finished.DurationMs)
	} else {
		log.Warn("job failed", "error", finished.Error)
	}
	p.publish(ctx, Event{Kind: EventStatus, JobID: job.ID, Job: finished})

	if n, err := p.store.Prune(ctx, p.maxRows); err != nil {
		log.Warn("prune failed", "error", err)
	} else if n > 0 {
		log.Debug("pruned queue", "deleted", n)
	}
}

func outcomeOf(out *runner.Outcome) Outcome {
	return Outcome{
		Output:            out.Result.Output,
		ExitCode:          out.Result.ExitCode,
		DurationMs:        out.Result.DurationMs,
		ContinuationToken: out.Result.ContinuationToken,
	}
}

func (p *Pool) publish(ctx context.Context, ev Event) {
	if err := p.events.Publish(ctx, ev); err != nil {
		p.log.Warn("publish job event failed", "job_id", ev.JobID, "error", err)
	}
}
