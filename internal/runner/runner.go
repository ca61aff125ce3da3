// Package runner is the single execution path shared by every front-end:
// resolve a session, take its run lock, invoke the agent, persist the run
// and release the lock.
package runner

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/runlock"
)

// Sessions is the subset of the session registry the executor needs.
type Sessions interface {
	GetOrCreateActive(ctx context.Context, chatID string, channel models.Channel) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	AppendRun(ctx context.Context, sessionID string, run models.RunRecord, continuationToken string) (*models.Session, error)
}

// Invoker runs the agent. *agent.Adapter implements it.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) agent.Result
}

// Opts configures an Executor.
type Opts struct {
	Sessions   Sessions
	Locks      *runlock.Set
	Agent      Invoker
	PlanPrefix string
	Logger     *logger.Logger
}

// Executor drives agent runs.
type Executor struct {
	sessions   Sessions
	locks      *runlock.Set
	agent      Invoker
	planPrefix string
	log        *logger.Logger
}

// New validates opts and returns an Executor.
func New(opts Opts) (*Executor, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("runner: sessions is required")
	}
	if opts.Locks == nil {
		return nil, fmt.Errorf("runner: locks is required")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("runner: agent is required")
	}
	return &Executor{
		sessions:   opts.Sessions,
		locks:      opts.Locks,
		agent:      opts.Agent,
		planPrefix: opts.PlanPrefix,
		log:        logger.OrNop(opts.Logger).With("component", "runner"),
	}, nil
}

// Chunk streams are passed to OnChunk.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Request is a prompt from a front-end. When SessionID is empty the
// channel's active session is used (created if needed).
type Request struct {
	ChatID    string
	Channel   models.Channel
	SessionID string
	Prompt    string
	// RecordInput overrides the input text stored in run history.
	RecordInput string
	OnChunk     func(stream string, chunk []byte)
}

// Outcome is a finished run. Result carries agent failures; they are
// persisted like successes.
type Outcome struct {
	Session *models.Session
	Result  agent.Result
	Run     models.RunRecord
}

// Run resolves the target session and runs the prompt. It returns
// errs.ErrBusy if the session already has a run in flight.
func (e *Executor) Run(ctx context.Context, req Request) (*Outcome, error) {
	var (
		s   *models.Session
		err error
	)
	if req.SessionID != "" {
		s, err = e.sessions.Get(ctx, req.SessionID)
	} else {
		s, err = e.sessions.GetOrCreateActive(ctx, req.ChatID, req.Channel)
	}
	if err != nil {
		return nil, fmt.Errorf("runner: resolve session: %w", err)
	}
	return e.RunSession(ctx, s.ID, req)
}

// RunSession runs req against an already resolved session id.
func (e *Executor) RunSession(ctx context.Context, sessionID string, req Request) (*Outcome, error) {
	release, err := e.locks.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Reload under the lock so the latest continuation token is used.
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("runner: load session: %w", err)
	}

	prompt := req.Prompt
	if s.PlanMode && e.planPrefix != "" {
		prompt = e.planPrefix + prompt
	}
	areq := agent.Request{
		Prompt:            prompt,
		SessionID:         s.ID,
		ContinuationToken: s.Token(),
		ReasoningEffort:   s.ReasoningEffort,
	}
	if req.OnChunk != nil {
		areq.OnStdout = func(b []byte) { req.OnChunk(StreamStdout, b) }
		areq.OnStderr = func(b []byte) { req.OnChunk(StreamStderr, b) }
	}

	res := e.agent.Invoke(ctx, areq)

	input := req.RecordInput
	if input == "" {
		input = req.Prompt
	}
	run := models.RunRecord{
		Input:      input,
		Output:     res.Output,
		ExitCode:   res.ExitCode,
		DurationMs: res.DurationMs,
	}
	if res.Failed() {
		msg := res.Error
		run.Error = &msg
	}

	updated, err := e.sessions.AppendRun(ctx, s.ID, run, res.ContinuationToken)
	if err != nil {
		return &Outcome{Session: s, Result: res, Run: run}, fmt.Errorf("runner: persist run: %w", err)
	}
	e.log.Info("run finished", "session_id", s.ID, "slot", s.Slot, "chat_id", s.ChatID,
		"ok", !res.Failed(), "duration_ms", res.DurationMs)
	return &Outcome{Session: updated, Result: res, Run: run}, nil
}
