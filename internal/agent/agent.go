// Package agent runs the external conversational agent CLI as a
// subprocess and reports every outcome as data.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zulandar/switchboard/internal/logger"
)

// DefaultKillGrace is how long a timed-out process group gets between
// SIGTERM and SIGKILL.
const DefaultKillGrace = 10 * time.Second

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	KindNone     ErrorKind = ""
	KindTimeout  ErrorKind = "timeout"
	KindSpawn    ErrorKind = "spawn"
	KindExit     ErrorKind = "exit"
	KindCanceled ErrorKind = "canceled"
)

// tokenPattern matches the continuation marker the agent prints.
var tokenPattern = regexp.MustCompile(`(?i)session id:\s*([0-9a-f][0-9a-f-]{7,})`)

// ExtractToken returns the first continuation token found in text.
func ExtractToken(text string) string {
	m := tokenPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// Opts configures an Adapter.
type Opts struct {
	Command             string
	Args                []string
	ReasoningEffortArgs []string
	Timeout             time.Duration
	KillGrace           time.Duration
	WorkDir             string
	Env                 map[string]string
	Logger              *logger.Logger
}

// Request is one invocation.
type Request struct {
	Prompt            string
	SessionID         string
	ContinuationToken string
	ReasoningEffort   string
	Timeout           time.Duration     // overrides Opts.Timeout when > 0
	WorkDir           string            // overrides Opts.WorkDir when set
	Env               map[string]string // merged over Opts.Env
	OnStdout          func([]byte)
	OnStderr          func([]byte)
}

// Result is the outcome of an invocation. Error is empty on success.
type Result struct {
	Output            string
	Error             string
	ExitCode          *int
	DurationMs        int64
	ContinuationToken string
	TimedOut          bool
	ErrorKind         ErrorKind
}

// Failed reports whether the run did not succeed.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Adapter invokes the agent CLI.
type Adapter struct {
	opts Opts
	log  *logger.Logger
}

// New validates opts and returns an Adapter.
func New(opts Opts) (*Adapter, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return nil, fmt.Errorf("agent: command is required")
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	return &Adapter{opts: opts, log: logger.OrNop(opts.Logger).With("component", "agent")}, nil
}

// captureWriter buffers subprocess output and forwards each chunk.
type captureWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	onWrite func([]byte)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	if w.onWrite != nil {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		w.onWrite(chunk)
	}
	return n, err
}

func (w *captureWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// Invoke runs the agent once. It never returns an error: spawn failures,
// timeouts and non-zero exits are all encoded in the Result. Partial
// stdout and any continuation token are kept on every path.
func (a *Adapter) Invoke(ctx context.Context, req Request) Result {
	timeout := a.opts.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	args := BuildArgs(a.opts.Args, a.opts.ReasoningEffortArgs,
		req.Prompt, req.SessionID, req.ContinuationToken, req.ReasoningEffort)

	cmd := exec.CommandContext(runCtx, a.opts.Command, args...)
	cmd.Dir = a.opts.WorkDir
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	cmd.Env = mergeEnv(os.Environ(), a.opts.Env, req.Env)

	// Own process group so a timeout takes down the whole tree: SIGTERM
	// first, SIGKILL to the group once the grace period is over. WaitDelay
	// alone would only kill the leader.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	grace := a.opts.KillGrace
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		time.AfterFunc(grace, func() { _ = syscall.Kill(pgid, syscall.SIGKILL) })
		return syscall.Kill(pgid, syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	stdout := &captureWriter{onWrite: req.OnStdout}
	stderr := &captureWriter{onWrite: req.OnStderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	a.log.Debug("agent start", "session_id", req.SessionID, "resume", req.ContinuationToken != "")

	var res Result
	if err := cmd.Start(); err != nil {
		res.DurationMs = time.Since(start).Milliseconds()
		res.Error = fmt.Sprintf("failed to start %s: %v", a.opts.Command, err)
		res.ErrorKind = KindSpawn
		a.log.Warn("agent spawn failed", "session_id", req.SessionID, "error", err)
		return res
	}
	waitErr := cmd.Wait()
	res.DurationMs = time.Since(start).Milliseconds()

	out, errOut := stdout.String(), stderr.String()
	res.Output = strings.TrimSpace(out)
	res.ContinuationToken = ExtractToken(out + "\n" + errOut)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.ErrorKind = KindTimeout
		res.Error = fmt.Sprintf("timed out after %s", timeout)
	case ctx.Err() != nil:
		res.ErrorKind = KindCanceled
		res.Error = fmt.Sprintf("canceled: %v", ctx.Err())
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code := exitErr.ExitCode()
			res.ExitCode = &code
			res.ErrorKind = KindExit
			res.Error = strings.TrimSpace(errOut)
			if res.Error == "" {
				res.Error = fmt.Sprintf("exit status %d", code)
			}
		} else {
			res.ErrorKind = KindSpawn
			res.Error = waitErr.Error()
		}
	default:
		code := 0
		res.ExitCode = &code
	}

	if res.Failed() {
		a.log.Warn("agent run failed", "session_id", req.SessionID, "kind", res.ErrorKind,
			"duration_ms", res.DurationMs, "error", res.Error)
	} else {
		a.log.Debug("agent run finished", "session_id", req.SessionID, "duration_ms", res.DurationMs)
	}
	return res
}

// mergeEnv layers override maps onto base KEY=VALUE pairs. Later maps win.
func mergeEnv(base []string, overrides ...map[string]string) []string {
	env := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	for _, o := range overrides {
		for k, v := range o {
			env[k] = v
		}
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
