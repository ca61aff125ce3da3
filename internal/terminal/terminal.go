// Package terminal is the interactive front-end: a line-oriented REPL that
// feeds each line through the shared command handler.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/runner"
)

// Prompt is printed before each line.
const Prompt = "sb> "

// Executor handles one line of input and returns the reply.
type Executor interface {
	Execute(ctx context.Context, chatID, text string, onChunk func(stream string, chunk []byte)) string
}

// Opts configures a REPL.
type Opts struct {
	Executor    Executor
	ChatID      string
	In          io.Reader
	Out         io.Writer
	HistoryPath string // readline history file; empty disables persistence
	Logger      *logger.Logger
}

// REPL reads lines until EOF, an exit word, or context cancellation.
type REPL struct {
	exec    Executor
	chatID  string
	in      io.Reader
	out     io.Writer
	history string
	log     *logger.Logger
}

// New validates opts and returns a REPL.
func New(opts Opts) (*REPL, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("terminal: executor is required")
	}
	if strings.TrimSpace(opts.ChatID) == "" {
		return nil, fmt.Errorf("terminal: chat id is required")
	}
	if opts.In == nil || opts.Out == nil {
		return nil, fmt.Errorf("terminal: input and output are required")
	}
	return &REPL{
		exec:    opts.Executor,
		chatID:  opts.ChatID,
		in:      opts.In,
		out:     opts.Out,
		history: opts.HistoryPath,
		log:     logger.OrNop(opts.Logger).With("component", "terminal"),
	}, nil
}

// Run drives the loop. Agent progress written to stderr is echoed as it
// arrives; the reply is printed once the line has been handled.
func (r *REPL) Run(ctx context.Context) error {
	input, err := newLineInput(r.in, r.out, r.history)
	if err != nil {
		r.log.Warn("readline unavailable, using plain input", "error", err)
	}
	defer input.Close()

	fmt.Fprintf(r.out, "switchboard terminal (chat %s). Type /help for commands, exit to quit.\n", r.chatID)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := input.ReadLine(Prompt)
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("terminal: read: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isExit(line) {
			return nil
		}

		reply := r.exec.Execute(ctx, r.chatID, line, r.echoProgress)
		if reply != "" {
			fmt.Fprintln(r.out, reply)
		}
	}
}

func (r *REPL) echoProgress(stream string, chunk []byte) {
	if stream != runner.StreamStderr {
		return
	}
	r.out.Write(chunk)
}

func isExit(line string) bool {
	switch strings.ToLower(line) {
	case "exit", "quit", "/exit", "/quit":
		return true
	}
	return false
}
