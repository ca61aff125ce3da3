package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/app"
	"github.com/zulandar/switchboard/internal/command"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/runner"
)

func newAskCmd() *cobra.Command {
	var (
		f      chatFlags
		target string
		async  bool
		drain  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <prompt...>",
		Short: "Run one prompt and print the reply",
		Long: "Runs a prompt against the active terminal session, or against --target. " +
			"With --async the prompt is queued for a running `sb serve` and the job id is printed; " +
			"add --drain to work through the queue in this process instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if drain && !async {
				return fmt.Errorf("--drain requires --async")
			}
			return runAsk(cmd, f, target, async, drain, strings.Join(args, " "))
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&target, "target", "t", "", "slot letter, session id or id prefix")
	cmd.Flags().BoolVar(&async, "async", false, "queue the prompt instead of waiting for it")
	cmd.Flags().BoolVar(&drain, "drain", false, "with --async, run every pending job before exiting")
	return cmd
}

func runAsk(cmd *cobra.Command, f chatFlags, target string, async, drain bool, prompt string) error {
	a, err := openApp(f.configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	chatID := f.chat(a)
	out := cmd.OutOrStdout()

	var s *models.Session
	if target != "" {
		s, err = a.Sessions.EnsureForTarget(ctx, chatID, target)
	} else if async {
		s, err = a.Sessions.GetOrCreateActive(ctx, chatID, models.ChannelTerminal)
	}
	if err != nil {
		return err
	}

	if async {
		job, err := a.Queue.Enqueue(ctx, queue.EnqueueRequest{
			ChatID:      chatID,
			SessionID:   s.ID,
			SessionSlot: s.Slot,
			Prompt:      prompt,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Queued job %s on slot %s\n", job.ID, s.Slot)
		if !drain {
			return nil
		}
		return drainQueue(cmd, a, job.ID)
	}

	req := runner.Request{
		ChatID:  chatID,
		Channel: models.ChannelTerminal,
		Prompt:  prompt,
		OnChunk: progressWriter(cmd.ErrOrStderr()),
	}
	var res *runner.Outcome
	if s != nil {
		res, err = a.Runner.RunSession(ctx, s.ID, req)
	} else {
		res, err = a.Runner.Run(ctx, req)
	}
	if res == nil {
		return err
	}
	fmt.Fprintln(out, command.FormatResult(res))
	if err != nil {
		return err
	}
	if res.Result.Failed() {
		return fmt.Errorf("run failed")
	}
	return nil
}

// drainQueue runs pending jobs without a server and reports how the job
// queued by this command ended.
func drainQueue(cmd *cobra.Command, a *app.App, jobID string) error {
	pool, err := a.NewPool(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	n := pool.Drain(ctx)
	job, err := a.Queue.Get(ctx, jobID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ran %d job(s); %s is %s\n", n, shortID(job.ID), job.Status)
	switch job.Status {
	case models.QueueStatusCompleted:
		fmt.Fprintln(out, job.Output)
		return nil
	case models.QueueStatusFailed:
		return fmt.Errorf("job %s failed: %s", shortID(job.ID), job.Error)
	default:
		// Claimed by a running server before this process got to it.
		return nil
	}
}

// progressWriter echoes agent stderr as it arrives.
func progressWriter(w io.Writer) func(stream string, chunk []byte) {
	return func(stream string, chunk []byte) {
		if stream == runner.StreamStderr {
			w.Write(chunk)
		}
	}
}
