package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/app"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/scheduler"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Scheduled job management commands",
		Long:  "Recurring and one-shot prompts run by the scheduler inside `sb serve`.",
	}

	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobAddCmd())
	cmd.AddCommand(newJobOnceCmd())
	cmd.AddCommand(newJobToggleCmd("enable", "Enable a job and recompute its next run", true))
	cmd.AddCommand(newJobToggleCmd("disable", "Disable a job", false))
	cmd.AddCommand(newJobRemoveCmd())
	return cmd
}

func newJobListCmd() *cobra.Command {
	var (
		f   chatFlags
		all bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			chatID := f.chat(a)
			if all {
				chatID = ""
			}
			jobs, err := a.Schedules.List(cmd.Context(), chatID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatJobTable(jobs))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "list jobs of every chat")
	return cmd
}

type jobFlags struct {
	chatFlags
	target   string
	timezone string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	f.chatFlags.register(cmd)
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "slot letter, session id or id prefix (required)")
	cmd.Flags().StringVar(&f.timezone, "tz", "", "IANA timezone (default: scheduler.default_timezone)")
	cmd.MarkFlagRequired("target")
}

func (f *jobFlags) spec(a *app.App, prompt []string) scheduler.JobSpec {
	return scheduler.JobSpec{
		ChatID:   f.chat(a),
		Target:   f.target,
		Prompt:   strings.Join(prompt, " "),
		Timezone: f.timezone,
	}
}

func newJobAddCmd() *cobra.Command {
	var (
		f    jobFlags
		expr string
	)
	cmd := &cobra.Command{
		Use:     "add <prompt...>",
		Short:   "Add a recurring job",
		Example: `  sb job add -t B --cron "0 9 * * 1-5" summarize open pull requests`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			sp := f.spec(a, args)
			sp.Cron = expr
			job, err := a.Schedules.Add(cmd.Context(), sp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added job %s, next run %s\n", job.ID, formatTime(job.NextRunAt))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&expr, "cron", "", "five-field cron expression (required)")
	cmd.MarkFlagRequired("cron")
	return cmd
}

func newJobOnceCmd() *cobra.Command {
	var (
		f  jobFlags
		at string
		in time.Duration
	)
	cmd := &cobra.Command{
		Use:   "once <prompt...>",
		Short: "Add a one-shot job",
		Long:  "Schedules a prompt to run once, at an RFC 3339 time (--at) or after a delay (--in). The job is deleted after it runs.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := onceTime(at, in, time.Now())
			if err != nil {
				return err
			}
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.Schedules.AddOnce(cmd.Context(), f.spec(a, args), when)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added one-shot job %s at %s\n", job.ID, formatTime(job.NextRunAt))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&at, "at", "", "run time (RFC 3339)")
	cmd.Flags().DurationVar(&in, "in", 0, "run after this delay, e.g. 30m")
	return cmd
}

// onceTime picks the run time of a one-shot job from exactly one of at
// and in.
func onceTime(at string, in time.Duration, now time.Time) (time.Time, error) {
	switch {
	case at != "" && in != 0:
		return time.Time{}, fmt.Errorf("use either --at or --in, not both")
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse --at: %w", err)
		}
		return t, nil
	case in > 0:
		return now.Add(in), nil
	default:
		return time.Time{}, fmt.Errorf("one of --at or --in is required")
	}
}

func newJobToggleCmd(use, short string, enable bool) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var job *models.ScheduledJob
			if enable {
				job, err = a.Schedules.Enable(cmd.Context(), args[0])
			} else {
				job, err = a.Schedules.Disable(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s %sd, next run %s\n", job.ID, use, formatTime(job.NextRunAt))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to switchboard config file")
	return cmd
}

func newJobRemoveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "rm <job-id>",
		Aliases: []string{"remove"},
		Short:   "Delete a job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Schedules.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to switchboard config file")
	return cmd
}
