package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/terminal"
)

func newTerminalCmd() *cobra.Command {
	var (
		f       chatFlags
		history string
	)
	cmd := &cobra.Command{
		Use:     "terminal",
		Aliases: []string{"term"},
		Short:   "Interactive prompt loop",
		Long:    "Reads prompts and slash commands line by line and runs them on the terminal channel. Type exit to quit.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(f.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			handler, err := a.Commands(models.ChannelTerminal)
			if err != nil {
				return err
			}
			if history == "" {
				history = defaultHistoryPath()
			}
			repl, err := terminal.New(terminal.Opts{
				Executor:    handler,
				ChatID:      f.chat(a),
				In:          cmd.InOrStdin(),
				Out:         cmd.OutOrStdout(),
				HistoryPath: history,
				Logger:      a.Log,
			})
			if err != nil {
				return err
			}
			return repl.Run(cmd.Context())
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&history, "history", "", "readline history file (default ~/.switchboard/history)")
	return cmd
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".switchboard", "history")
}
