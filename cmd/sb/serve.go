package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, queue, web API and chat bot",
		Long: "Starts every enabled front-end against the shared session store and blocks until " +
			"SIGINT or SIGTERM. Running prompts and jobs finish before exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to switchboard config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	a, err := openApp(configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}
